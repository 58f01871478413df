// Package sensors provides a bathyx interface to the sensors carried by the vehicle.
package sensors

// DepthReader provides an interface to a sensor reading water pressure and
// temperature, like the Keller LD transducer inside a Bar100.
type DepthReader interface {
	Temperature() (temp float64, tempError error) // Temperature returns the water temperature in degrees C.
	Pressure() (press float64, pressError error)  // Pressure returns the absolute pressure in bar.
	Depth() (depth float64, depthError error)     // Depth returns metres of water below the surface.
	Close()                                       // Close stops reading from the sensor.
}
