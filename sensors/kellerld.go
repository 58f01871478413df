package sensors

import (
	"errors"
	"sync"
	"time"

	"github.com/bathyx/bathyx/sensors/kellerld"
	"github.com/kidoman/embd"
)

var errKeller = errors.New("kellerld: sensor is not running")

// KellerLD reads a Keller LD transducer in the background and caches the most
// recent measurement. It implements the DepthReader interface.
type KellerLD struct {
	sensor *kellerld.KellerLD
	rng    kellerld.PressureRange

	mu         sync.Mutex
	reading    kellerld.Measurement
	lastUpdate time.Time
	readErr    error
	running    bool
}

// NewKellerLD initializes the transducer on the given bus and begins reading
// it every freq.
func NewKellerLD(i2cbus *embd.I2CBus, freq time.Duration) (*KellerLD, error) {
	ld := kellerld.KellerLD{Address: kellerld.Address, Bus: i2cbus, Config: kellerld.Config{}}
	rng, err := ld.Init()
	if err != nil {
		return nil, err
	}

	newld := KellerLD{sensor: &ld, rng: rng, running: true}
	go newld.run(freq)
	return &newld, nil
}

func (ld *KellerLD) run(freq time.Duration) {
	clock := time.NewTicker(freq)
	for ld.isRunning() {
		<-clock.C
		m, err := ld.sensor.ReadMeasurement(ld.rng)
		ld.mu.Lock()
		ld.readErr = err
		if err == nil {
			ld.reading = m
			ld.lastUpdate = time.Now()
		}
		ld.mu.Unlock()
	}
	clock.Stop()
}

func (ld *KellerLD) isRunning() bool {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.running
}

// Temperature returns the most recent water temperature in degrees C. A
// failed measurement cycle returns the cached value along with the error.
func (ld *KellerLD) Temperature() (float64, error) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	if !ld.running || ld.lastUpdate.IsZero() {
		return 0, errKeller
	}
	return ld.reading.Temperature, ld.readErr
}

// Pressure returns the most recent absolute pressure in bar.
func (ld *KellerLD) Pressure() (float64, error) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	if !ld.running || ld.lastUpdate.IsZero() {
		return 0, errKeller
	}
	return ld.reading.Pressure, ld.readErr
}

// Depth returns the most recent depth in metres of water.
func (ld *KellerLD) Depth() (float64, error) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	if !ld.running || ld.lastUpdate.IsZero() {
		return 0, errKeller
	}
	return ld.reading.Depth(), ld.readErr
}

// LastUpdate returns the time of the most recent successful measurement, for
// staleness checks by the caller.
func (ld *KellerLD) LastUpdate() time.Time {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.lastUpdate
}

// Calibration reports the factory calibration date and pressure range read
// from the sensor at startup.
func (ld *KellerLD) Calibration() (kellerld.CalibrationDate, kellerld.PressureRange) {
	return ld.sensor.CalibrationDate(), ld.rng
}

// Close stops the measurements of the KellerLD.
func (ld *KellerLD) Close() {
	ld.mu.Lock()
	ld.running = false
	ld.mu.Unlock()
}
