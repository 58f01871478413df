package main

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/bathyx/bathyx/sensors"
	"github.com/bathyx/bathyx/sensors/kellerld"
)

const numRetries uint8 = 5

var (
	i2cbus        embd.I2CBus
	myDepthReader sensors.DepthReader
)

// DiveData is the live view of the water column, updated on every completed
// measurement cycle and logged to the dive log.
type DiveData struct {
	Pressure            float64 // bar, absolute at the transducer
	Temperature         float64 // degrees C at the transducer
	Depth               float64 // meters of freshwater column
	MaxDepth            float64 // deepest reading this session
	AscentRate          float64 // m/s, positive while surfacing
	LastMeasurementTime time.Time
}

var myDive DiveData
var diveMutex sync.Mutex

func initI2CSensors() {
	i2cbus = embd.NewI2CBus(byte(globalSettings.I2CBus))

	go pollSensors()
}

func pollSensors() {
	timer := time.NewTicker(4 * time.Second)
	for {
		<-timer.C

		// If it's not currently connected, try connecting to the depth sensor
		if globalSettings.Keller_Enabled && !globalStatus.Keller_connected {
			log.Println("Dive Info: attempting depth sensor connection.")
			if initDepthSensor() {
				globalStatus.Keller_connected = true
				go depthSender()
			}
		}
	}
}

func initDepthSensor() (ok bool) {
	period := time.Duration(globalSettings.SamplePeriodMs) * time.Millisecond
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	kl, err := sensors.NewKellerLD(&i2cbus, period)
	if err != nil {
		log.Printf("Dive Info: couldn't initialize Keller LD: %s\n", err.Error())
		return false
	}
	myDepthReader = kl

	date, rng := kl.Calibration()
	globalStatus.Keller_calibrated = true
	globalStatus.Keller_calibration_date = date.String()
	globalStatus.PressureRangeMin = rng.Min
	globalStatus.PressureRangeMax = rng.Max
	globalStatus.PressureMode = rng.Mode.String()
	log.Printf("Dive Info: Keller LD up, range %.1f..%.1f bar (%s), calibrated %s\n",
		rng.Min, rng.Max, rng.Mode, date)
	return true
}

func depthSender() {
	var (
		press     float64
		temp      float64
		depth     float64
		depthLast = -9999.9
		err       error
		failnum   uint8
	)
	dt := float64(globalSettings.SamplePeriodMs) / 1000
	if dt <= 0 {
		dt = 0.1
	}

	// 5 sec decay for the ascent rate EWMA, close to a dive computer's
	// gauge response.
	u := 5 / (5 + dt)

	timer := time.NewTicker(time.Duration(1000*dt) * time.Millisecond)
	for globalSettings.Keller_Enabled && globalStatus.Keller_connected {
		<-timer.C

		temp, err = myDepthReader.Temperature()
		if err != nil {
			logDbg("Dive Error: couldn't read temperature from sensor: %s\n", err)
		}
		press, err = myDepthReader.Pressure()
		if err != nil {
			globalStatus.Measurement_errors++
			measurementErrors.Inc()
			if errors.Is(err, kellerld.ErrTimeout) {
				globalStatus.Measurement_timeouts++
				measurementTimeouts.Inc()
			}
			failnum++
			if failnum > numRetries {
				log.Printf("Dive Error: couldn't read pressure from sensor %d times, closing: %s\n", failnum, err)
				myDepthReader.Close()
				globalStatus.Keller_connected = false // Try reconnecting a little later
				break
			}
			continue
		}
		failnum = 0
		depth, _ = myDepthReader.Depth()

		diveMutex.Lock()
		myDive.LastMeasurementTime = bathyxClock.Time
		myDive.Pressure = press
		myDive.Temperature = temp
		myDive.Depth = depth
		if depth > myDive.MaxDepth {
			myDive.MaxDepth = depth
		}
		if depthLast < -2000 {
			depthLast = depth // Initialize
		}
		// Assuming timer is reasonably accurate, use a regular ewma.
		// Surfacing shrinks depth, so the sign flips.
		myDive.AscentRate = u*myDive.AscentRate + (1-u)*(depthLast-depth)/dt
		d := myDive
		diveMutex.Unlock()
		depthLast = depth

		globalStatus.Measurements_total++
		measurementsTotal.Inc()

		diveJSON, _ := json.Marshal(&d)
		measurementUpdate.Send(diveJSON)
		logDiveData(d)
	}

	if globalStatus.Keller_connected { // disabled rather than failed
		myDepthReader.Close()
		globalStatus.Keller_connected = false
	}
	diveMutex.Lock()
	myDive.LastMeasurementTime = time.Time{}
	diveMutex.Unlock()
}

func isDiveDataValid() bool {
	diveMutex.Lock()
	defer diveMutex.Unlock()
	return !myDive.LastMeasurementTime.IsZero() &&
		bathyxClock.Since(myDive.LastMeasurementTime) < 15*time.Second
}
