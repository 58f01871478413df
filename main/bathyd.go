package main

import (
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gansidui/geohash"

	"github.com/bathyx/bathyx/common"
)

// Set by the build process via ldflags.
var bathyxBuild string
var bathyxVersion string

// Time bathyd was started.
var timeStarted time.Time

var measurementUpdate *uibroadcaster

type measurementStat struct {
	TimeReceived time.Time
	Total        uint64
}

// Completed cycle counts, pruned to the last minute.
var measurementLog []measurementStat

func heartBeatSender() {
	timer := time.NewTicker(1 * time.Second)
	timerMessageStats := time.NewTicker(5 * time.Second)
	for {
		select {
		case <-timer.C:
			sendDepthSentences()
			publishDiveData()
			updateStatus()
		case <-timerMessageStats.C:
			// Save a bit of CPU by not pruning the stats log every 1 second.
			updateMeasurementStats()
		}
	}
}

func updateMeasurementStats() {
	now := time.Now()
	measurementLog = append(measurementLog, measurementStat{TimeReceived: now, Total: globalStatus.Measurements_total})
	t := make([]measurementStat, 0)
	for _, s := range measurementLog {
		if now.Sub(s.TimeReceived).Minutes() < 1 {
			t = append(t, s)
		}
	}
	measurementLog = t
	if len(measurementLog) > 0 {
		globalStatus.Measurements_last_minute = globalStatus.Measurements_total - measurementLog[0].Total
	}
}

func updateStatus() {
	globalStatus.Uptime = bathyxClock.UptimeMillis()
	globalStatus.Started = bathyxClock.HumanizeTime(time.Time{})
	globalStatus.Connected_Users = uint(measurementUpdate.Count())
	globalStatus.DiveSiteGeohash, _ = geohash.Encode(globalSettings.SiteLat,
		globalSettings.SiteLng, siteGeohashPrecision)
}

func main() {
	timeStarted = time.Now()
	runtime.GOMAXPROCS(runtime.NumCPU())

	bathyxClock = NewMonotonic()

	initLogging()

	if bathyxVersion == "" {
		bathyxVersion = "unknown"
	}
	if bathyxBuild == "" {
		bathyxBuild = "unknown"
	}
	log.Printf("Bathyx %s (%s) starting.\n", bathyxVersion, bathyxBuild)

	if !common.IsRunningAsRoot() {
		log.Printf("Not running as root - the management interface on %s and the I2C bus may be unavailable.\n", managementAddr)
	}

	readSettings()

	globalStatus.Version = bathyxVersion
	globalStatus.Build = bathyxBuild

	measurementUpdate = NewUIBroadcaster()

	// Update CPUTemp.
	go common.CpuTempMonitor(func(cpuTemp float32) {
		if common.IsCPUTempValid(cpuTemp) {
			globalStatus.CPUTemp = cpuTemp
		}
	})

	if globalSettings.DiveLog {
		initDataLog()
	}
	initNMEAOutput()
	initMQTT()
	initI2CSensors()

	// Start the heartbeat message loop in the background, once per second.
	go heartBeatSender()
	// Start the management interface.
	go managementInterface()

	// SIGUSR1 re-reads the config, SIGINT/SIGTERM shut down.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for {
		killSignal := <-interrupt
		log.Println("Got signal:", killSignal)
		if killSignal == syscall.SIGUSR1 {
			readSettings()
			continue
		}
		break
	}

	if globalStatus.Keller_connected {
		myDepthReader.Close()
	}
	log.Printf("bathyd stopped after %s.\n", time.Since(timeStarted).Round(time.Second))
}
