/*
	Copyright (c) 2026 bathyx contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	settings.go: Load and save /etc/bathyx.conf, track daemon status.
*/

package main

import (
	"encoding/json"
	"log"
	"os"
)

const (
	configLocation = "/etc/bathyx.conf"
	managementAddr = ":80"
)

type settings struct {
	Keller_Enabled bool
	NMEA_Enabled   bool
	MQTT_Enabled   bool
	DiveLog        bool    // Enabling requires a restart. Disable works anytime.
	DEBUG          bool
	I2CBus         int     // 1 on current boards, 0 on rev 1.
	SamplePeriodMs int     // Keller LD poll period.
	NMEASerialPort string  // water depth talker output.
	NMEABaud       int
	DepthOffset    float64 // transducer depth below the waterline, meters.
	SiteName       string  // dive site, set by the operator.
	SiteLat        float64
	SiteLng        float64
	MQTTBroker     string
	MQTTPort       int
	MQTTTopic      string
}

type status struct {
	Version                  string
	Build                    string
	Started                  string  // humanized, "22 minutes ago".
	Connected_Users          uint
	Keller_connected         bool
	Keller_calibrated        bool
	Keller_calibration_date  string
	PressureRangeMin         float64 // bar, from the sensor's scaling registers.
	PressureRangeMax         float64
	PressureMode             string
	Measurements_total       uint64
	Measurement_errors       uint64
	Measurement_timeouts     uint64
	Measurements_last_minute uint64
	Uptime                   int64
	CPUTemp                  float32
	DiveSiteGeohash          string
	Logfile_Size             int64
	DiveLog_Size             int64
}

var globalSettings settings
var globalStatus status

func defaultSettings() {
	globalSettings.Keller_Enabled = true
	globalSettings.NMEA_Enabled = false
	globalSettings.MQTT_Enabled = false
	globalSettings.DiveLog = true
	globalSettings.DEBUG = false
	globalSettings.I2CBus = 1
	globalSettings.SamplePeriodMs = 100
	globalSettings.NMEASerialPort = "/dev/ttyAMA0"
	globalSettings.NMEABaud = 4800
	globalSettings.DepthOffset = 0.0
	globalSettings.SiteName = ""
	globalSettings.MQTTBroker = "localhost"
	globalSettings.MQTTPort = 1883
	globalSettings.MQTTTopic = "bathyx/dive"
}

func readSettings() {
	fd, err := os.Open(configLocation)
	defer fd.Close()
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configLocation, err.Error())
		defaultSettings()
		return
	}
	buf := make([]byte, 1024)
	count, err := fd.Read(buf)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configLocation, err.Error())
		defaultSettings()
		return
	}
	var newSettings settings
	err = json.Unmarshal(buf[0:count], &newSettings)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configLocation, err.Error())
		defaultSettings()
		return
	}
	globalSettings = newSettings
	log.Printf("read in settings.\n")
}

func saveSettings() {
	fd, err := os.OpenFile(configLocation, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0644))
	defer fd.Close()
	if err != nil {
		log.Printf("can't save settings %s: %s\n", configLocation, err.Error())
		return
	}
	jsonSettings, _ := json.Marshal(&globalSettings)
	fd.Write(jsonSettings)
	log.Printf("wrote settings.\n")
}
