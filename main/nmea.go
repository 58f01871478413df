/*
	Copyright (c) 2026 bathyx contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	nmea.go: Functions for generating depth sounder NMEA sentences
		to communicate water depth / temperature to chart plotters
		and topside dive displays.
*/

package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/tarm/serial"
)

var nmeaSerialPort *serial.Port
var nmeaPortMutex sync.Mutex

/*
	makeDPTString() creates a NMEA-formatted DPT string (depth below transducer)
		with checksum from the referenced depth reading. The offset field carries
		the configured transducer depth below the waterline so that consumers can
		reconstruct depth below surface.
*/

func makeDPTString(depth float64, offset float64) string {
	/*	Format: $SDDPT,<Depth>,<Offset>*<checksum>
		<Depth>   Water depth relative to the transducer, meters.
		<Offset>  Offset from the transducer, meters. Positive means the
		          distance from the transducer to the water line.
	*/
	msg := fmt.Sprintf("SDDPT,%.2f,%.2f", depth, offset)
	var checksum byte
	for i := range msg {
		checksum = checksum ^ byte(msg[i])
	}
	return fmt.Sprintf("$%s*%02X\r\n", msg, checksum)
}

/*
	makeMTWString() creates a NMEA-formatted MTW string (mean water temperature)
		with checksum from the referenced temperature reading.
*/

func makeMTWString(temp float64) string {
	// Format: $SDMTW,<Temperature>,C*<checksum>
	msg := fmt.Sprintf("SDMTW,%.2f,C", temp)
	var checksum byte
	for i := range msg {
		checksum = checksum ^ byte(msg[i])
	}
	return fmt.Sprintf("$%s*%02X\r\n", msg, checksum)
}

func initNMEAOutput() {
	if !globalSettings.NMEA_Enabled {
		return
	}
	serialConfig := &serial.Config{Name: globalSettings.NMEASerialPort, Baud: globalSettings.NMEABaud}
	p, err := serial.OpenPort(serialConfig)
	if err != nil {
		log.Printf("NMEA - serial port err: %s\n", err.Error())
		return
	}
	nmeaPortMutex.Lock()
	nmeaSerialPort = p
	nmeaPortMutex.Unlock()
	log.Printf("NMEA output on %s at %d baud.\n", globalSettings.NMEASerialPort, globalSettings.NMEABaud)
}

/*
	sendNMEA() writes a sentence to the depth talker port. On a write error the
		port is closed and re-opened on the next heartbeat.
*/

func sendNMEA(msg string) {
	nmeaPortMutex.Lock()
	defer nmeaPortMutex.Unlock()
	if nmeaSerialPort == nil {
		return
	}
	_, err := nmeaSerialPort.Write([]byte(msg))
	if err != nil {
		log.Printf("NMEA - write err: %s\n", err.Error())
		nmeaSerialPort.Close()
		nmeaSerialPort = nil
	}
}

func nmeaOutputActive() bool {
	nmeaPortMutex.Lock()
	defer nmeaPortMutex.Unlock()
	return nmeaSerialPort != nil
}

/*
	sendDepthSentences() emits the DPT/MTW pair for the current dive data. Called
		once per second from the heartbeat sender whenever a valid measurement
		has been seen.
*/

func sendDepthSentences() {
	if !globalSettings.NMEA_Enabled || !isDiveDataValid() {
		return
	}
	if !nmeaOutputActive() {
		initNMEAOutput()
		if !nmeaOutputActive() {
			return
		}
	}
	diveMutex.Lock()
	depth := myDive.Depth
	temp := myDive.Temperature
	diveMutex.Unlock()
	sendNMEA(makeDPTString(depth, globalSettings.DepthOffset))
	sendNMEA(makeMTWString(temp))
}
