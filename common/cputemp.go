package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const InvalidCpuTemp = float32(-99.0)

type CpuTempUpdateFunc func(cpuTemp float32)

// CpuTempMonitor polls the board temperature once a second and hands
// every valid reading to updater. Reading the sysfs file can stall for
// seconds on some kernels, so this runs in its own goroutine rather
// than inline with the sensor loop.
func CpuTempMonitor(updater CpuTempUpdateFunc) {
	timer := time.NewTicker(1 * time.Second)
	for {
		if t, ok := readCpuTemp(); ok {
			updater(t)
		}
		<-timer.C
	}
}

func readCpuTemp() (float32, bool) {
	raw, err := os.ReadFile("/sys/class/thermal/thermal_zone0/temp")
	if err != nil {
		return InvalidCpuTemp, false
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return InvalidCpuTemp, false
	}
	t := float32(milli)
	if milli > 1000 {
		t = float32(milli) / 1000.0
	}
	return t, t > 0
}

// IsCPUTempValid reports whether a published CPU temperature is a real
// reading rather than the invalid sentinel.
func IsCPUTempValid(cpuTemp float32) bool {
	return cpuTemp > 0
}
