package common

import "os/user"

// IsRunningAsRoot reports whether the process has root privileges.
// GPIO access and service installation both require them.
func IsRunningAsRoot() bool {
	usr, _ := user.Current()
	return usr.Username == "root"
}

// LinearScale maps v from [inMin,inMax] onto [outMin,outMax], clamping
// at both ends.
func LinearScale(v, inMin, inMax, outMin, outMax float64) float64 {
	if v <= inMin {
		return outMin
	}
	if v >= inMax {
		return outMax
	}
	return outMin + (v-inMin)*(outMax-outMin)/(inMax-inMin)
}
