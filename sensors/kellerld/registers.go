// Package kellerld provides a driver for the Keller LD line of digital pressure/temperature
// transducers, the sensing element of the Blue Robotics Bar100 depth sensor. Register layout
// and scaling follow Keller's "Communication Protocol 4LD...9LD" document.
package kellerld

const Address byte = 0x40 // fixed I2C address of the LD line

const (
	CmdMeasure     byte = 0xAC // trigger one pressure + temperature conversion
	RegScaling0    byte = 0x12 // pressure mode & calibration date word
	RegPressureMin byte = 0x13 // range minimum, float32 split across words 0x13..0x14
	RegPressureMax byte = 0x15 // range maximum, float32 split across words 0x15..0x16
)

// Status byte flags. Remaining bits are reserved; a healthy powered-up device
// normally answers with bit 6 set, so unknown bits are ignored rather than rejected.
const (
	StatusChecksumErr byte = 1 << 2 // memory checksum failed at power-up
	StatusModeMask    byte = 3 << 3 // device mode field, zero = normal mode
	StatusBusy        byte = 1 << 5 // conversion still in progress
)

// Every response frame starts with the status byte, followed by big-endian
// 16-bit words.
const (
	scalingFrameLen     = 3 // status + one word
	measurementFrameLen = 5 // status + pressure word + temperature word
)
