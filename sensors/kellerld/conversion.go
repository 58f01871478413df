package kellerld

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Fixed transfer-function constants from the Keller protocol. These encode the
// hardware contract and are not tunables.
const (
	pressureOffsetCounts = 16384   // ADC count at the range minimum
	pressureSpanCounts   = 32768   // ADC counts across the full Min..Max span
	temperatureOffset    = 24      // count offset of the upper 12-bit temperature field
	temperatureStep      = 0.05    // degrees C per temperature count
	temperatureBase      = -50.0   // degrees C at zero adjusted counts
	AtmosphericPressure  = 1.01325 // bar, reference atmosphere
	gravity              = 9.81    // m/s^2, vendor reference value for depth
)

// PressureMode describes what a reading of zero means for this transducer.
// It is factory-configured and reported in the scaling registers.
type PressureMode byte

const (
	ModeVented   PressureMode = 0 // PR: zero at atmospheric pressure, vented gauge
	ModeSealed   PressureMode = 1 // PA: zero at 1.0 bar, sealed gauge
	ModeAbsolute PressureMode = 2 // PAA: zero at vacuum
)

// Offset returns the constant the mode adds to convert readings to absolute bar.
func (m PressureMode) Offset() float64 {
	switch m {
	case ModeVented:
		return AtmosphericPressure
	case ModeSealed:
		return 1.0
	default:
		return 0
	}
}

func (m PressureMode) String() string {
	switch m {
	case ModeVented:
		return "vented gauge"
	case ModeSealed:
		return "sealed gauge"
	case ModeAbsolute:
		return "absolute"
	}
	return fmt.Sprintf("unknown(%d)", byte(m))
}

// Status holds the flag bits the driver acts on, decoded from the first byte
// of every response frame.
type Status struct {
	Busy bool // conversion in progress, data words not yet valid
	Mode byte // device mode field, zero = normal mode
	Err  bool // device reports a memory checksum fault
}

// PressureRange is the factory scaling read from the device during Init.
// Treated as immutable for the life of the driver.
type PressureRange struct {
	Min  float64 // bar at 16384 counts
	Max  float64 // bar at 49152 counts
	Mode PressureMode
}

// RawMeasurement is one conversion result as it came off the wire.
type RawMeasurement struct {
	Pressure    uint16
	Temperature uint16
	Status      Status
}

// Measurement is a converted reading.
type Measurement struct {
	Pressure    float64 // bar, absolute
	Temperature float64 // degrees C
}

// Depth returns the measurement as metres of fresh water below the surface.
// Negative above water.
func (m Measurement) Depth() float64 {
	return 100 * (m.Pressure - AtmosphericPressure) / gravity
}

// CalibrationDate is the factory calibration day encoded in scaling word 0.
type CalibrationDate struct {
	Year  int
	Month int
	Day   int
}

func (d CalibrationDate) String() string {
	return fmt.Sprintf("%02d-%02d-%04d", d.Day, d.Month, d.Year)
}

// decodeStatus extracts the known flag bits. Reserved bits are ignored.
func decodeStatus(b byte) Status {
	return Status{
		Busy: b&StatusBusy != 0,
		Mode: (b & StatusModeMask) >> 3,
		Err:  b&StatusChecksumErr != 0,
	}
}

// decodeWords pulls n big-endian 16-bit words out of a response frame,
// skipping the leading status byte.
func decodeWords(frame []byte, n int) ([]uint16, error) {
	if len(frame) < 1+2*n {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortResponse, len(frame), 1+2*n)
	}
	words := make([]uint16, n)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(frame[1+2*i:])
	}
	return words, nil
}

// parsePressureMode reads the mode field from scaling word 0. Three modes are
// defined; the fourth encoding never ships on real hardware.
func parsePressureMode(word uint16) (PressureMode, error) {
	mode := PressureMode(word & 0x3)
	if mode > ModeAbsolute {
		return mode, ErrUnknownPressureMode
	}
	return mode, nil
}

// parseCalibrationDate unpacks the calibration day from scaling word 0.
// Years count from 2010.
func parseCalibrationDate(word uint16) CalibrationDate {
	return CalibrationDate{
		Year:  2010 + int(word>>11),
		Month: int(word>>7) & 0xF,
		Day:   int(word>>2) & 0x1F,
	}
}

// scalingFloat assembles the float32 stored big-endian across two consecutive
// scaling words.
func scalingFloat(hi, lo uint16) float64 {
	return float64(math.Float32frombits(uint32(hi)<<16 | uint32(lo)))
}

// Convert maps raw ADC words to calibrated physical units using the device's
// pressure range. Pure arithmetic, no I/O and no clamping: out-of-range raw
// words propagate to out-of-range physical values for the caller to judge.
func Convert(raw RawMeasurement, rng PressureRange) Measurement {
	p := (float64(raw.Pressure)-pressureOffsetCounts)*(rng.Max-rng.Min)/pressureSpanCounts +
		rng.Min + rng.Mode.Offset()
	t := (float64(raw.Temperature>>4)-temperatureOffset)*temperatureStep + temperatureBase
	return Measurement{Pressure: p, Temperature: t}
}
