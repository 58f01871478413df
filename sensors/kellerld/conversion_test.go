package kellerld

import (
	"errors"
	"math"
	"testing"
)

var statusBytes = map[string]struct {
	b    byte
	want Status
}{
	"powered-idle": {0x40, Status{}},
	"all-zero":     {0x00, Status{}},
	"busy":         {0x60, Status{Busy: true}},
	"checksum":     {0x44, Status{Err: true}},
	"custom-mode":  {0x48, Status{Mode: 1}},
	"mode-3":       {0x58, Status{Mode: 3}},
	"everything":   {0x3C, Status{Busy: true, Mode: 3, Err: true}},
	"reserved":     {0x83, Status{}},
}

func Test_DecodeStatus(t *testing.T) {
	for n, tc := range statusBytes {
		got := decodeStatus(tc.b)
		if got != tc.want {
			t.Errorf("status %s (0x%02x): got %+v expected %+v", n, tc.b, got, tc.want)
		}
	}
}

func Test_DecodeWords(t *testing.T) {
	frame := []byte{0x40, 0x4E, 0x20, 0x5D, 0xD1}

	// every truncation of a measurement frame must be rejected
	for n := 0; n < len(frame); n++ {
		if _, err := decodeWords(frame[:n], 2); !errors.Is(err, ErrShortResponse) {
			t.Errorf("frame length %d: got %v expected ErrShortResponse", n, err)
		}
	}

	words, err := decodeWords(frame, 2)
	if err != nil {
		t.Fatalf("full frame: unexpected error %v", err)
	}
	if words[0] != 0x4E20 || words[1] != 0x5DD1 {
		t.Fatalf("got words %04x expected [4e20 5dd1]", words)
	}
}

func Test_ParseScalingWord(t *testing.T) {
	// 0x1574 is the scaling word of a real Bar100: vented gauge, calibrated 29-10-2012
	mode, err := parsePressureMode(0x1574)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if mode != ModeVented {
		t.Errorf("got mode %v expected vented gauge", mode)
	}
	date := parseCalibrationDate(0x1574)
	if date != (CalibrationDate{Year: 2012, Month: 10, Day: 29}) {
		t.Errorf("got date %+v expected 2012-10-29", date)
	}
	if date.String() != "29-10-2012" {
		t.Errorf("got date string %q expected %q", date.String(), "29-10-2012")
	}

	if _, err := parsePressureMode(0x1577); !errors.Is(err, ErrUnknownPressureMode) {
		t.Errorf("mode bits 3: got %v expected ErrUnknownPressureMode", err)
	}
}

func Test_ScalingFloat(t *testing.T) {
	for _, tc := range []struct {
		hi, lo uint16
		want   float64
	}{
		{0xBF80, 0x0000, -1.0},
		{0x4120, 0x0000, 10.0},
		{0x3F80, 0x0000, 1.0},
		{0x0000, 0x0000, 0.0},
	} {
		if got := scalingFloat(tc.hi, tc.lo); got != tc.want {
			t.Errorf("%04x %04x: got %v expected %v", tc.hi, tc.lo, got, tc.want)
		}
	}
}

var conversions = map[string]struct {
	rawP, rawT uint16
	rng        PressureRange
	p, temp    float64
}{
	"range-min":     {16384, 24 << 4, PressureRange{0, 100, ModeAbsolute}, 0.0, -50.0},
	"range-max":     {49152, 24 << 4, PressureRange{0, 100, ModeAbsolute}, 100.0, -50.0},
	"midspan":       {32768, 24 << 4, PressureRange{0, 100, ModeAbsolute}, 50.0, -50.0},
	"temp-step":     {16384, 25 << 4, PressureRange{0, 100, ModeAbsolute}, 0.0, -49.95},
	"vented-offset": {16384, 24 << 4, PressureRange{0, 10, ModeVented}, 1.01325, -50.0},
	"sealed-offset": {16384, 24 << 4, PressureRange{0, 10, ModeSealed}, 1.0, -50.0},
	"bar100-frame":  {0x4E20, 0x5DD1, PressureRange{-1, 10, ModeAbsolute}, 0.2138671875, 23.85},
	"water-column":  {17897, 16768, PressureRange{0, 100, ModeAbsolute}, 4.6173095703125, 1.2},
}

func Test_Convert(t *testing.T) {
	for n, tc := range conversions {
		got := Convert(RawMeasurement{Pressure: tc.rawP, Temperature: tc.rawT}, tc.rng)
		if math.Abs(got.Pressure-tc.p) > 1e-9 {
			t.Errorf("conversion %s: got %v bar expected %v", n, got.Pressure, tc.p)
		}
		if math.Abs(got.Temperature-tc.temp) > 1e-6 {
			t.Errorf("conversion %s: got %v degC expected %v", n, got.Temperature, tc.temp)
		}
	}
}

func Test_Depth(t *testing.T) {
	m := Measurement{Pressure: AtmosphericPressure + 1.0}
	if got := m.Depth(); math.Abs(got-100.0/9.81) > 1e-9 {
		t.Errorf("one bar of water: got %v m expected %v", got, 100.0/9.81)
	}
	surface := Measurement{Pressure: AtmosphericPressure}
	if got := surface.Depth(); got != 0 {
		t.Errorf("surface: got %v m expected 0", got)
	}
}
