package sensors

import (
	"math"
	"testing"
	"time"

	"github.com/bathyx/bathyx/sensors/kellerld"
	"github.com/kidoman/embd"
)

// scriptBus feeds canned Keller LD frames to the wrapper under test: the
// scaling frames once, then an endless stream of measurement cycles.
type scriptBus struct {
	scaling    [][]byte
	frame      []byte
	sentStatus bool
}

func (b *scriptBus) ReadBytes(addr byte, num int) ([]byte, error) {
	if len(b.scaling) > 0 {
		f := b.scaling[0]
		b.scaling = b.scaling[1:]
		return f, nil
	}
	if !b.sentStatus {
		b.sentStatus = true
		return []byte{0x40}, nil
	}
	b.sentStatus = false
	return b.frame, nil
}

func (b *scriptBus) WriteByte(addr, value byte) error                  { return nil }
func (b *scriptBus) ReadByte(addr byte) (byte, error)                  { return 0, nil }
func (b *scriptBus) WriteBytes(addr byte, value []byte) error          { return nil }
func (b *scriptBus) ReadFromReg(addr, reg byte, value []byte) error    { return nil }
func (b *scriptBus) ReadByteFromReg(addr, reg byte) (byte, error)      { return 0, nil }
func (b *scriptBus) ReadWordFromReg(addr, reg byte) (uint16, error)    { return 0, nil }
func (b *scriptBus) WriteToReg(addr, reg byte, value []byte) error     { return nil }
func (b *scriptBus) WriteByteToReg(addr, reg, value byte) error        { return nil }
func (b *scriptBus) WriteWordToReg(addr, reg byte, value uint16) error { return nil }
func (b *scriptBus) Close() error                                      { return nil }

func Test_KellerLDWrapper(t *testing.T) {
	bus := &scriptBus{
		scaling: [][]byte{
			{0x40, 0x15, 0x76}, // absolute mode, calibrated 29-10-2012
			{0x40, 0xBF, 0x80}, // min -1.0
			{0x40, 0x00, 0x00},
			{0x40, 0x41, 0x20}, // max 10.0
			{0x40, 0x00, 0x00},
		},
		frame: []byte{0x40, 0x4E, 0x20, 0x5D, 0xD1},
	}
	var i2c embd.I2CBus = bus

	ld, err := NewKellerLD(&i2c, 2*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	date, rng := ld.Calibration()
	if date.String() != "29-10-2012" {
		t.Errorf("got calibration date %v expected 29-10-2012", date)
	}
	if rng != (kellerld.PressureRange{Min: -1, Max: 10, Mode: kellerld.ModeAbsolute}) {
		t.Errorf("got range %+v expected {-1 10 absolute}", rng)
	}

	// wait for the first measurement cycle to land
	var p float64
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, err = ld.Pressure()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no reading before deadline: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if math.Abs(p-0.2138671875) > 1e-9 {
		t.Errorf("got %v bar expected 0.2138671875", p)
	}
	if temp, _ := ld.Temperature(); math.Abs(temp-23.85) > 1e-6 {
		t.Errorf("got %v degC expected 23.85", temp)
	}
	want := kellerld.Measurement{Pressure: 0.2138671875}.Depth()
	if d, _ := ld.Depth(); math.Abs(d-want) > 1e-9 {
		t.Errorf("got %v m expected %v", d, want)
	}
	if ld.LastUpdate().IsZero() {
		t.Errorf("last update not recorded")
	}

	ld.Close()
	if _, err := ld.Pressure(); err == nil {
		t.Errorf("expected an error after Close")
	}
}
