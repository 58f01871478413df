package kellerld

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kidoman/embd"
)

// fakeBus scripts the I2C traffic for driver tests. Command writes are
// recorded in order; every ReadBytes call consumes the next scripted frame.
type fakeBus struct {
	writes   []byte
	reads    []fakeRead
	writeErr error
}

type fakeRead struct {
	frame []byte
	err   error
}

func (b *fakeBus) WriteByte(addr, value byte) error {
	b.writes = append(b.writes, value)
	return b.writeErr
}

func (b *fakeBus) ReadBytes(addr byte, num int) ([]byte, error) {
	if len(b.reads) == 0 {
		return nil, errors.New("fakebus: read past end of script")
	}
	r := b.reads[0]
	b.reads = b.reads[1:]
	return r.frame, r.err
}

// The driver only uses raw byte transfers; the register-oriented half of the
// bus interface is stubbed out.
func (b *fakeBus) ReadByte(addr byte) (byte, error)                  { return 0, nil }
func (b *fakeBus) WriteBytes(addr byte, value []byte) error          { return nil }
func (b *fakeBus) ReadFromReg(addr, reg byte, value []byte) error    { return nil }
func (b *fakeBus) ReadByteFromReg(addr, reg byte) (byte, error)      { return 0, nil }
func (b *fakeBus) ReadWordFromReg(addr, reg byte) (uint16, error)    { return 0, nil }
func (b *fakeBus) WriteToReg(addr, reg byte, value []byte) error     { return nil }
func (b *fakeBus) WriteByteToReg(addr, reg, value byte) error        { return nil }
func (b *fakeBus) WriteWordToReg(addr, reg byte, value uint16) error { return nil }
func (b *fakeBus) Close() error                                      { return nil }

func testDriver(b *fakeBus) *KellerLD {
	var bus embd.I2CBus = b
	return &KellerLD{
		Bus:     &bus,
		Address: Address,
		Config:  Config{PollAttempts: 5, PollInterval: time.Microsecond},
	}
}

func Test_Init(t *testing.T) {
	bus := &fakeBus{reads: []fakeRead{
		{frame: []byte{0x40, 0x15, 0x74}}, // mode + calibration date
		{frame: []byte{0x40, 0xBF, 0x80}}, // min, high word
		{frame: []byte{0x40, 0x00, 0x00}}, // min, low word
		{frame: []byte{0x40, 0x41, 0x20}}, // max, high word
		{frame: []byte{0x40, 0x00, 0x00}}, // max, low word
	}}
	d := testDriver(bus)

	rng, err := d.Init()
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if rng != (PressureRange{Min: -1, Max: 10, Mode: ModeVented}) {
		t.Fatalf("got range %+v expected {-1 10 vented}", rng)
	}
	if !d.Calibrated() || d.Range() != rng {
		t.Errorf("driver did not cache the scaling read")
	}
	if d.CalibrationDate().String() != "29-10-2012" {
		t.Errorf("got calibration date %v expected 29-10-2012", d.CalibrationDate())
	}

	want := []byte{RegScaling0, RegPressureMin, RegPressureMin + 1, RegPressureMax, RegPressureMax + 1}
	if len(bus.writes) != len(want) {
		t.Fatalf("got %d scaling requests %x expected %x", len(bus.writes), bus.writes, want)
	}
	for i := range want {
		if bus.writes[i] != want[i] {
			t.Fatalf("got scaling requests %x expected %x", bus.writes, want)
		}
	}
	if len(bus.reads) != 0 {
		t.Errorf("%d scripted frames left unread", len(bus.reads))
	}
}

var initFailures = map[string]struct {
	first fakeRead
	want  error
}{
	"checksum-fault": {fakeRead{frame: []byte{0x44, 0x15, 0x74}}, ErrChecksum},
	"custom-mode":    {fakeRead{frame: []byte{0x48, 0x15, 0x74}}, ErrBadMode},
	"busy":           {fakeRead{frame: []byte{0x60, 0x15, 0x74}}, ErrBusy},
	"short-frame":    {fakeRead{frame: []byte{0x40, 0x15}}, ErrShortResponse},
	"bad-pressure-mode": {fakeRead{frame: []byte{0x40, 0x15, 0x77}},
		ErrUnknownPressureMode},
}

func Test_InitFailures(t *testing.T) {
	for n, tc := range initFailures {
		bus := &fakeBus{reads: []fakeRead{tc.first}}
		if _, err := testDriver(bus).Init(); !errors.Is(err, tc.want) {
			t.Errorf("init %s: got %v expected %v", n, err, tc.want)
		}
	}
}

func Test_ReadMeasurement(t *testing.T) {
	cases := map[string]struct {
		reads   []fakeRead
		rng     PressureRange
		p, temp float64
	}{
		"first-poll-ready": {
			reads: []fakeRead{
				{frame: []byte{0x40}},
				{frame: []byte{0x40, 0x4E, 0x20, 0x5D, 0xD1}},
			},
			rng: PressureRange{-1, 10, ModeAbsolute},
			p:   0.2138671875, temp: 23.85,
		},
		"ready-after-busy": {
			reads: []fakeRead{
				{frame: []byte{0x60}},
				{frame: []byte{0x60}},
				{frame: []byte{0x40}},
				{frame: []byte{0x40, 0x4E, 0x20, 0x5D, 0xD1}},
			},
			rng: PressureRange{-1, 10, ModeAbsolute},
			p:   0.2138671875, temp: 23.85,
		},
		"zero-status": {
			reads: []fakeRead{
				{frame: []byte{0x00}},
				{frame: []byte{0x00, 0x40, 0x00, 0x41, 0x80}}, // words 16384, 16768
			},
			rng: PressureRange{0, 100, ModeAbsolute},
			p:   0.0, temp: 1.2,
		},
	}

	for n, tc := range cases {
		bus := &fakeBus{reads: tc.reads}
		d := testDriver(bus)

		m, err := d.ReadMeasurement(tc.rng)
		if err != nil {
			t.Fatalf("cycle %s: unexpected error %v", n, err)
		}
		if math.Abs(m.Pressure-tc.p) > 1e-9 {
			t.Errorf("cycle %s: got %v bar expected %v", n, m.Pressure, tc.p)
		}
		if math.Abs(m.Temperature-tc.temp) > 1e-6 {
			t.Errorf("cycle %s: got %v degC expected %v", n, m.Temperature, tc.temp)
		}
		if len(bus.writes) != 1 || bus.writes[0] != CmdMeasure {
			t.Errorf("cycle %s: got trigger writes %x expected exactly one 0xAC", n, bus.writes)
		}
		if len(bus.reads) != 0 {
			t.Errorf("cycle %s: %d scripted frames left unread", n, len(bus.reads))
		}
	}
}

func Test_ReadMeasurementTimeout(t *testing.T) {
	// all polls report busy: the driver must give up after exactly the
	// configured number of status reads
	busy := fakeRead{frame: []byte{0x60}}
	bus := &fakeBus{reads: []fakeRead{busy, busy, busy, busy, busy}}
	d := testDriver(bus)

	_, err := d.ReadMeasurement(PressureRange{0, 100, ModeAbsolute})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v expected ErrTimeout", err)
	}
	if len(bus.reads) != 0 {
		t.Errorf("stopped after %d status reads expected %d", 5-len(bus.reads), 5)
	}
	if len(bus.writes) != 1 {
		t.Errorf("got %d trigger writes expected 1", len(bus.writes))
	}
}

func Test_ReadMeasurementBusyFrame(t *testing.T) {
	// a frame whose own status byte reads busy must not be converted
	bus := &fakeBus{reads: []fakeRead{
		{frame: []byte{0x40}},
		{frame: []byte{0x60, 0xFF, 0xFF, 0xFF, 0xFF}}, // stale words, still busy
		{frame: []byte{0x40}},
		{frame: []byte{0x40, 0x4E, 0x20, 0x5D, 0xD1}},
	}}
	d := testDriver(bus)

	m, err := d.ReadMeasurement(PressureRange{-1, 10, ModeAbsolute})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if math.Abs(m.Pressure-0.2138671875) > 1e-9 {
		t.Errorf("got %v bar expected the re-read frame, not the busy one", m.Pressure)
	}
	if len(bus.reads) != 0 {
		t.Errorf("%d scripted frames left unread", len(bus.reads))
	}
}

var measurementFaults = map[string]struct {
	reads []fakeRead
	want  error
}{
	"status-error-bit": {
		[]fakeRead{{frame: []byte{0x44}}},
		ErrChecksum,
	},
	"frame-error-bit": {
		[]fakeRead{{frame: []byte{0x40}}, {frame: []byte{0x44, 0, 0, 0, 0}}},
		ErrChecksum,
	},
	"frame-custom-mode": {
		[]fakeRead{{frame: []byte{0x40}}, {frame: []byte{0x48, 0, 0, 0, 0}}},
		ErrBadMode,
	},
	"short-frame": {
		[]fakeRead{{frame: []byte{0x40}}, {frame: []byte{0x40, 0x4E, 0x20, 0x5D}}},
		ErrShortResponse,
	},
	"empty-status": {
		[]fakeRead{{frame: []byte{}}},
		ErrShortResponse,
	},
}

func Test_ReadMeasurementFaults(t *testing.T) {
	for n, tc := range measurementFaults {
		bus := &fakeBus{reads: tc.reads}
		if _, err := testDriver(bus).ReadMeasurement(PressureRange{0, 100, ModeAbsolute}); !errors.Is(err, tc.want) {
			t.Errorf("fault %s: got %v expected %v", n, err, tc.want)
		}
	}
}

func Test_ReadMeasurementBusErrors(t *testing.T) {
	flaky := errors.New("i2c: clock stretch timeout")

	// one failing status read is absorbed while budget remains
	bus := &fakeBus{reads: []fakeRead{
		{err: flaky},
		{frame: []byte{0x40}},
		{frame: []byte{0x40, 0x40, 0x00, 0x41, 0x80}},
	}}
	if _, err := testDriver(bus).ReadMeasurement(PressureRange{0, 100, ModeAbsolute}); err != nil {
		t.Fatalf("absorbed retry: unexpected error %v", err)
	}

	// with the budget exhausted the bus error surfaces, not a timeout
	bus = &fakeBus{reads: []fakeRead{{err: flaky}, {err: flaky}, {err: flaky}, {err: flaky}, {err: flaky}}}
	if _, err := testDriver(bus).ReadMeasurement(PressureRange{0, 100, ModeAbsolute}); !errors.Is(err, flaky) {
		t.Fatalf("exhausted retries: got %v expected the bus error", err)
	}

	// trigger write failures surface immediately, nothing is read
	bus = &fakeBus{writeErr: flaky}
	if _, err := testDriver(bus).ReadMeasurement(PressureRange{0, 100, ModeAbsolute}); !errors.Is(err, flaky) {
		t.Fatalf("trigger failure: got %v expected the bus error", err)
	}

	// a frame read failure after ready surfaces immediately
	bus = &fakeBus{reads: []fakeRead{{frame: []byte{0x40}}, {err: flaky}}}
	if _, err := testDriver(bus).ReadMeasurement(PressureRange{0, 100, ModeAbsolute}); !errors.Is(err, flaky) {
		t.Fatalf("frame failure: got %v expected the bus error", err)
	}
}

func Test_Connected(t *testing.T) {
	bus := &fakeBus{reads: []fakeRead{{frame: []byte{0x40, 0x15, 0x74}}}}
	if !testDriver(bus).Connected() {
		t.Errorf("answering sensor reported as not connected")
	}
	if testDriver(&fakeBus{}).Connected() {
		t.Errorf("silent bus reported as connected")
	}
}
