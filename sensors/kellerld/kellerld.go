package kellerld

import (
	"errors"
	"fmt"
	"time"

	"github.com/kidoman/embd"
)

var (
	ErrShortResponse       = errors.New("kellerld: short response from sensor")
	ErrBusy                = errors.New("kellerld: sensor busy, retry later")
	ErrBadMode             = errors.New("kellerld: sensor not in normal mode")
	ErrChecksum            = errors.New("kellerld: sensor reports memory checksum fault")
	ErrTimeout             = errors.New("kellerld: timed out waiting for conversion")
	ErrUnknownPressureMode = errors.New("kellerld: unrecognized pressure mode in scaling register")
)

// ConversionDelay is the sensor's minimum conversion time after a trigger and
// is part of the protocol. The poll budget on top of it is configurable.
const (
	ConversionDelay     = 10 * time.Millisecond
	DefaultPollAttempts = 10
	DefaultPollInterval = 2 * time.Millisecond
)

// Config bounds the busy-poll loop of a measurement cycle. The zero value
// picks the defaults.
type Config struct {
	PollAttempts int           // status reads before giving up
	PollInterval time.Duration // pause between status reads
}

type measState byte

const (
	stateIdle measState = iota
	stateTriggered
	statePolling
	stateReady
)

// KellerLD wraps the I2C connection and scaling metadata for one transducer.
// An instance is single-owner: the caller serializes measurement calls, the
// driver takes no locks of its own.
type KellerLD struct {
	Bus     *embd.I2CBus
	Address byte
	Config  Config

	rng        PressureRange
	date       CalibrationDate
	calibrated bool
	state      measState
}

// Init reads the factory scaling registers: pressure mode, calibration date
// and the min/max pressure range. Must be called once before measurements.
func (d *KellerLD) Init() (PressureRange, error) {
	word, err := d.readScaling(RegScaling0)
	if err != nil {
		return PressureRange{}, err
	}
	mode, err := parsePressureMode(word)
	if err != nil {
		return PressureRange{}, err
	}
	min, err := d.readScalingFloat(RegPressureMin)
	if err != nil {
		return PressureRange{}, err
	}
	max, err := d.readScalingFloat(RegPressureMax)
	if err != nil {
		return PressureRange{}, err
	}

	d.rng = PressureRange{Min: min, Max: max, Mode: mode}
	d.date = parseCalibrationDate(word)
	d.calibrated = true
	return d.rng, nil
}

// CalibrationDate reports the factory calibration day read by Init.
func (d *KellerLD) CalibrationDate() CalibrationDate {
	return d.date
}

// Calibrated reports whether Init has populated the pressure range.
func (d *KellerLD) Calibrated() bool {
	return d.calibrated
}

// Range returns the pressure range cached by Init.
func (d *KellerLD) Range() PressureRange {
	return d.rng
}

// Connected probes the sensor with a scaling read.
func (d *KellerLD) Connected() bool {
	_, err := d.readScaling(RegScaling0)
	return err == nil
}

// ReadMeasurement runs one full trigger/poll/read cycle and converts the raw
// words with the supplied range. Calling this with a range that was never
// populated by Init yields garbage values, not an error.
func (d *KellerLD) ReadMeasurement(rng PressureRange) (Measurement, error) {
	raw, err := d.readRaw()
	if err != nil {
		return Measurement{}, err
	}
	return Convert(raw, rng), nil
}

// readRaw drives one measurement cycle Idle -> Triggered -> Polling -> Ready.
// Every transition performs at most one bus operation, so a cycle never
// overlaps transfers; the attempt counter bounds the polling loop.
func (d *KellerLD) readRaw() (RawMeasurement, error) {
	attempts := d.Config.PollAttempts
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	interval := d.Config.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	attempt := 0
	d.state = stateIdle
	defer func() { d.state = stateIdle }()

	for {
		switch d.state {
		case stateIdle:
			if err := d.command(CmdMeasure); err != nil {
				return RawMeasurement{}, fmt.Errorf("kellerld: trigger measurement: %w", err)
			}
			d.state = stateTriggered

		case stateTriggered:
			// The device needs its conversion window before the first poll.
			time.Sleep(ConversionDelay)
			d.state = statePolling

		case statePolling:
			if attempt >= attempts {
				return RawMeasurement{}, ErrTimeout
			}
			if attempt > 0 {
				time.Sleep(interval)
			}
			attempt++
			frame, err := d.readResponse(1)
			if err != nil {
				// A failed status read burns an attempt and is retried as a
				// fresh poll; surfaced once the budget is gone.
				if attempt >= attempts {
					return RawMeasurement{}, fmt.Errorf("kellerld: status read: %w", err)
				}
				continue
			}
			if len(frame) < 1 {
				return RawMeasurement{}, fmt.Errorf("%w: empty status frame", ErrShortResponse)
			}
			st := decodeStatus(frame[0])
			if st.Err {
				return RawMeasurement{}, ErrChecksum
			}
			if !st.Busy {
				d.state = stateReady
			}

		case stateReady:
			frame, err := d.readResponse(measurementFrameLen)
			if err != nil {
				return RawMeasurement{}, fmt.Errorf("kellerld: measurement read: %w", err)
			}
			words, err := decodeWords(frame, 2)
			if err != nil {
				return RawMeasurement{}, err
			}
			st := decodeStatus(frame[0])
			if st.Err {
				return RawMeasurement{}, ErrChecksum
			}
			if st.Mode != 0 {
				return RawMeasurement{}, ErrBadMode
			}
			if st.Busy {
				// Words read during a conversion are not valid, keep polling.
				d.state = statePolling
				continue
			}
			return RawMeasurement{Pressure: words[0], Temperature: words[1], Status: st}, nil
		}
	}
}

// readScaling requests one 16-bit scaling word. Memory reads answer after the
// same fixed delay as a conversion.
func (d *KellerLD) readScaling(reg byte) (uint16, error) {
	if err := d.command(reg); err != nil {
		return 0, fmt.Errorf("kellerld: scaling request 0x%02x: %w", reg, err)
	}
	time.Sleep(ConversionDelay)
	frame, err := d.readResponse(scalingFrameLen)
	if err != nil {
		return 0, fmt.Errorf("kellerld: scaling read 0x%02x: %w", reg, err)
	}
	words, err := decodeWords(frame, 1)
	if err != nil {
		return 0, err
	}
	st := decodeStatus(frame[0])
	switch {
	case st.Err:
		return 0, ErrChecksum
	case st.Mode != 0:
		return 0, ErrBadMode
	case st.Busy:
		return 0, ErrBusy
	}
	return words[0], nil
}

func (d *KellerLD) readScalingFloat(reg byte) (float64, error) {
	hi, err := d.readScaling(reg)
	if err != nil {
		return 0, err
	}
	lo, err := d.readScaling(reg + 1)
	if err != nil {
		return 0, err
	}
	return scalingFloat(hi, lo), nil
}

func (d *KellerLD) command(cmd byte) error {
	return (*d.Bus).WriteByte(d.Address, cmd)
}

func (d *KellerLD) readResponse(n int) ([]byte, error) {
	return (*d.Bus).ReadBytes(d.Address, n)
}
