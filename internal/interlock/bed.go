package interlock

import (
	"errors"
	"fmt"

	"github.com/voxel8/interlockd/internal/safety"
)

// MsgBedRemoved is the host message for a bed fault.
const MsgBedRemoved = "Heated Bed Removed!"

// BedMode selects how bed presence is determined. It is fixed at startup.
type BedMode string

const (
	// BedModePin reads a dedicated availability pin (high = present).
	BedModePin BedMode = "pin"
	// BedModeSensor treats a plausible bed temperature as present.
	BedModeSensor BedMode = "sensor"
)

// DefaultBedMinTempC is the lowest temperature a connected bed thermistor
// reads; an open circuit reads far below it.
const DefaultBedMinTempC = 5.0

// BedConfig configures the heated-bed interlock.
type BedConfig struct {
	Mode     BedMode
	AvailPin int
	MinTempC float64
}

// DefaultBedConfig returns the pin-based configuration.
func DefaultBedConfig() BedConfig {
	return BedConfig{
		Mode:     BedModePin,
		AvailPin: 82,
		MinTempC: DefaultBedMinTempC,
	}
}

// Bed watches the removable heated bed.
type Bed struct {
	cfg     BedConfig
	pins    PinReader
	temp    Sensor
	monitor *Monitor
	enabled bool
}

// NewBed creates the bed interlock. Pin mode needs pins; sensor mode needs temp.
func NewBed(cfg BedConfig, pins PinReader, temp Sensor) (*Bed, error) {
	switch cfg.Mode {
	case BedModePin:
		if pins == nil {
			return nil, errors.New("bed: pin mode requires a pin reader")
		}
	case BedModeSensor:
		if temp == nil {
			return nil, errors.New("bed: sensor mode requires a temperature sensor")
		}
	default:
		return nil, fmt.Errorf("bed: unknown mode %q", cfg.Mode)
	}
	return &Bed{
		cfg:     cfg,
		pins:    pins,
		temp:    temp,
		monitor: NewMonitor("Heated Bed", 0),
		enabled: true,
	}, nil
}

// PresentCheck reads the bed and reports whether it is present. When it is
// not, the result carries a bed fault. With the check disabled the bed is
// always present.
func (b *Bed) PresentCheck() (bool, Result) {
	if !b.enabled {
		b.monitor.ForcePresent()
		return true, Result{}
	}

	present, err := b.read()
	var res Result
	if err != nil {
		res.Err = err
	}
	if tr := b.monitor.Update(present); tr != TransitionNone {
		res.Events = append(res.Events, b.monitor.event(ComponentBed, 0, tr))
	}
	if !present {
		res.Faults = append(res.Faults, safety.Fault{
			Source:   safety.SourceBed,
			Kind:     safety.KindBedRemoved,
			Severity: safety.SeverityInterlock,
			Host:     safety.HostPause,
			Message:  MsgBedRemoved,
		})
	}
	return present, res
}

func (b *Bed) read() (bool, error) {
	switch b.cfg.Mode {
	case BedModeSensor:
		t, err := b.temp.Read()
		if err != nil {
			return false, fmt.Errorf("read bed temperature: %w", err)
		}
		return t >= b.cfg.MinTempC, nil
	default:
		level, err := b.pins.ReadPin(b.cfg.AvailPin)
		if err != nil {
			return false, fmt.Errorf("read bed avail pin %d: %w", b.cfg.AvailPin, err)
		}
		return level, nil
	}
}

// Present reports the last reading.
func (b *Bed) Present() bool {
	return b.monitor.IsPresent()
}

// Mode returns the configured presence mode.
func (b *Bed) Mode() BedMode {
	return b.cfg.Mode
}

// SetPresenceCheckEnabled turns the bed check on or off.
func (b *Bed) SetPresenceCheckEnabled(enabled bool) {
	b.enabled = enabled
	if !enabled {
		b.monitor.ForcePresent()
	}
}

// PresenceCheckEnabled reports the override state.
func (b *Bed) PresenceCheckEnabled() bool {
	return b.enabled
}
