package interlock

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/voxel8/interlockd/internal/safety"
)

// Host messages for pressure faults.
const (
	MsgPneumaticsRemoved = "Pneumatics Removed"
	MsgPneumaticsRunaway = "Pneumatics Runaway"
	MsgPneumaticsLeak    = "Pneumatics Leak"
	MsgAboveSupply       = "Regulator Above Pump Pressure"
)

// DAC writes a 12-bit output code.
type DAC interface {
	Write(code uint16) error
}

// MaxDACCode is the full-scale 12-bit code.
const MaxDACCode = 4095

// RegulatorConfig configures the pressure regulator and its protection.
type RegulatorConfig struct {
	BitsPerPSI float64
	// OffsetPSI and HysteresisPSI compensate the regulator deadband.
	OffsetPSI     float64
	HysteresisPSI float64

	// Targets at or below BandCrossoverPSI use BandLowPSI, above it BandHighPSI.
	BandCrossoverPSI float64
	BandLowPSI       float64
	BandHighPSI      float64

	// ProtectionTime is how long the output must stay outside the band.
	ProtectionTime time.Duration
	// NotPresentPSI is the saturated reading of a disconnected regulator.
	NotPresentPSI float64
	// MinSupplyPSI is the supply pressure below which the above-supply rule
	// is not applied.
	MinSupplyPSI float64
}

// DefaultRegulatorConfig returns the settings of the stock pneumatics sled.
func DefaultRegulatorConfig() RegulatorConfig {
	return RegulatorConfig{
		BitsPerPSI:       33.5,
		OffsetPSI:        0.6,
		HysteresisPSI:    0.4,
		BandCrossoverPSI: 20,
		BandLowPSI:       2,
		BandHighPSI:      5,
		ProtectionTime:   5 * time.Second,
		NotPresentPSI:    110,
		MinSupplyPSI:     5,
	}
}

// Regulator drives the pressure regulator and watches its output.
type Regulator struct {
	cfg    RegulatorConfig
	dac    DAC
	output Sensor
	supply Sensor

	target      float64
	dacPressure float64
	code        uint16
	active      bool
	protections bool

	deviating      bool
	deviationStart safety.Millis

	measured float64
	supplyP  float64
}

// NewRegulator creates an inactive regulator with protections enabled.
// supply may be nil when no supply sensor is fitted.
func NewRegulator(cfg RegulatorConfig, dac DAC, output, supply Sensor) *Regulator {
	return &Regulator{
		cfg:         cfg,
		dac:         dac,
		output:      output,
		supply:      supply,
		protections: true,
	}
}

// Code converts a target to a DAC code given the pressure the DAC currently
// implies and the code it holds. Rising targets add half the hysteresis
// band, falling targets subtract it; an unchanged target keeps the code.
func (c RegulatorConfig) Code(target, prior float64, priorCode uint16) uint16 {
	if target <= c.OffsetPSI+c.HysteresisPSI {
		return 0
	}
	half := c.HysteresisPSI / 2
	var raw float64
	switch {
	case target > prior:
		raw = c.BitsPerPSI * (target - c.OffsetPSI + half)
	case target < prior:
		raw = c.BitsPerPSI * (target - c.OffsetPSI - half)
	default:
		return priorCode
	}
	raw = math.Round(raw)
	if raw < 0 {
		return 0
	}
	if raw > MaxDACCode {
		return MaxDACCode
	}
	return uint16(raw)
}

// SetOutputPressure commands a new target and arms the protection.
// The deviation timer restarts so the transient toward the new target is
// not counted.
func (r *Regulator) SetOutputPressure(target float64) error {
	if target < 0 {
		target = 0
	}
	r.active = true
	r.deviating = false
	r.target = target

	code := r.cfg.Code(target, r.dacPressure, r.code)
	r.code = code
	r.dacPressure = target
	if err := r.dac.Write(code); err != nil {
		return fmt.Errorf("write dac code %d: %w", code, err)
	}
	return nil
}

// Poll runs one protection cycle.
func (r *Regulator) Poll(now safety.Millis) Result {
	if !r.protections || !r.active {
		r.deviating = false
		return Result{}
	}

	measured, err := r.output.Read()
	if err != nil {
		return Result{Err: fmt.Errorf("read regulator pressure: %w", err)}
	}
	r.measured = measured

	// A failed supply read only skips the above-supply rule.
	var supplyErr error
	if r.supply != nil {
		supply, err := r.supply.Read()
		if err != nil {
			supplyErr = fmt.Errorf("read supply pressure: %w", err)
		} else {
			r.supplyP = supply
			if measured > supply && supply >= r.cfg.MinSupplyPSI {
				kind, msg := safety.KindAboveSupply, MsgAboveSupply
				if measured >= r.cfg.NotPresentPSI {
					kind, msg = safety.KindAbsent, MsgPneumaticsRemoved
				}
				return r.trip(kind, msg, "")
			}
		}
	}
	res := r.checkBand(now, measured)
	res.Err = errors.Join(supplyErr, res.Err)
	return res
}

// checkBand runs the sustained-deviation timer.
func (r *Regulator) checkBand(now safety.Millis, measured float64) Result {

	band := r.cfg.BandLowPSI
	if r.target > r.cfg.BandCrossoverPSI {
		band = r.cfg.BandHighPSI
	}
	over := measured > r.target+band
	under := measured < r.target-band
	if !over && !under {
		r.deviating = false
		return Result{}
	}

	if !r.deviating {
		r.deviating = true
		r.deviationStart = now
		return Result{}
	}
	if now.Sub(r.deviationStart) < uint32(r.cfg.ProtectionTime.Milliseconds()) {
		return Result{}
	}

	detail := fmt.Sprintf(" Target Pressure %.2f Actual Pressure %.2f", r.target, measured)
	switch {
	case measured >= r.cfg.NotPresentPSI:
		return r.trip(safety.KindAbsent, MsgPneumaticsRemoved, detail)
	case over:
		return r.trip(safety.KindRunaway, MsgPneumaticsRunaway, detail)
	default:
		return r.trip(safety.KindLeak, MsgPneumaticsLeak, detail)
	}
}

// trip zeroes the output and disarms the protection until the next setpoint.
func (r *Regulator) trip(kind safety.Kind, msg, detail string) Result {
	res := Result{Faults: []safety.Fault{{
		Source:   safety.SourceRegulator,
		Kind:     kind,
		Severity: safety.SeverityPause,
		Host:     safety.HostCancel,
		Message:  msg,
		Detail:   detail,
	}}}
	if err := r.SetOutputPressure(0); err != nil {
		res.Err = fmt.Errorf("zero output: %w", err)
	}
	r.active = false
	r.deviating = false
	return res
}

// SetPressureProtections enables or disables the protection loop.
func (r *Regulator) SetPressureProtections(enabled bool) {
	r.protections = enabled
	if !enabled {
		r.deviating = false
	}
}

// PressureProtections reports whether protection is enabled.
func (r *Regulator) PressureProtections() bool {
	return r.protections
}

// Active reports whether protection is armed.
func (r *Regulator) Active() bool {
	return r.active
}

// Target returns the last commanded pressure.
func (r *Regulator) Target() float64 {
	return r.target
}

// Measured returns the last output pressure reading.
func (r *Regulator) Measured() float64 {
	return r.measured
}

// Supply returns the last supply pressure reading.
func (r *Regulator) Supply() float64 {
	return r.supplyP
}

// Code returns the DAC code last written.
func (r *Regulator) Code() uint16 {
	return r.code
}
