package safety

import (
	"errors"
	"fmt"
	"time"
)

// Machine is the motion and thermal subsystem as seen by the dispatcher.
// Each primitive is synchronous.
type Machine interface {
	QuickStop() error
	DisableAllHeaters() error
	DisableAllSteppers() error
	Kill(message string) error
}

// Notifier sends one line-oriented ASCII message to the host.
type Notifier interface {
	Notify(line string) error
}

// DefaultErrorInterval is the minimum spacing between two pauses raised by
// the same source.
const DefaultErrorInterval = time.Second

// Dispatcher turns faults into safety actions.
//
// Outside a safety-critical section every fault pauses: quick stop, heaters
// off, steppers off, host notified. Inside one, interlock faults kill, and
// the kill primitive runs at most once per process.
type Dispatcher struct {
	machine  Machine
	notifier Notifier
	flags    *Flags
	interval uint32

	state       State
	killLatched bool
	lastAction  map[Source]Millis
}

// NewDispatcher creates a dispatcher in the NORMAL state.
func NewDispatcher(machine Machine, notifier Notifier, flags *Flags, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		machine:    machine,
		notifier:   notifier,
		flags:      flags,
		interval:   uint32(interval.Milliseconds()),
		state:      StateNormal,
		lastAction: make(map[Source]Millis),
	}
}

// ReportFault escalates f and returns what was done.
func (d *Dispatcher) ReportFault(f Fault, now Millis) Outcome {
	if d.killLatched {
		return Outcome{Fault: f, Action: ActionKillLatched}
	}

	if f.Severity == SeverityInterlock && d.flags.SafetyCritical() {
		return d.kill(f)
	}

	if last, ok := d.lastAction[f.Source]; ok && now.Sub(last) < d.interval {
		return Outcome{Fault: f, Action: ActionSuppressed}
	}
	d.lastAction[f.Source] = now

	return d.pause(f)
}

func (d *Dispatcher) pause(f Fault) Outcome {
	out := Outcome{Fault: f, Action: ActionPaused}
	var errs []error

	if err := d.machine.QuickStop(); err != nil {
		errs = append(errs, fmt.Errorf("quick stop: %w", err))
	}
	if err := d.machine.DisableAllHeaters(); err != nil {
		errs = append(errs, fmt.Errorf("disable heaters: %w", err))
	}
	if err := d.machine.DisableAllSteppers(); err != nil {
		errs = append(errs, fmt.Errorf("disable steppers: %w", err))
	}

	out.Lines = pauseLines(f)
	for _, line := range out.Lines {
		if err := d.notifier.Notify(line); err != nil {
			errs = append(errs, fmt.Errorf("notify host: %w", err))
		}
	}

	d.state = StatePaused
	out.Err = errors.Join(errs...)
	return out
}

func (d *Dispatcher) kill(f Fault) Outcome {
	out := Outcome{Fault: f, Action: ActionKilled}
	var errs []error

	if d.flags.Running() {
		line := ErrorPrefix + f.Message
		out.Lines = append(out.Lines, line)
		if err := d.notifier.Notify(line); err != nil {
			errs = append(errs, fmt.Errorf("notify host: %w", err))
		}
	}
	d.flags.SetRunning(false)

	d.killLatched = true
	d.state = StateKilled
	if err := d.machine.Kill(f.Message); err != nil {
		errs = append(errs, fmt.Errorf("kill: %w", err))
	}

	out.Err = errors.Join(errs...)
	return out
}

func pauseLines(f Fault) []string {
	var lines []string
	if f.Detail != "" {
		lines = append(lines, f.Detail)
	}
	switch f.Host {
	case HostCancel:
		lines = append(lines, TokenMessage+f.Message, TokenCancel)
	default:
		lines = append(lines, f.Message, TokenPause)
	}
	return lines
}

// Resume returns a paused dispatcher to NORMAL. A kill is terminal.
func (d *Dispatcher) Resume() error {
	switch d.state {
	case StateKilled:
		return ErrKilled
	case StatePaused:
		d.state = StateNormal
	}
	return nil
}

// ErrKilled is returned when an operation needs a power cycle to proceed.
var ErrKilled = errors.New("killed: power cycle required")

// State returns the current dispatcher state.
func (d *Dispatcher) State() State {
	return d.state
}

// KillLatched reports whether the kill primitive has already run.
func (d *Dispatcher) KillLatched() bool {
	return d.killLatched
}
