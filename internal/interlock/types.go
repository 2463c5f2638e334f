// Package interlock contains the presence and pressure interlocks.
// Interlocks never act on a fault themselves: they return faults in a Result
// and the supervisor hands them to the safety dispatcher. The only actuator
// an interlock drives directly is a hardware safing line (the silver deploy
// pin, the regulator output).
// Time is always injected as safety.Millis.
package interlock

import "github.com/voxel8/interlockd/internal/safety"

// Transition is a change in observed presence.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionInserted
	TransitionRemoved
)

func (t Transition) String() string {
	switch t {
	case TransitionInserted:
		return "INSERTED"
	case TransitionRemoved:
		return "REMOVED"
	default:
		return "NONE"
	}
}

// Component names used in events.
const (
	ComponentCartridge = "cartridge"
	ComponentBed       = "bed"
)

// Event is a presence transition to be reported to the host.
type Event struct {
	Component  string
	Slot       int
	Label      string
	Transition Transition
	// Message is the host line, e.g. "FFF Cartridge Removed".
	Message string
	// Safed is true when a safing line was driven as part of the transition.
	Safed bool
}

// Result is what an interlock reports for one poll cycle.
type Result struct {
	Events []Event
	Faults []safety.Fault
	// Err joins hardware errors seen during the cycle. A failed presence
	// read has already been counted as absent.
	Err error
}

// PinReader reads a digital input. true = electrically high.
type PinReader interface {
	ReadPin(pin int) (bool, error)
}

// PinWriter drives a digital output.
type PinWriter interface {
	WritePin(pin int, high bool) error
}

// Pins is digital I/O.
type Pins interface {
	PinReader
	PinWriter
}

// Sensor reads a scalar in engineering units (psi, degrees C).
type Sensor interface {
	Read() (float64, error)
}

// NoPin marks an unused pin.
const NoPin = -1
