// Package safety contains the shared escalation primitive for all interlocks.
// It decides between a recoverable pause and an unrecoverable kill, and owns
// the process-wide Running and safety-critical-section flags.
// This package has NO hardware dependencies; time is injected as Millis.
package safety

// Source identifies which interlock raised a fault.
type Source string

const (
	SourceCartridge Source = "CARTRIDGE"
	SourceBed       Source = "BED"
	SourceRegulator Source = "REGULATOR"
)

// Kind classifies a fault.
type Kind string

const (
	KindCartridgeRemoved Kind = "CARTRIDGE_REMOVED"
	KindBedRemoved       Kind = "BED_REMOVED"
	KindLeak             Kind = "REGULATOR_LEAK"
	KindRunaway          Kind = "REGULATOR_RUNAWAY"
	KindAbsent           Kind = "REGULATOR_ABSENT"
	KindAboveSupply      Kind = "REGULATOR_ABOVE_SUPPLY"
)

// Severity selects the escalation policy for a fault.
type Severity int

const (
	// SeverityPause faults always pause, even inside a safety-critical section.
	SeverityPause Severity = iota
	// SeverityInterlock faults pause normally and kill inside a
	// safety-critical section.
	SeverityInterlock
)

func (s Severity) String() string {
	if s == SeverityInterlock {
		return "INTERLOCK"
	}
	return "PAUSE"
}

// HostAction selects the action marker sent to the host after a pause.
type HostAction int

const (
	HostPause HostAction = iota
	HostCancel
)

func (h HostAction) String() string {
	if h == HostCancel {
		return "CANCEL"
	}
	return "PAUSE"
}

// Host contract strings. The host software matches on these byte-for-byte.
const (
	TokenPause   = "// action:pause"
	TokenCancel  = "// action:cancel"
	TokenMessage = "// action:message "
	ErrorPrefix  = "Error:"
)

// Fault is a single fault observation reported by an interlock.
type Fault struct {
	Source   Source
	Kind     Kind
	Severity Severity
	Host     HostAction
	Message  string
	// Detail is an optional line emitted before the message.
	Detail string
}

// State is the dispatcher state.
type State string

const (
	StateNormal State = "NORMAL"
	StatePaused State = "PAUSED"
	StateKilled State = "KILLED"
)

// Action describes what the dispatcher did with a fault.
type Action string

const (
	ActionPaused      Action = "PAUSED"
	ActionKilled      Action = "KILLED"
	ActionSuppressed  Action = "SUPPRESSED"   // rate limited
	ActionKillLatched Action = "KILL_LATCHED" // already killed
)

// Outcome is the result of reporting a fault.
type Outcome struct {
	Fault  Fault
	Action Action
	// Lines are the host lines emitted, in order.
	Lines []string
	// Err joins any errors from the machine primitives or the notifier.
	// Every primitive is attempted even when an earlier one fails.
	Err error
}
