package printer

import "sync"

// FakeMachine records machine primitives and host lines for tests.
type FakeMachine struct {
	mu sync.Mutex

	Calls []string
	Lines []string

	// Err, if set, is returned by every primitive and by Notify.
	Err error
}

// NewFakeMachine creates an empty FakeMachine.
func NewFakeMachine() *FakeMachine {
	return &FakeMachine{}
}

func (f *FakeMachine) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
	return f.Err
}

// QuickStop records a quick stop.
func (f *FakeMachine) QuickStop() error { return f.record(CmdQuickStop) }

// DisableAllHeaters records a heater shutdown.
func (f *FakeMachine) DisableAllHeaters() error { return f.record(CmdHotendOff) }

// DisableAllSteppers records a stepper shutdown.
func (f *FakeMachine) DisableAllSteppers() error { return f.record(CmdSteppersOff) }

// Kill records an emergency stop.
func (f *FakeMachine) Kill(message string) error { return f.record(CmdEmergencyStop) }

// Notify records a host line.
func (f *FakeMachine) Notify(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lines = append(f.Lines, line)
	return f.Err
}

// Count returns how many times call was recorded.
func (f *FakeMachine) Count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == call {
			n++
		}
	}
	return n
}

// GetLines returns a copy of the host lines.
func (f *FakeMachine) GetLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Lines))
	copy(out, f.Lines)
	return out
}
