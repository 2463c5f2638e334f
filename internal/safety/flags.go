package safety

import "sync"

// Flags holds the process-wide Running and safety-critical-section flags.
// Other subsystems (motion host, operator commands) set them from their own
// goroutines, so access is guarded.
type Flags struct {
	mu       sync.Mutex
	running  bool
	critical bool
}

// NewFlags returns flags in their startup state: running, not critical.
func NewFlags() *Flags {
	return &Flags{running: true}
}

// Running reports whether the firmware is still accepting work.
func (f *Flags) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// SetRunning sets the Running flag.
func (f *Flags) SetRunning(v bool) {
	f.mu.Lock()
	f.running = v
	f.mu.Unlock()
}

// SafetyCritical reports whether an operation that cannot be paused is in flight.
func (f *Flags) SafetyCritical() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.critical
}

// SetSafetyCritical enters or leaves the safety-critical section.
func (f *Flags) SetSafetyCritical(v bool) {
	f.mu.Lock()
	f.critical = v
	f.mu.Unlock()
}
