package interlock

// Monitor tracks the presence of one removable peripheral.
//
// A monitor starts ABSENT: a slot never seen present is treated like a slot
// that was just removed. A present to absent transition sets a latch that
// only a fresh present reading clears.
type Monitor struct {
	label         string
	present       bool
	removed       bool
	hysteresis    int
	maxHysteresis int
}

// NewMonitor creates an ABSENT monitor. hysteresisCount is the number of
// gated checks a removal keeps being reported after its cause clears.
func NewMonitor(label string, hysteresisCount int) *Monitor {
	if hysteresisCount < 0 {
		hysteresisCount = 0
	}
	return &Monitor{label: label, maxHysteresis: hysteresisCount}
}

// Update feeds one raw presence reading and returns the resulting transition.
func (m *Monitor) Update(present bool) Transition {
	if present {
		tr := TransitionNone
		if !m.present {
			tr = TransitionInserted
		}
		m.present = true
		m.removed = false
		return tr
	}

	tr := TransitionNone
	if m.present {
		m.removed = true
		tr = TransitionRemoved
	}
	m.present = false
	return tr
}

// IsPresent reports the last raw reading.
func (m *Monitor) IsPresent() bool {
	return m.present
}

// Latched reports whether a removal was observed and not yet cleared.
func (m *Monitor) Latched() bool {
	return m.removed
}

// IsRemoved reports the latch or a running hysteresis window.
// It is not !IsPresent: a never-seen slot is absent but not removed, and a
// reinserted slot is present but still removed until the window ends.
func (m *Monitor) IsRemoved() bool {
	return m.removed || m.hysteresis > 0
}

// RemovedWithHysteresis is one gated check. When the latch is set, or the
// slot is required and absent, the window is rearmed. Each call then spends
// one count of the window.
func (m *Monitor) RemovedWithHysteresis(required bool) bool {
	cond := m.removed || (required && !m.present)
	if m.maxHysteresis == 0 {
		return cond
	}
	if cond {
		m.hysteresis = m.maxHysteresis
	}
	if m.hysteresis > 0 {
		m.hysteresis--
		return true
	}
	return false
}

// Hysteresis returns the remaining window.
func (m *Monitor) Hysteresis() int {
	return m.hysteresis
}

// ForcePresent marks the peripheral present and clears the latch and window.
func (m *Monitor) ForcePresent() {
	m.present = true
	m.removed = false
	m.hysteresis = 0
}

// Label returns the peripheral's display name.
func (m *Monitor) Label() string {
	return m.label
}

func (m *Monitor) event(component string, slot int, tr Transition) Event {
	msg := m.label + " Inserted"
	if tr == TransitionRemoved {
		msg = m.label + " Removed"
	}
	return Event{
		Component:  component,
		Slot:       slot,
		Label:      m.label,
		Transition: tr,
		Message:    msg,
	}
}
