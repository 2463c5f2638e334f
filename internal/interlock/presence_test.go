package interlock

import "testing"

func TestNewMonitorStartsAbsent(t *testing.T) {
	m := NewMonitor("FFF Cartridge", 4)
	if m.IsPresent() {
		t.Error("new monitor must not be present")
	}
	if m.IsRemoved() {
		t.Error("never-seen slot is absent, not removed")
	}
	if m.Latched() {
		t.Error("no latch before any transition")
	}
}

func TestMonitorTransitions(t *testing.T) {
	m := NewMonitor("FFF Cartridge", 4)

	if tr := m.Update(true); tr != TransitionInserted {
		t.Errorf("first present: got %s, want INSERTED", tr)
	}
	if tr := m.Update(true); tr != TransitionNone {
		t.Errorf("still present: got %s, want NONE", tr)
	}
	if tr := m.Update(false); tr != TransitionRemoved {
		t.Errorf("removal: got %s, want REMOVED", tr)
	}
	if !m.Latched() {
		t.Error("removal must set the latch")
	}
	if tr := m.Update(false); tr != TransitionNone {
		t.Errorf("still absent: got %s, want NONE", tr)
	}
}

func TestMonitorAbsentAtBootIsNotATransition(t *testing.T) {
	m := NewMonitor("FFF Cartridge", 4)
	if tr := m.Update(false); tr != TransitionNone {
		t.Errorf("absent at boot: got %s, want NONE", tr)
	}
	if m.Latched() {
		t.Error("absent at boot must not set the latch")
	}
}

func TestMonitorLatchHoldsUntilPresent(t *testing.T) {
	m := NewMonitor("Silver Cartridge", 3)
	m.Update(true)
	m.Update(false)

	for i := 0; i < 20; i++ {
		m.Update(false)
		if !m.RemovedWithHysteresis(false) {
			t.Fatalf("check %d: latched slot must report removed", i)
		}
		if !m.Latched() {
			t.Fatalf("check %d: latch cleared without a present reading", i)
		}
	}

	m.Update(true)
	if m.Latched() {
		t.Error("present reading must clear the latch")
	}
}

func TestMonitorHysteresisCountsDown(t *testing.T) {
	m := NewMonitor("FFF Cartridge", 4)
	m.Update(true)
	m.Update(false)

	if !m.RemovedWithHysteresis(false) {
		t.Fatal("expected removed")
	}
	if got := m.Hysteresis(); got != 3 {
		t.Fatalf("after first check: got %d, want 3", got)
	}

	m.Update(true)
	for want := 2; want >= 0; want-- {
		if !m.RemovedWithHysteresis(false) {
			t.Fatalf("window %d: expected removed", want)
		}
		if got := m.Hysteresis(); got != want {
			t.Errorf("got %d, want %d", got, want)
		}
		if !m.IsPresent() {
			t.Error("raw presence should be reported")
		}
	}
	if m.RemovedWithHysteresis(false) {
		t.Error("window spent: expected not removed")
	}
	if m.IsRemoved() {
		t.Error("IsRemoved should be false once window is spent")
	}
}

func TestMonitorReportsRemovedDuringWindow(t *testing.T) {
	m := NewMonitor("FFF Cartridge", 4)
	m.Update(true)
	m.Update(false)
	m.RemovedWithHysteresis(false)
	m.Update(true)

	if !m.IsPresent() {
		t.Error("expected raw present")
	}
	if !m.IsRemoved() {
		t.Error("window > 0 must report removed even when present")
	}
}

func TestMonitorRequiredAbsentArmsWindow(t *testing.T) {
	m := NewMonitor("FFF Cartridge", 2)
	if !m.RemovedWithHysteresis(true) {
		t.Error("required slot absent since boot must be removed")
	}
	if m.RemovedWithHysteresis(false) != true {
		t.Error("window armed by the required check should still run")
	}
	if m.RemovedWithHysteresis(false) {
		t.Error("expected window spent")
	}
}

func TestMonitorZeroHysteresis(t *testing.T) {
	m := NewMonitor("Heated Bed", 0)
	m.Update(true)
	m.Update(false)
	if !m.RemovedWithHysteresis(false) {
		t.Error("expected removed")
	}
	m.Update(true)
	if m.RemovedWithHysteresis(false) {
		t.Error("no window: expected not removed once present")
	}
}

func TestMonitorForcePresent(t *testing.T) {
	m := NewMonitor("FFF Cartridge", 5)
	m.Update(true)
	m.Update(false)
	m.RemovedWithHysteresis(false)

	m.ForcePresent()
	if !m.IsPresent() || m.IsRemoved() || m.Hysteresis() != 0 {
		t.Errorf("force present: present=%v removed=%v window=%d", m.IsPresent(), m.IsRemoved(), m.Hysteresis())
	}
}

func TestMonitorEventMessages(t *testing.T) {
	m := NewMonitor("Silver Cartridge", 0)
	if got := m.event(ComponentCartridge, 1, TransitionInserted).Message; got != "Silver Cartridge Inserted" {
		t.Errorf("got %q", got)
	}
	if got := m.event(ComponentCartridge, 1, TransitionRemoved).Message; got != "Silver Cartridge Removed" {
		t.Errorf("got %q", got)
	}
}
