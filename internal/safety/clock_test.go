package safety

import (
	"testing"
	"time"
)

func TestMillisSub(t *testing.T) {
	tests := []struct {
		name    string
		now     Millis
		earlier Millis
		want    uint32
	}{
		{"simple", 1500, 500, 1000},
		{"equal", 42, 42, 0},
		{"rollover", 10, 0xFFFFFFF6, 20},
		{"rollover at boundary", 0, 0xFFFFFFFF, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.now.Sub(tt.earlier); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSystemClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(2500 * time.Millisecond)
	c := NewSystemClock(start, func() time.Time { return now })
	if got := c.Now(); got != 2500 {
		t.Errorf("got %d, want 2500", got)
	}
}

func TestMillisAtWraps(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// 2^32 ms + 5 ms after start.
	later := start.Add(time.Duration(1<<32+5) * time.Millisecond)
	if got := MillisAt(start, later); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestFlagsDefaults(t *testing.T) {
	f := NewFlags()
	if !f.Running() {
		t.Error("expected Running=true at startup")
	}
	if f.SafetyCritical() {
		t.Error("expected SafetyCritical=false at startup")
	}
	f.SetSafetyCritical(true)
	if !f.SafetyCritical() {
		t.Error("expected SafetyCritical=true")
	}
}
