package safety

import "time"

// Millis is a millisecond counter that wraps at 2^32.
type Millis uint32

// Sub returns the milliseconds elapsed from earlier to m.
// The result is correct across a single counter rollover.
func (m Millis) Sub(earlier Millis) uint32 {
	return uint32(m - earlier)
}

// Clock supplies the current millisecond counter.
type Clock interface {
	Now() Millis
}

// SystemClock derives Millis from wall time relative to a start instant.
type SystemClock struct {
	start time.Time
	now   func() time.Time
}

// NewSystemClock creates a clock whose counter is zero at start.
func NewSystemClock(start time.Time, now func() time.Time) *SystemClock {
	return &SystemClock{start: start, now: now}
}

// Now returns the counter for the current time.
func (c *SystemClock) Now() Millis {
	return MillisAt(c.start, c.now())
}

// MillisAt converts t to a counter value relative to start.
func MillisAt(start, t time.Time) Millis {
	return Millis(uint64(t.Sub(start).Milliseconds()))
}
