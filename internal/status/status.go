// Package status provides a thread-safe status tracker for the interlock daemon.
// It is read by the HTTP handlers and by MQTT heartbeat and lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/voxel8/interlockd/internal/supervisor"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs          int64
	ErrorIntervalMs int64
	HeartbeatMs     int64
	HysteresisCount int
	BedMode         string // empty when no bed interlock is fitted
	Regulator       bool
	Serial          string
	Broker          string
	HTTPAddr        string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Interlock     supervisor.State
	Ready         bool // at least one control cycle has run
	LastFault     string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the latest interlock state.
// Called from runLoop on every tick.
func (t *Tracker) Update(st supervisor.State) {
	t.mu.Lock()
	t.snap.Interlock = st
	t.snap.Ready = true
	t.mu.Unlock()
}

// SetLastFault records the message of the most recent dispatched fault.
func (t *Tracker) SetLastFault(msg string) {
	t.mu.Lock()
	t.snap.LastFault = msg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Interlock.Slots = append([]supervisor.SlotState(nil), s.Interlock.Slots...)
	s.Now = time.Now()
	return s
}
