// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/voxel8/interlockd/internal/interlock"
	"github.com/voxel8/interlockd/internal/safety"
)

// Topics.
const (
	// TopicEvents carries presence transitions.
	TopicEvents = "voxel8/interlock/events"
	// TopicFaults carries every dispatched fault.
	TopicFaults = "voxel8/interlock/faults"
	// TopicSystem carries lifecycle events (startup, shutdown, heartbeat).
	TopicSystem = "voxel8/interlock/system"
	// TopicHost mirrors every line sent to the print host.
	TopicHost = "voxel8/interlock/host"
	// TopicCommand receives operator command lines.
	TopicCommand = "voxel8/interlock/command"
)

// Publisher publishes interlock activity to MQTT.
type Publisher interface {
	// PublishEvent sends a presence transition.
	// Returns error if publishing fails (should not crash the process).
	PublishEvent(ts time.Time, event interlock.Event) error

	// PublishFault sends a dispatched fault.
	PublishFault(fault FaultEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Notify mirrors a host line. It satisfies safety.Notifier.
	Notify(line string) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Commander delivers operator command lines received from the broker.
type Commander interface {
	Commands() <-chan string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// FaultEvent is a dispatched fault with its journal incident id.
type FaultEvent struct {
	Timestamp time.Time
	ID        string
	Outcome   safety.Outcome
}

// EventPayload represents the MQTT message payload for a presence transition.
type EventPayload struct {
	Interlock EventPayloadInner `json:"interlock"`
}

// EventPayloadInner contains the transition details.
type EventPayloadInner struct {
	Timestamp  string `json:"timestamp"`
	Component  string `json:"component"`
	Slot       int    `json:"slot"`
	Label      string `json:"label"`
	Transition string `json:"transition"`
	Message    string `json:"message"`
	Safed      bool   `json:"safed,omitempty"`
}

// FormatEventPayload creates the JSON payload for a presence transition.
func FormatEventPayload(ts time.Time, event interlock.Event) ([]byte, error) {
	payload := EventPayload{
		Interlock: EventPayloadInner{
			Timestamp:  ts.UTC().Format(time.RFC3339),
			Component:  event.Component,
			Slot:       event.Slot,
			Label:      event.Label,
			Transition: event.Transition.String(),
			Message:    event.Message,
			Safed:      event.Safed,
		},
	}
	return json.Marshal(payload)
}

// FaultPayload represents the MQTT message payload for a fault.
type FaultPayload struct {
	Fault FaultPayloadInner `json:"fault"`
}

// FaultPayloadInner contains the fault details.
type FaultPayloadInner struct {
	Timestamp string   `json:"timestamp"`
	ID        string   `json:"id,omitempty"`
	Source    string   `json:"source"`
	Kind      string   `json:"kind"`
	Severity  string   `json:"severity"`
	Action    string   `json:"action"`
	Message   string   `json:"message"`
	Detail    string   `json:"detail,omitempty"`
	Lines     []string `json:"lines,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// FormatFaultPayload creates the JSON payload for a fault.
func FormatFaultPayload(fault FaultEvent) ([]byte, error) {
	out := fault.Outcome
	inner := FaultPayloadInner{
		Timestamp: fault.Timestamp.UTC().Format(time.RFC3339),
		ID:        fault.ID,
		Source:    string(out.Fault.Source),
		Kind:      string(out.Fault.Kind),
		Severity:  out.Fault.Severity.String(),
		Action:    string(out.Action),
		Message:   out.Fault.Message,
		Detail:    out.Fault.Detail,
		Lines:     out.Lines,
	}
	if out.Err != nil {
		inner.Error = out.Err.Error()
	}
	return json.Marshal(FaultPayload{Fault: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
