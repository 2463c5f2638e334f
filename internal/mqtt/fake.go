package mqtt

import (
	"sync"
	"time"

	"github.com/voxel8/interlockd/internal/interlock"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all presence transitions that were published.
	Events []interlock.Event

	// EventPayloads contains the JSON payloads for transitions.
	EventPayloads [][]byte

	// Faults contains all faults that were published.
	Faults []FaultEvent

	// FaultPayloads contains the JSON payloads for faults.
	FaultPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Lines contains every mirrored host line.
	Lines []string

	// PublishError, if set, will be returned by PublishEvent and PublishFault.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	commands chan string
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{commands: make(chan string, commandBacklog)}
}

// PublishEvent records the transition.
func (f *FakePublisher) PublishEvent(ts time.Time, event interlock.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatEventPayload(ts, event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.EventPayloads = append(f.EventPayloads, payload)
	return nil
}

// PublishFault records the fault.
func (f *FakePublisher) PublishFault(fault FaultEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatFaultPayload(fault)
	if err != nil {
		return err
	}
	f.Faults = append(f.Faults, fault)
	f.FaultPayloads = append(f.FaultPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Notify records the host line.
func (f *FakePublisher) Notify(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lines = append(f.Lines, line)
	return nil
}

// SendCommand queues a command line as if received from the broker.
func (f *FakePublisher) SendCommand(line string) {
	f.commands <- line
}

// Commands returns the queued command lines.
func (f *FakePublisher) Commands() <-chan string {
	return f.commands
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.EventPayloads = nil
	f.Faults = nil
	f.FaultPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Lines = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
