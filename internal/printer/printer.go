// Package printer talks to the motion and thermal firmware over a serial
// link. It provides the machine primitives the safety dispatcher invokes
// and the line channel used to reach the print host.
package printer

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// G-code for each machine primitive.
const (
	CmdQuickStop     = "M410"
	CmdHotendOff     = "M104 S0"
	CmdBedOff        = "M140 S0"
	CmdSteppersOff   = "M18"
	CmdEmergencyStop = "M112"
	CmdHostMessage   = "M118"
)

// DefaultBaud is the firmware's serial rate.
const DefaultBaud = 250000

const defaultReadTimeout = 100 * time.Millisecond

// Link is a line-oriented serial connection to the firmware.
// It implements safety.Machine and safety.Notifier.
type Link struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

// Open opens the serial device at baud.
func Open(device string, baud int) (*Link, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: defaultReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return NewLink(port), nil
}

// NewLink wraps an already open port.
func NewLink(port io.ReadWriteCloser) *Link {
	return &Link{port: port}
}

// Send writes one command line.
func (l *Link) Send(cmd string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.port.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

// QuickStop aborts all planned moves.
func (l *Link) QuickStop() error {
	return l.Send(CmdQuickStop)
}

// DisableAllHeaters turns the hotend and bed heaters off. Both commands are
// sent even if the first fails.
func (l *Link) DisableAllHeaters() error {
	return errors.Join(l.Send(CmdHotendOff), l.Send(CmdBedOff))
}

// DisableAllSteppers de-energizes every stepper.
func (l *Link) DisableAllSteppers() error {
	return l.Send(CmdSteppersOff)
}

// Kill sends the emergency stop with message as a trailing comment. The
// firmware halts until power cycled.
func (l *Link) Kill(message string) error {
	message = strings.ReplaceAll(message, "\n", " ")
	if message == "" {
		return l.Send(CmdEmergencyStop)
	}
	return l.Send(CmdEmergencyStop + " ; " + message)
}

// Notify echoes line to the print host through the firmware's serial port.
func (l *Link) Notify(line string) error {
	line = strings.ReplaceAll(line, "\n", " ")
	return l.Send(CmdHostMessage + " " + line)
}

// Close closes the port.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port.Close()
}
