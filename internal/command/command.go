// Package command parses operator command lines and applies them to the
// supervisor. Each command maps to exactly one setter or getter.
//
//	cartridge-check on|off
//	bed-check on|off
//	pressure-protection on|off
//	pressure <psi>
//	cartridges
//	critical on|off
//	resume
//	status
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/voxel8/interlockd/internal/supervisor"
)

var (
	// ErrUnknownCommand is returned for an unrecognised command name.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrBadArgument is returned when a command's arguments are missing or invalid.
	ErrBadArgument = errors.New("bad argument")
)

// Operator is the supervisor surface commands act on.
type Operator interface {
	SetCartridgeCheck(enabled bool)
	CartridgeCheck() bool
	SetBedCheck(enabled bool) error
	SetPressureProtection(enabled bool) error
	SetPressure(psi float64) error
	Cartridges() []supervisor.SlotState
	SetSafetyCritical(critical bool)
	Resume() error
	State() supervisor.State
}

// Command is a parsed command line.
type Command struct {
	Name string
	Args []string
}

// Parse splits line with shell quoting rules. Names are case-insensitive.
func Parse(line string) (Command, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("split %q: %w", line, err)
	}
	if len(words) == 0 {
		return Command{}, fmt.Errorf("empty command: %w", ErrBadArgument)
	}
	return Command{Name: strings.ToLower(words[0]), Args: words[1:]}, nil
}

// Execute parses line, applies it to op and returns a one-line reply.
func Execute(op Operator, line string) (string, error) {
	cmd, err := Parse(line)
	if err != nil {
		return "", err
	}

	switch cmd.Name {
	case "cartridge-check":
		on, err := onOff(cmd)
		if err != nil {
			return "", err
		}
		op.SetCartridgeCheck(on)
		return "cartridge check " + enabledString(on), nil

	case "bed-check":
		on, err := onOff(cmd)
		if err != nil {
			return "", err
		}
		if err := op.SetBedCheck(on); err != nil {
			return "", err
		}
		return "bed check " + enabledString(on), nil

	case "pressure-protection":
		on, err := onOff(cmd)
		if err != nil {
			return "", err
		}
		if err := op.SetPressureProtection(on); err != nil {
			return "", err
		}
		return "pressure protection " + enabledString(on), nil

	case "pressure":
		if len(cmd.Args) != 1 {
			return "", fmt.Errorf("pressure <psi>: %w", ErrBadArgument)
		}
		psi, err := strconv.ParseFloat(cmd.Args[0], 64)
		if err != nil {
			return "", fmt.Errorf("pressure %q: %w", cmd.Args[0], ErrBadArgument)
		}
		if err := op.SetPressure(psi); err != nil {
			return "", err
		}
		return fmt.Sprintf("pressure %.2f psi", psi), nil

	case "cartridges":
		if len(cmd.Args) != 0 {
			return "", fmt.Errorf("cartridges takes no arguments: %w", ErrBadArgument)
		}
		return formatCartridges(op.Cartridges(), op.CartridgeCheck()), nil

	case "critical":
		on, err := onOff(cmd)
		if err != nil {
			return "", err
		}
		op.SetSafetyCritical(on)
		return "safety-critical section " + onOffString(on), nil

	case "resume":
		if err := op.Resume(); err != nil {
			return "", err
		}
		return "resumed", nil

	case "status":
		b, err := json.Marshal(op.State())
		if err != nil {
			return "", fmt.Errorf("marshal state: %w", err)
		}
		return string(b), nil

	default:
		return "", fmt.Errorf("%q: %w", cmd.Name, ErrUnknownCommand)
	}
}

func onOff(cmd Command) (bool, error) {
	if len(cmd.Args) != 1 {
		return false, fmt.Errorf("%s on|off: %w", cmd.Name, ErrBadArgument)
	}
	switch strings.ToLower(cmd.Args[0]) {
	case "on", "1", "true", "enable":
		return true, nil
	case "off", "0", "false", "disable":
		return false, nil
	}
	return false, fmt.Errorf("%s %q: %w", cmd.Name, cmd.Args[0], ErrBadArgument)
}

func enabledString(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func onOffString(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// formatCartridges renders e.g. "FFF Cartridge: present, Silver Cartridge: absent".
func formatCartridges(slots []supervisor.SlotState, checkEnabled bool) string {
	parts := make([]string, 0, len(slots)+1)
	for _, s := range slots {
		state := "absent"
		switch {
		case s.Present && s.Removed:
			state = "settling"
		case s.Present:
			state = "present"
		case s.Removed:
			state = "removed"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", s.Label, state))
	}
	out := strings.Join(parts, ", ")
	if !checkEnabled {
		out += " (check bypassed)"
	}
	return out
}
