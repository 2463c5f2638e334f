package interlock

import (
	"errors"
	"fmt"

	"github.com/voxel8/interlockd/internal/safety"
)

// Slot indices.
const (
	FFFSlot    = 0
	SilverSlot = 1
	NumSlots   = 2
)

// DefaultHysteresisCount spans the lag between reinsertion and the hot-end
// temperature readback settling.
const DefaultHysteresisCount = 250

// MsgCartridgeRemoved is the host message for a cartridge fault.
const MsgCartridgeRemoved = "Cartridge Removed"

// SlotConfig describes one cartridge slot.
type SlotConfig struct {
	Label    string
	SensePin int
	// ActiveLow is set when a low sense level means present.
	ActiveLow bool
	// Required slots count as removed whenever they are absent.
	Required bool
	// DeployPin is driven low when the slot's cartridge is removed.
	DeployPin int
}

// CartridgeConfig configures the cartridge interlock.
type CartridgeConfig struct {
	Slots           [NumSlots]SlotConfig
	HysteresisCount int
}

// DefaultCartridgeConfig returns the two-slot layout: the FFF slot is pulled
// low by default (high = present) and required for heating; the silver slot
// is pulled high by default (low = present) and owns the deploy actuator.
func DefaultCartridgeConfig() CartridgeConfig {
	return CartridgeConfig{
		Slots: [NumSlots]SlotConfig{
			FFFSlot: {
				Label:     "FFF Cartridge",
				SensePin:  74,
				Required:  true,
				DeployPin: NoPin,
			},
			SilverSlot: {
				Label:     "Silver Cartridge",
				SensePin:  85,
				ActiveLow: true,
				DeployPin: 75,
			},
		},
		HysteresisCount: DefaultHysteresisCount,
	}
}

// Cartridge watches both cartridge slots.
//
// The aggregate removal rule is: any slot with its removal latch set, or any
// required slot not present. With hysteresis, the rule keeps reporting
// removed for HysteresisCount gated checks after it stops holding.
type Cartridge struct {
	cfg     CartridgeConfig
	pins    Pins
	slots   [NumSlots]*Monitor
	enabled bool
}

// NewCartridge creates the interlock with both slots ABSENT and the presence
// check enabled.
func NewCartridge(cfg CartridgeConfig, pins Pins) *Cartridge {
	c := &Cartridge{cfg: cfg, pins: pins, enabled: true}
	for i := range c.slots {
		c.slots[i] = NewMonitor(cfg.Slots[i].Label, cfg.HysteresisCount)
	}
	return c
}

// Update reads both sense pins. A failed read counts as absent.
// With the check disabled, both slots are forced present and no pin is read.
func (c *Cartridge) Update() ([]Event, error) {
	if !c.enabled {
		for _, m := range c.slots {
			m.ForcePresent()
		}
		return nil, nil
	}

	var events []Event
	var errs []error
	for i, m := range c.slots {
		sc := c.cfg.Slots[i]
		level, err := c.pins.ReadPin(sc.SensePin)
		present := err == nil && level != sc.ActiveLow
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s sense pin %d: %w", sc.Label, sc.SensePin, err))
		}

		tr := m.Update(present)
		if tr == TransitionNone {
			continue
		}
		ev := m.event(ComponentCartridge, i, tr)
		if tr == TransitionRemoved && sc.DeployPin != NoPin {
			// Keep the extruder from lowering onto an empty slot.
			if err := c.pins.WritePin(sc.DeployPin, false); err != nil {
				errs = append(errs, fmt.Errorf("drive %s deploy pin %d low: %w", sc.Label, sc.DeployPin, err))
			} else {
				ev.Safed = true
			}
		}
		events = append(events, ev)
	}
	return events, errors.Join(errs...)
}

// IsRemoved applies the aggregate removal rule. With hysteresis every slot's
// window is advanced by one on each call.
func (c *Cartridge) IsRemoved(withHysteresis bool) bool {
	if !c.enabled {
		return false
	}
	removed := false
	for i, m := range c.slots {
		required := c.cfg.Slots[i].Required
		if withHysteresis {
			if m.RemovedWithHysteresis(required) {
				removed = true
			}
			continue
		}
		if m.Latched() || (required && !m.IsPresent()) {
			removed = true
		}
	}
	return removed
}

// Poll runs one cycle: read pins, then the hysteresis-gated removal check.
func (c *Cartridge) Poll() Result {
	events, err := c.Update()
	res := Result{Events: events, Err: err}
	if c.IsRemoved(true) {
		res.Faults = append(res.Faults, safety.Fault{
			Source:   safety.SourceCartridge,
			Kind:     safety.KindCartridgeRemoved,
			Severity: safety.SeverityInterlock,
			Host:     safety.HostPause,
			Message:  MsgCartridgeRemoved,
		})
	}
	return res
}

// FFFNotPresent reports whether the FFF slot blocks heating.
// Only the FFF slot gates heating; the silver slot gates its own actuator.
func (c *Cartridge) FFFNotPresent() bool {
	if !c.enabled {
		return false
	}
	return !c.slots[FFFSlot].IsPresent()
}

// Present reports the raw presence of slot. Out-of-range slots are absent.
func (c *Cartridge) Present(slot int) bool {
	if slot < 0 || slot >= NumSlots {
		return false
	}
	return c.slots[slot].IsPresent()
}

// SlotRemoved reports the latch-or-window state of slot.
func (c *Cartridge) SlotRemoved(slot int) bool {
	if slot < 0 || slot >= NumSlots {
		return false
	}
	return c.slots[slot].IsRemoved()
}

// Label returns the display name of slot.
func (c *Cartridge) Label(slot int) string {
	if slot < 0 || slot >= NumSlots {
		return ""
	}
	return c.slots[slot].Label()
}

// SetPresenceCheckEnabled turns the presence check on or off. Turning it off
// forces both slots present at once and clears any latch, so turning it back
// on starts from the pins on the next Update.
func (c *Cartridge) SetPresenceCheckEnabled(enabled bool) {
	c.enabled = enabled
	if !enabled {
		for _, m := range c.slots {
			m.ForcePresent()
		}
	}
}

// PresenceCheckEnabled reports the override state.
func (c *Cartridge) PresenceCheckEnabled() bool {
	return c.enabled
}
