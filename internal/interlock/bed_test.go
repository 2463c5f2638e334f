package interlock

import (
	"errors"
	"testing"

	"github.com/voxel8/interlockd/internal/safety"
)

const bedPin = 82

func TestNewBedValidatesMode(t *testing.T) {
	if _, err := NewBed(BedConfig{Mode: BedModePin}, nil, nil); err == nil {
		t.Error("pin mode without pins: expected error")
	}
	if _, err := NewBed(BedConfig{Mode: BedModeSensor}, newTestPins(), nil); err == nil {
		t.Error("sensor mode without sensor: expected error")
	}
	if _, err := NewBed(BedConfig{Mode: "thermocouple"}, newTestPins(), nil); err == nil {
		t.Error("unknown mode: expected error")
	}
}

func TestBedPinModePresent(t *testing.T) {
	pins := newTestPins()
	pins.levels[bedPin] = true
	b, err := NewBed(DefaultBedConfig(), pins, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	present, res := b.PresentCheck()
	if !present {
		t.Error("expected present")
	}
	if len(res.Faults) != 0 {
		t.Errorf("expected no faults, got %d", len(res.Faults))
	}
	if len(res.Events) != 1 || res.Events[0].Message != "Heated Bed Inserted" {
		t.Errorf("expected insert event, got %+v", res.Events)
	}
}

func TestBedPinModeRemoved(t *testing.T) {
	pins := newTestPins()
	pins.levels[bedPin] = true
	b, _ := NewBed(DefaultBedConfig(), pins, nil)
	b.PresentCheck()

	pins.levels[bedPin] = false
	present, res := b.PresentCheck()
	if present {
		t.Error("expected absent")
	}
	if len(res.Faults) != 1 {
		t.Fatalf("expected 1 fault, got %d", len(res.Faults))
	}
	f := res.Faults[0]
	if f.Source != safety.SourceBed || f.Kind != safety.KindBedRemoved || f.Message != MsgBedRemoved {
		t.Errorf("unexpected fault: %+v", f)
	}
	if len(res.Events) != 1 || res.Events[0].Transition != TransitionRemoved {
		t.Errorf("expected removal event, got %+v", res.Events)
	}

	// Held absent: fault every cycle, no repeated event.
	_, res = b.PresentCheck()
	if len(res.Faults) != 1 || len(res.Events) != 0 {
		t.Errorf("held absent: faults=%d events=%d", len(res.Faults), len(res.Events))
	}
}

func TestBedAbsentAtBootFaults(t *testing.T) {
	b, _ := NewBed(DefaultBedConfig(), newTestPins(), nil)
	present, res := b.PresentCheck()
	if present || len(res.Faults) != 1 {
		t.Errorf("absent at boot: present=%v faults=%d", present, len(res.Faults))
	}
}

func TestBedSensorMode(t *testing.T) {
	temp := &testSensor{value: 22.5}
	b, err := NewBed(BedConfig{Mode: BedModeSensor, MinTempC: DefaultBedMinTempC}, nil, temp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if present, _ := b.PresentCheck(); !present {
		t.Error("plausible temperature: expected present")
	}

	temp.value = -40
	if present, res := b.PresentCheck(); present || len(res.Faults) != 1 {
		t.Errorf("open thermistor: present=%v faults=%d", present, len(res.Faults))
	}

	temp.err = errSimulated
	present, res := b.PresentCheck()
	if present {
		t.Error("read error must count as absent")
	}
	if !errors.Is(res.Err, errSimulated) {
		t.Errorf("expected wrapped error, got %v", res.Err)
	}
}

func TestBedDisabled(t *testing.T) {
	b, _ := NewBed(DefaultBedConfig(), newTestPins(), nil)
	b.SetPresenceCheckEnabled(false)
	if b.PresenceCheckEnabled() {
		t.Error("expected disabled")
	}
	present, res := b.PresentCheck()
	if !present || len(res.Faults) != 0 {
		t.Errorf("disabled: present=%v faults=%d", present, len(res.Faults))
	}
	if !b.Present() {
		t.Error("disabled: expected forced present")
	}
}
