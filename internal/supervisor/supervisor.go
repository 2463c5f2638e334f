// Package supervisor runs every interlock once per control cycle and hands
// their faults to the safety dispatcher. It is the only caller of
// Dispatcher.ReportFault, and it owns the operator override surface.
package supervisor

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/voxel8/interlockd/internal/interlock"
	"github.com/voxel8/interlockd/internal/safety"
)

// ErrNoRegulator is returned by pressure operations when no regulator is fitted.
var ErrNoRegulator = errors.New("no pressure regulator fitted")

// ErrNoBed is returned by bed operations when no bed interlock is fitted.
var ErrNoBed = errors.New("no heated bed interlock fitted")

// Report is what one control cycle observed and did.
type Report struct {
	Time     safety.Millis
	Events   []interlock.Event
	Outcomes []safety.Outcome
	// Errs holds hardware and notification errors. They never stop the cycle.
	Errs []error
}

// Supervisor composes the interlocks and the dispatcher.
// All methods are safe for concurrent use.
type Supervisor struct {
	mu sync.Mutex

	cartridge  *interlock.Cartridge
	bed        *interlock.Bed       // nil when not fitted
	regulator  *interlock.Regulator // nil when not fitted
	dispatcher *safety.Dispatcher
	flags      *safety.Flags
	host       safety.Notifier

	cycles     uint64
	faults     uint64
	suppressed uint64
	last       safety.Millis

	// latchLogged records sources already logged after the kill latch.
	latchLogged map[safety.Source]bool
}

// New creates a supervisor. bed and regulator may be nil.
func New(cartridge *interlock.Cartridge, bed *interlock.Bed, regulator *interlock.Regulator,
	dispatcher *safety.Dispatcher, flags *safety.Flags, host safety.Notifier) *Supervisor {
	return &Supervisor{
		cartridge:  cartridge,
		bed:        bed,
		regulator:  regulator,
		dispatcher: dispatcher,
		flags:      flags,
		host:       host,
	}
}

// Tick polls the cartridge, bed and regulator interlocks in that order and
// dispatches every fault they return.
func (s *Supervisor) Tick(now safety.Millis) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	s.last = now
	rep := Report{Time: now}

	s.collect(&rep, s.cartridge.Poll(), now)
	if s.bed != nil {
		_, res := s.bed.PresentCheck()
		s.collect(&rep, res, now)
	}
	if s.regulator != nil {
		s.collect(&rep, s.regulator.Poll(now), now)
	}

	return rep
}

func (s *Supervisor) collect(rep *Report, res interlock.Result, now safety.Millis) {
	if res.Err != nil {
		rep.Errs = append(rep.Errs, res.Err)
	}

	for _, ev := range res.Events {
		log.Printf("supervisor: %s", ev.Message)
		if ev.Safed {
			log.Printf("supervisor: %s deploy line driven low", ev.Label)
		}
		if err := s.host.Notify(ev.Message); err != nil {
			rep.Errs = append(rep.Errs, fmt.Errorf("notify event: %w", err))
		}
		rep.Events = append(rep.Events, ev)
	}

	for _, f := range res.Faults {
		out := s.dispatcher.ReportFault(f, now)
		switch out.Action {
		case safety.ActionPaused:
			s.faults++
			log.Printf("supervisor: %s fault %s: paused (%s)", f.Source, f.Kind, f.Message)
		case safety.ActionKilled:
			s.faults++
			log.Printf("supervisor: %s fault %s in critical section: killed (%s)", f.Source, f.Kind, f.Message)
		case safety.ActionSuppressed:
			s.suppressed++
			log.Printf("supervisor: %s fault %s suppressed (rate limited)", f.Source, f.Kind)
		case safety.ActionKillLatched:
			s.suppressed++
			if !s.latchLogged[f.Source] {
				if s.latchLogged == nil {
					s.latchLogged = make(map[safety.Source]bool)
				}
				s.latchLogged[f.Source] = true
				log.Printf("supervisor: %s fault %s after kill: ignored (%s)", f.Source, f.Kind, f.Message)
			}
		}
		if out.Err != nil {
			rep.Errs = append(rep.Errs, out.Err)
		}
		rep.Outcomes = append(rep.Outcomes, out)
	}
}

// override logs an operator override and echoes it to the host.
func (s *Supervisor) override(what string, enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	msg := fmt.Sprintf("%s %s", what, state)
	log.Printf("supervisor: operator: %s", msg)
	if err := s.host.Notify(msg); err != nil {
		log.Printf("supervisor: notify override: %v", err)
	}
}

// SetCartridgeCheck enables or bypasses the cartridge presence check.
func (s *Supervisor) SetCartridgeCheck(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartridge.SetPresenceCheckEnabled(enabled)
	s.override("Cartridge check", enabled)
}

// CartridgeCheck reports whether the cartridge presence check is enabled.
func (s *Supervisor) CartridgeCheck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartridge.PresenceCheckEnabled()
}

// SetBedCheck enables or bypasses the heated bed presence check.
func (s *Supervisor) SetBedCheck(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bed == nil {
		return ErrNoBed
	}
	s.bed.SetPresenceCheckEnabled(enabled)
	s.override("Bed check", enabled)
	return nil
}

// SetPressureProtection enables or bypasses the regulator protection loop.
func (s *Supervisor) SetPressureProtection(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.regulator == nil {
		return ErrNoRegulator
	}
	s.regulator.SetPressureProtections(enabled)
	s.override("Pressure protection", enabled)
	return nil
}

// SetPressure commands a regulator output pressure in psi.
func (s *Supervisor) SetPressure(psi float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.regulator == nil {
		return ErrNoRegulator
	}
	if err := s.regulator.SetOutputPressure(psi); err != nil {
		return fmt.Errorf("set pressure: %w", err)
	}
	log.Printf("supervisor: operator: pressure set to %.2f psi (code %d)", s.regulator.Target(), s.regulator.Code())
	return nil
}

// Cartridges returns the presence of each cartridge slot.
func (s *Supervisor) Cartridges() []SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots()
}

func (s *Supervisor) slots() []SlotState {
	slots := make([]SlotState, interlock.NumSlots)
	for i := range slots {
		slots[i] = SlotState{
			Slot:    i,
			Label:   s.cartridge.Label(i),
			Present: s.cartridge.Present(i),
			Removed: s.cartridge.SlotRemoved(i),
		}
	}
	return slots
}

// SetSafetyCritical sets the safety-critical section flag.
func (s *Supervisor) SetSafetyCritical(critical bool) {
	s.flags.SetSafetyCritical(critical)
	log.Printf("supervisor: safety-critical section: %v", critical)
}

// Resume returns a paused machine to NORMAL.
func (s *Supervisor) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dispatcher.Resume(); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	log.Printf("supervisor: operator: resumed")
	return nil
}
