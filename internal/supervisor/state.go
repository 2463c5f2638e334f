package supervisor

import "github.com/voxel8/interlockd/internal/safety"

// SlotState is the presence of one cartridge slot.
type SlotState struct {
	Slot    int    `json:"slot"`
	Label   string `json:"label"`
	Present bool   `json:"present"`
	Removed bool   `json:"removed"`
}

// BedState is the heated bed interlock state.
type BedState struct {
	Fitted  bool   `json:"fitted"`
	Mode    string `json:"mode,omitempty"`
	Enabled bool   `json:"enabled"`
	Present bool   `json:"present"`
}

// RegulatorState is the pressure regulator state.
type RegulatorState struct {
	Fitted      bool    `json:"fitted"`
	Protections bool    `json:"protections"`
	Active      bool    `json:"active"`
	TargetPSI   float64 `json:"target_psi"`
	MeasuredPSI float64 `json:"measured_psi"`
	SupplyPSI   float64 `json:"supply_psi"`
	DACCode     uint16  `json:"dac_code"`
}

// State is a point-in-time snapshot of every interlock.
type State struct {
	Time           safety.Millis  `json:"time_ms"`
	Dispatcher     safety.State   `json:"dispatcher"`
	KillLatched    bool           `json:"kill_latched"`
	Running        bool           `json:"running"`
	SafetyCritical bool           `json:"safety_critical"`
	CartridgeCheck bool           `json:"cartridge_check"`
	FFFNotPresent  bool           `json:"fff_not_present"`
	Slots          []SlotState    `json:"slots"`
	Bed            BedState       `json:"bed"`
	Regulator      RegulatorState `json:"regulator"`
	Cycles         uint64         `json:"cycles"`
	Faults         uint64         `json:"faults"`
	Suppressed     uint64         `json:"suppressed"`
}

// State returns a snapshot of every interlock.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Time:           s.last,
		Dispatcher:     s.dispatcher.State(),
		KillLatched:    s.dispatcher.KillLatched(),
		Running:        s.flags.Running(),
		SafetyCritical: s.flags.SafetyCritical(),
		CartridgeCheck: s.cartridge.PresenceCheckEnabled(),
		FFFNotPresent:  s.cartridge.FFFNotPresent(),
		Slots:          s.slots(),
		Cycles:         s.cycles,
		Faults:         s.faults,
		Suppressed:     s.suppressed,
	}

	if s.bed != nil {
		st.Bed = BedState{
			Fitted:  true,
			Mode:    string(s.bed.Mode()),
			Enabled: s.bed.PresenceCheckEnabled(),
			Present: s.bed.Present(),
		}
	}

	if s.regulator != nil {
		st.Regulator = RegulatorState{
			Fitted:      true,
			Protections: s.regulator.PressureProtections(),
			Active:      s.regulator.Active(),
			TargetPSI:   s.regulator.Target(),
			MeasuredPSI: s.regulator.Measured(),
			SupplyPSI:   s.regulator.Supply(),
			DACCode:     s.regulator.Code(),
		}
	}

	return st
}

