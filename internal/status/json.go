package status

import (
	"encoding/json"
	"time"

	"github.com/voxel8/interlockd/internal/supervisor"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string                     `json:"event,omitempty"`
	Reason         string                     `json:"reason,omitempty"`
	Ready          bool                       `json:"ready"`
	Dispatcher     string                     `json:"dispatcher"`
	KillLatched    bool                       `json:"kill_latched"`
	Running        bool                       `json:"running"`
	SafetyCritical bool                       `json:"safety_critical"`
	LastFault      string                     `json:"last_fault,omitempty"`
	Cartridges     CartridgesJSON             `json:"cartridges"`
	Bed            *supervisor.BedState       `json:"bed,omitempty"`
	Regulator      *supervisor.RegulatorState `json:"regulator,omitempty"`
	Counts         CountsJSON                 `json:"counts"`
	UptimeSeconds  int64                      `json:"uptime_seconds"`
	StartTime      string                     `json:"start_time"`
	Timestamp      string                     `json:"timestamp"`
	MQTT           MQTTStatus                 `json:"mqtt"`
	Network        *NetworkJSON               `json:"network,omitempty"`
	Config         ConfigJSON                 `json:"config"`
}

// CartridgesJSON is the cartridge interlock state.
type CartridgesJSON struct {
	Check         bool                   `json:"check"`
	FFFNotPresent bool                   `json:"fff_not_present"`
	Slots         []supervisor.SlotState `json:"slots"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of control loop counters.
type CountsJSON struct {
	Cycles     uint64 `json:"cycles"`
	Faults     uint64 `json:"faults"`
	Suppressed uint64 `json:"suppressed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs          int64  `json:"poll_ms"`
	ErrorIntervalMs int64  `json:"error_interval_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	HysteresisCount int    `json:"hysteresis_count"`
	BedMode         string `json:"bed_mode,omitempty"`
	Regulator       bool   `json:"regulator"`
	Serial          string `json:"serial,omitempty"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.Interlock
	dispatcher := string(st.Dispatcher)
	if dispatcher == "" {
		dispatcher = "UNKNOWN"
	}

	inner := StatusInner{
		Ready:          snap.Ready,
		Dispatcher:     dispatcher,
		KillLatched:    st.KillLatched,
		Running:        st.Running,
		SafetyCritical: st.SafetyCritical,
		LastFault:      snap.LastFault,
		Cartridges: CartridgesJSON{
			Check:         st.CartridgeCheck,
			FFFNotPresent: st.FFFNotPresent,
			Slots:         st.Slots,
		},
		Counts: CountsJSON{
			Cycles:     st.Cycles,
			Faults:     st.Faults,
			Suppressed: st.Suppressed,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:          snap.Config.PollMs,
			ErrorIntervalMs: snap.Config.ErrorIntervalMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			HysteresisCount: snap.Config.HysteresisCount,
			BedMode:         snap.Config.BedMode,
			Regulator:       snap.Config.Regulator,
			Serial:          snap.Config.Serial,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}
	if inner.Cartridges.Slots == nil {
		inner.Cartridges.Slots = []supervisor.SlotState{}
	}
	if st.Bed.Fitted {
		bed := st.Bed
		inner.Bed = &bed
	}
	if st.Regulator.Fitted {
		reg := st.Regulator
		inner.Regulator = &reg
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
