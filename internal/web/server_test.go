package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxel8/interlockd/internal/journal"
	"github.com/voxel8/interlockd/internal/safety"
	"github.com/voxel8/interlockd/internal/status"
	"github.com/voxel8/interlockd/internal/supervisor"
)

type fakeFaults struct {
	entries []journal.Entry
	err     error
	limits  []int
}

func (f *fakeFaults) Recent(limit int) ([]journal.Entry, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func newTestServer(t *testing.T, faults FaultLister) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:          10,
		ErrorIntervalMs: 1000,
		HeartbeatMs:     900000,
		HysteresisCount: 250,
		BedMode:         "pin",
		Serial:          "/dev/ttyACM0",
		Broker:          "tcp://192.168.1.200:1883",
		HTTPAddr:        ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, faults)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func pausedState() supervisor.State {
	return supervisor.State{
		Dispatcher:     safety.StatePaused,
		Running:        true,
		CartridgeCheck: true,
		FFFNotPresent:  true,
		Slots: []supervisor.SlotState{
			{Slot: 0, Label: "FFF Cartridge", Removed: true},
			{Slot: 1, Label: "Silver Cartridge", Present: true},
		},
		Bed:    supervisor.BedState{Fitted: true, Mode: "pin", Enabled: true, Present: true},
		Cycles: 42,
		Faults: 1,
	}
}

func getBody(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update(pausedState())
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Dispatcher != "PAUSED" {
		t.Errorf("Dispatcher: got %q, want PAUSED", sj.Status.Dispatcher)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(sj.Status.Cartridges.Slots) != 2 {
		t.Fatalf("slots: got %d, want 2", len(sj.Status.Cartridges.Slots))
	}
	if !sj.Status.Cartridges.Slots[0].Removed {
		t.Error("expected FFF slot removed")
	}
	if sj.Status.Bed == nil || !sj.Status.Bed.Present {
		t.Errorf("bed: got %+v", sj.Status.Bed)
	}
	if sj.Status.Regulator != nil {
		t.Error("regulator not fitted: expected omitted")
	}
	if sj.Status.Counts.Cycles != 42 {
		t.Errorf("Counts.Cycles: got %d, want 42", sj.Status.Counts.Cycles)
	}
	if sj.Status.Config.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("Config.Broker: got %q", sj.Status.Config.Broker)
	}
}

func TestJSONUnknownBeforeFirstCycle(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.Ready {
		t.Error("expected Ready=false before the first cycle")
	}
	if sj.Status.Dispatcher != "UNKNOWN" {
		t.Errorf("Dispatcher: got %q, want UNKNOWN", sj.Status.Dispatcher)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "Shop",
	})

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	faults := &fakeFaults{entries: []journal.Entry{{
		ID:      "a",
		Time:    time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
		Action:  "PAUSED",
		Message: "Cartridge Removed",
	}}}
	ts, tr := newTestServer(t, faults)
	tr.Update(pausedState())

	resp, body := getBody(t, ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{
		`id="dispatcher" class="PAUSED"`,
		`id="slot-0" class="REMOVED"`,
		`id="slot-1" class="PRESENT"`,
		`id="bed" class="PRESENT"`,
		"Cartridge Removed (PAUSED)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, "Pressure Regulator") {
		t.Error("regulator section rendered without a regulator")
	}
	if len(faults.limits) != 1 || faults.limits[0] != pageFaults {
		t.Errorf("fault limits: got %v", faults.limits)
	}
}

func TestHTMLBypassedCheck(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	st := pausedState()
	st.CartridgeCheck = false
	tr.Update(st)

	_, body := getBody(t, ts.URL+"/")
	if !strings.Contains(body, "check bypassed") {
		t.Error("expected bypass marker")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, body := getBody(t, ts.URL+"/index.html")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `class="UNKNOWN"`) {
		t.Error("expected UNKNOWN dispatcher before the first cycle")
	}
}

func TestHTMLJournalErrorStillRenders(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFaults{err: errors.New("disk I/O error")})

	resp, _ := getBody(t, ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, _ := getBody(t, ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestFaultsEndpoint(t *testing.T) {
	faults := &fakeFaults{entries: []journal.Entry{
		{ID: "b", Message: "Heated Bed Removed", Action: "PAUSED"},
		{ID: "a", Message: "Cartridge Removed", Action: "PAUSED"},
	}}
	ts, _ := newTestServer(t, faults)

	resp, body := getBody(t, ts.URL+"/faults.json?limit=1")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}

	var fj FaultsJSON
	if err := json.Unmarshal([]byte(body), &fj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if len(fj.Faults) != 1 || fj.Faults[0].ID != "b" {
		t.Errorf("faults: got %+v", fj.Faults)
	}
	if faults.limits[0] != 1 {
		t.Errorf("limit: got %d, want 1", faults.limits[0])
	}
}

func TestFaultsEndpointDefaultAndClampedLimit(t *testing.T) {
	faults := &fakeFaults{}
	ts, _ := newTestServer(t, faults)

	getBody(t, ts.URL+"/faults.json")
	getBody(t, ts.URL+"/faults.json?limit=999999")
	if len(faults.limits) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(faults.limits))
	}
	if faults.limits[0] != defaultFaultLimit {
		t.Errorf("default limit: got %d", faults.limits[0])
	}
	if faults.limits[1] != maxFaultLimit {
		t.Errorf("clamped limit: got %d", faults.limits[1])
	}
}

func TestFaultsEndpointBadLimit(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFaults{})
	for _, q := range []string{"abc", "0", "-3"} {
		resp, _ := getBody(t, ts.URL+"/faults.json?limit="+q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestFaultsEndpointJournalError(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFaults{err: errors.New("disk I/O error")})
	resp, _ := getBody(t, ts.URL+"/faults.json")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestFaultsEndpointWithoutJournal(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	_, body := getBody(t, ts.URL+"/faults.json")

	var fj FaultsJSON
	if err := json.Unmarshal([]byte(body), &fj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if fj.Faults == nil || len(fj.Faults) != 0 {
		t.Errorf("expected empty list, got %v", fj.Faults)
	}
	if !strings.Contains(body, `"faults": []`) {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	resp1, _ := http.Get(ts.URL + "/index.json")
	var sj1 status.StatusJSON
	json.NewDecoder(resp1.Body).Decode(&sj1)
	resp1.Body.Close()
	if sj1.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	st := pausedState()
	st.Dispatcher = safety.StateKilled
	st.KillLatched = true
	tr.Update(st)
	tr.SetLastFault("Cartridge Removed")
	tr.SetMQTTConnected(true)

	resp2, _ := http.Get(ts.URL + "/index.json")
	var sj2 status.StatusJSON
	json.NewDecoder(resp2.Body).Decode(&sj2)
	resp2.Body.Close()

	if !sj2.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if sj2.Status.Dispatcher != "KILLED" || !sj2.Status.KillLatched {
		t.Errorf("dispatcher: got %q kill=%v", sj2.Status.Dispatcher, sj2.Status.KillLatched)
	}
	if sj2.Status.LastFault != "Cartridge Removed" {
		t.Errorf("LastFault: got %q", sj2.Status.LastFault)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
