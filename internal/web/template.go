package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/voxel8/interlockd/internal/journal"
	"github.com/voxel8/interlockd/internal/status"
	"github.com/voxel8/interlockd/internal/supervisor"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"slotState": func(s supervisor.SlotState) string {
		switch {
		case s.Present && s.Removed:
			return "SETTLING"
		case s.Present:
			return "PRESENT"
		case s.Removed:
			return "REMOVED"
		}
		return "ABSENT"
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Interlocks</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.PRESENT, .NORMAL, .connected { color: green; font-weight: bold; }
.ABSENT, .UNKNOWN, .SETTLING, .PAUSED { color: orange; }
.REMOVED, .KILLED, .disconnected { color: red; font-weight: bold; }
.bypassed { color: #888; font-style: italic; }
</style>
</head>
<body>
<h1>Interlocks</h1>

<h2>Safety</h2>
<table>
{{$d := stateOrUnknown (printf "%s" .Interlock.Dispatcher)}}<tr><th>Dispatcher</th><td id="dispatcher" class="{{$d}}">{{$d}}</td></tr>
<tr><th>Running</th><td>{{if .Interlock.Running}}yes{{else}}no{{end}}</td></tr>
<tr><th>Critical section</th><td>{{if .Interlock.SafetyCritical}}yes{{else}}no{{end}}</td></tr>
{{if .LastFault}}<tr><th>Last fault</th><td>{{.LastFault}}</td></tr>{{end}}
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Cartridges{{if not .Interlock.CartridgeCheck}} <span class="bypassed">(check bypassed)</span>{{end}}</h2>
<table>
{{range .Interlock.Slots}}{{$s := slotState .}}<tr><th>{{.Label}}</th><td id="slot-{{.Slot}}" class="{{$s}}">{{$s}}</td></tr>
{{end}}</table>

{{if .Interlock.Bed.Fitted}}<h2>Heated Bed{{if not .Interlock.Bed.Enabled}} <span class="bypassed">(check bypassed)</span>{{end}}</h2>
<table>
{{$b := "ABSENT"}}{{if .Interlock.Bed.Present}}{{$b = "PRESENT"}}{{end}}<tr><th>Bed</th><td id="bed" class="{{$b}}">{{$b}}</td></tr>
<tr><th>Mode</th><td>{{.Interlock.Bed.Mode}}</td></tr>
</table>{{end}}

{{if .Interlock.Regulator.Fitted}}<h2>Pressure Regulator{{if not .Interlock.Regulator.Protections}} <span class="bypassed">(protection bypassed)</span>{{end}}</h2>
<table>
<tr><th>Target</th><td>{{printf "%.2f" .Interlock.Regulator.TargetPSI}} psi</td></tr>
<tr><th>Measured</th><td>{{printf "%.2f" .Interlock.Regulator.MeasuredPSI}} psi</td></tr>
<tr><th>Supply</th><td>{{printf "%.2f" .Interlock.Regulator.SupplyPSI}} psi</td></tr>
<tr><th>DAC code</th><td>{{.Interlock.Regulator.DACCode}}</td></tr>
<tr><th>Protection armed</th><td>{{if .Interlock.Regulator.Active}}yes{{else}}no{{end}}</td></tr>
</table>{{end}}

<h2>Recent Faults</h2>
<table>
{{range .Faults}}<tr><th>{{.Time.UTC.Format "2006-01-02T15:04:05Z"}}</th><td class="{{.Action}}">{{.Message}} ({{.Action}})</td></tr>
{{else}}<tr><td>none</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Cycles</th><td>{{.Interlock.Cycles}}</td></tr>
<tr><th>Faults / suppressed</th><td>{{.Interlock.Faults}} / {{.Interlock.Suppressed}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Hysteresis</th><td>{{.Config.HysteresisCount}} cycles</td></tr>
<tr><th>Error interval</th><td>{{.Config.ErrorIntervalMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/faults.json">Faults</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, faults []journal.Entry) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Faults []journal.Entry
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Faults:   faults,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
