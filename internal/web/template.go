package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/keypad/internal/logic"
	"github.com/sweeney/keypad/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"keyState": func(s logic.State) string {
		return status.StateOrUnknown(string(s))
	},
	"keyClass": func(s logic.State) string {
		switch s {
		case logic.StateDown:
			return "down"
		case logic.StateUp:
			return "up"
		}
		return "unknown"
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
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
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Keypad {{.Config.Name}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
table.keys td { text-align: center; width: auto; border: 1px solid #ddd; }
.down { color: green; font-weight: bold; }
.up { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Keypad {{.Config.Name}}</h1>

<h2>Keys</h2>
{{if .Baselined}}<table class="keys" id="keys">
{{range $r, $row := .Keys}}<tr>{{range $c, $k := $row}}<td class="{{keyClass $k}}" title="r{{$r}}c{{$c}}">{{keyState $k}}</td>{{end}}</tr>
{{end}}</table>
<p>Held: {{range .HeldKeys}}{{.}} {{else}}none{{end}}</p>
{{else}}<p class="unknown">waiting for baseline ({{.Config.Rows}}x{{.Config.Cols}})</p>{{end}}

<h2>Scanning</h2>
<table>
<tr><th>Driver</th><td>{{.Config.Driver}}</td></tr>
<tr><th>Scans</th><td>{{.Scan.Scans}}</td></tr>
<tr><th>Failures</th><td>{{.Scan.Failures}}</td></tr>
<tr><th>Rejected</th><td>{{.Scan.Rejected}}</td></tr>
<tr><th>Settle</th><td>{{.Config.SettleUs}}us</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>KEY_DOWN</th><td>{{.Counts.Down}}</td></tr>
<tr><th>KEY_UP</th><td>{{.Counts.Up}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// The template needs Uptime and the held keys as fields.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		HeldKeys []string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	for _, k := range snap.Held() {
		data.HeldKeys = append(data.HeldKeys, k.String())
	}
	return indexTmpl.Execute(w, data)
}
