package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/lora-logger/internal/logic"
	"github.com/sweeney/lora-logger/internal/status"
)

var statusTmpl = template.Must(template.New("status").Funcs(template.FuncMap{
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
	"clock": func(t time.Time) string {
		return t.UTC().Format(logic.TimestampLayout)
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(statusHTML))

const statusHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>LoRa Logger</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; }
.fail { color: red; }
#live { font-size: 0.85em; white-space: pre; overflow-x: auto; background: #f6f6f6; padding: 0.5em; }
</style>
</head>
<body>
<h1>LoRa Logger</h1>

<h2>Storage</h2>
<table>
<tr><th>Log file</th><td>{{if .StoreEngaged}}<a href="{{.LogPath}}">{{.LogPath}}</a>{{else}}<span class="fail">not logging</span>{{end}}</td></tr>
<tr><th>Packets</th><td id="packets">{{.Counts.Packets}}</td></tr>
<tr><th>Keepalives</th><td>{{.Counts.Keepalives}}</td></tr>
<tr><th>Failed writes</th><td>{{.Counts.Failed}}</td></tr>
</table>

<h2>Inputs</h2>
<table>
<tr><th>Radio</th><td class="{{if .RadioReady}}ok{{else}}fail{{end}}">{{yesno .RadioReady}}</td></tr>
<tr><th>GPS</th><td class="{{if .GPSReady}}ok{{else}}fail{{end}}">{{yesno .GPSReady}}</td></tr>
<tr><th>Clock</th><td>{{if .ClockSet}}{{clock .Clock}} (GPS){{else}}not set{{end}}</td></tr>
<tr><th>Position</th><td>{{if .Fix.LocationValid}}{{printf "%f, %f" .Fix.Lat .Fix.Lon}}{{else}}no fix{{end}}</td></tr>
<tr><th>Satellites</th><td>{{.Fix.Satellites}}</td></tr>
</table>
{{with .LastRecord}}
<h2>Last Record</h2>
<table>
<tr><th>Time</th><td>{{.Timestamp}}</td></tr>
<tr><th>Count</th><td>{{if .IsKeepalive}}keepalive{{else}}#{{.Seq}}{{end}}</td></tr>
<tr><th>RSSI / SNR</th><td>{{.RSSI}} dBm / {{printf "%.2f" .SNR}} dB</td></tr>
<tr><th>Message</th><td>{{.Payload}}</td></tr>
</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Keepalive</th><td>{{if eq .Config.KeepaliveMs 0}}disabled{{else}}{{.Config.KeepaliveMs}}ms{{end}}</td></tr>
<tr><th>Frequency</th><td>{{.Config.Frequency}} Hz, SF{{.Config.SpreadingFactor}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}fail{{end}}">{{if .Config.Broker}}{{if .MQTTConnected}}connected{{else}}disconnected{{end}}{{else}}disabled{{end}}</td></tr>
{{if .Config.StaSSID}}<tr><th>Wi-Fi</th><td>{{.Config.StaSSID}}</td></tr>{{end}}
{{if .Config.APSSID}}<tr><th>Access point</th><td>{{.Config.APSSID}}</td></tr>{{end}}
</table>

<p><a href="/">Current log</a> | <a href="/status.json">JSON</a></p>

<h2>Live</h2>
<div id="live"></div>
<script>
(function() {
  var el = document.getElementById("live");
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/live");
  ws.onmessage = function(ev) {
    el.textContent += ev.data + "\n";
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	statusTmpl.Execute(w, data)
}
