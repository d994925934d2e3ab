package report

import (
	"html/template"
	"io"
	"time"

	"github.com/Masterminds/sprig"

	"github.com/pfrederiksen/ace-monitor/internal/event"
)

// Dashboard is the data behind the HTML dashboard
type Dashboard struct {
	Title      string
	LastRunUTC string
	Events     []*event.Event
	Location   *time.Location
}

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(sprig.FuncMap()).Funcs(template.FuncMap{
	"startTime": func(evt *event.Event, loc *time.Location) string {
		return evt.FormatStart(loc, "2006-01-02 15:04 MST")
	},
}).Parse(dashboardHTML))

// WriteDashboard renders the dashboard as HTML
func WriteDashboard(w io.Writer, d Dashboard) error {
	if d.Title == "" {
		d.Title = GeneratorName
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return dashboardTmpl.Execute(w, d)
}

const dashboardHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{ .Title }}</title>
<style>
body { font-family: sans-serif; padding: 16px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 6px; font-size: 12px; }
th { background: #f3f3f3; position: sticky; top: 0; }
tr.live { background: #e9fff1; }
tr.upcoming { background: #fffbe9; }
td.path { word-break: break-all; }
</style></head>
<body>
<h1>{{ .Title }}</h1>
<p>Last run (UTC): {{ .LastRunUTC | default "-" }}</p>
<p><a href="/report.json" target="_blank">report.json</a> · <a href="/epg.xml" target="_blank">epg.xml</a> · <a href="/healthz" target="_blank">health</a></p>
<table>
<thead><tr>
<th>League</th><th>Title</th><th>Status</th><th>Start</th>
<th>Listing</th><th>Event</th><th>Iframe (LIVE)</th>
<th>Scheme</th><th>Authority</th><th>Path</th><th>Origin*</th><th>Referrer*</th>
<th>Iframe HEAD</th>
</tr></thead>
<tbody>
{{- $loc := .Location }}
{{- range .Events }}
<tr class="{{ .Status }}">
<td>{{ .League }}</td>
<td>{{ .Title | trunc 120 }}</td>
<td>{{ .Status | toString | upper }}</td>
<td>{{ startTime . $loc }}</td>
<td><a href="{{ .PageURL }}" target="_blank">listing</a></td>
<td>{{ if .EventURL }}<a href="{{ .EventURL }}" target="_blank">event</a>{{ end }}</td>
<td>{{ if .IframeSrcObservable }}<a href="{{ .IframeSrcObservable }}" target="_blank">iframe</a>{{ end }}</td>
{{- with .RequestObservables }}
<td>{{ .Scheme }}</td>
<td>{{ .Authority }}</td>
<td class="path">{{ .Path }}</td>
<td>{{ .OriginCandidate }}</td>
<td><span title="Embedding page">{{ .ReferrerCandidate }}</span></td>
{{- else }}
<td></td><td></td><td></td><td></td><td></td>
{{- end }}
<td>{{ with .IframeHead }}{{ .Status }}{{ end }}</td>
</tr>
{{- else }}
<tr><td colspan="13">No events yet</td></tr>
{{- end }}
</tbody>
</table>
<p style="margin-top:8px;font-size:12px">* Origin/Referrer are URL-derived candidates (not captured headers).</p>
</body></html>
`
