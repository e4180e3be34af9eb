package report

import (
	"html/template"
	"io"
	"time"
)

// PrintDelay is how long the report page waits before opening the print
// dialog, letting the layout settle.
const PrintDelay = 100 * time.Millisecond

// HTMLOptions controls the page chrome around the printable report.
type HTMLOptions struct {
	// BackURL, when set, adds a "back to data" link hidden from print.
	BackURL string
}

type htmlPage struct {
	Document
	BackURL      string
	PrintDelayMS int64
}

// WriteHTML writes doc as a print-formatted HTML page.
func WriteHTML(w io.Writer, doc Document, opts HTMLOptions) error {
	return reportTmpl.Execute(w, htmlPage{
		Document:     doc,
		BackURL:      opts.BackURL,
		PrintDelayMS: PrintDelay.Milliseconds(),
	})
}

var reportTmpl = template.Must(template.New("report").Parse(reportHTML))

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; max-width: 210mm; margin: 0 auto; color: #000; }
header { display: flex; justify-content: space-between; border-bottom: 2px solid #000; padding-bottom: 1rem; }
h1 { text-align: center; text-transform: uppercase; letter-spacing: .15em; font-size: 1.1rem; border: 2px solid #000; padding: .25rem 2rem; width: fit-content; margin: 2rem auto; }
.patient { display: grid; grid-template-columns: 1fr 1fr; gap: 2rem; border: 1px solid #000; padding: 1rem; }
.patient .name { font-weight: bold; text-transform: uppercase; }
.tech { display: flex; justify-content: space-between; font-size: .75rem; border-top: 1px solid #cbd5e1; border-bottom: 1px solid #cbd5e1; margin: 1.5rem 0; padding: .4rem; }
table { width: 100%; border-collapse: collapse; }
th, td { border: 1px solid #000; padding: .4rem .6rem; text-align: left; vertical-align: top; font-size: .8rem; }
td.label { font-weight: bold; width: 25%; }
.headline { font-weight: bold; display: block; }
.significant { color: #991b1b; text-transform: uppercase; text-decoration: underline; }
.detail { display: block; font-size: .7rem; }
.conclusions { border: 1px solid #000; padding: 1.2rem; min-height: 8rem; white-space: pre-wrap; }
.signature { margin-top: 5rem; margin-left: auto; width: 18rem; text-align: center; }
footer { margin-top: 4rem; font-size: .6rem; text-transform: uppercase; font-style: italic; border-top: 1px solid #e2e8f0; padding-top: 1rem; }
@media print { .no-print { display: none; } }
</style>
</head>
<body>
<nav class="no-print">
{{if .BackURL}}<a href="{{.BackURL}}">Back to data</a>{{end}}
<button type="button" onclick="printReport()">Print report / PDF</button>
</nav>
<header>
<div>
<p class="doctor"><strong>{{.Doctor}}</strong></p>
<p>{{.Specialty}}</p>
</div>
<div>
<p>Report date</p>
<p><strong>{{.ReportDate}}</strong></p>
</div>
</header>
<h1>{{.Title}}</h1>
<section class="patient">
<div>
<p>Patient</p>
<p class="name">{{.Patient}}</p>
<p>Date of birth: <strong>{{.BirthDate}}</strong></p>
</div>
<div>
<p>Clinical indication</p>
<p><em>{{.Indication}}</em></p>
</div>
</section>
<section class="tech">
<span>Equipment: <strong>{{.Equipment}}</strong></span>
<span>Probe: <strong>{{.Probe}}</strong></span>
<span>&theta;: <strong>{{.Angle}}</strong></span>
<span><strong>Stenosis analysis: {{.Method}}</strong></span>
</section>
<section>
<h2>Segmental analysis</h2>
<table>
<thead><tr><th>Segment</th><th>Right</th><th>Left</th></tr></thead>
<tbody>
{{range .Rows}}<tr data-vessel="{{.Code}}">
<td class="label">{{.Label}}</td>
<td>{{template "cell" .Right}}</td>
<td>{{template "cell" .Left}}</td>
</tr>
{{end}}</tbody>
</table>
</section>
{{if .GeneralNotes}}<section>
<h2>General notes</h2>
<p class="notes">{{.GeneralNotes}}</p>
</section>
{{end}}<section>
<h2>Diagnostic conclusions</h2>
<div class="conclusions">{{.Conclusions}}</div>
</section>
<div class="signature">
<p>Signature of the examining physician</p>
<hr>
<p><em>{{.Signature}}</em></p>
</div>
<footer>
{{range .Footer}}<p>{{.}}</p>
{{end}}</footer>
<script>
function printReport() {
  setTimeout(function () { window.print(); }, {{.PrintDelayMS}});
}
</script>
</body>
</html>
{{define "cell"}}<span class="headline {{.Style}}">{{.Headline}}</span>
{{if .IMT}}<span class="detail">IMT: <strong>{{.IMT}} mm</strong></span>{{end}}
{{if .PlaqueType}}<span class="detail"><em>{{.PlaqueType}}</em></span>{{end}}
{{if .PSV}}<span class="detail">PSV: {{.PSV}} cm/s</span>{{end}}
{{if .EDV}}<span class="detail">EDV: {{.EDV}} cm/s</span>{{end}}
{{if .Notes}}<span class="detail">{{.Notes}}</span>{{end}}
{{end}}`
