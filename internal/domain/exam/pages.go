package exam

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type option struct {
	Value    string
	Label    string
	Selected bool
}

type vesselForm struct {
	Code       string
	Label      string
	ShowIMT    bool
	Vertebral  bool
	Stenosis   []option
	Flow       []option
	IMT        string
	PSV        string
	EDV        string
	PlaqueType string
	Notes      string
}

type sideForm struct {
	Side    Side
	Title   string
	Vessels []vesselForm
}

type editorPage struct {
	ID         string
	Version    uint64
	Record     *ExamRecord
	Methods    []option
	Sides      []sideForm
	Generation GenerationStatus
}

func newEditorPage(sess *Session) editorPage {
	rec := sess.Store.Current()
	page := editorPage{
		ID:         sess.ID,
		Version:    sess.Store.Version(),
		Record:     rec,
		Generation: sess.Generation(),
	}
	for _, m := range MeasurementMethods {
		page.Methods = append(page.Methods, option{Value: string(m), Label: string(m), Selected: m == rec.MeasurementMethod})
	}
	for _, side := range Sides {
		sf := sideForm{Side: side, Title: "Right side"}
		if side == Left {
			sf.Title = "Left side"
		}
		for _, key := range VesselKeys {
			sf.Vessels = append(sf.Vessels, newVesselForm(key, rec.Vessel(side, key)))
		}
		page.Sides = append(page.Sides, sf)
	}
	return page
}

func newVesselForm(key VesselKey, v VesselData) vesselForm {
	f := vesselForm{
		Code:       key.Code(),
		Label:      key.ShortName(),
		ShowIMT:    key.HasIMT(),
		Vertebral:  key.Vertebral(),
		IMT:        formatDecimal(v.IMT),
		PSV:        formatDecimal(v.PSV),
		EDV:        formatDecimal(v.EDV),
		PlaqueType: v.PlaqueType,
		Notes:      v.Notes,
	}
	for _, l := range StenosisLevels {
		label := l.Label()
		if l == StenosisNone {
			label = "No stenosis"
		}
		f.Stenosis = append(f.Stenosis, option{Value: string(l), Label: label, Selected: l == v.Stenosis})
	}
	if f.Vertebral {
		f.Flow = append(f.Flow, option{Value: "", Label: "Flow...", Selected: v.Notes == ""})
		for _, d := range FlowDirections {
			f.Flow = append(f.Flow, option{Value: string(d), Label: string(d), Selected: string(d) == v.Notes})
		}
	}
	return f
}

func formatDecimal(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func renderPage(c echo.Context, t *template.Template, data any) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

var editorTmpl = template.Must(template.New("editor").Parse(editorHTML))

var confirmResetTmpl = template.Must(template.New("confirm").Parse(confirmResetHTML))

const editorHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>TSA Ultrasound Report</title>
<style>
body { font-family: sans-serif; max-width: 72rem; margin: 1.5rem auto; color: #0f172a; }
fieldset { border: 1px solid #cbd5e1; margin-bottom: 1rem; }
.sides { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; }
.vessel { border: 1px solid #e2e8f0; padding: .5rem; margin-bottom: .5rem; }
.error { color: #991b1b; }
label { display: block; font-size: .8rem; }
</style>
</head>
<body data-session="{{.ID}}">
<h1>TSA Ultrasound Report</h1>
<fieldset>
<legend>Patient</legend>
<label>Patient name <input data-field="patientName" value="{{.Record.PatientName}}"></label>
<label>Doctor <input data-field="doctorName" value="{{.Record.DoctorName}}"></label>
<label>Birth date <input type="date" data-field="birthDate" value="{{.Record.BirthDate}}"></label>
<label>Exam date <input type="date" data-field="examDate" value="{{.Record.ExamDate}}"></label>
<label>Indication <input data-field="indication" value="{{.Record.Indication}}"></label>
</fieldset>
<fieldset>
<legend>Technical settings</legend>
<label>Stenosis method
<select data-field="measurementMethod">{{range .Methods}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select></label>
<label>Equipment <input data-field="technicalSettings.equipment" value="{{.Record.TechnicalSettings.Equipment}}" placeholder="Scanner make/model"></label>
<label>Probe <input data-field="technicalSettings.probe" value="{{.Record.TechnicalSettings.Probe}}"></label>
<label>Angle <input data-field="technicalSettings.angle" value="{{.Record.TechnicalSettings.Angle}}"></label>
<label>Other <input data-field="technicalSettings.other" value="{{.Record.TechnicalSettings.Other}}"></label>
</fieldset>
<div class="sides">
{{range $side := .Sides}}<section>
<h2>{{$side.Title}}</h2>
{{range $side.Vessels}}<div class="vessel">
<h3>{{.Label}}</h3>
{{if .ShowIMT}}<label>IMT (mm) <input inputmode="decimal" data-vessel="{{$side.Side}}/{{.Code}}" data-vessel-field="imt" value="{{.IMT}}"></label>{{end}}
<label>Stenosis <select data-vessel="{{$side.Side}}/{{.Code}}" data-vessel-field="stenosis">{{range .Stenosis}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select></label>
{{if .Vertebral}}<label>Flow <select data-vessel="{{$side.Side}}/{{.Code}}" data-vessel-field="notes">{{range .Flow}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select></label>
{{else}}<label>Plaque <input data-vessel="{{$side.Side}}/{{.Code}}" data-vessel-field="plaqueType" value="{{.PlaqueType}}" placeholder="e.g. fibro-calcific"></label>{{end}}
<label>PSV <input inputmode="decimal" data-vessel="{{$side.Side}}/{{.Code}}" data-vessel-field="psv" value="{{.PSV}}"></label>
<label>EDV <input inputmode="decimal" data-vessel="{{$side.Side}}/{{.Code}}" data-vessel-field="edv" value="{{.EDV}}"></label>
{{if not .Vertebral}}<label>Notes <input data-vessel="{{$side.Side}}/{{.Code}}" data-vessel-field="notes" value="{{.Notes}}"></label>{{end}}
</div>
{{end}}</section>
{{end}}</div>
<fieldset>
<legend>General notes</legend>
<textarea data-field="generalNotes" rows="3" cols="100">{{.Record.GeneralNotes}}</textarea>
</fieldset>
<fieldset>
<legend>Conclusions</legend>
<button id="generate"{{if .Generation.InProgress}} disabled{{end}}>Draft with AI</button>
{{if .Generation.LastError}}<p class="error">Conclusions could not be generated. Please try again.</p>{{end}}
<textarea data-field="conclusions" rows="6" cols="100" placeholder="Enter the clinical conclusions here...">{{.Record.Conclusions}}</textarea>
</fieldset>
<p>
<a href="/sessions/{{.ID}}/reset">Clear all</a>
<a href="/sessions/{{.ID}}/report">Build report</a>
</p>
<script>
(function () {
  var id = document.body.dataset.session;
  var api = "/api/v1/sessions/" + id;
  function patch(url, field, value) {
    return fetch(url, {
      method: "PATCH",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify({field: field, value: value})
    }).then(function (r) { if (!r.ok) { r.json().then(function (e) { alert(e.message); }); } });
  }
  document.querySelectorAll("[data-field]").forEach(function (el) {
    el.addEventListener("change", function () { patch(api + "/fields", el.dataset.field, el.value); });
  });
  document.querySelectorAll("[data-vessel]").forEach(function (el) {
    el.addEventListener("change", function () {
      patch(api + "/vessels/" + el.dataset.vessel, el.dataset.vesselField, el.value);
    });
  });
  var btn = document.getElementById("generate");
  btn.addEventListener("click", function () {
    btn.disabled = true;
    fetch(api + "/conclusions/generate", {method: "POST"}).then(function (r) {
      if (r.status !== 202) { btn.disabled = false; }
    });
  });
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onopen = function () { ws.send(JSON.stringify({action: "subscribe", topics: ["session/" + id]})); };
  ws.onmessage = function (m) {
    var ev = JSON.parse(m.data);
    if (ev.type === "generation.completed" || ev.type === "generation.failed" || ev.type === "record.reset") {
      location.reload();
    }
  };
})();
</script>
</body>
</html>
`

const confirmResetHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Clear exam data</title></head>
<body>
<h1>Delete the current data?</h1>
<p>All fields of this exam will be reset. This cannot be undone.</p>
<form method="post" action="/sessions/{{.ID}}/reset">
<button type="submit" name="confirm" value="yes">Delete</button>
<a href="/sessions/{{.ID}}">Cancel</a>
</form>
</body>
</html>
`
