// Package narrative drafts the diagnostic conclusions of an exam record by
// asking a remote text-generation endpoint.
package narrative

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/ecodoppler/tsa/internal/domain/exam"
)

// DefaultModel is the model requested when none is configured.
const DefaultModel = "gemini-3-flash-preview"

// MaxWords is the length limit stated in the prompt.
const MaxWords = 100

var promptTmpl = template.Must(template.New("prompt").Parse(`Act as an expert vascular ultrasound physician.
Summarise the following TSA findings into a professional clinical report (Conclusions).
Measurement method: {{.Method}}.

RIGHT:
{{template "side" .Right}}
LEFT:
{{template "side" .Left}}
Focus: symmetry, hemodynamic significance (>50%), plaque morphology and recommended follow-up (SIUMB).
Be direct, concise and professional. Maximum {{.MaxWords}} words. Use appropriate medical terminology.
{{define "side"}}- ACC: Stenosis {{.ACCStenosis}}, IMT: {{.ACCIMT}}mm
- Bulb: Stenosis {{.BulbStenosis}}, Plaque: {{.BulbPlaque}}
- ACI: Stenosis {{.ACIStenosis}}, PSV: {{.ACIPSV}}
- AV: {{.AVFlow}}
{{end}}`))

type promptSide struct {
	ACCStenosis  string
	ACCIMT       string
	BulbStenosis string
	BulbPlaque   string
	ACIStenosis  string
	ACIPSV       string
	AVFlow       string
}

type promptData struct {
	Method      string
	Right, Left promptSide
	MaxWords    int
}

// BuildPrompt renders the generation prompt for rec.
func BuildPrompt(rec *exam.ExamRecord) (string, error) {
	data := promptData{
		Method:   string(rec.MeasurementMethod),
		Right:    sideOf(rec, exam.Right),
		Left:     sideOf(rec, exam.Left),
		MaxWords: MaxWords,
	}
	var b strings.Builder
	if err := promptTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func sideOf(rec *exam.ExamRecord, side exam.Side) promptSide {
	acc := rec.Vessel(side, exam.ACC)
	bulb := rec.Vessel(side, exam.Bulbo)
	aci := rec.Vessel(side, exam.ACI)
	av := rec.Vessel(side, exam.AV)

	flow := av.Notes
	if flow == "" {
		flow = "Normal"
	}
	return promptSide{
		ACCStenosis:  acc.Stenosis.Label(),
		ACCIMT:       decimal(acc.IMT),
		BulbStenosis: bulb.Stenosis.Label(),
		BulbPlaque:   orNone(bulb.PlaqueType),
		ACIStenosis:  aci.Stenosis.Label(),
		ACIPSV:       decimal(aci.PSV),
		AVFlow:       flow,
	}
}

func decimal(f *float64) string {
	if f == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
