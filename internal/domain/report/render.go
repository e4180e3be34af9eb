// Package report derives the printable report from an exam record. Render is
// pure; the writers in this package serialise its Document into HTML, plain
// text, XLSX and DICOM.
package report

import (
	"strconv"
	"time"

	"github.com/ecodoppler/tsa/internal/domain/exam"
)

// Style is the emphasis applied to a vessel's stenosis headline.
type Style string

const (
	StylePlain       Style = "plain"
	StyleSignificant Style = "significant"
)

// Fixed report wording.
const (
	Title              = "TSA Color Doppler Ultrasound Report"
	Specialty          = "Vascular Diagnostics Specialist - Color Doppler Ultrasound"
	DoctorPlaceholder  = "Dr. ________________"
	PatientPlaceholder = "_________________________"
	DatePlaceholder    = "___/___/___"
	NoIndication       = "Not specified."
	DefaultEquipment   = "Digital Ultrasound"
	NoStenosis         = "No stenosis present"

	// FallbackConclusions is printed when the conclusions field is empty.
	FallbackConclusions = "Normal exam. No hemodynamically significant (>50%) stenosing plaques " +
		"in the carotid and extracranial vertebral districts bilaterally. IMT within limits for age. " +
		"Vertebral flows regular in morphology and direction (orthograde)."

	DisplayDateLayout = "02/01/2006"
)

// Cell is the derived content of one vessel on one side. Optional values are
// empty strings when absent.
type Cell struct {
	Headline   string `json:"headline"`
	Style      Style  `json:"style"`
	IMT        string `json:"imt,omitempty"`
	PlaqueType string `json:"plaqueType,omitempty"`
	PSV        string `json:"psv,omitempty"`
	EDV        string `json:"edv,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Lines returns the headline followed by each present detail, in print order.
func (c Cell) Lines() []string {
	lines := []string{c.Headline}
	if c.IMT != "" {
		lines = append(lines, "IMT: "+c.IMT+" mm")
	}
	if c.PlaqueType != "" {
		lines = append(lines, c.PlaqueType)
	}
	if c.PSV != "" {
		lines = append(lines, "PSV: "+c.PSV+" cm/s")
	}
	if c.EDV != "" {
		lines = append(lines, "EDV: "+c.EDV+" cm/s")
	}
	if c.Notes != "" {
		lines = append(lines, c.Notes)
	}
	return lines
}

// Row pairs the right and left findings of one segment.
type Row struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Right Cell   `json:"right"`
	Left  Cell   `json:"left"`
}

// Document is the fully derived report. It holds display strings only.
type Document struct {
	Title        string `json:"title"`
	Doctor       string `json:"doctor"`
	Specialty    string `json:"specialty"`
	ReportDate   string `json:"reportDate"`
	Patient      string `json:"patient"`
	BirthDate    string `json:"birthDate"`
	Indication   string `json:"indication"`
	Equipment    string `json:"equipment"`
	Probe        string `json:"probe"`
	Angle        string `json:"angle"`
	Method       string `json:"method"`
	Rows         []Row  `json:"rows"`
	GeneralNotes string `json:"generalNotes,omitempty"`
	Conclusions  string `json:"conclusions"`
	// UsedFallback is true when Conclusions holds FallbackConclusions.
	UsedFallback bool     `json:"usedFallback"`
	Signature    string   `json:"signature"`
	Footer       []string `json:"footer"`
}

// Render derives the report document for rec. It never modifies rec.
func Render(rec *exam.ExamRecord) Document {
	doc := Document{
		Title:        Title,
		Doctor:       orDefault(rec.DoctorName, DoctorPlaceholder),
		Specialty:    Specialty,
		ReportDate:   displayDate(rec.ExamDate),
		Patient:      orDefault(rec.PatientName, PatientPlaceholder),
		BirthDate:    displayDate(rec.BirthDate),
		Indication:   orDefault(rec.Indication, NoIndication),
		Equipment:    orDefault(rec.TechnicalSettings.Equipment, DefaultEquipment),
		Probe:        rec.TechnicalSettings.Probe,
		Angle:        rec.TechnicalSettings.Angle,
		Method:       string(rec.MeasurementMethod),
		GeneralNotes: rec.GeneralNotes,
		Conclusions:  rec.Conclusions,
		Footer:       Footer(rec.MeasurementMethod),
	}
	doc.Signature = doc.Doctor
	if doc.Conclusions == "" {
		doc.Conclusions = FallbackConclusions
		doc.UsedFallback = true
	}
	for _, key := range exam.VesselKeys {
		doc.Rows = append(doc.Rows, Row{
			Code:  key.Code(),
			Label: key.Name(),
			Right: RenderCell(key, rec.Vessel(exam.Right, key)),
			Left:  RenderCell(key, rec.Vessel(exam.Left, key)),
		})
	}
	return doc
}

// RenderCell applies the per-vessel display rules.
func RenderCell(key exam.VesselKey, v exam.VesselData) Cell {
	c := Cell{
		Headline: Headline(v.Stenosis),
		Style:    StyleFor(v.Stenosis),
		IMT:      formatDecimal(v.IMT),
		PSV:      formatDecimal(v.PSV),
		EDV:      formatDecimal(v.EDV),
	}
	if key.Vertebral() {
		if v.Notes != "" && exam.ValidFlowNote(v.Notes) {
			c.Notes = v.Notes
		}
		return c
	}
	c.PlaqueType = v.PlaqueType
	c.Notes = v.Notes
	return c
}

// Headline returns the stenosis text printed for a vessel.
func Headline(l exam.StenosisLevel) string {
	if l == exam.StenosisNone {
		return NoStenosis
	}
	return "Stenosis " + l.Label()
}

// StyleFor returns StyleSignificant for levels above under-50.
func StyleFor(l exam.StenosisLevel) Style {
	if l.Significant() {
		return StyleSignificant
	}
	return StylePlain
}

// Footer returns the closing protocol lines naming the measurement method.
func Footer(m exam.MeasurementMethod) []string {
	return []string{
		"Diagnostic investigation performed according to SIDV/SIUMB protocols.",
		"Stenosis calculated with " + string(m) + " criterion.",
		"Velocity values (PSV/EDV) are expressed in cm/s.",
	}
}

func displayDate(iso string) string {
	if iso == "" {
		return DatePlaceholder
	}
	t, err := time.Parse(exam.DateLayout, iso)
	if err != nil {
		return iso
	}
	return t.Format(DisplayDateLayout)
}

func formatDecimal(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
