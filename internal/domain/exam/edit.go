package exam

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordField names a top-level field of ExamRecord.
type RecordField string

const (
	FieldPatientName       RecordField = "patientName"
	FieldDoctorName        RecordField = "doctorName"
	FieldBirthDate         RecordField = "birthDate"
	FieldExamDate          RecordField = "examDate"
	FieldIndication        RecordField = "indication"
	FieldMeasurementMethod RecordField = "measurementMethod"
	FieldTechnicalSettings RecordField = "technicalSettings"
	FieldGeneralNotes      RecordField = "generalNotes"
	FieldConclusions       RecordField = "conclusions"
)

// RecordEdit replaces exactly one top-level field. It is applied to a shallow
// copy of the current record, never to the record itself.
type RecordEdit struct {
	Field RecordField
	apply func(*ExamRecord)
}

func textEdit(field RecordField, set func(*ExamRecord, string), v string) RecordEdit {
	return RecordEdit{Field: field, apply: func(r *ExamRecord) { set(r, v) }}
}

func SetPatientName(v string) RecordEdit {
	return textEdit(FieldPatientName, func(r *ExamRecord, s string) { r.PatientName = s }, v)
}

func SetDoctorName(v string) RecordEdit {
	return textEdit(FieldDoctorName, func(r *ExamRecord, s string) { r.DoctorName = s }, v)
}

func SetBirthDate(v string) RecordEdit {
	return textEdit(FieldBirthDate, func(r *ExamRecord, s string) { r.BirthDate = s }, v)
}

func SetExamDate(v string) RecordEdit {
	return textEdit(FieldExamDate, func(r *ExamRecord, s string) { r.ExamDate = s }, v)
}

func SetIndication(v string) RecordEdit {
	return textEdit(FieldIndication, func(r *ExamRecord, s string) { r.Indication = s }, v)
}

func SetGeneralNotes(v string) RecordEdit {
	return textEdit(FieldGeneralNotes, func(r *ExamRecord, s string) { r.GeneralNotes = s }, v)
}

func SetConclusions(v string) RecordEdit {
	return textEdit(FieldConclusions, func(r *ExamRecord, s string) { r.Conclusions = s }, v)
}

func SetMeasurementMethod(m MeasurementMethod) RecordEdit {
	return RecordEdit{Field: FieldMeasurementMethod, apply: func(r *ExamRecord) { r.MeasurementMethod = m }}
}

// TechnicalSetting names a sub-field of TechnicalSettings.
type TechnicalSetting string

const (
	SettingEquipment TechnicalSetting = "equipment"
	SettingProbe     TechnicalSetting = "probe"
	SettingAngle     TechnicalSetting = "angle"
	SettingOther     TechnicalSetting = "other"
)

// SetTechnicalSetting replaces one technical settings sub-field. The other
// sub-fields come from the record the edit is applied to.
func SetTechnicalSetting(name TechnicalSetting, v string) (RecordEdit, error) {
	var set func(*TechnicalSettings)
	switch name {
	case SettingEquipment:
		set = func(ts *TechnicalSettings) { ts.Equipment = v }
	case SettingProbe:
		set = func(ts *TechnicalSettings) { ts.Probe = v }
	case SettingAngle:
		set = func(ts *TechnicalSettings) { ts.Angle = v }
	case SettingOther:
		set = func(ts *TechnicalSettings) { ts.Other = v }
	default:
		return RecordEdit{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, FieldTechnicalSettings, name)
	}
	return RecordEdit{Field: FieldTechnicalSettings, apply: func(r *ExamRecord) { set(&r.TechnicalSettings) }}, nil
}

// ParseRecordEdit turns an editor input into a RecordEdit. Technical settings
// sub-fields are addressed as "technicalSettings.<name>".
func ParseRecordEdit(field, value string) (RecordEdit, error) {
	if sub, ok := strings.CutPrefix(field, string(FieldTechnicalSettings)+"."); ok {
		return SetTechnicalSetting(TechnicalSetting(sub), value)
	}

	switch RecordField(field) {
	case FieldPatientName:
		return SetPatientName(value), nil
	case FieldDoctorName:
		return SetDoctorName(value), nil
	case FieldBirthDate:
		return SetBirthDate(value), nil
	case FieldExamDate:
		return SetExamDate(value), nil
	case FieldIndication:
		return SetIndication(value), nil
	case FieldGeneralNotes:
		return SetGeneralNotes(value), nil
	case FieldConclusions:
		return SetConclusions(value), nil
	case FieldMeasurementMethod:
		m, err := ParseMeasurementMethod(value)
		if err != nil {
			return RecordEdit{}, err
		}
		return SetMeasurementMethod(m), nil
	}
	return RecordEdit{}, fmt.Errorf("%w: %s", ErrUnknownField, field)
}

// VesselField names a field of VesselData.
type VesselField string

const (
	VesselStenosis   VesselField = "stenosis"
	VesselIMT        VesselField = "imt"
	VesselPlaqueType VesselField = "plaqueType"
	VesselPSV        VesselField = "psv"
	VesselEDV        VesselField = "edv"
	VesselNotes      VesselField = "notes"
)

// VesselEdit replaces exactly one field of a VesselData value.
type VesselEdit struct {
	Field    VesselField
	stenosis StenosisLevel
	number   *float64
	text     string
}

func EditStenosis(l StenosisLevel) VesselEdit {
	return VesselEdit{Field: VesselStenosis, stenosis: l}
}

func EditIMT(v *float64) VesselEdit { return VesselEdit{Field: VesselIMT, number: v} }
func EditPSV(v *float64) VesselEdit { return VesselEdit{Field: VesselPSV, number: v} }
func EditEDV(v *float64) VesselEdit { return VesselEdit{Field: VesselEDV, number: v} }
func EditPlaqueType(s string) VesselEdit { return VesselEdit{Field: VesselPlaqueType, text: s} }
func EditNotes(s string) VesselEdit { return VesselEdit{Field: VesselNotes, text: s} }

// Apply returns v with the edited field replaced.
func (e VesselEdit) Apply(v VesselData) VesselData {
	switch e.Field {
	case VesselStenosis:
		v.Stenosis = e.stenosis
	case VesselIMT:
		v.IMT = e.number
	case VesselPSV:
		v.PSV = e.number
	case VesselEDV:
		v.EDV = e.number
	case VesselPlaqueType:
		v.PlaqueType = e.text
	case VesselNotes:
		v.Notes = e.text
	default:
		panic(fmt.Sprintf("exam: invalid vessel field %q", e.Field))
	}
	return v
}

// ParseVesselEdit validates one editor input for a vessel field. Numeric
// inputs that do not parse become "no value" rather than an error; closed-set
// fields reject anything outside their set.
func ParseVesselEdit(key VesselKey, field, value string) (VesselEdit, error) {
	switch VesselField(field) {
	case VesselStenosis:
		l, err := ParseStenosisLevel(value)
		if err != nil {
			return VesselEdit{}, err
		}
		return EditStenosis(l), nil
	case VesselIMT:
		return EditIMT(ParseDecimal(value)), nil
	case VesselPSV:
		return EditPSV(ParseDecimal(value)), nil
	case VesselEDV:
		return EditEDV(ParseDecimal(value)), nil
	case VesselPlaqueType:
		if key.Vertebral() {
			return VesselEdit{}, fmt.Errorf("%w: plaque type is not recorded on the vertebral segment", ErrInvalidValue)
		}
		return EditPlaqueType(value), nil
	case VesselNotes:
		if key.Vertebral() && !ValidFlowNote(value) {
			return VesselEdit{}, fmt.Errorf("%w: vertebral flow %q", ErrInvalidValue, value)
		}
		return EditNotes(value), nil
	}
	return VesselEdit{}, fmt.Errorf("%w: %s", ErrUnknownField, field)
}

// ParseDecimal parses a measurement entry, accepting a comma as decimal
// separator. Blank, malformed, hexadecimal, negative, NaN and out-of-range
// inputs yield nil.
func ParseDecimal(s string) *float64 {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" || strings.ContainsAny(s, "xX") {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != f || f < 0 || f > maxDecimal {
		return nil
	}
	if f == 0 {
		f = 0 // drop the sign of "-0"
	}
	return &f
}

const maxDecimal = 1e9
