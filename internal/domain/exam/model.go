package exam

import (
	"encoding/json"
	"fmt"
	"time"
)

// StenosisLevel is a pre-classified stenosis band. The declaration order is the
// order of clinical severity.
type StenosisLevel string

const (
	StenosisNone      StenosisLevel = "none"
	StenosisUnder50   StenosisLevel = "under-50"
	Stenosis50To69    StenosisLevel = "50-to-69"
	Stenosis70To99    StenosisLevel = "70-to-99"
	StenosisOcclusion StenosisLevel = "occlusion"
)

// StenosisLevels lists every level from least to most severe.
var StenosisLevels = []StenosisLevel{
	StenosisNone, StenosisUnder50, Stenosis50To69, Stenosis70To99, StenosisOcclusion,
}

var stenosisLabels = map[StenosisLevel]string{
	StenosisNone:      "absent",
	StenosisUnder50:   "<50%",
	Stenosis50To69:    "50-69%",
	Stenosis70To99:    "70-99%",
	StenosisOcclusion: "occlusion",
}

// Valid reports whether l is one of the five enumerated levels.
func (l StenosisLevel) Valid() bool {
	_, ok := stenosisLabels[l]
	return ok
}

// Label returns the display label used in reports and prompts.
func (l StenosisLevel) Label() string {
	return stenosisLabels[l]
}

// Severity returns the position of l in the severity order, or -1 when l is
// not a known level.
func (l StenosisLevel) Severity() int {
	for i, s := range StenosisLevels {
		if s == l {
			return i
		}
	}
	return -1
}

// Significant reports whether the level is hemodynamically significant, i.e.
// strictly more severe than under-50.
func (l StenosisLevel) Significant() bool {
	return l.Severity() > StenosisUnder50.Severity()
}

// ParseStenosisLevel converts a wire value into a StenosisLevel.
func ParseStenosisLevel(s string) (StenosisLevel, error) {
	l := StenosisLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: stenosis %q", ErrInvalidValue, s)
	}
	return l, nil
}

// MeasurementMethod is the convention used to grade stenosis percentages. It
// only affects report labeling.
type MeasurementMethod string

const (
	MethodNASCET MeasurementMethod = "NASCET"
	MethodECST   MeasurementMethod = "ECST"
)

// MeasurementMethods lists the supported methods in display order.
var MeasurementMethods = []MeasurementMethod{MethodNASCET, MethodECST}

func (m MeasurementMethod) Valid() bool {
	return m == MethodNASCET || m == MethodECST
}

// ParseMeasurementMethod converts a wire value into a MeasurementMethod.
func ParseMeasurementMethod(s string) (MeasurementMethod, error) {
	m := MeasurementMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: measurement method %q", ErrInvalidValue, s)
	}
	return m, nil
}

// FlowDirection is the closed set of values a vertebral segment's notes may hold.
type FlowDirection string

const (
	FlowOrthograde FlowDirection = "Orthograde"
	FlowRetrograde FlowDirection = "Retrograde"
	FlowToAndFro   FlowDirection = "To-and-fro"
)

// FlowDirections lists the accepted vertebral flow directions.
var FlowDirections = []FlowDirection{FlowOrthograde, FlowRetrograde, FlowToAndFro}

// ValidFlowNote reports whether s is an acceptable vertebral notes value. The
// empty string means "not assessed".
func ValidFlowNote(s string) bool {
	if s == "" {
		return true
	}
	for _, d := range FlowDirections {
		if string(d) == s {
			return true
		}
	}
	return false
}

// Side identifies the anatomical side of a vessel.
type Side string

const (
	Right Side = "right"
	Left  Side = "left"
)

// Sides lists both sides in report order.
var Sides = []Side{Right, Left}

func (s Side) Valid() bool {
	return s == Right || s == Left
}

// ParseSide converts a path or form value into a Side.
func ParseSide(s string) (Side, error) {
	side := Side(s)
	if !side.Valid() {
		return "", fmt.Errorf("%w: side %q", ErrInvalidValue, s)
	}
	return side, nil
}

// VesselKey identifies one of the six fixed vessel segments tracked per side.
type VesselKey int

const (
	ACC   VesselKey = iota // common carotid
	Bulbo                  // carotid bulb
	ACI                    // internal carotid
	ACE                    // external carotid
	AV                     // vertebral
	SCL                    // subclavian

	VesselCount = 6
)

// VesselKeys lists the six segments in report order.
var VesselKeys = []VesselKey{ACC, Bulbo, ACI, ACE, AV, SCL}

var vesselCodes = [VesselCount]string{"acc", "bulbo", "aci", "ace", "av", "scl"}

var vesselNames = [VesselCount]string{
	"Common Carotid Artery",
	"Carotid Bulb",
	"Internal Carotid Artery",
	"External Carotid Artery",
	"Vertebral Artery",
	"Subclavian Artery",
}

var vesselShortNames = [VesselCount]string{"ACC", "Bulb", "ACI", "ACE", "Vertebral", "Subclavian"}

func (k VesselKey) Valid() bool {
	return k >= 0 && k < VesselCount
}

// Code returns the wire key ("acc", "bulbo", ...).
func (k VesselKey) Code() string {
	if !k.Valid() {
		return fmt.Sprintf("vessel(%d)", int(k))
	}
	return vesselCodes[k]
}

func (k VesselKey) String() string { return k.Code() }

// Name returns the segment name used as the report row label.
func (k VesselKey) Name() string { return vesselNames[k] }

// ShortName returns the compact label used on the editor form.
func (k VesselKey) ShortName() string { return vesselShortNames[k] }

// Vertebral reports whether the segment uses the flow-direction notes set and
// carries no plaque type.
func (k VesselKey) Vertebral() bool { return k == AV }

// HasIMT reports whether intima-media thickness is meaningful for the segment.
func (k VesselKey) HasIMT() bool { return k == ACC }

// ParseVesselKey converts a wire key into a VesselKey.
func ParseVesselKey(s string) (VesselKey, error) {
	for i, code := range vesselCodes {
		if code == s {
			return VesselKey(i), nil
		}
	}
	return 0, fmt.Errorf("%w: vessel %q", ErrInvalidValue, s)
}

// VesselData holds one segment's findings. Values reachable from a record
// handed out by a Store must be treated as read-only.
type VesselData struct {
	Stenosis   StenosisLevel `json:"stenosis"`
	IMT        *float64      `json:"imt,omitempty"`
	PlaqueType string        `json:"plaqueType,omitempty"`
	PSV        *float64      `json:"psv,omitempty"`
	EDV        *float64      `json:"edv,omitempty"`
	Notes      string        `json:"notes,omitempty"`
}

// DefaultVessel returns the initial findings for any segment.
func DefaultVessel() VesselData {
	return VesselData{Stenosis: StenosisNone}
}

// SideFindings maps the six fixed vessel keys of one side to their findings.
// Entries are shared between record versions and never mutated in place.
type SideFindings struct {
	vessels [VesselCount]*VesselData
}

func newSideFindings() *SideFindings {
	sf := &SideFindings{}
	for i := range sf.vessels {
		v := DefaultVessel()
		sf.vessels[i] = &v
	}
	return sf
}

// Vessel returns a copy of the findings for key. An invalid key panics.
func (sf *SideFindings) Vessel(key VesselKey) VesselData {
	mustVessel(key)
	return *sf.vessels[key]
}

func (sf *SideFindings) ref(key VesselKey) *VesselData {
	return sf.vessels[key]
}

// with returns a new SideFindings sharing every entry except key.
func (sf *SideFindings) with(key VesselKey, v VesselData) *SideFindings {
	next := *sf
	next.vessels[key] = &v
	return &next
}

func (sf *SideFindings) MarshalJSON() ([]byte, error) {
	m := make(map[string]*VesselData, VesselCount)
	for i, v := range sf.vessels {
		m[vesselCodes[i]] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts an object keyed by vessel code. Missing keys keep
// their default findings; unknown keys and invalid stenosis values are rejected.
func (sf *SideFindings) UnmarshalJSON(data []byte) error {
	var m map[string]VesselData
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	fresh := newSideFindings()
	for code, v := range m {
		key, err := ParseVesselKey(code)
		if err != nil {
			return err
		}
		if v.Stenosis == "" {
			v.Stenosis = StenosisNone
		}
		if !v.Stenosis.Valid() {
			return fmt.Errorf("%w: stenosis %q on %s", ErrInvalidValue, v.Stenosis, code)
		}
		if key.Vertebral() {
			if v.PlaqueType != "" {
				return fmt.Errorf("%w: plaque type on vertebral segment", ErrInvalidValue)
			}
			if !ValidFlowNote(v.Notes) {
				return fmt.Errorf("%w: vertebral flow %q", ErrInvalidValue, v.Notes)
			}
		}
		v := v
		fresh.vessels[key] = &v
	}
	*sf = *fresh
	return nil
}

// TechnicalSettings describes the equipment and protocol used for the exam.
type TechnicalSettings struct {
	Equipment string `json:"equipment"`
	Probe     string `json:"probe"`
	Angle     string `json:"angle"`
	Other     string `json:"other"`
}

const (
	DefaultProbe = "Linear 7.5-12 MHz"
	DefaultAngle = "60°"
)

// ExamRecord is the full aggregate edited during one session. Records returned
// by a Store are immutable snapshots: every change produces a new record.
type ExamRecord struct {
	PatientName       string            `json:"patientName"`
	DoctorName        string            `json:"doctorName"`
	BirthDate         string            `json:"birthDate"`
	ExamDate          string            `json:"examDate"`
	Indication        string            `json:"indication"`
	MeasurementMethod MeasurementMethod `json:"measurementMethod"`
	TechnicalSettings TechnicalSettings `json:"technicalSettings"`
	Right             *SideFindings     `json:"right"`
	Left              *SideFindings     `json:"left"`
	GeneralNotes      string            `json:"generalNotes"`
	Conclusions       string            `json:"conclusions"`
}

// DateLayout is the ISO calendar date layout used for stored dates.
const DateLayout = "2006-01-02"

// DefaultRecord builds the deterministic initial record for the given day.
func DefaultRecord(today time.Time) *ExamRecord {
	return &ExamRecord{
		ExamDate:          today.Format(DateLayout),
		MeasurementMethod: MethodNASCET,
		TechnicalSettings: TechnicalSettings{
			Probe: DefaultProbe,
			Angle: DefaultAngle,
		},
		Right: newSideFindings(),
		Left:  newSideFindings(),
	}
}

// Side returns the findings for side. An invalid side panics.
func (r *ExamRecord) Side(side Side) *SideFindings {
	switch side {
	case Right:
		return r.Right
	case Left:
		return r.Left
	}
	panic(fmt.Sprintf("exam: invalid side %q", side))
}

// Vessel returns a copy of one segment's findings.
func (r *ExamRecord) Vessel(side Side, key VesselKey) VesselData {
	return r.Side(side).Vessel(key)
}

// UnmarshalJSON fills absent sides with defaults so decoded records always
// carry all twelve vessels.
func (r *ExamRecord) UnmarshalJSON(data []byte) error {
	type plain ExamRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Right == nil {
		p.Right = newSideFindings()
	}
	if p.Left == nil {
		p.Left = newSideFindings()
	}
	if p.MeasurementMethod == "" {
		p.MeasurementMethod = MethodNASCET
	}
	if !p.MeasurementMethod.Valid() {
		return fmt.Errorf("%w: measurement method %q", ErrInvalidValue, p.MeasurementMethod)
	}
	*r = ExamRecord(p)
	return nil
}

func mustVessel(key VesselKey) {
	if !key.Valid() {
		panic(fmt.Sprintf("exam: invalid vessel key %d", int(key)))
	}
}
