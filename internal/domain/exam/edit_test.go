package exam

import (
	"errors"
	"testing"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"0.8", ptr(0.8)},
		{"1,2", ptr(1.2)},
		{" 125 ", ptr(125)},
		{"", nil},
		{"abc", nil},
		{"NaN", nil},
		{"Inf", nil},
		{"1e12", nil},
		{"-3", nil},
		{"-0,5", nil},
		{"0x1p3", nil},
		{"0X10", nil},
		{"-0", ptr(0)},
		{"1e2", ptr(100)},
	}
	for _, tc := range cases {
		got := ParseDecimal(tc.in)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("%q: expected nil, got %v", tc.in, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Errorf("%q: expected %v, got %v", tc.in, *tc.want, got)
		}
	}
}

func TestParseVesselEdit_NumericMalformedBecomesAbsent(t *testing.T) {
	edit, err := ParseVesselEdit(ACI, "psv", "fast")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := VesselData{Stenosis: StenosisNone, PSV: ptr(120)}
	if got := edit.Apply(v); got.PSV != nil {
		t.Errorf("expected psv cleared, got %v", *got.PSV)
	}
}

func TestParseVesselEdit_VertebralNotes(t *testing.T) {
	for _, ok := range []string{"", "Orthograde", "Retrograde", "To-and-fro"} {
		if _, err := ParseVesselEdit(AV, "notes", ok); err != nil {
			t.Errorf("%q: unexpected error: %v", ok, err)
		}
	}
	if _, err := ParseVesselEdit(AV, "notes", "turbulent"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := ParseVesselEdit(ACI, "notes", "turbulent"); err != nil {
		t.Errorf("free-text notes must be accepted on carotid segments: %v", err)
	}
}

func TestParseVesselEdit_VertebralPlaqueRejected(t *testing.T) {
	if _, err := ParseVesselEdit(AV, "plaqueType", "soft"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := ParseVesselEdit(Bulbo, "plaqueType", "soft"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseVesselEdit_Stenosis(t *testing.T) {
	edit, err := ParseVesselEdit(ACI, "stenosis", "occlusion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := edit.Apply(DefaultVessel()); got.Stenosis != StenosisOcclusion {
		t.Errorf("expected occlusion, got %s", got.Stenosis)
	}
	if _, err := ParseVesselEdit(ACI, "stenosis", ""); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue for empty stenosis, got %v", err)
	}
}

func TestParseVesselEdit_UnknownField(t *testing.T) {
	if _, err := ParseVesselEdit(ACC, "diameter", "3"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestParseRecordEdit(t *testing.T) {
	cur := DefaultRecord(fixedDay)

	edit, err := ParseRecordEdit("technicalSettings.equipment", "Esaote MyLab")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	next := *cur
	edit.apply(&next)
	if next.TechnicalSettings.Equipment != "Esaote MyLab" || next.TechnicalSettings.Probe != DefaultProbe {
		t.Errorf("unexpected settings: %+v", next.TechnicalSettings)
	}
	if cur.TechnicalSettings.Equipment != "" {
		t.Error("current record must not change")
	}

	if _, err := ParseRecordEdit("measurementMethod", "ECST"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseRecordEdit("measurementMethod", "other"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := ParseRecordEdit("technicalSettings.gain", "3"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if _, err := ParseRecordEdit("right", "{}"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestVesselEdit_ApplyUnknownFieldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	VesselEdit{Field: "diameter"}.Apply(DefaultVessel())
}

func ptr(f float64) *float64 { return &f }
