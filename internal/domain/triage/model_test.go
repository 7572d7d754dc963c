package triage

import (
	"testing"
	"time"
)

func strp(s string) *string { return &s }

func TestParseBloodPressure(t *testing.T) {
	bp := ParseBloodPressure(" 120 / 80 ")
	if bp == nil || bp.Systolic != 120 || bp.Diastolic != 80 {
		t.Fatalf("unexpected reading %+v", bp)
	}
	for _, bad := range []string{"", "120", "120/", "abc/80", "0/80", "-1/-1"} {
		if ParseBloodPressure(bad) != nil {
			t.Errorf("expected nil for %q", bad)
		}
	}
}

func TestVitals_Signs(t *testing.T) {
	var nilVitals *Vitals
	if nilVitals.Signs() != nil {
		t.Error("nil vitals must yield nil signs")
	}

	v := &Vitals{
		Temperature:      strp("38.2"),
		BloodPressure:    strp("150/95"),
		HeartRate:        intp(98),
		OxygenSaturation: intp(96),
	}
	s := v.Signs()
	if s.Temperature == nil || *s.Temperature != 38.2 {
		t.Errorf("expected temperature 38.2, got %v", s.Temperature)
	}
	if s.BloodPressure == nil || s.BloodPressure.Systolic != 150 {
		t.Errorf("unexpected blood pressure %+v", s.BloodPressure)
	}
	if *s.HeartRate != 98 || s.RespiratoryRate != nil {
		t.Error("integer vitals must pass through unchanged")
	}

	v = &Vitals{Temperature: strp("warm"), BloodPressure: strp("high")}
	s = v.Signs()
	if s.Temperature != nil || s.BloodPressure != nil {
		t.Error("unparseable readings must be treated as not measured")
	}
}

func TestPatient_Ref(t *testing.T) {
	p := &Patient{Name: "Jane Doe", Gender: "female", DateOfBirth: time.Date(1980, 1, 2, 0, 0, 0, 0, time.UTC)}
	ref := p.Ref()
	if ref.BirthDate != "1980-01-02" || ref.FHIRID != "" || ref.IsZero() {
		t.Errorf("unexpected ref %+v", ref)
	}

	p.FHIRID = strp("fhir-1")
	if p.Ref().FHIRID != "fhir-1" {
		t.Error("expected FHIR id on ref")
	}

	if !(PatientRef{Name: "  "}).IsZero() {
		t.Error("blank name only ref must be zero")
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusWaiting, StatusInProgress, StatusCompleted} {
		if !ValidStatus(s) {
			t.Errorf("expected %q valid", s)
		}
	}
	if ValidStatus("discharged") || ValidStatus("") {
		t.Error("unexpected valid status")
	}
}
