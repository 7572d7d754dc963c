package triage

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Queue status values.
const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// DefaultPriority is used when no level was computed for a patient.
const DefaultPriority = 3

// ValidStatus reports whether s is a known queue status.
func ValidStatus(s string) bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

var validGenders = map[string]bool{"male": true, "female": true, "other": true, "unknown": true}

// Patient maps to the triage_patient table.
type Patient struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FHIRID         *string   `db:"fhir_id" json:"fhir_id,omitempty"`
	Name           string    `db:"name" json:"name"`
	DateOfBirth    time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender         string    `db:"gender" json:"gender"`
	ChiefComplaint string    `db:"chief_complaint" json:"chief_complaint"`
	ArrivalTime    time.Time `db:"arrival_time" json:"arrival_time"`
	Priority       int       `db:"priority" json:"priority"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Ref returns the reference used to look up the patient's clinical history.
func (p *Patient) Ref() PatientRef {
	ref := PatientRef{Name: p.Name, Gender: p.Gender}
	if !p.DateOfBirth.IsZero() {
		ref.BirthDate = p.DateOfBirth.Format("2006-01-02")
	}
	if p.FHIRID != nil {
		ref.FHIRID = *p.FHIRID
	}
	return ref
}

// Vitals maps to the triage_vitals table. Temperature and blood pressure are
// kept as entered at the bedside.
type Vitals struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	Temperature      *string   `db:"temperature" json:"temperature,omitempty"`
	BloodPressure    *string   `db:"blood_pressure" json:"blood_pressure,omitempty"`
	HeartRate        *int      `db:"heart_rate" json:"heart_rate,omitempty"`
	RespiratoryRate  *int      `db:"respiratory_rate" json:"respiratory_rate,omitempty"`
	OxygenSaturation *int      `db:"oxygen_saturation" json:"oxygen_saturation,omitempty"`
	PainLevel        *int      `db:"pain_level" json:"pain_level,omitempty"`
	RecordedAt       time.Time `db:"recorded_at" json:"recorded_at"`
}

// Signs converts a bedside vitals record into classifier input. Values that
// cannot be parsed are treated as not measured.
func (v *Vitals) Signs() *VitalSigns {
	if v == nil {
		return nil
	}
	s := &VitalSigns{
		HeartRate:        v.HeartRate,
		RespiratoryRate:  v.RespiratoryRate,
		OxygenSaturation: v.OxygenSaturation,
		PainLevel:        v.PainLevel,
	}
	if v.Temperature != nil {
		if t, err := strconv.ParseFloat(strings.TrimSpace(*v.Temperature), 64); err == nil {
			s.Temperature = &t
		}
	}
	if v.BloodPressure != nil {
		s.BloodPressure = ParseBloodPressure(*v.BloodPressure)
	}
	return s
}

// ParseBloodPressure parses a "systolic/diastolic" reading such as "120/80".
// It returns nil for anything else.
func ParseBloodPressure(s string) *BloodPressure {
	sys, dia, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return nil
	}
	systolic, err := strconv.Atoi(strings.TrimSpace(sys))
	if err != nil || systolic <= 0 {
		return nil
	}
	diastolic, err := strconv.Atoi(strings.TrimSpace(dia))
	if err != nil || diastolic <= 0 {
		return nil
	}
	return &BloodPressure{Systolic: systolic, Diastolic: diastolic}
}

// PatientRef identifies a patient to the clinical history provider, either
// by FHIR id or by demographics.
type PatientRef struct {
	FHIRID string `json:"fhir_id,omitempty"`
	Name   string `json:"name,omitempty"`
	// BirthDate is YYYY-MM-DD.
	BirthDate string `json:"birth_date,omitempty"`
	Gender    string `json:"gender,omitempty"`
	// CreateIfMissing lets the provider register a patient that no search
	// matches. Only admission sets it; suggestions are lookup-only.
	CreateIfMissing bool `json:"-"`
}

// IsZero reports whether the reference carries nothing to look up.
func (r PatientRef) IsZero() bool {
	return r.FHIRID == "" && strings.TrimSpace(r.Name) == ""
}

// Assessment is the explained result of a level suggestion.
type Assessment struct {
	Level           Level                 `json:"level"`
	Label           string                `json:"label"`
	HighRiskHistory bool                  `json:"high_risk_history"`
	RelatedHistory  []HistoricalCondition `json:"related_history,omitempty"`
	History         []HistoricalCondition `json:"history,omitempty"`
	FHIRID          string                `json:"fhir_id,omitempty"`
	Degraded        bool                  `json:"degraded"`
}
