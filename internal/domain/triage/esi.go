package triage

import "strings"

// Level is an Emergency Severity Index acuity level. 1 is the most urgent.
type Level int

const (
	LevelCritical   Level = 1
	LevelEmergent   Level = 2
	LevelUrgent     Level = 3
	LevelLessUrgent Level = 4
	LevelNonUrgent  Level = 5
)

// String returns the description shown next to a suggested level.
func (l Level) String() string {
	switch ClampLevel(int(l)) {
	case LevelCritical:
		return "Critical - Immediate life-saving intervention needed"
	case LevelEmergent:
		return "Emergent - High risk situation"
	case LevelUrgent:
		return "Urgent - Multiple resources needed"
	case LevelLessUrgent:
		return "Less Urgent - One resource needed"
	default:
		return "Non-urgent - No resources needed"
	}
}

// ClampLevel forces any integer into the valid range [1,5].
func ClampLevel(n int) Level {
	if n < int(LevelCritical) {
		return LevelCritical
	}
	if n > int(LevelNonUrgent) {
		return LevelNonUrgent
	}
	return Level(n)
}

// BloodPressure is a systolic/diastolic pair in mmHg.
type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// VitalSigns holds the measured vitals used by Classify. Nil fields were not
// measured and are skipped by every threshold check.
type VitalSigns struct {
	HeartRate        *int           `json:"heart_rate,omitempty"`
	RespiratoryRate  *int           `json:"respiratory_rate,omitempty"`
	OxygenSaturation *int           `json:"oxygen_saturation,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	BloodPressure    *BloodPressure `json:"blood_pressure,omitempty"`
	PainLevel        *int           `json:"pain_level,omitempty"`
}

// HistoricalCondition is a past condition from the patient's clinical record.
type HistoricalCondition struct {
	Text     string `json:"text"`
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// IsSevere reports whether the condition carries a "severe" severity tag.
func (h HistoricalCondition) IsSevere() bool {
	return strings.EqualFold(strings.TrimSpace(h.Severity), "severe")
}

var lifeThreatPhrases = []string{
	"cardiac arrest",
	"respiratory arrest",
	"not breathing",
	"no pulse",
	"unconscious",
	"severe trauma",
	"anaphylaxis",
}

var highRiskPhrases = []string{
	"chest pain",
	"stroke symptoms",
	"severe pain",
	"altered mental status",
	"overdose",
	"severe allergic reaction",
}

var highRiskConditions = []string{
	"diabetes",
	"hypertension",
	"heart disease",
	"copd",
	"asthma",
	"immunocompromised",
	"cancer",
	"stroke",
}

var resourceIntensiveComplaints = []string{
	"chest pain",
	"shortness of breath",
	"stroke",
	"severe bleeding",
	"trauma",
	"head injury",
}

// Critical vital sign thresholds (level 1).
const (
	criticalHeartRate       = 150
	criticalOxygenSat       = 85
	criticalRespiratoryRate = 35
)

// Danger zone vital sign bounds (level 2).
const (
	dangerHeartRateMin       = 50
	dangerHeartRateMax       = 120
	dangerRespiratoryRateMin = 12
	dangerRespiratoryRateMax = 25
	dangerOxygenSatMin       = 92
	severePainLevel          = 8
)

// Classify assigns an ESI level from a chief complaint, optional vitals and
// optional historical conditions. Stages run in fixed order and the first
// one that fires decides the level.
func Classify(complaint string, vitals *VitalSigns, history []HistoricalCondition) Level {
	text := strings.ToLower(complaint)
	highRisk := HasHighRiskHistory(history)

	if isLifeThreatening(text, vitals) {
		return LevelCritical
	}
	if isHighRisk(text, vitals, history) {
		return LevelEmergent
	}
	return resourceLevel(text, highRisk)
}

// HasHighRiskHistory reports whether any condition is tagged severe or names
// a chronic high-risk condition in its text or code.
func HasHighRiskHistory(history []HistoricalCondition) bool {
	for _, c := range history {
		if c.IsSevere() {
			return true
		}
		if containsAny(strings.ToLower(c.Text), highRiskConditions) ||
			containsAny(strings.ToLower(c.Code), highRiskConditions) {
			return true
		}
	}
	return false
}

// RelatedHistory returns the conditions whose text and the complaint contain
// one another, in either direction.
func RelatedHistory(complaint string, history []HistoricalCondition) []HistoricalCondition {
	text := strings.TrimSpace(strings.ToLower(complaint))
	var related []HistoricalCondition
	for _, c := range history {
		if mutuallyContained(text, c) {
			related = append(related, c)
		}
	}
	return related
}

func isLifeThreatening(complaint string, v *VitalSigns) bool {
	if containsAny(complaint, lifeThreatPhrases) {
		return true
	}
	if v == nil {
		return false
	}
	return above(v.HeartRate, criticalHeartRate) ||
		below(v.OxygenSaturation, criticalOxygenSat) ||
		above(v.RespiratoryRate, criticalRespiratoryRate)
}

func isHighRisk(complaint string, v *VitalSigns, history []HistoricalCondition) bool {
	trimmed := strings.TrimSpace(complaint)
	for _, c := range history {
		if c.IsSevere() && mutuallyContained(trimmed, c) {
			return true
		}
	}

	if containsAny(complaint, highRiskPhrases) {
		return true
	}

	if v == nil {
		return false
	}
	if outside(v.HeartRate, dangerHeartRateMin, dangerHeartRateMax) ||
		outside(v.RespiratoryRate, dangerRespiratoryRateMin, dangerRespiratoryRateMax) ||
		below(v.OxygenSaturation, dangerOxygenSatMin) {
		return true
	}
	return v.PainLevel != nil && *v.PainLevel >= severePainLevel
}

// resourceLevel estimates how many ED resources the visit needs. "pain"
// counts toward both lab work and imaging.
func resourceLevel(complaint string, highRiskHistory bool) Level {
	resources := 0

	// lab work
	if containsAny(complaint, []string{"fever", "infection", "pain"}) {
		resources++
	}
	// imaging
	if containsAny(complaint, []string{"injury", "fall", "pain"}) {
		resources++
	}
	// IV fluids or medication
	if containsAny(complaint, []string{"dehydration", "vomiting", "severe pain"}) {
		resources++
	}
	// specialist consult
	if containsAny(complaint, resourceIntensiveComplaints) {
		resources += 2
	}
	if highRiskHistory {
		resources++
	}

	switch {
	case resources > 2:
		return LevelUrgent
	case resources > 0:
		return LevelLessUrgent
	default:
		return LevelNonUrgent
	}
}

// mutuallyContained expects a lower-cased, trimmed complaint. Empty strings
// never match, otherwise every condition would contain a blank complaint.
func mutuallyContained(complaint string, c HistoricalCondition) bool {
	cond := strings.TrimSpace(strings.ToLower(c.Text))
	if complaint == "" || cond == "" {
		return false
	}
	return strings.Contains(complaint, cond) || strings.Contains(cond, complaint)
}

func containsAny(s string, phrases []string) bool {
	if s == "" {
		return false
	}
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func above(v *int, limit int) bool { return v != nil && *v > limit }

func below(v *int, limit int) bool { return v != nil && *v < limit }

func outside(v *int, lo, hi int) bool { return v != nil && (*v < lo || *v > hi) }
