package fhir

import (
	"encoding/json"
	"strings"
)

// ContentType is the FHIR JSON media type.
const ContentType = "application/fhir+json"

const SystemSNOMED = "http://snomed.info/sct"

type Meta struct {
	VersionID   string `json:"versionId,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Label returns the text, falling back to the first coding display.
func (c *CodeableConcept) Label() string {
	if c == nil {
		return ""
	}
	if t := strings.TrimSpace(c.Text); t != "" {
		return t
	}
	for _, cd := range c.Coding {
		if cd.Display != "" {
			return cd.Display
		}
	}
	return ""
}

// FirstCode returns the first non-empty code.
func (c *CodeableConcept) FirstCode() string {
	if c == nil {
		return ""
	}
	for _, cd := range c.Coding {
		if cd.Code != "" {
			return cd.Code
		}
	}
	return ""
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// Patient is the subset of the R4 Patient resource used at triage.
type Patient struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Meta         *Meta       `json:"meta,omitempty"`
	Name         []HumanName `json:"name,omitempty"`
	Gender       string      `json:"gender,omitempty"`
	BirthDate    string      `json:"birthDate,omitempty"`
}

// DisplayName renders the first name entry as "Given Family".
func (p *Patient) DisplayName() string {
	if p == nil || len(p.Name) == 0 {
		return ""
	}
	n := p.Name[0]
	if n.Text != "" {
		return n.Text
	}
	parts := append([]string{}, n.Given...)
	if n.Family != "" {
		parts = append(parts, n.Family)
	}
	return strings.Join(parts, " ")
}

// NewPatient builds a Patient resource from a display name. The last word
// becomes the family name.
func NewPatient(name, gender, birthDate string) *Patient {
	fields := strings.Fields(name)
	hn := HumanName{Use: "official"}
	switch len(fields) {
	case 0:
	case 1:
		hn.Family = fields[0]
	default:
		hn.Given = fields[:len(fields)-1]
		hn.Family = fields[len(fields)-1]
	}
	return &Patient{
		ResourceType: "Patient",
		Name:         []HumanName{hn},
		Gender:       gender,
		BirthDate:    birthDate,
	}
}

type Condition struct {
	ResourceType   string           `json:"resourceType"`
	ID             string           `json:"id,omitempty"`
	ClinicalStatus *CodeableConcept `json:"clinicalStatus,omitempty"`
	Severity       *CodeableConcept `json:"severity,omitempty"`
	Code           *CodeableConcept `json:"code,omitempty"`
	Subject        Reference        `json:"subject"`
	OnsetDateTime  string           `json:"onsetDateTime,omitempty"`
}

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// OperationOutcome is decoded from error responses when the server sends one.
type OperationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}

type Issue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

func (o *OperationOutcome) summary() string {
	msgs := make([]string, 0, len(o.Issue))
	for _, iss := range o.Issue {
		msg := iss.Code
		if iss.Diagnostics != "" {
			msg = iss.Diagnostics
		}
		msgs = append(msgs, iss.Severity+": "+msg)
	}
	return strings.Join(msgs, "; ")
}
