package fhir

import "fmt"

// MockPatient is the demo record served when the FHIR server is unreachable
// and mock fallback is enabled.
func MockPatient(id string) *Patient {
	return &Patient{
		ResourceType: "Patient",
		ID:           id,
		Name:         []HumanName{{Use: "official", Family: "Doe", Given: []string{"John"}}},
		Gender:       "male",
		BirthDate:    "1974-12-25",
	}
}

// MockConditions is the demo history paired with MockPatient.
func MockConditions(patientID string) []*Condition {
	return []*Condition{
		{
			ResourceType: "Condition",
			ID:           "mock-condition-1",
			ClinicalStatus: &CodeableConcept{
				Coding: []Coding{{
					System: "http://terminology.hl7.org/CodeSystem/condition-clinical",
					Code:   "active",
				}},
			},
			Code: &CodeableConcept{
				Coding: []Coding{{System: SystemSNOMED, Code: "44054006", Display: "Diabetes mellitus type 2"}},
				Text:   "Type 2 Diabetes",
			},
			Subject: Reference{Reference: fmt.Sprintf("Patient/%s", patientID)},
		},
	}
}
