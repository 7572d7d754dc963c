package triage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

// PatientRepository is the queue store. Queue must order by priority, then
// arrival time, both ascending.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Patient, error)
	UpdatePriority(ctx context.Context, id uuid.UUID, priority int) (*Patient, error)
	Queue(ctx context.Context, status string, limit, offset int) ([]*Patient, int, error)
}

type VitalsRepository interface {
	Create(ctx context.Context, v *Vitals) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Vitals, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*Vitals, error)
}

// HistoryResult is what a clinical history lookup produced.
type HistoryResult struct {
	FHIRID     string
	Conditions []HistoricalCondition
	// Degraded is set when the record came from fallback demo data. Degraded
	// conditions are shown to staff but never classified.
	Degraded bool
	// Created is set when the lookup registered a new patient upstream.
	Created bool
}

// HistoryProvider supplies a patient's past conditions. Callers treat an
// error as "no history" and continue triage.
type HistoryProvider interface {
	History(ctx context.Context, ref PatientRef) (*HistoryResult, error)
}

// HistoryInvalidator is implemented by providers that cache results.
// Reassessment drops the cached entry so it reads the current record.
type HistoryInvalidator interface {
	Invalidate(ctx context.Context, fhirID string) error
}
