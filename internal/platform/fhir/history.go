package fhir

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/ertriage/internal/domain/triage"
)

// HistoryProvider resolves a triage patient to a FHIR Patient and returns
// its Conditions as classifier history.
type HistoryProvider struct {
	client       *Client
	mockFallback bool
	logger       zerolog.Logger
	now          func() time.Time
}

func NewHistoryProvider(client *Client, mockFallback bool, logger zerolog.Logger) *HistoryProvider {
	return &HistoryProvider{
		client:       client,
		mockFallback: mockFallback,
		logger:       logger,
		now:          time.Now,
	}
}

// History looks the patient up by FHIR id, or by name and birth date. When
// ref.CreateIfMissing is set and no patient matches, it registers one.
func (h *HistoryProvider) History(ctx context.Context, ref triage.PatientRef) (*triage.HistoryResult, error) {
	id, created, err := h.resolve(ctx, ref)
	if err != nil {
		return h.fallback(ref, err)
	}
	if id == "" {
		return &triage.HistoryResult{}, nil
	}

	conds, err := h.client.ListConditions(ctx, id)
	if err != nil {
		if created {
			// The patient exists upstream even though its history is unknown.
			h.logger.Warn().Err(err).Str("fhir_id", id).Msg("conditions unavailable for new FHIR patient")
			return &triage.HistoryResult{FHIRID: id, Created: true}, nil
		}
		return h.fallback(ref, err)
	}
	return &triage.HistoryResult{FHIRID: id, Conditions: ToHistory(conds), Created: created}, nil
}

func (h *HistoryProvider) resolve(ctx context.Context, ref triage.PatientRef) (string, bool, error) {
	if ref.FHIRID != "" {
		if _, err := h.client.GetPatient(ctx, ref.FHIRID); err != nil {
			return "", false, fmt.Errorf("read patient %s: %w", ref.FHIRID, err)
		}
		return ref.FHIRID, false, nil
	}
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		return "", false, nil
	}

	birthDate := strings.TrimSpace(ref.BirthDate)
	matches, err := h.client.SearchPatients(ctx, name, birthDate)
	if err != nil {
		return "", false, fmt.Errorf("search patient: %w", err)
	}
	if len(matches) > 0 && matches[0].ID != "" {
		return matches[0].ID, false, nil
	}
	if !ref.CreateIfMissing {
		return "", false, nil
	}

	created, err := h.client.CreatePatient(ctx, NewPatient(name, ref.Gender, birthDate))
	if err != nil {
		return "", false, fmt.Errorf("create patient: %w", err)
	}
	h.logger.Info().Str("fhir_id", created.ID).Msg("created FHIR patient for new arrival")
	return created.ID, true, nil
}

func (h *HistoryProvider) fallback(ref triage.PatientRef, cause error) (*triage.HistoryResult, error) {
	if !h.mockFallback {
		return nil, cause
	}
	id := ref.FHIRID
	if id == "" {
		id = fmt.Sprintf("mock-%d", h.now().UnixMilli())
	}
	h.logger.Warn().Err(cause).Str("fhir_id", id).Msg("FHIR server unavailable, using demo history")
	return &triage.HistoryResult{
		FHIRID:     id,
		Conditions: ToHistory(MockConditions(id)),
		Degraded:   true,
	}, nil
}

// ToHistory maps Conditions to classifier history. Conditions without any
// readable label are skipped.
func ToHistory(conds []*Condition) []triage.HistoricalCondition {
	out := make([]triage.HistoricalCondition, 0, len(conds))
	for _, c := range conds {
		text := c.Code.Label()
		if text == "" {
			continue
		}
		out = append(out, triage.HistoricalCondition{
			Text:     text,
			Code:     c.Code.FirstCode(),
			Severity: c.Severity.Label(),
		})
	}
	return out
}
