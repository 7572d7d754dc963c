package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/ertriage/internal/platform/metrics"
	"github.com/ehr/ertriage/internal/platform/websocket"
)

// ValidationError reports bad input from the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// Classification call sites, used as metric labels.
const (
	sourceSuggest  = "suggest"
	sourceAdmit    = "admit"
	sourceReassess = "reassess"
)

type Service struct {
	patients  PatientRepository
	vitals    VitalsRepository
	history   HistoryProvider
	publisher websocket.EventPublisher
	metrics   *metrics.TriageMetrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(patients PatientRepository, vitals VitalsRepository, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		vitals:   vitals,
		logger:   logger,
		now:      time.Now,
	}
}

// SetHistoryProvider attaches the clinical history source. Without one every
// patient is classified with no history.
func (s *Service) SetHistoryProvider(p HistoryProvider) { s.history = p }

// SetPublisher attaches the queue event publisher.
func (s *Service) SetPublisher(p websocket.EventPublisher) { s.publisher = p }

func (s *Service) SetMetrics(m *metrics.TriageMetrics) { s.metrics = m }

// SuggestRequest is the input of a level suggestion made while the complaint
// is still being typed.
type SuggestRequest struct {
	ChiefComplaint string      `json:"chief_complaint"`
	Vitals         *VitalSigns `json:"vitals,omitempty"`
	Patient        *PatientRef `json:"patient,omitempty"`
}

// SuggestLevel classifies without touching the queue.
func (s *Service) SuggestLevel(ctx context.Context, req SuggestRequest) *Assessment {
	var ref PatientRef
	if req.Patient != nil {
		ref = *req.Patient
	}
	a := s.assess(ctx, req.ChiefComplaint, req.Vitals, ref)
	s.metrics.ObserveClassification(sourceSuggest, int(a.Level))
	return a
}

// assess resolves history and runs the classifier. History failures degrade
// to an empty history.
func (s *Service) assess(ctx context.Context, complaint string, vitals *VitalSigns, ref PatientRef) *Assessment {
	return evaluate(complaint, vitals, s.lookupHistory(ctx, ref))
}

// evaluate classifies against hist. Degraded history is reported but the
// level is computed as if no history were available.
func evaluate(complaint string, vitals *VitalSigns, hist *HistoryResult) *Assessment {
	var classified []HistoricalCondition
	if !hist.Degraded {
		classified = hist.Conditions
	}
	level := Classify(complaint, vitals, classified)
	return &Assessment{
		Level:           level,
		Label:           level.String(),
		HighRiskHistory: HasHighRiskHistory(classified),
		RelatedHistory:  RelatedHistory(complaint, classified),
		History:         hist.Conditions,
		FHIRID:          hist.FHIRID,
		Degraded:        hist.Degraded,
	}
}

func (s *Service) lookupHistory(ctx context.Context, ref PatientRef) *HistoryResult {
	if s.history == nil || ref.IsZero() {
		return &HistoryResult{FHIRID: ref.FHIRID}
	}

	start := s.now()
	res, err := s.history.History(ctx, ref)
	elapsed := s.now().Sub(start).Seconds()
	if err != nil || res == nil {
		s.logger.Warn().Err(err).
			Str("fhir_id", ref.FHIRID).
			Msg("clinical history unavailable, classifying without history")
		s.metrics.ObserveHistoryLookup("error", elapsed)
		return &HistoryResult{FHIRID: ref.FHIRID}
	}

	if res.Degraded {
		s.logger.Warn().Str("fhir_id", ref.FHIRID).Msg("clinical history served from fallback data, classifying without history")
		s.metrics.ObserveHistoryLookup("degraded", elapsed)
		// Fallback ids are not real records.
		return &HistoryResult{FHIRID: ref.FHIRID, Conditions: res.Conditions, Degraded: true}
	}
	s.metrics.ObserveHistoryLookup("ok", elapsed)
	return res
}

// AdmitPatient classifies a new arrival and inserts it into the queue.
// vitals may be nil.
func (s *Service) AdmitPatient(ctx context.Context, p *Patient, vitals *VitalSigns) (*Assessment, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	if p.Name == "" {
		return nil, invalid("name", "is required")
	}
	if !validGenders[p.Gender] {
		return nil, invalid("gender", "must be one of male, female, other, unknown")
	}
	if strings.TrimSpace(p.ChiefComplaint) == "" {
		return nil, invalid("chief_complaint", "is required")
	}
	if p.DateOfBirth.IsZero() {
		return nil, invalid("date_of_birth", "is required")
	}
	now := s.now()
	if p.DateOfBirth.After(now) {
		return nil, invalid("date_of_birth", "must not be in the future")
	}

	ref := p.Ref()
	ref.CreateIfMissing = true
	hist := s.lookupHistory(ctx, ref)
	a := evaluate(p.ChiefComplaint, vitals, hist)
	if a.FHIRID != "" {
		fhirID := a.FHIRID
		p.FHIRID = &fhirID
	}
	p.Priority = int(a.Level)
	p.Status = StatusWaiting
	p.ArrivalTime = now

	if err := s.patients.Create(ctx, p); err != nil {
		if hist.Created {
			s.logger.Error().Err(err).
				Str("fhir_id", hist.FHIRID).
				Msg("queue insert failed after FHIR patient was created, FHIR record is orphaned")
		}
		return nil, fmt.Errorf("admit patient: %w", err)
	}
	s.metrics.ObserveClassification(sourceAdmit, p.Priority)
	s.publish(ctx, websocket.EventPatientAdmitted, p)

	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Int("priority", p.Priority).
		Bool("high_risk_history", a.HighRiskHistory).
		Msg("patient admitted to queue")
	return a, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// Queue lists patients in priority order. An empty status lists all.
func (s *Service) Queue(ctx context.Context, status string, limit, offset int) ([]*Patient, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, invalid("status", "is not a valid queue status")
	}
	return s.patients.Queue(ctx, status, limit, offset)
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Patient, error) {
	if !ValidStatus(status) {
		return nil, invalid("status", "must be one of waiting, in_progress, completed")
	}
	p, err := s.patients.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.EventPatientStatus, p)
	return p, nil
}

// UpdatePriority applies a manual override, clamped to a valid ESI level.
func (s *Service) UpdatePriority(ctx context.Context, id uuid.UUID, priority int) (*Patient, error) {
	p, err := s.patients.UpdatePriority(ctx, id, int(ClampLevel(priority)))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, websocket.EventPatientPriority, p)
	return p, nil
}

func (s *Service) RecordVitals(ctx context.Context, v *Vitals) error {
	if v.PatientID == uuid.Nil {
		return invalid("patient_id", "is required")
	}
	if v.PainLevel != nil && (*v.PainLevel < 0 || *v.PainLevel > 10) {
		return invalid("pain_level", "must be between 0 and 10")
	}
	if v.BloodPressure != nil && strings.TrimSpace(*v.BloodPressure) != "" && ParseBloodPressure(*v.BloodPressure) == nil {
		return invalid("blood_pressure", "must look like 120/80")
	}
	if _, err := s.patients.GetByID(ctx, v.PatientID); err != nil {
		return err
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = s.now()
	}
	return s.vitals.Create(ctx, v)
}

func (s *Service) ListVitals(ctx context.Context, patientID uuid.UUID) ([]*Vitals, error) {
	return s.vitals.ListByPatient(ctx, patientID)
}

// Reassess reclassifies a queued patient from the complaint, the latest
// vitals and the clinical history, persisting the level when it changed.
func (s *Service) Reassess(ctx context.Context, id uuid.UUID) (*Patient, *Assessment, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	latest, err := s.vitals.Latest(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("load latest vitals: %w", err)
	}

	if inv, ok := s.history.(HistoryInvalidator); ok && p.FHIRID != nil && *p.FHIRID != "" {
		if err := inv.Invalidate(ctx, *p.FHIRID); err != nil {
			s.logger.Warn().Err(err).Str("fhir_id", *p.FHIRID).Msg("failed to invalidate cached history")
		}
	}

	a := s.assess(ctx, p.ChiefComplaint, latest.Signs(), p.Ref())
	s.metrics.ObserveClassification(sourceReassess, int(a.Level))
	if int(a.Level) == p.Priority {
		return p, a, nil
	}

	updated, err := s.patients.UpdatePriority(ctx, id, int(a.Level))
	if err != nil {
		return nil, nil, err
	}
	s.publish(ctx, websocket.EventPatientPriority, updated)
	return updated, a, nil
}

func (s *Service) publish(ctx context.Context, eventType string, p *Patient) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, websocket.Event{
		Type:      eventType,
		Topic:     websocket.TopicQueue,
		PatientID: p.ID.String(),
		Priority:  p.Priority,
		Status:    p.Status,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("failed to publish queue event")
	}
}
