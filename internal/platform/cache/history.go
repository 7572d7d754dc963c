// Package cache keeps recently fetched clinical history in Redis so repeated
// triage of the same patient does not hit the FHIR server.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/ertriage/internal/domain/triage"
)

// DefaultTTL matches how long a fetched history is considered fresh.
const DefaultTTL = 5 * time.Minute

type cachedHistory struct {
	FHIRID     string                       `json:"fhir_id"`
	Conditions []triage.HistoricalCondition `json:"conditions"`
}

// HistoryCache wraps a HistoryProvider with a Redis read-through cache keyed
// by FHIR patient id. Redis failures are logged and never fail a lookup.
type HistoryCache struct {
	next   triage.HistoryProvider
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger zerolog.Logger
}

func NewHistoryCache(next triage.HistoryProvider, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *HistoryCache {
	if next == nil {
		panic("cache: history provider cannot be nil")
	}
	if rdb == nil {
		panic("cache: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &HistoryCache{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		tracer: otel.Tracer("ertriage.internal.platform.cache.history"),
		logger: logger,
	}
}

func (c *HistoryCache) History(ctx context.Context, ref triage.PatientRef) (*triage.HistoryResult, error) {
	ctx, span := c.tracer.Start(ctx, "cache.history")
	defer span.End()

	if ref.FHIRID != "" {
		span.SetAttributes(attribute.String("fhir.patient_id", ref.FHIRID))
		hit, err := c.load(ctx, ref.FHIRID)
		if err != nil {
			span.RecordError(err)
			c.logger.Warn().Err(err).Str("fhir_id", ref.FHIRID).Msg("history cache read failed")
		}
		if hit != nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return hit, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	res, err := c.next.History(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// Fallback data must not outlive the outage.
	if res != nil && res.FHIRID != "" && !res.Degraded {
		if err := c.store(ctx, res); err != nil {
			span.RecordError(err)
			c.logger.Warn().Err(err).Str("fhir_id", res.FHIRID).Msg("history cache write failed")
		}
	}
	return res, nil
}

var _ triage.HistoryInvalidator = (*HistoryCache)(nil)

// Invalidate drops the cached history of a patient. Reassessment calls it so
// the next read goes to the FHIR server.
func (c *HistoryCache) Invalidate(ctx context.Context, fhirID string) error {
	if err := c.redis.Del(ctx, historyKey(fhirID)).Err(); err != nil {
		return fmt.Errorf("cache: failed to invalidate history: %w", err)
	}
	return nil
}

func (c *HistoryCache) load(ctx context.Context, fhirID string) (*triage.HistoryResult, error) {
	data, err := c.redis.Get(ctx, historyKey(fhirID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: failed to load history: %w", err)
	}
	var ch cachedHistory
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("cache: failed to decode history: %w", err)
	}
	return &triage.HistoryResult{FHIRID: ch.FHIRID, Conditions: ch.Conditions}, nil
}

func (c *HistoryCache) store(ctx context.Context, res *triage.HistoryResult) error {
	data, err := json.Marshal(cachedHistory{FHIRID: res.FHIRID, Conditions: res.Conditions})
	if err != nil {
		return fmt.Errorf("cache: failed to marshal history: %w", err)
	}
	if err := c.redis.Set(ctx, historyKey(res.FHIRID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to persist history: %w", err)
	}
	return nil
}

func historyKey(fhirID string) string {
	return fmt.Sprintf("triage:history:%s", fhirID)
}
