package visitors

import (
	"context"
	"fmt"

	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/common/logging"
)

// Outcome tags the result of a lookup
type Outcome string

const (
	OutcomeFound          Outcome = "found"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeInvalidInput   Outcome = "invalid_input"
	OutcomeTransientError Outcome = "transient_error"
	OutcomeFailed         Outcome = "failed"
)

// Result is the tagged outcome of Service.Lookup. Records is set only for
// OutcomeFound; Err explains every other outcome.
type Result struct {
	Outcome Outcome
	Key     Key
	Records []Record
	Err     error
}

// RecordSource serves records by key
type RecordSource interface {
	Get(ctx context.Context, key Key, forceRefresh bool) ([]Record, error)
}

// Service resolves raw identifiers into lookup results
type Service struct {
	source     RecordSource
	normalizer *Normalizer
	logger     logging.Logger
	observer   Observer
}

// NewService creates a lookup service
func NewService(source RecordSource, normalizer *Normalizer, logger logging.Logger, observer Observer) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Service{
		source:     source,
		normalizer: normalizer,
		logger:     logger,
		observer:   observer,
	}
}

// Lookup normalizes raw and returns the matching records. raw is the decoded
// request parameter and may be nil, a string or a JSON number. Invalid input
// is rejected before the cache is consulted.
func (s *Service) Lookup(ctx context.Context, raw any) Result {
	result := s.lookup(ctx, raw)
	s.observer.LookupCompleted(result.Outcome)
	return result
}

func (s *Service) lookup(ctx context.Context, raw any) Result {
	logger := s.logger.WithContext(ctx)

	key, ok := s.normalizer.NormalizeValue(raw)
	if !ok {
		err := errors.InvalidIdentifierError(fmt.Sprint(raw))
		logger.Warn("Invalid or missing identifier", logging.Err(err))
		return Result{Outcome: OutcomeInvalidInput, Err: err}
	}
	logger.Info("Identifier normalized", logging.String("key", string(key)))

	records, err := s.source.Get(ctx, key, false)
	if err != nil {
		if errors.IsTransient(err) {
			logger.Warn("Visitor lookup unavailable", logging.String("key", string(key)), logging.Err(err))
			return Result{Outcome: OutcomeTransientError, Key: key, Err: err}
		}
		logger.Error("Visitor lookup failed", err, logging.String("key", string(key)))
		return Result{Outcome: OutcomeFailed, Key: key, Err: err}
	}

	if len(records) == 0 {
		logger.Info("Identifier not found", logging.String("key", string(key)))
		return Result{Outcome: OutcomeNotFound, Key: key, Err: errors.NotFoundError("matricula " + string(key))}
	}

	logger.Info("Identifier matched",
		logging.String("key", string(key)),
		logging.Int("matches", len(records)),
	)
	out := make([]Record, len(records))
	copy(out, records)
	return Result{Outcome: OutcomeFound, Key: key, Records: out}
}
