package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"visitor-webhook/internal/circuitbreaker"
	"visitor-webhook/internal/common/logging"
	"visitor-webhook/internal/visitors"
)

// LookupService resolves a raw identifier into a lookup result
type LookupService interface {
	Lookup(ctx context.Context, raw any) visitors.Result
}

// CacheAdmin exposes cache inspection and control
type CacheAdmin interface {
	Stats() visitors.CacheStats
	Invalidate()
	Refresh(ctx context.Context) error
}

// BreakerReporter reports the upstream circuit breaker
type BreakerReporter interface {
	BreakerStats() circuitbreaker.Stats
}

// HealthChecker is implemented by optional dependencies such as Redis
type HealthChecker interface {
	Health() error
}

// Handlers serves the webhook and the operational endpoints
type Handlers struct {
	lookup  LookupService
	cache   CacheAdmin
	breaker BreakerReporter
	redis   HealthChecker
	logger  logging.Logger
}

// Options carries the optional dependencies of Handlers
type Options struct {
	Breaker BreakerReporter
	Redis   HealthChecker
	Logger  logging.Logger
}

// New creates the handlers; optional dependencies come from opts
func New(lookup LookupService, cache CacheAdmin, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		lookup:  lookup,
		cache:   cache,
		breaker: opts.Breaker,
		redis:   opts.Redis,
		logger:  logger.WithFields(logging.String("component", "handlers")),
	}
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

func (h *Handlers) sendJSONError(w http.ResponseWriter, r *http.Request, err error, message string, status int) {
	if err != nil {
		h.logger.WithContext(r.Context()).Error(message, err)
	}
	h.sendJSONResponse(w, status, map[string]string{"error": message})
}
