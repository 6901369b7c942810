package handlers

import (
	"net/http"
	"time"

	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/common/logging"
	"visitor-webhook/internal/fulfillment"
	"visitor-webhook/internal/visitors"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Cache     visitors.CacheStats `json:"cache"`
	Sheets    interface{}         `json:"sheets,omitempty"`
	Redis     string              `json:"redis"`
}

// Home is the liveness text, also the keep-alive target
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	h.logger.WithContext(r.Context()).Debug("Root endpoint accessed")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(fulfillment.TextServiceUp))
}

// HealthCheck reports cache, breaker and Redis state. An empty cache after a
// failed refresh or an unreachable Redis degrades the status but the
// endpoint always answers 200 while the process serves requests.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Cache:     h.cache.Stats(),
		Redis:     "disabled",
	}

	if resp.Cache.State == visitors.StateEmpty && resp.Cache.LastError != "" {
		resp.Status = "degraded"
	}
	if h.breaker != nil {
		stats := h.breaker.BreakerStats()
		resp.Sheets = stats
		if stats.State == "open" {
			resp.Status = "degraded"
		}
	}
	if h.redis != nil {
		if err := h.redis.Health(); err != nil {
			h.logger.WithContext(r.Context()).Warn("Redis health check failed", logging.Err(err))
			resp.Redis = "unhealthy"
			resp.Status = "degraded"
		} else {
			resp.Redis = "healthy"
		}
	}

	h.sendJSONResponse(w, http.StatusOK, resp)
}

// GetCacheStats returns the lookup cache statistics
func (h *Handlers) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	h.sendJSONResponse(w, http.StatusOK, h.cache.Stats())
}

// InvalidateCache drops the current snapshot; the next lookup refetches
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.cache.Invalidate()
	h.logger.WithContext(r.Context()).Info("Cache invalidated via API")
	h.sendJSONResponse(w, http.StatusOK, h.cache.Stats())
}

// RefreshCache forces a synchronous refresh of the snapshot
func (h *Handlers) RefreshCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Refresh(r.Context()); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.IsType(err, errors.ErrTypeTimeout):
			status = http.StatusGatewayTimeout
		case errors.IsType(err, errors.ErrTypeTableRange):
			status = http.StatusInternalServerError
		}
		h.sendJSONError(w, r, err, "Cache refresh failed", status)
		return
	}
	h.logger.WithContext(r.Context()).Info("Cache refreshed via API")
	h.sendJSONResponse(w, http.StatusOK, h.cache.Stats())
}
