package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"visitor-webhook/internal/common/ratelimit"
	"visitor-webhook/internal/handlers"
	"visitor-webhook/internal/metrics"
	"visitor-webhook/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application. rateLimiter may be nil.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, m *metrics.Metrics, rateLimiter ratelimit.Limiter) {
	router.Use(middleware.RequestID)
	router.Use(middleware.Recover(http.HandlerFunc(h.HandleInternalError)))
	router.Use(middleware.Logging(m))

	router.HandleFunc("/", h.Home).Methods("GET", "HEAD")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", m.Handler()).Methods("GET")

	// Dialogflow fulfillment, rate limited per client address
	webhook := http.Handler(http.HandlerFunc(h.HandleWebhook))
	if rateLimiter != nil {
		rejected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.RateLimited()
			h.HandleRateLimited(w, r)
		})
		webhook = ratelimit.HTTPMiddleware(rateLimiter, ratelimit.IPKey, rejected)(webhook)
	}
	router.Handle("/webhook", webhook).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cache", h.GetCacheStats).Methods("GET")
	api.HandleFunc("/cache/invalidate", h.InvalidateCache).Methods("POST")
	api.HandleFunc("/cache/refresh", h.RefreshCache).Methods("POST")
}
