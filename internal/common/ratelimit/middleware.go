package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// KeyFunc derives the rate limit key for a request
type KeyFunc func(*http.Request) string

// HTTPMiddleware rejects requests whose key is over its limit. rejected writes
// the response for throttled requests; nil sends a plain 429.
func HTTPMiddleware(limiter Limiter, keyFunc KeyFunc, rejected http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.Allow(r.Context(), keyFunc(r)) {
				next.ServeHTTP(w, r)
				return
			}

			if rps, ok := limiter.Stats()["requests_per_second"].(int); ok {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rps))
			}
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "1")

			if rejected != nil {
				rejected.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}

// IPKey returns the client IP: the first X-Forwarded-For entry, then
// X-Real-IP, then the connection's remote address without the port
func IPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
