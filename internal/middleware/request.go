package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"visitor-webhook/internal/common/logging"
	"visitor-webhook/internal/common/utils"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// RequestID reuses a well-formed inbound X-Request-ID or generates one, stores
// it in the request context for logging and echoes it on the response
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := utils.SanitizeRequestID(r.Header.Get(RequestIDHeader))
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// Recover turns a panic into a logged error and hands the request to fallback,
// which writes the client response. Stack traces never reach the client.
func Recover(fallback http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := wrap(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logging.GetGlobalLogger().WithContext(r.Context()).Error("Panic while serving request",
					fmt.Errorf("panic: %v", rec),
					logging.String("method", r.Method),
					logging.String("path", r.URL.Path),
					logging.String("stack", string(debug.Stack())),
				)

				if wrapped.wroteHeader {
					return
				}
				if fallback != nil {
					fallback.ServeHTTP(wrapped, r)
					return
				}
				http.Error(wrapped, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(wrapped, r)
		})
	}
}
