package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitor-webhook/internal/common/logging"
)

type recordedRequest struct {
	route  string
	method string
	status int
}

type recordingObserver struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (o *recordingObserver) ObserveHTTP(route, method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, recordedRequest{route, method, status})
}

func TestLogging_ReportsRouteTemplateAndStatus(t *testing.T) {
	observer := &recordingObserver{}
	router := mux.NewRouter()
	router.Use(Logging(observer))
	router.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)
	router.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fine"))
	})

	for _, path := range []string{"/items/1", "/items/2?x=1", "/ok"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, observer.requests, 3)
	assert.Equal(t, recordedRequest{"/items/{id}", "GET", http.StatusTeapot}, observer.requests[0])
	assert.Equal(t, recordedRequest{"/items/{id}", "GET", http.StatusTeapot}, observer.requests[1])
	assert.Equal(t, recordedRequest{"/ok", "GET", http.StatusOK}, observer.requests[2])
}

func TestLogging_WithoutObserverPassesThrough(t *testing.T) {
	handler := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusAccepted, rw.statusCode)
	assert.Same(t, rw, wrap(rw))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	t.Run("generated when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("inbound id reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("unsafe inbound id replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "bad\x00id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.NotEqual(t, "bad\x00id", seen)
		assert.NotEmpty(t, seen)
	})
}

func TestRecover(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	t.Run("fallback writes the response", func(t *testing.T) {
		fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"fulfillmentText":"erro"}`))
		})
		rec := httptest.NewRecorder()
		Recover(fallback)(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, `{"fulfillmentText":"erro"}`, rec.Body.String())
	})

	t.Run("default response hides details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Recover(nil)(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, strings.Contains(rec.Body.String(), "boom"))
		assert.False(t, strings.Contains(rec.Body.String(), "goroutine"))
	})

	t.Run("no panic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})
}
