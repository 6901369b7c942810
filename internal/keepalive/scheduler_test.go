package keepalive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return r.err
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	attempts int
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	return true, nil
}

type pingObserver struct {
	ok, failed atomic.Int32
}

func (o *pingObserver) KeepalivePing(ok bool) {
	if ok {
		o.ok.Add(1)
	} else {
		o.failed.Add(1)
	}
}

func newTarget(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "visitor-webhook-keepalive/1.0", r.Header.Get("User-Agent"))
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestNew_RegistersEnabledJobs(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		warm   bool
		jobs   int
	}{
		{"nothing configured", Config{Schedule: "*/10 * * * *"}, false, 0},
		{"ping only", Config{URL: "http://localhost/", Schedule: "*/10 * * * *"}, false, 1},
		{"warm only", Config{WarmSchedule: "@every 5m"}, true, 1},
		{"warm without refresher", Config{WarmSchedule: "@every 5m"}, false, 0},
		{"both", Config{URL: "http://localhost/", Schedule: "@hourly", WarmSchedule: "*/5 * * * *"}, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refresher Refresher
			if tt.warm {
				refresher = &countingRefresher{}
			}
			s, err := New(tt.config, refresher, nil, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.jobs, s.Jobs())
		})
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(Config{URL: "http://localhost/", Schedule: "every minute"}, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{WarmSchedule: "* * *"}, &countingRefresher{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server, hits := newTarget(t, http.StatusOK)
		s, err := New(Config{URL: server.URL}, nil, nil, nil, nil)
		require.NoError(t, err)

		require.NoError(t, s.Ping(context.Background()))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("server error", func(t *testing.T) {
		server, _ := newTarget(t, http.StatusBadGateway)
		s, err := New(Config{URL: server.URL}, nil, nil, nil, nil)
		require.NoError(t, err)

		err = s.Ping(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("unreachable", func(t *testing.T) {
		server, _ := newTarget(t, http.StatusOK)
		url := server.URL
		server.Close()

		s, err := New(Config{URL: url, Timeout: time.Second}, nil, nil, nil, nil)
		require.NoError(t, err)
		assert.Error(t, s.Ping(context.Background()))
	})
}

func TestPingJob_ObserverAndLock(t *testing.T) {
	server, hits := newTarget(t, http.StatusOK)
	locker := &fakeLocker{}
	observer := &pingObserver{}

	s, err := New(Config{URL: server.URL, Schedule: "@hourly"}, nil, locker, observer, nil)
	require.NoError(t, err)

	s.pingJob()
	s.pingJob()

	assert.Equal(t, int32(1), hits.Load(), "second tick sees the lock held")
	assert.Equal(t, int32(1), observer.ok.Load())
	assert.Equal(t, 2, locker.attempts)
}

func TestPingJob_LockErrorStillPings(t *testing.T) {
	server, hits := newTarget(t, http.StatusInternalServerError)
	observer := &pingObserver{}

	s, err := New(Config{URL: server.URL, Schedule: "@hourly"}, nil, &fakeLocker{err: errors.New("redis down")}, observer, nil)
	require.NoError(t, err)

	s.pingJob()
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(1), observer.failed.Load())
}

func TestWarmJob(t *testing.T) {
	refresher := &countingRefresher{}
	s, err := New(Config{WarmSchedule: "@every 1h"}, refresher, nil, nil, nil)
	require.NoError(t, err)

	s.warmJob()
	refresher.err = errors.New("sheets down")
	s.warmJob()

	assert.Equal(t, int32(2), refresher.calls.Load())
}

func TestScheduler_RunsJobs(t *testing.T) {
	refresher := &countingRefresher{}
	s, err := New(Config{WarmSchedule: "@every 1s"}, refresher, nil, nil, nil)
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return refresher.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 1, "next", "soon", "dangling"})
	require.Len(t, fields, 2)
	assert.Equal(t, "entry", fields[0].Key)
	assert.Equal(t, "soon", fields[1].Value)
}
