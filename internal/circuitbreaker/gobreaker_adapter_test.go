package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/common/logging"
)

func TestGoBreakerAdapter(t *testing.T) {
	logger := logging.GetGlobalLogger()

	t.Run("basic operation", func(t *testing.T) {
		cb := NewGoBreaker("test-basic", Config{
			MaxFailures:           2,
			Timeout:               100 * time.Millisecond,
			MaxConcurrentRequests: 1,
		}, logger)

		assert.Equal(t, StateClosed, cb.State())

		err := cb.Execute(context.Background(), func() error {
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("circuit opens after failures", func(t *testing.T) {
		cb := NewGoBreaker("test-failures", Config{
			MaxFailures:           3,
			Timeout:               100 * time.Millisecond,
			MaxConcurrentRequests: 1,
		}, logger)

		for i := 0; i < 3; i++ {
			err := cb.Execute(context.Background(), func() error {
				return fmt.Errorf("failure %d", i)
			})
			assert.Error(t, err)
		}

		assert.Equal(t, StateOpen, cb.State())
		assert.Equal(t, "open", cb.Stats().State)

		err := cb.Execute(context.Background(), func() error {
			t.Fatal("This should not be called")
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open")
		assert.True(t, errors.IsType(err, errors.ErrTypeTransientFetch))
		assert.True(t, IsRejected(err))
		assert.False(t, IsRejected(fmt.Errorf("failure")))
	})

	t.Run("circuit transitions to half-open", func(t *testing.T) {
		cb := NewGoBreaker("test-half-open", Config{
			MaxFailures:           2,
			Timeout:               50 * time.Millisecond,
			MaxConcurrentRequests: 1,
		}, logger)

		for i := 0; i < 2; i++ {
			_ = cb.Execute(context.Background(), func() error {
				return fmt.Errorf("failure")
			})
		}
		assert.Equal(t, StateOpen, cb.State())

		time.Sleep(60 * time.Millisecond)

		err := cb.Execute(context.Background(), func() error {
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("range errors don't trip breaker", func(t *testing.T) {
		cb := NewGoBreaker("test-range", Config{
			MaxFailures:           2,
			Timeout:               100 * time.Millisecond,
			MaxConcurrentRequests: 1,
		}, logger)

		for i := 0; i < 5; i++ {
			err := cb.Execute(context.Background(), func() error {
				return errors.TableRangeError("Unable to parse range", nil)
			})
			assert.True(t, errors.IsType(err, errors.ErrTypeTableRange))
		}
		assert.Equal(t, StateClosed, cb.State())

		for i := 0; i < 2; i++ {
			_ = cb.Execute(context.Background(), func() error {
				return errors.TransientFetchError("backend error", nil)
			})
		}
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("cancelled context skips call", func(t *testing.T) {
		cb := NewGoBreaker("test-ctx", DefaultConfig(), logger)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := cb.Execute(ctx, func() error {
			called = true
			return nil
		})
		assert.False(t, called)
		assert.True(t, errors.IsType(err, errors.ErrTypeTimeout))
	})

	t.Run("state change hook", func(t *testing.T) {
		var mu sync.Mutex
		var transitions []string

		cb := NewGoBreaker("test-hook", Config{
			MaxFailures:           1,
			Timeout:               time.Second,
			MaxConcurrentRequests: 1,
			OnStateChange: func(name string, from, to State) {
				mu.Lock()
				defer mu.Unlock()
				transitions = append(transitions, from.String()+"->"+to.String())
			},
		}, logger)

		_ = cb.Execute(context.Background(), func() error {
			return fmt.Errorf("failure")
		})

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"closed->open"}, transitions)
	})

	t.Run("invalid config falls back to defaults", func(t *testing.T) {
		cb := NewGoBreaker("test-invalid", Config{}, logger)
		assert.Equal(t, StateClosed, cb.State())

		for i := 0; i < 4; i++ {
			_ = cb.Execute(context.Background(), func() error {
				return fmt.Errorf("failure")
			})
		}
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("stats tracking", func(t *testing.T) {
		cb := NewGoBreaker("test-stats", Config{
			MaxFailures:           10,
			Timeout:               100 * time.Millisecond,
			MaxConcurrentRequests: 1,
		}, logger)

		for i := 0; i < 3; i++ {
			_ = cb.Execute(context.Background(), func() error {
				return nil
			})
		}
		for i := 0; i < 2; i++ {
			_ = cb.Execute(context.Background(), func() error {
				return fmt.Errorf("failure")
			})
		}

		stats := cb.Stats()
		assert.Equal(t, "test-stats", stats.Name)
		assert.Equal(t, "closed", stats.State)
		assert.Equal(t, 5, stats.Requests)
		assert.Equal(t, 3, stats.Successes)
		assert.Equal(t, 2, stats.Failures)
		assert.Equal(t, 2, stats.ConsecutiveFailures)
	})
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, SheetsConfig.Validate())
	assert.Error(t, Config{Timeout: time.Second, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: time.Second}.Validate())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
