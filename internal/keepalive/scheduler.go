// Package keepalive runs the scheduled background jobs: a self ping that keeps
// free-tier hosts from idling the service, and a cache warmer.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	commonhttp "visitor-webhook/internal/common/http"
	"visitor-webhook/internal/common/logging"
)

const pingLockKey = "keepalive:ping"

// Refresher reloads the lookup cache
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Locker coordinates replicas so a scheduled ping runs once per tick
type Locker interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

// Observer is told about each ping
type Observer interface {
	KeepalivePing(ok bool)
}

// Config controls which jobs run and when. Empty schedules or URL disable
// the matching job.
type Config struct {
	URL          string
	Schedule     string
	WarmSchedule string
	Timeout      time.Duration
	// LockTTL bounds how long one replica holds the ping for a tick
	LockTTL time.Duration
}

// Scheduler owns the cron runner and its jobs
type Scheduler struct {
	cron      *cron.Cron
	config    Config
	client    *http.Client
	refresher Refresher
	locker    Locker
	observer  Observer
	logger    logging.Logger
}

// New validates the schedules and registers the enabled jobs. locker and
// observer may be nil.
func New(config Config, refresher Refresher, locker Locker, observer Observer, logger logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 30 * time.Second
	}
	logger = logger.WithFields(logging.String("component", "keepalive"))

	cronLog := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		config:    config,
		client:    commonhttp.NewHTTPClient(commonhttp.WithTimeout(config.Timeout), commonhttp.WithUserAgent("visitor-webhook-keepalive/1.0")),
		refresher: refresher,
		locker:    locker,
		observer:  observer,
		logger:    logger,
	}

	if config.URL != "" && config.Schedule != "" {
		if _, err := s.cron.AddFunc(config.Schedule, s.pingJob); err != nil {
			return nil, fmt.Errorf("invalid keep-alive schedule %q: %w", config.Schedule, err)
		}
	}
	if refresher != nil && config.WarmSchedule != "" {
		if _, err := s.cron.AddFunc(config.WarmSchedule, s.warmJob); err != nil {
			return nil, fmt.Errorf("invalid cache warm schedule %q: %w", config.WarmSchedule, err)
		}
	}

	return s, nil
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	if s.Jobs() == 0 {
		s.logger.Info("No scheduled jobs configured")
		return
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", logging.Int("jobs", s.Jobs()))
}

// Stop stops scheduling and waits for running jobs until ctx ends
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping requests the keep-alive URL once. Any 2xx or 3xx status counts as success.
func (s *Scheduler) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return fmt.Errorf("build keep-alive request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("keep-alive request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("keep-alive returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Scheduler) pingJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, pingLockKey, s.config.LockTTL)
		if err != nil {
			s.logger.Warn("Keep-alive lock unavailable, pinging anyway", logging.Err(err))
		} else if !acquired {
			s.logger.Debug("Keep-alive ping handled by another replica")
			return
		}
	}

	start := time.Now()
	err := s.Ping(ctx)
	if s.observer != nil {
		s.observer.KeepalivePing(err == nil)
	}
	if err != nil {
		s.logger.Warn("Keep-alive ping failed", logging.String("url", s.config.URL), logging.Err(err))
		return
	}
	s.logger.Debug("Keep-alive ping sent", logging.Duration("duration", time.Since(start)))
}

func (s *Scheduler) warmJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.config.Timeout)
	defer cancel()

	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Warn("Scheduled cache refresh failed", logging.Err(err))
		return
	}
	s.logger.Debug("Scheduled cache refresh completed")
}

// cronLogger adapts logging.Logger to cron.Logger
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvFields(keysAndValues)...)
}

func kvFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
