package visitors

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/common/logging"
)

const (
	// DefaultTTL is how long a snapshot is served without refetching
	DefaultTTL = 30 * time.Second
	// DefaultRefreshTimeout bounds a single refresh, including retries
	DefaultRefreshTimeout = 30 * time.Second

	refreshKey = "refresh"
)

// Fetcher reads every row of the remote table
type Fetcher interface {
	FetchRows(ctx context.Context) ([][]string, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context) ([][]string, error)

// FetchRows calls f(ctx)
func (f FetcherFunc) FetchRows(ctx context.Context) ([][]string, error) {
	return f(ctx)
}

// CacheState describes the snapshot held by the cache
type CacheState string

const (
	StateEmpty CacheState = "empty"
	StateFresh CacheState = "fresh"
	StateStale CacheState = "stale"
)

// Snapshot is an immutable index together with the time its fetch completed
type Snapshot struct {
	Index     Index
	FetchedAt time.Time
	Rows      int
	Skipped   int

	// generation of the cache when the fetch started
	generation uint64
}

// CacheConfig configures a LookupCache
type CacheConfig struct {
	TTL            time.Duration
	RefreshTimeout time.Duration
	Clock          func() time.Time
	Logger         logging.Logger
	Observer       Observer
}

// CacheStats is a point-in-time view of the cache
type CacheStats struct {
	State       CacheState `json:"state"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	AgeSeconds  float64    `json:"age_seconds"`
	TTLSeconds  float64    `json:"ttl_seconds"`
	Keys        int        `json:"keys"`
	Rows        int        `json:"rows"`
	Refreshing  bool       `json:"refreshing"`
	Refreshes   uint64     `json:"refreshes"`
	Failures    uint64     `json:"failures"`
	StaleServes uint64     `json:"stale_serves"`
	LastError   string     `json:"last_error,omitempty"`
}

// LookupCache holds the current snapshot of the remote table and refreshes it
// when it is older than the TTL. At most one refresh runs at a time; callers
// that already have a snapshot keep serving it while a refresh is in flight.
type LookupCache struct {
	fetcher        Fetcher
	normalizer     *Normalizer
	ttl            time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	logger         logging.Logger
	observer       Observer

	snapshot   atomic.Pointer[Snapshot]
	generation atomic.Uint64
	refreshing atomic.Bool
	group      singleflight.Group

	// swapMu orders snapshot installation against Invalidate
	swapMu sync.Mutex

	refreshes   atomic.Uint64
	failures    atomic.Uint64
	staleServes atomic.Uint64
	lastErrMu   sync.RWMutex
	lastErr     string
}

// NewLookupCache creates an empty cache. Nothing is fetched until the first Get.
func NewLookupCache(fetcher Fetcher, normalizer *Normalizer, config CacheConfig) *LookupCache {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = DefaultRefreshTimeout
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}
	if config.Observer == nil {
		config.Observer = noopObserver{}
	}

	return &LookupCache{
		fetcher:        fetcher,
		normalizer:     normalizer,
		ttl:            config.TTL,
		refreshTimeout: config.RefreshTimeout,
		now:            config.Clock,
		logger:         config.Logger.WithFields(logging.String("component", "visitor_cache")),
		observer:       config.Observer,
	}
}

// Get returns the records stored under key, refreshing the snapshot first when
// it is missing, older than the TTL, or forceRefresh is set.
//
// If the refresh fails and a previous snapshot exists, that snapshot is served.
// Without a previous snapshot the fetch error is returned. A caller whose ctx
// ends while waiting gets a timeout error; the refresh itself keeps running.
func (c *LookupCache) Get(ctx context.Context, key Key, forceRefresh bool) ([]Record, error) {
	snap := c.snapshot.Load()
	if snap != nil && !forceRefresh {
		if c.isFresh(snap) {
			c.observer.CacheHit()
			return snap.Index.Lookup(key), nil
		}
		if c.refreshing.Load() {
			c.serveStale("refresh in flight")
			return snap.Index.Lookup(key), nil
		}
	}
	c.observer.CacheMiss()

	fresh, err := c.waitRefresh(ctx, forceRefresh)
	if err != nil {
		if prior := c.snapshot.Load(); prior != nil {
			c.serveStale("refresh failed")
			return prior.Index.Lookup(key), nil
		}
		return nil, err
	}
	return fresh.Index.Lookup(key), nil
}

// Refresh forces a refetch and waits for it. Unlike Get it never falls back
// to the previous snapshot.
func (c *LookupCache) Refresh(ctx context.Context) error {
	_, err := c.waitRefresh(ctx, true)
	return err
}

// Invalidate drops the current snapshot. A refresh already in flight will not
// install its result, and callers arriving after Invalidate that join it
// fetch once more when it completes.
func (c *LookupCache) Invalidate() {
	c.swapMu.Lock()
	c.generation.Add(1)
	c.snapshot.Store(nil)
	c.swapMu.Unlock()

	c.logger.Info("Visitor cache invalidated")
}

// Snapshot returns the current snapshot, or nil when empty
func (c *LookupCache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Stats reports the current cache state
func (c *LookupCache) Stats() CacheStats {
	stats := CacheStats{
		State:       StateEmpty,
		TTLSeconds:  c.ttl.Seconds(),
		Refreshing:  c.refreshing.Load(),
		Refreshes:   c.refreshes.Load(),
		Failures:    c.failures.Load(),
		StaleServes: c.staleServes.Load(),
	}

	c.lastErrMu.RLock()
	stats.LastError = c.lastErr
	c.lastErrMu.RUnlock()

	snap := c.snapshot.Load()
	if snap == nil {
		return stats
	}

	fetchedAt := snap.FetchedAt
	stats.FetchedAt = &fetchedAt
	stats.AgeSeconds = c.now().Sub(snap.FetchedAt).Seconds()
	stats.Keys = len(snap.Index)
	stats.Rows = snap.Rows
	if c.isFresh(snap) {
		stats.State = StateFresh
	} else {
		stats.State = StateStale
	}
	return stats
}

func (c *LookupCache) isFresh(snap *Snapshot) bool {
	return c.now().Sub(snap.FetchedAt) <= c.ttl
}

func (c *LookupCache) serveStale(reason string) {
	c.staleServes.Add(1)
	c.observer.StaleServed()
	c.logger.Warn("Serving stale visitor snapshot", logging.String("reason", reason))
}

// waitRefresh joins the single refresh flight, starting one if none is
// running. A flight that began before the caller's view of the last
// Invalidate is joined, then followed by one more flight.
func (c *LookupCache) waitRefresh(ctx context.Context, force bool) (*Snapshot, error) {
	generation := c.generation.Load()

	snap, err := c.joinRefresh(ctx, force)
	if err != nil || snap.generation >= generation {
		return snap, err
	}
	return c.joinRefresh(ctx, force)
}

func (c *LookupCache) joinRefresh(ctx context.Context, force bool) (*Snapshot, error) {
	// The refresh runs detached from the caller so an abandoned request does
	// not cancel a fetch other callers are waiting on.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		// another refresh may have completed between the caller's check and now
		if cur := c.snapshot.Load(); cur != nil && !force && c.isFresh(cur) {
			return cur, nil
		}
		return c.refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, errors.TimeoutError("visitor table refresh", ctx.Err())
	}
}

func (c *LookupCache) refresh(parent context.Context) (snap *Snapshot, err error) {
	generation := c.generation.Load()
	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	start := c.now()

	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = errors.InternalError("visitor table refresh panicked", fmt.Errorf("%v", r))
		}
		if err != nil {
			c.recordFailure(c.now().Sub(start), err)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, c.refreshTimeout)
	defer cancel()

	rows, err := c.fetcher.FetchRows(ctx)
	if err != nil {
		if _, ok := errors.AsAppError(err); !ok {
			err = errors.TransientFetchError("failed to fetch visitor table", err)
		}
		return nil, err
	}

	raw := make([]RawRow, len(rows))
	for i, row := range rows {
		raw[i] = RawRow(row)
	}
	idx, buildStats := BuildIndex(raw, c.normalizer)

	snap = &Snapshot{
		Index:      idx,
		FetchedAt:  c.now(),
		Rows:       buildStats.Rows,
		Skipped:    buildStats.Skipped,
		generation: generation,
	}

	c.swapMu.Lock()
	installed := c.generation.Load() == generation
	if installed {
		c.snapshot.Store(snap)
	}
	c.swapMu.Unlock()

	duration := snap.FetchedAt.Sub(start)
	c.refreshes.Add(1)
	c.observer.RefreshSucceeded(duration, buildStats.Rows, len(idx))
	c.logger.Info("Visitor table refreshed",
		logging.Int("rows", buildStats.Rows),
		logging.Int("keys", len(idx)),
		logging.Int("skipped", buildStats.Skipped),
		logging.Int("duplicates", buildStats.Duplicates),
		logging.Duration("duration", duration),
		logging.Bool("installed", installed),
	)

	return snap, nil
}

func (c *LookupCache) recordFailure(duration time.Duration, err error) {
	c.failures.Add(1)
	c.lastErrMu.Lock()
	c.lastErr = err.Error()
	c.lastErrMu.Unlock()

	c.observer.RefreshFailed(duration, err)
	c.logger.Error("Visitor table refresh failed", err,
		logging.String("error_type", string(errors.GetType(err))),
		logging.Duration("duration", duration),
	)
}
