package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"visitor-webhook/internal/common/logging"
)

// DistributedLimiter shares a sliding one-second window per key through Redis.
// When Redis is unreachable it degrades to an in-process limiter.
type DistributedLimiter struct {
	config      Config
	redisClient RedisInterface
	fallback    *LocalLimiter
	failures    atomic.Int64
}

// NewDistributedLimiter creates a new distributed rate limiter
func NewDistributedLimiter(config Config, redisClient RedisInterface) (*DistributedLimiter, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required for distributed rate limiter")
	}
	config.Type = BackendDistributed
	if err := config.Validate(); err != nil {
		return nil, err
	}

	localConfig := config
	localConfig.Type = BackendLocal
	fallback, err := NewLocalLimiter(localConfig)
	if err != nil {
		return nil, err
	}

	return &DistributedLimiter{
		config:      config,
		redisClient: redisClient,
		fallback:    fallback,
	}, nil
}

// Allow records the request in Redis and reports whether key is within
// its burst for the current window
func (rl *DistributedLimiter) Allow(ctx context.Context, key string) bool {
	if !rl.config.Enabled {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	allowed, _, err := rl.redisClient.CheckRateLimit(ctx, rl.config.KeyPrefix+key, rl.config.BurstSize, time.Second)
	if err != nil {
		rl.failures.Add(1)
		logging.GetGlobalLogger().WithContext(ctx).Warn("Redis rate limit check failed, using local limiter",
			logging.String("key", key),
			logging.Err(err),
		)
		return rl.fallback.Allow(ctx, key)
	}
	return allowed
}

// Stats returns rate limiter statistics
func (rl *DistributedLimiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":                string(BackendDistributed),
		"enabled":             rl.config.Enabled,
		"requests_per_second": rl.config.RequestsPerSecond,
		"burst_size":          rl.config.BurstSize,
		"backend":             "redis",
		"key_prefix":          rl.config.KeyPrefix,
		"redis_failures":      rl.failures.Load(),
	}
}

// Health checks the Redis connection
func (rl *DistributedLimiter) Health() error {
	return rl.redisClient.Health()
}

var _ Limiter = (*DistributedLimiter)(nil)
