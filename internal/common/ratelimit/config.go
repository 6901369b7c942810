// Package ratelimit throttles inbound requests per client, either in process
// with golang.org/x/time/rate or across replicas through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	Stats() map[string]interface{}
	Health() error
}

// RedisInterface defines the minimal Redis interface needed for rate limiting
type RedisInterface interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
	Health() error
}

// BackendType defines the rate limiter backend
type BackendType string

const (
	BackendLocal       BackendType = "local"
	BackendDistributed BackendType = "distributed"
)

// Config represents rate limiter configuration
type Config struct {
	RequestsPerSecond int         `json:"requests_per_second"`
	BurstSize         int         `json:"burst_size"`
	Enabled           bool        `json:"enabled"`
	Type              BackendType `json:"type"`

	// Distributed backend settings
	KeyPrefix string `json:"key_prefix,omitempty"`

	// Cleanup settings for local limiters
	MaxKeys       int           `json:"max_keys,omitempty"`
	CleanupPeriod time.Duration `json:"cleanup_period,omitempty"`
}

// Validate fills defaults and rejects unknown backends
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.BurstSize <= 0 {
		c.BurstSize = c.RequestsPerSecond
	}
	if c.Type == "" {
		c.Type = BackendLocal
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
	if c.CleanupPeriod <= 0 {
		c.CleanupPeriod = 5 * time.Minute
	}

	switch c.Type {
	case BackendLocal:
	case BackendDistributed:
		if c.KeyPrefix == "" {
			c.KeyPrefix = "ratelimit:"
		}
	default:
		return fmt.Errorf("unsupported rate limiter backend type: %s", c.Type)
	}
	return nil
}

// DefaultConfig returns a default rate limiter configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 20,
		BurstSize:         40,
		Enabled:           true,
		Type:              BackendLocal,
		KeyPrefix:         "ratelimit:",
		MaxKeys:           10000,
		CleanupPeriod:     5 * time.Minute,
	}
}

// New creates a limiter for config. The distributed backend needs a Redis
// client; without one New falls back to the local backend.
func New(config Config, redisClient RedisInterface) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Type == BackendDistributed && redisClient != nil {
		return NewDistributedLimiter(config, redisClient)
	}
	config.Type = BackendLocal
	return NewLocalLimiter(config)
}
