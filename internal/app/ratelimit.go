package app

import (
	"visitor-webhook/internal/common/logging"
	"visitor-webhook/internal/common/ratelimit"
)

// InitializeRateLimiter creates the webhook rate limiter, distributed when
// Redis is available. It returns nil when rate limiting is disabled.
func (app *App) InitializeRateLimiter() ratelimit.Limiter {
	if !app.Config.RateLimitEnabled {
		app.Logger.Info("Rate Limiting: Disabled")
		return nil
	}

	rateLimitConfig := ratelimit.DefaultConfig()
	rateLimitConfig.RequestsPerSecond = app.Config.RateLimitRPS
	rateLimitConfig.BurstSize = app.Config.RateLimitBurst
	rateLimitConfig.KeyPrefix = "webhook:"

	var redisClient ratelimit.RedisInterface
	if app.RedisClient != nil {
		redisClient = app.RedisClient
		rateLimitConfig.Type = ratelimit.BackendDistributed
	}

	limiter, err := ratelimit.New(rateLimitConfig, redisClient)
	if err != nil {
		app.Logger.Warn("Failed to create rate limiter, continuing without", logging.Err(err))
		return nil
	}

	app.Logger.Info("Rate Limiting: Enabled",
		logging.Int("rps", rateLimitConfig.RequestsPerSecond),
		logging.Int("burst", rateLimitConfig.BurstSize),
		logging.String("backend", string(rateLimitConfig.Type)),
	)
	return limiter
}
