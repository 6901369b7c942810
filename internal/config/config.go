// Package config loads the service configuration from environment variables.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 5000)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: console or json (default: console)
//   - LOG_FILE: Optional log file path (default: stdout)
//
// Google Sheets:
//   - SPREADSHEET_ID: Spreadsheet holding the visitor table (required)
//   - SHEET_RANGE: A1 range to read (default: carteirinhas_ok!A2:D)
//   - GOOGLE_APPLICATION_CREDENTIALS_JSON: Inline service account JSON
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to a service account key file
//   - SHEETS_ENDPOINT: Override for the Sheets API base URL
//   - SHEETS_TIMEOUT: Per-attempt fetch timeout (default: 10s)
//   - SHEETS_RETRY_ATTEMPTS: Attempts per fetch (default: 2)
//
// Lookup Cache:
//   - CACHE_TTL: Snapshot freshness window (default: 30s)
//   - KEY_POLICY: numeric, strip-zeros or opaque (default: numeric)
//   - CACHE_WARM_SCHEDULE: Cron schedule for proactive refresh (default: disabled)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address, empty disables Redis
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable rate limiting (default: true)
//   - RATE_LIMIT_RPS: Sustained requests per second per client (default: 20)
//   - RATE_LIMIT_BURST: Burst size per client (default: 40)
//
// Keep-alive:
//   - KEEPALIVE_URL: URL pinged on a schedule, empty disables it
//   - KEEPALIVE_SCHEDULE: Cron schedule for the ping (default: */10 * * * *)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/common/utils"
	"visitor-webhook/internal/common/validation"
)

// Config holds all configuration values for the service.
// It is loaded using Load() and must be validated with Validate() before use.
type Config struct {
	// Application settings
	Port      string `env:"PORT" validate:"required,numeric"`
	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=console json"`
	LogFile   string `env:"LOG_FILE"`

	// Google Sheets
	SpreadsheetID       string        `env:"SPREADSHEET_ID" validate:"required"`
	SheetRange          string        `env:"SHEET_RANGE" validate:"required,sheet_range"`
	CredentialsJSON     string        `env:"GOOGLE_APPLICATION_CREDENTIALS_JSON"`
	CredentialsPath     string        `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	SheetsEndpoint      string        `env:"SHEETS_ENDPOINT" validate:"omitempty,url"`
	SheetsTimeout       time.Duration `env:"SHEETS_TIMEOUT" validate:"gt=0"`
	SheetsRetryAttempts int           `env:"SHEETS_RETRY_ATTEMPTS" validate:"min=1,max=10"`

	// Lookup cache
	CacheTTL          time.Duration `env:"CACHE_TTL" validate:"gt=0"`
	KeyPolicy         string        `env:"KEY_POLICY" validate:"key_policy"`
	CacheWarmSchedule string        `env:"CACHE_WARM_SCHEDULE" validate:"omitempty,cron_expression"`

	// Redis configuration
	RedisAddress  string `env:"REDIS_ADDRESS" validate:"omitempty,hostname_port"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" validate:"min=0,max=15"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" validate:"min=1"`

	// Rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" validate:"min=1"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" validate:"min=1"`

	// Keep-alive
	KeepaliveURL      string `env:"KEEPALIVE_URL" validate:"omitempty,http_url"`
	KeepaliveSchedule string `env:"KEEPALIVE_SCHEDULE" validate:"cron_expression"`

	// values that could not be parsed during Load
	invalid []string
}

// Load creates a Config from environment variables, using defaults for unset
// ones. Values that fail to parse are reported by Validate.
func Load() *Config {
	c := &Config{
		Port:      getEnv("PORT", "5000"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
		LogFile:   getEnv("LOG_FILE", ""),

		SpreadsheetID:   getEnv("SPREADSHEET_ID", ""),
		SheetRange:      getEnv("SHEET_RANGE", "carteirinhas_ok!A2:D"),
		CredentialsJSON: getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),
		CredentialsPath: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		SheetsEndpoint:  getEnv("SHEETS_ENDPOINT", ""),

		KeyPolicy:         getEnv("KEY_POLICY", "numeric"),
		CacheWarmSchedule: getEnv("CACHE_WARM_SCHEDULE", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),

		KeepaliveURL:      getEnv("KEEPALIVE_URL", ""),
		KeepaliveSchedule: getEnv("KEEPALIVE_SCHEDULE", "*/10 * * * *"),
	}

	c.SheetsTimeout = c.getDurationEnv("SHEETS_TIMEOUT", 10*time.Second)
	c.SheetsRetryAttempts = c.getIntEnv("SHEETS_RETRY_ATTEMPTS", 2)
	c.CacheTTL = c.getDurationEnv("CACHE_TTL", 30*time.Second)
	c.RedisDB = c.getIntEnv("REDIS_DB", 0)
	c.RedisPoolSize = c.getIntEnv("REDIS_POOL_SIZE", 10)
	c.RateLimitRPS = c.getIntEnv("RATE_LIMIT_RPS", 20)
	c.RateLimitBurst = c.getIntEnv("RATE_LIMIT_BURST", 40)

	return c
}

// Validate checks every field and returns a configuration error describing
// all problems found. The service must not start when it fails.
func (c *Config) Validate() error {
	if len(c.invalid) > 0 {
		return errors.ConfigError(fmt.Sprintf("invalid configuration: %s", strings.Join(c.invalid, "; ")))
	}
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if port, _ := strconv.Atoi(c.Port); port < 1 || port > 65535 {
		return errors.ConfigError("PORT must be a valid port number between 1 and 65535")
	}
	if c.CredentialsJSON == "" && c.CredentialsPath == "" && c.SheetsEndpoint == "" {
		return errors.ConfigError("GOOGLE_APPLICATION_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS is required")
	}
	return nil
}

// RedisEnabled reports whether a Redis address is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisAddress != ""
}

// getEnv retrieves an environment variable value or returns a default value if not set
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool forms; anything else yields defaultValue
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (c *Config) getIntEnv(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("%s must be an integer, got %q", key, value))
		return defaultValue
	}
	return n
}

func (c *Config) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := utils.ParseDuration(value)
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("%s must be a duration such as 30s or 5m, got %q", key, value))
		return defaultValue
	}
	return d
}
