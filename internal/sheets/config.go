// Package sheets reads the visitor table from the Google Sheets v4 API.
package sheets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"visitor-webhook/internal/circuitbreaker"
	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/common/utils"
)

const (
	DefaultRange         = "carteirinhas_ok!A2:D"
	DefaultTimeout       = 10 * time.Second
	DefaultRetryAttempts = 2
	DefaultRetryDelay    = 500 * time.Millisecond
)

// Config holds the spreadsheet coordinates and client behaviour
type Config struct {
	SpreadsheetID   string
	Range           string
	CredentialsJSON string // inline service account JSON
	CredentialsPath string // path to a service account key file
	// Endpoint overrides the API base URL; without credentials the client
	// then runs unauthenticated
	Endpoint      string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Breaker       circuitbreaker.Config
}

func (c Config) backoff() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:   c.RetryAttempts,
		InitialDelay:  c.RetryDelay,
		MaxDelay:      4 * c.RetryDelay,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// FetchBudget is the worst case for one FetchRows call: every attempt runs
// to Timeout and every backoff gets its full jitter.
func (c Config) FetchBudget() time.Duration {
	retry := c.backoff()
	attempts := retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	budget := time.Duration(attempts) * c.Timeout
	delay := retry.InitialDelay
	for i := 1; i < attempts; i++ {
		budget += delay + time.Duration(float64(delay)*retry.JitterFactor)
		delay = time.Duration(float64(delay) * retry.BackoffFactor)
		if retry.MaxDelay > 0 && delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}
	return budget
}

type serviceAccountKey struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// Validate fills defaults and checks that the configuration can produce a client.
// Failures are configuration errors and should stop startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		return errors.ConfigError("SPREADSHEET_ID is required")
	}
	if strings.TrimSpace(c.Range) == "" {
		c.Range = DefaultRange
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Breaker.Validate() != nil {
		hook := c.Breaker.OnStateChange
		c.Breaker = circuitbreaker.SheetsConfig
		c.Breaker.OnStateChange = hook
	}

	switch {
	case c.CredentialsJSON != "":
		return validateCredentials([]byte(c.CredentialsJSON), "GOOGLE_APPLICATION_CREDENTIALS_JSON")
	case c.CredentialsPath != "":
		data, err := os.ReadFile(c.CredentialsPath)
		if err != nil {
			return errors.ConfigError(fmt.Sprintf("cannot read credentials file %s: %v", c.CredentialsPath, err))
		}
		if err := validateCredentials(data, c.CredentialsPath); err != nil {
			return err
		}
		c.CredentialsJSON = string(data)
		return nil
	case c.Endpoint != "":
		return nil
	default:
		return errors.ConfigError("Google credentials are not configured: set GOOGLE_APPLICATION_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS")
	}
}

func validateCredentials(data []byte, source string) error {
	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return errors.ConfigError(fmt.Sprintf("malformed credentials JSON in %s: %v", source, err))
	}
	if key.Type == "" {
		return errors.ConfigError(fmt.Sprintf("credentials in %s have no \"type\" field", source))
	}
	if key.Type == "service_account" && (key.ClientEmail == "" || key.PrivateKey == "") {
		return errors.ConfigError(fmt.Sprintf("service account credentials in %s need client_email and private_key", source))
	}
	return nil
}
