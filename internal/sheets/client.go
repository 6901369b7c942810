package sheets

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"visitor-webhook/internal/circuitbreaker"
	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/common/logging"
	"visitor-webhook/internal/common/utils"
)

// Client fetches the configured range as rows of strings
type Client struct {
	service *sheetsapi.Service
	config  Config
	breaker *circuitbreaker.GoBreakerAdapter
	logger  logging.Logger
}

// NewClient validates config and builds a read-only Sheets client
func NewClient(ctx context.Context, config Config, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope)}
	if config.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(config.CredentialsJSON)))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
		if config.CredentialsJSON == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}

	service, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to create Sheets client: %v", err))
	}

	logger = logger.WithFields(logging.String("component", "sheets"))
	logger.Info("Google Sheets client ready",
		logging.String("spreadsheet_id", config.SpreadsheetID),
		logging.String("range", config.Range),
	)

	return &Client{
		service: service,
		config:  config,
		breaker: circuitbreaker.NewGoBreaker("sheets", config.Breaker, logger),
		logger:  logger,
	}, nil
}

// FetchBudget is the longest FetchRows can take when every attempt times out
func (c *Client) FetchBudget() time.Duration {
	return c.config.FetchBudget()
}

// FetchRows reads every row of the configured range. Transient failures are
// retried; a run of failures opens the circuit and later calls fail fast.
func (c *Client) FetchRows(ctx context.Context) ([][]string, error) {
	var rows [][]string

	retry := c.config.backoff()
	retry.RetryableErrors = func(err error) bool {
		return errors.IsTransient(err) && !circuitbreaker.IsRejected(err)
	}
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.WithContext(ctx).Warn("Retrying Sheets fetch",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Err(err),
		)
	}

	err := utils.RetryWithBackoff(ctx, retry, func() error {
		return c.breaker.Execute(ctx, func() error {
			fetched, err := c.fetchOnce(ctx)
			if err != nil {
				return err
			}
			rows = fetched
			return nil
		})
	})
	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok {
			return nil, appErr
		}
		if ctx.Err() != nil {
			return nil, errors.TimeoutError("sheets fetch", err)
		}
		return nil, errors.TransientFetchError("sheets fetch failed", err)
	}

	c.logger.WithContext(ctx).Debug("Sheets rows fetched", logging.Int("rows", len(rows)))
	return rows, nil
}

// BreakerStats exposes the circuit breaker state for health reporting
func (c *Client) BreakerStats() circuitbreaker.Stats {
	return c.breaker.Stats()
}

func (c *Client) fetchOnce(ctx context.Context) ([][]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.service.Spreadsheets.Values.
		Get(c.config.SpreadsheetID, c.config.Range).
		ValueRenderOption("FORMATTED_VALUE").
		Context(callCtx).
		Do()
	if err != nil {
		return nil, classifyError(callCtx, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellString(v)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// classifyError maps API failures onto the fetch error taxonomy: a rejected
// spreadsheet id or range is a configuration problem, everything else may
// succeed on a later attempt.
func classifyError(ctx context.Context, err error) error {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		code := strconv.Itoa(apiErr.Code)
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusNotFound:
			return errors.TableRangeError(fmt.Sprintf("spreadsheet or range rejected: %s", apiErr.Message), err).WithCode(code)
		default:
			return errors.TransientFetchError(fmt.Sprintf("sheets API returned %d", apiErr.Code), err).WithCode(code)
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.TimeoutError("sheets fetch", err)
	}
	return errors.TransientFetchError("sheets request failed", err)
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
