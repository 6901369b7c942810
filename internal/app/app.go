package app

import (
	"context"
	"fmt"
	"time"

	"visitor-webhook/internal/circuitbreaker"
	"visitor-webhook/internal/common/logging"
	"visitor-webhook/internal/config"
	"visitor-webhook/internal/keepalive"
	"visitor-webhook/internal/metrics"
	"visitor-webhook/internal/redis"
	"visitor-webhook/internal/sheets"
	"visitor-webhook/internal/visitors"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Metrics     *metrics.Metrics
	Sheets      *sheets.Client
	Cache       *visitors.LookupCache
	Service     *visitors.Service
	RedisClient *redis.Client
	Scheduler   *keepalive.Scheduler
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Logger:  logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	if err := app.initializeSheets(ctx); err != nil {
		return nil, err
	}

	if err := app.initializeLookup(); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		// Redis is optional, just log the error
		app.Logger.Warn("Redis initialization failed, continuing without Redis", logging.Err(err))
	}

	if err := app.initializeScheduler(); err != nil {
		return nil, err
	}

	return app, nil
}

func (app *App) initializeSheets(ctx context.Context) error {
	breaker := circuitbreaker.SheetsConfig
	breaker.OnStateChange = func(name string, from, to circuitbreaker.State) {
		app.Metrics.BreakerStateChanged(name, from, to)
		app.Logger.Warn("Sheets circuit breaker state changed",
			logging.String("from", from.String()),
			logging.String("to", to.String()),
		)
	}

	client, err := sheets.NewClient(ctx, sheets.Config{
		SpreadsheetID:   app.Config.SpreadsheetID,
		Range:           app.Config.SheetRange,
		CredentialsJSON: app.Config.CredentialsJSON,
		CredentialsPath: app.Config.CredentialsPath,
		Endpoint:        app.Config.SheetsEndpoint,
		Timeout:         app.Config.SheetsTimeout,
		RetryAttempts:   app.Config.SheetsRetryAttempts,
		Breaker:         breaker,
	}, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	app.Sheets = client
	app.Logger.Info("Sheets: Configured",
		logging.String("spreadsheet_id", app.Config.SpreadsheetID),
		logging.String("range", app.Config.SheetRange),
	)
	return nil
}

func (app *App) initializeLookup() error {
	policy, err := visitors.ParseKeyPolicy(app.Config.KeyPolicy)
	if err != nil {
		return err
	}
	normalizer := visitors.NewNormalizer(policy)

	app.Cache = visitors.NewLookupCache(app.Sheets, normalizer, visitors.CacheConfig{
		TTL:            app.Config.CacheTTL,
		RefreshTimeout: app.Sheets.FetchBudget() + time.Second,
		Logger:         app.Logger,
		Observer:       app.Metrics,
	})
	app.Service = visitors.NewService(app.Cache, normalizer, app.Logger, app.Metrics)

	app.Logger.Info("Lookup cache: Configured",
		logging.Duration("ttl", app.Config.CacheTTL),
		logging.String("key_policy", string(policy)),
	)
	return nil
}

func (app *App) initializeScheduler() error {
	// nil interfaces rather than typed nil pointers when Redis is off
	var locker keepalive.Locker
	if app.RedisClient != nil {
		locker = app.RedisClient
	}

	scheduler, err := keepalive.New(keepalive.Config{
		URL:          app.Config.KeepaliveURL,
		Schedule:     app.Config.KeepaliveSchedule,
		WarmSchedule: app.Config.CacheWarmSchedule,
		Timeout:      app.Config.SheetsTimeout,
	}, app.Cache, locker, app.Metrics, app.Logger)
	if err != nil {
		return err
	}
	app.Scheduler = scheduler
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Error closing Redis client", logging.Err(err))
		}
	}
}
