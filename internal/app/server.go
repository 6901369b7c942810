package app

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"visitor-webhook/internal/common/logging"
	"visitor-webhook/internal/handlers"
	"visitor-webhook/internal/server"
)

// RunServer builds the handler tree and the HTTP server
func (app *App) RunServer() (*server.Server, http.Handler) {
	opts := handlers.Options{
		Breaker: app.Sheets,
		Logger:  app.Logger,
	}
	if app.RedisClient != nil {
		opts.Redis = app.RedisClient
	}
	h := handlers.New(app.Service, app.Cache, opts)

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Metrics, app.InitializeRateLimiter())

	app.Scheduler.Start()

	return server.New(router, app.Config.Port), router
}

// Shutdown stops the background jobs
func (app *App) Shutdown(ctx context.Context) error {
	if app.Scheduler != nil {
		if err := app.Scheduler.Stop(ctx); err != nil {
			app.Logger.Warn("Scheduler did not stop in time", logging.Err(err))
			return err
		}
		app.Logger.Info("Scheduler stopped")
	}
	return nil
}
