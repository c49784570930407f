// Package app wires the server components together and owns their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"greenstorm/pkg/api/handlers"
	"greenstorm/pkg/assistant"
	"greenstorm/pkg/auth"
	"greenstorm/pkg/calendar"
	"greenstorm/pkg/config"
	"greenstorm/pkg/logger"
	"greenstorm/pkg/store"
	"greenstorm/pkg/stream"
	"greenstorm/pkg/tools"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	deps     *handlers.Deps
	cacheTTL time.Duration

	srv *http.Server
}

// New initializes resources that do not require a running context (store,
// provider client, tool registry, sessions). Call Run to start the cache
// sweeper and the HTTP server and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}
	if _, err := store.Migrate(context.Background(), version); err != nil {
		return nil, fmt.Errorf("store migration failed: %w", err)
	}

	cfg := eff.Config
	client := assistant.NewClient(cfg.Assistant.BaseURL, cfg.Assistant.APIKey,
		time.Duration(cfg.Assistant.TimeoutSec)*time.Second)

	cacheTTL := calendar.DefaultCacheTTL
	if cfg.Calendar.CacheTTL != "" {
		d, err := time.ParseDuration(cfg.Calendar.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid calendar cache_ttl %q: %w", cfg.Calendar.CacheTTL, err)
		}
		cacheTTL = d
	}

	registry := tools.NewRegistry(
		tools.NewSearchClient(cfg.Tools.Search.Endpoint, cfg.Tools.Search.APIKey),
		tools.NewScraper(time.Duration(cfg.Tools.Scrape.TimeoutSec)*time.Second),
		calendar.NewService(cacheTTL),
	)

	sessions := auth.NewSessions(
		cfg.Security.Session.CookieName,
		time.Duration(cfg.Security.Session.TTLHours)*time.Hour,
		cfg.Security.Session.Secure,
	)

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		cacheTTL:  cacheTTL,
		deps: &handlers.Deps{
			Client:      client,
			Dispatcher:  stream.NewDispatcher(client, registry),
			AssistantID: cfg.Assistant.AssistantID,
			Sessions:    sessions,
		},
	}
	return a, nil
}

// Run starts the cache sweeper and the HTTP server, and blocks until ctx
// is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	sweepCancel, err := calendar.StartSweeper(ctx, a.eff.Config.Calendar.SweepCron, a.cacheTTL)
	if err != nil {
		return err
	}
	defer sweepCancel()

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.stop()
		return nil
	case err := <-errCh:
		a.stop()
		return err
	}
}

// stop drains the HTTP server and closes the store.
func (a *App) stop() {
	if a.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http_shutdown_error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Warn("store_close_error", "error", err)
	}
	logger.Info("server_stopped")
}
