// Package app performs application-level orchestration: load config,
// assemble dependencies, run the HTTP server and schedulers.
package app

import (
	"context"
	"fmt"
	"time"

	"papertrade/internal/config"
	"papertrade/internal/engine"
	"papertrade/internal/logger"
	"papertrade/internal/scheduler"
	"papertrade/internal/store"
	"papertrade/internal/strategy"
	apihttp "papertrade/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App holds the assembled services.
type App struct {
	cfg      *config.Config
	store    store.Store
	engine   *engine.Engine
	registry *strategy.Registry
	http     *apihttp.Server
}

// NewApp builds the application from config (does not start it).
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts the HTTP server, the evaluation cycle scheduler and the daily
// performance snapshot, blocking until ctx is cancelled or a service fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	cycle := scheduler.NewAlignedScheduler(ctx, "cycle",
		time.Duration(a.cfg.Engine.CycleIntervalSeconds)*time.Second,
		time.Duration(a.cfg.Engine.CycleOffsetSeconds)*time.Second)
	cycle.RunImmediately = a.cfg.Engine.RunImmediately
	group.Go(func() error {
		cycle.Start(func() {
			if _, err := a.engine.RunCycle(ctx); err != nil {
				logger.Errorf("cycle failed: %v", err)
			}
		})
		return nil
	})

	snapshot := scheduler.NewAlignedScheduler(ctx, "performance-snapshot", 24*time.Hour, time.Minute)
	group.Go(func() error {
		snapshot.Start(func() {
			if err := a.engine.SnapshotPerformance(ctx); err != nil {
				logger.Errorf("performance snapshot failed: %v", err)
			}
		})
		return nil
	})

	defer func() {
		if err := a.store.Close(); err != nil {
			logger.Warnf("closing store: %v", err)
		}
	}()
	logger.Infof("papertrade running: http=%s cycle=%ds", a.http.Addr(), a.cfg.Engine.CycleIntervalSeconds)
	return group.Wait()
}

// Engine exposes the trading engine (for testing and replay harnesses).
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}
