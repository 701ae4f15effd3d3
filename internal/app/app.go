package app

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/config"
	"github.com/MrSnakeDoc/breachwatch/internal/export"
	"github.com/MrSnakeDoc/breachwatch/internal/feeds"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/scheduler"
	"github.com/MrSnakeDoc/breachwatch/internal/version"
)

type App struct {
	cfg       *config.Config
	logger    logger.Logger
	core      *Core
	server    *httpserver.Server
	reloader  *scheduler.FeedReloader
	retention *scheduler.RetentionCollector
}

// New opens the store, applies migrations and the optional seed file, and
// builds the HTTP server and background jobs.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	core, err := OpenCore(ctx, cfg, loggerClient, true)
	if err != nil {
		return nil, err
	}

	if cfg.SeedFile != "" {
		if _, err := core.Seed(ctx, cfg.SeedFile); err != nil {
			core.Close()
			return nil, fmt.Errorf("failed to apply seed file: %w", err)
		}
	}

	a := &App{cfg: cfg, logger: loggerClient, core: core}

	a.retention = scheduler.NewRetentionCollector(core.Store, loggerClient, cfg.RetentionInterval, cfg.RetentionMaxAge)

	d := deps.Deps{
		Logger:            loggerClient,
		StartTime:         time.Now(),
		Version:           version.Version,
		Commit:            version.Commit,
		BuildDate:         version.BuildDate,
		GoVersion:         version.GoVersion,
		TimeNow:           time.Now,
		AllowedHosts:      cfg.AllowedHosts,
		AllowedCIDRS:      cfg.AllowedCIDRS,
		TrustProxy:        cfg.TrustProxy,
		CORSOrigins:       cfg.CORSOrigins,
		LoginBurst:        cfg.LoginBurst,
		LoginRefillPerMin: cfg.LoginRefillPerMin,
		DB:                core.Store,
		CacheMode:         core.CacheMode,
		Auth:              core.Auth,
		Watchlist:         core.Watchlist,
		Breaches:          core.Breaches,
		Stats:             core.Stats,
		Accounts:          core.Accounts,
		Notifications:     core.Notifications,
		Audit:             core.Audit,
		Exporters:         export.Default(),
	}
	if core.RedisClient != nil {
		d.Cache = pinger(func(ctx context.Context) error { return core.RedisClient.Ping(ctx).Err() })
	}

	if cfg.FeedFile != "" {
		loggerClient.Info("feed file configured, initializing feed reloader",
			logger.String("file", cfg.FeedFile))
		d.ReloadTrigger = make(chan struct{}, 1)
		a.reloader = scheduler.NewFeedReloader(
			core.Importer,
			cfg.FeedFile,
			feeds.FormatFor(cfg.FeedFile, cfg.FeedFormat),
			loggerClient,
			cfg.FeedInterval,
			d.ReloadTrigger,
		)
		d.Feed = a.reloader
	} else {
		loggerClient.Info("feed file not configured, feed import disabled")
	}

	a.server = httpserver.New(cfg, loggerClient, d)
	return a, nil
}

type pinger func(ctx context.Context) error

func (p pinger) Ping(ctx context.Context) error { return p(ctx) }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.core.Close()

	a.logger.Infof("🚀 Starting BreachWatch %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("BreachWatch %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start feed reloader: %w", err)
		}
		a.logger.Info("feed reloader started",
			logger.Duration("interval", a.cfg.FeedInterval))
	}

	if err := a.retention.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retention collector: %w", err)
	}
	a.logger.Info("retention collector started",
		logger.Duration("interval", a.cfg.RetentionInterval),
		logger.Duration("max_age", a.cfg.RetentionMaxAge))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.retention.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.logger.Info("✅ BreachWatch stopped cleanly")
	return nil
}
