package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"housebot/server/config"
	"housebot/server/internal/api"
	"housebot/server/internal/bot"
	"housebot/server/internal/comparison"
	"housebot/server/internal/database"
	"housebot/server/internal/geocoding"
	"housebot/server/internal/history"
	"housebot/server/internal/metrics"
	"housebot/server/internal/processor"
	"housebot/server/internal/queue"
	"housebot/server/internal/render"
	"housebot/server/internal/scheduler"
	"housebot/server/internal/telegram"

	"github.com/sirupsen/logrus"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Bot failed")
	}
}

// run wires the bot and blocks until SIGINT or SIGTERM. Startup errors are
// returned so deferred cleanup still runs.
func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewDatabase(cfg.DSN(), database.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	err = db.CheckSchema(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("database schema check failed: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"host": cfg.Database.Host,
		"name": cfg.Database.Name,
	}).Info("Connected to database")

	// Initialize geocoder
	cache := newGeocodeCache(ctx, cfg, logger)
	if rc, ok := cache.(*geocoding.RedisCache); ok {
		defer func() {
			if err := rc.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close Redis cache")
			}
		}()
	}
	geocoder := geocoding.NewGeocoder(logger, geocoding.Options{
		BaseURL:   cfg.Geocoding.BaseURL,
		UserAgent: cfg.Geocoding.UserAgent,
		Timeout:   cfg.Geocoding.Timeout,
	}, cache)

	provider := metrics.NewProvider(version)
	hist := history.NewStore()
	sessions := comparison.NewSessions()
	machine := comparison.NewMachine(sessions, hist, db, logger)
	tg := telegram.NewService(logger, cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.RequestTimeout)

	handler := bot.New(bot.Deps{
		Sender:   tg,
		Store:    db,
		Geocoder: geocoder,
		Renderer: render.NewRenderer(logger, cfg.Charts.TempDir),
		History:  hist,
		Machine:  machine,
		Metrics:  provider,
		Logger:   logger,
	})

	// Initialize update pipeline
	updates := queue.NewUpdateQueue(cfg.Queue.Shards, cfg.Queue.ShardBuffer, logger)
	proc := processor.NewUpdateProcessor(handler, updates, cfg.Queue.UpdateTimeout, logger, provider)

	provider.GaugeFunc("queue_depth", "Updates waiting in the per-user shards.", func() float64 {
		return float64(updates.Len())
	})
	provider.GaugeFunc("active_sessions", "Users in the middle of a comparison.", func() float64 {
		return float64(sessions.Active())
	})
	provider.GaugeFunc("history_users", "Users with at least one remembered lookup.", func() float64 {
		return float64(hist.Users())
	})

	// Initialize background jobs
	jobs := scheduler.NewScheduler(logger,
		scheduler.SessionExpiryJob(sessions, cfg.Session.IdleTimeout, cfg.Session.SweepInterval, logger, provider.AddExpired),
		scheduler.DatabaseCheckJob(db, cfg.Database.CheckInterval, cfg.Database.QueryTimeout),
	)

	var server *http.Server
	if cfg.HTTP.Enabled {
		router := api.NewRouter(api.NewHandler(db, hist, logger), provider.Handler(), cfg.HTTP.AllowedOrigins, cfg.HTTP.APIToken)
		server = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Infof("Starting ops HTTP server on %s", cfg.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Ops HTTP server failed")
			}
		}()
	}

	proc.Start(ctx)
	jobs.Start()

	poller := telegram.NewPoller(tg, logger, cfg.Telegram.PollTimeout)
	if err := poller.Run(ctx, proc.Enqueue); err != nil {
		logger.WithError(err).Error("Telegram polling stopped")
	}

	logger.Info("Shutting down")
	proc.Stop()
	jobs.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Ops HTTP server shutdown failed")
		}
	}
	return nil
}

// newGeocodeCache returns a Redis cache when one is configured and reachable,
// otherwise an in-memory LRU. It returns nil when caching is disabled.
func newGeocodeCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) geocoding.Cache {
	if addr := cfg.Geocoding.RedisAddr; addr != "" {
		rc, err := geocoding.NewRedisCache(ctx, addr, cfg.Geocoding.CacheTTL)
		if err == nil {
			logger.WithField("addr", addr).Info("Using Redis geocode cache")
			return rc
		}
		logger.WithError(err).Warn("Redis unavailable, falling back to in-memory geocode cache")
	}

	if cfg.Geocoding.CacheSize <= 0 {
		return nil
	}
	mc, err := geocoding.NewMemoryCache(cfg.Geocoding.CacheSize)
	if err != nil {
		logger.WithError(err).Warn("Geocode cache disabled")
		return nil
	}
	return mc
}
