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

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fuomag9/targetwatch/internal/api"
	"github.com/fuomag9/targetwatch/internal/config"
	"github.com/fuomag9/targetwatch/internal/database"
	"github.com/fuomag9/targetwatch/internal/jobs"
	"github.com/fuomag9/targetwatch/internal/monitor"
	"github.com/fuomag9/targetwatch/internal/notification"
	"github.com/fuomag9/targetwatch/internal/storage"
	"github.com/fuomag9/targetwatch/internal/storage/gormstore"
	"github.com/fuomag9/targetwatch/internal/storage/memory"
	"github.com/fuomag9/targetwatch/internal/uptime"
	"github.com/fuomag9/targetwatch/internal/websocket"
)

const (
	shutdownTimeout   = 30 * time.Second
	limiterIdleWindow = 10 * time.Minute
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.GeneratedSecret {
		logger.Warn("jwt_secret_generated", zap.String("hint", "set JWT_SECRET so tokens survive restarts"))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	// Outcome fan-out
	hub := websocket.NewHub(cfg.JWTSecret, cfg.CORSOrigins, func(ctx context.Context, id string) (string, error) {
		t, err := store.GetTarget(ctx, id)
		if err != nil {
			return "", err
		}
		return t.OwnerID, nil
	}, logger.Named("ws"))

	dispatcher, err := notification.NewDispatcher(
		notification.ChannelsFromURLs(cfg.Notify.WebhookURL, cfg.Notify.SlackWebhookURL), logger.Named("notify"))
	if err != nil {
		return multierr.Append(err, closeStore())
	}

	guard := monitor.NewSSRFProtection(cfg.Monitor.AllowPrivateIPs)
	opts := []monitor.Option{monitor.WithLogger(logger.Named("executor"))}
	if dispatcher.Enabled() {
		opts = append(opts, monitor.WithNotifier(dispatcher))
	}
	executor := monitor.NewExecutor(
		store,
		monitor.NewHTTPProber(cfg.Monitor.ProbeTimeout.Duration, guard),
		monitor.NewRecorder(store, hub),
		opts...,
	)

	calculator := uptime.NewCalculator(store, cfg.Monitor.UptimeWindow)
	svc := monitor.NewService(store, executor, calculator, guard, monitor.ServiceConfig{
		MaxTargetsPerOwner: cfg.Monitor.MaxTargetsPerOwner,
		MaxIntervalMinutes: cfg.Monitor.MaxIntervalMinutes,
	}, logger.Named("service"))
	summarizer := jobs.NewSummarizer(store, calculator, executor)

	scheduler, err := jobs.NewScheduler(cfg.Jobs.ReconcileSchedule, cfg.Jobs.SummarySchedule, executor, summarizer, logger.Named("jobs"))
	if err != nil {
		return multierr.Append(err, closeStore())
	}

	if err := executor.StartAll(ctx); err != nil {
		return multierr.Append(err, closeStore())
	}
	scheduler.Start()

	limiter := api.NewRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(api.Deps{
			Config:      cfg,
			Service:     svc,
			Executor:    executor,
			Summarizer:  summarizer,
			Hub:         hub,
			RateLimiter: limiter,
			Logger:      logger.Named("http"),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		limiter.Cleanup(gctx, limiterIdleWindow)
		return nil
	})
	g.Go(func() error {
		logger.Info("server_starting", zap.Int("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	scheduler.Stop()
	executor.StopAll()
	err = multierr.Append(err, closeStore())

	if err != nil {
		logger.Error("server_stopped_with_errors", zap.Error(err))
		return err
	}
	logger.Info("server_stopped")
	return nil
}

// openStore returns the configured store and a function that releases it.
func openStore(cfg *config.Config, logger *zap.Logger) (storage.Store, func() error, error) {
	switch cfg.Database.Type {
	case "memory":
		logger.Warn("memory_store_in_use", zap.String("hint", "targets and outcomes are lost on restart"))
		return memory.New(), func() error { return nil }, nil

	case "postgres":
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunMigrations(db); err != nil {
			return nil, nil, multierr.Append(err, database.Close(db))
		}
		logger.Info("database_ready")
		return gormstore.New(db), func() error { return database.Close(db) }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}
