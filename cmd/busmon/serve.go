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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/busmonitor/internal/config"
	"github.com/hamed0406/busmonitor/internal/httpapi"
	"github.com/hamed0406/busmonitor/internal/logging"
	"github.com/hamed0406/busmonitor/internal/metrics"
	"github.com/hamed0406/busmonitor/internal/notify"
	"github.com/hamed0406/busmonitor/internal/scheduler"
)

func createServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, alerter and read API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, config.FromEnv())
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) (err error) {
	if verr := cfg.Validate(); verr != nil {
		return fmt.Errorf("invalid configuration: %w", verr)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	services, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		logger.Warn("no_services", zap.String("hint", "set vendor credentials or MONITOR_DEV_DEFAULTS=true"))
	}

	orch, err := scheduler.New(logger, store, services, scheduler.Options{
		Retention:       cfg.Retention,
		CleanupInterval: cfg.CleanupInterval,
	})
	if err != nil {
		return err
	}
	alerter := scheduler.NewAlerter(logger, store, store, notify.Build(cfg.SlackWebhookURL, logger), scheduler.AlerterConfig{
		AlertOnRecovery: cfg.AlertOnRecovery,
		Cooldown:        cfg.AlertCooldown,
		PollInterval:    cfg.AlertPoll,
	})

	api := httpapi.NewServer(logger, store, orch)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(orch.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(alerter.Run(gctx)) })
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("api_shutdown")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
