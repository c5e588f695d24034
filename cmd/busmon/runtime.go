package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/config"
	"github.com/hamed0406/busmonitor/internal/probe"
	"github.com/hamed0406/busmonitor/internal/repo"
	"github.com/hamed0406/busmonitor/internal/repo/factory"
	"github.com/hamed0406/busmonitor/internal/scheduler"
)

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Backend, error) {
	return factory.Open(ctx, factory.Options{
		Driver:      cfg.StoreDriver,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	}, log)
}

func buildProber(cfg config.Config, s config.ServiceConfig) (probe.Prober, error) {
	p, err := probe.New(s.Variant, s.ProbeOptions(cfg.HTTPTimeout))
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", s.Name, err)
	}
	return p, nil
}

// buildServices turns the active configuration into the scheduler registry.
func buildServices(cfg config.Config, log *zap.Logger) ([]scheduler.Service, error) {
	for _, s := range cfg.Skipped() {
		log.Warn("service_skipped", zap.String("service", s.Name), zap.String("reason", "no credentials"))
	}
	var out []scheduler.Service
	for _, s := range cfg.Active() {
		p, err := buildProber(cfg, s)
		if err != nil {
			return nil, err
		}
		if s.DevFallback {
			log.Warn("service_dev_credentials", zap.String("service", s.Name))
		}
		log.Info("service_registered",
			zap.String("service", s.Name),
			zap.String("variant", string(s.Variant)),
			zap.Duration("interval", s.Interval),
		)
		out = append(out, scheduler.Service{Def: s.Definition(), Prober: p})
	}
	return out, nil
}
