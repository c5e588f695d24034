// Package factory opens the configured repo backend.
package factory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/repo"
	"github.com/hamed0406/busmonitor/internal/repo/memory"
	"github.com/hamed0406/busmonitor/internal/repo/postgres"
	"github.com/hamed0406/busmonitor/internal/repo/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Drivers lists the accepted driver names.
var Drivers = []string{DriverSQLite, DriverPostgres, DriverMemory}

type Options struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
}

func Open(ctx context.Context, o Options, log *zap.Logger) (repo.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(o.Driver)) {
	case DriverSQLite, "":
		s, err := sqlite.New(ctx, o.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("store_opened", zap.String("driver", DriverSQLite), zap.String("path", o.SQLitePath))
		return s, nil
	case DriverPostgres:
		if o.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver needs DATABASE_URL")
		}
		s, err := postgres.New(ctx, o.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		log.Info("store_opened", zap.String("driver", DriverPostgres))
		return s, nil
	case DriverMemory:
		log.Warn("store_opened", zap.String("driver", DriverMemory), zap.String("note", "records are lost on exit"))
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q (want one of %s)", o.Driver, strings.Join(Drivers, ", "))
	}
}
