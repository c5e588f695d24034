package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/domain"
	"github.com/hamed0406/busmonitor/internal/repo"
)

var (
	_ repo.Store      = (*Store)(nil)
	_ repo.AlertStore = (*Store)(nil)
)

// SchemaSQL creates the tables when missing. Applied by New.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS monitoring_data (
  id            BIGSERIAL PRIMARY KEY,
  service_name  TEXT        NOT NULL,
  timestamp     TIMESTAMPTZ NOT NULL,
  time_slot     TEXT        NOT NULL,
  status        TEXT        NOT NULL CHECK (status IN ('success', 'error')),
  request_data  TEXT        NOT NULL DEFAULT '',
  response_data TEXT        NOT NULL DEFAULT '',
  error_message TEXT        NOT NULL DEFAULT '',
  check_id      TEXT        NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_monitoring_service_time ON monitoring_data (service_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_monitoring_time         ON monitoring_data (timestamp);

CREATE TABLE IF NOT EXISTS alert_state (
  service_name TEXT PRIMARY KEY,
  healthy      BOOLEAN NOT NULL,
  last_sent_at TIMESTAMPTZ NULL
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger

	// Now is the clock used for windows and retention.
	Now func() time.Time
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, SchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Debug("postgres_ready")
	return &Store{pool: pool, log: log, Now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rs ...*domain.MonitoringRecord) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]int64, len(rs))
	created := s.Now().UTC()
	for i, r := range rs {
		at := r.CreatedAt
		if at.IsZero() {
			at = created
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO monitoring_data
			   (service_name, timestamp, time_slot, status, request_data, response_data, error_message, check_id, created_at)
			 VALUES
			   ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			r.ServiceName, r.Timestamp, r.TimeSlot, string(r.Status),
			r.RequestData, r.ResponseData, r.ErrorMessage, r.CheckID, at,
		).Scan(&ids[i])
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i, r := range rs {
		r.ID = ids[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = created
		}
	}
	return nil
}

func (s *Store) collapse(ctx context.Context, q string, args ...any) (*repo.Collapser, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	defer rows.Close()

	c := repo.NewCollapser()
	for rows.Next() {
		var (
			r  domain.MonitoringRecord
			st string
		)
		if err := rows.Scan(&r.ServiceName, &r.Timestamp, &r.TimeSlot, &st,
			&r.RequestData, &r.ResponseData, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Status = domain.Status(st)
		c.Add(&r)
	}
	return c, rows.Err()
}

func (s *Store) ReadService(ctx context.Context, name string, window time.Duration) (map[string]domain.SlotRecord, error) {
	c, err := s.collapse(ctx, `
SELECT service_name, timestamp, time_slot, status, request_data, response_data, error_message
  FROM monitoring_data
 WHERE service_name = $1 AND timestamp >= $2
 ORDER BY timestamp DESC, id DESC`, name, s.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	return c.Service(name), nil
}

func (s *Store) ReadAll(ctx context.Context, window time.Duration) (map[string]map[string]domain.SlotRecord, error) {
	c, err := s.collapse(ctx, `
SELECT service_name, timestamp, time_slot, status, request_data, response_data, error_message
  FROM monitoring_data
 WHERE timestamp >= $1
 ORDER BY service_name, timestamp DESC, id DESC`, s.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	return c.All(), nil
}

func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitoring_data WHERE timestamp < $1`, s.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	st := domain.StoreStats{Services: make(map[string]domain.ServiceStats)}

	rows, err := s.pool.Query(ctx, `
SELECT service_name, COUNT(*), MIN(timestamp), MAX(timestamp)
  FROM monitoring_data
 GROUP BY service_name`)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			sv   domain.ServiceStats
		)
		if err := rows.Scan(&name, &sv.TotalRecords, &sv.OldestRecord, &sv.NewestRecord); err != nil {
			return st, fmt.Errorf("scan stats: %w", err)
		}
		st.TotalRecords += sv.TotalRecords
		st.Services[name] = sv
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	var size int64
	if err := s.pool.QueryRow(ctx, `SELECT pg_total_relation_size('monitoring_data')`).Scan(&size); err != nil {
		return st, fmt.Errorf("database size: %w", err)
	}
	st.SetSize(size)
	return st, nil
}
