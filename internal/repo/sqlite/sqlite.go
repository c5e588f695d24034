// Package sqlite is the default Store: a single file, CGO-free driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hamed0406/busmonitor/internal/domain"
	"github.com/hamed0406/busmonitor/internal/repo"
)

var (
	_ repo.Store      = (*Store)(nil)
	_ repo.AlertStore = (*Store)(nil)
)

// tsLayout is fixed width so stored timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS monitoring_data (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	service_name  TEXT NOT NULL,
	timestamp     TEXT NOT NULL,
	time_slot     TEXT NOT NULL,
	status        TEXT NOT NULL CHECK (status IN ('success', 'error')),
	request_data  TEXT NOT NULL DEFAULT '',
	response_data TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	check_id      TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_monitoring_service_time ON monitoring_data(service_name, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_monitoring_time ON monitoring_data(timestamp);`,
	`CREATE TABLE IF NOT EXISTS alert_state (
	service_name TEXT PRIMARY KEY,
	healthy      INTEGER NOT NULL,
	last_sent_at TEXT NULL
	);`,
}

const selectCols = `service_name, timestamp, time_slot, status, request_data, response_data, error_message`

type Store struct {
	db *sql.DB

	// Now is the clock used for windows and retention.
	Now func() time.Time
}

// New opens (creating if needed) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func New(ctx context.Context, path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	dsn := p
	if p != ":memory:" {
		dsn = "file:" + p + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if p == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, Now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func (s *Store) Append(ctx context.Context, rs ...*domain.MonitoringRecord) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, len(rs))
	created := s.Now().UTC()
	for i, r := range rs {
		at := r.CreatedAt
		if at.IsZero() {
			at = created
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO monitoring_data
				(service_name, timestamp, time_slot, status, request_data, response_data, error_message, check_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			r.ServiceName, formatTS(r.Timestamp), r.TimeSlot, string(r.Status),
			r.RequestData, r.ResponseData, r.ErrorMessage, r.CheckID, formatTS(at))
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert record id: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
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
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	defer rows.Close()

	c := repo.NewCollapser()
	for rows.Next() {
		var (
			r  domain.MonitoringRecord
			ts string
			st string
		)
		if err := rows.Scan(&r.ServiceName, &ts, &r.TimeSlot, &st, &r.RequestData, &r.ResponseData, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if r.Timestamp, err = time.Parse(tsLayout, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		r.Status = domain.Status(st)
		c.Add(&r)
	}
	return c, rows.Err()
}

func (s *Store) ReadService(ctx context.Context, name string, window time.Duration) (map[string]domain.SlotRecord, error) {
	c, err := s.collapse(ctx, `
		SELECT `+selectCols+`
		  FROM monitoring_data
		 WHERE service_name = ? AND timestamp >= ?
		 ORDER BY timestamp DESC, id DESC;`,
		name, formatTS(s.Now().Add(-window)))
	if err != nil {
		return nil, err
	}
	return c.Service(name), nil
}

func (s *Store) ReadAll(ctx context.Context, window time.Duration) (map[string]map[string]domain.SlotRecord, error) {
	c, err := s.collapse(ctx, `
		SELECT `+selectCols+`
		  FROM monitoring_data
		 WHERE timestamp >= ?
		 ORDER BY service_name, timestamp DESC, id DESC;`,
		formatTS(s.Now().Add(-window)))
	if err != nil {
		return nil, err
	}
	return c.All(), nil
}

func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitoring_data WHERE timestamp < ?;`,
		formatTS(s.Now().Add(-retention)))
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	st := domain.StoreStats{Services: make(map[string]domain.ServiceStats)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT service_name, COUNT(*), MIN(timestamp), MAX(timestamp)
		  FROM monitoring_data
		 GROUP BY service_name;`)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name           string
			sv             domain.ServiceStats
			oldest, newest string
		)
		if err := rows.Scan(&name, &sv.TotalRecords, &oldest, &newest); err != nil {
			return st, fmt.Errorf("scan stats: %w", err)
		}
		if sv.OldestRecord, err = time.Parse(tsLayout, oldest); err != nil {
			return st, fmt.Errorf("parse oldest: %w", err)
		}
		if sv.NewestRecord, err = time.Parse(tsLayout, newest); err != nil {
			return st, fmt.Errorf("parse newest: %w", err)
		}
		st.TotalRecords += sv.TotalRecords
		st.Services[name] = sv
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	var size int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size();`).Scan(&size); err != nil {
		return st, fmt.Errorf("database size: %w", err)
	}
	st.SetSize(size)
	return st, nil
}

// ---- AlertStore ----

func (s *Store) Get(ctx context.Context, service string) (*repo.AlertRecord, error) {
	var (
		healthy  bool
		lastSent sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT healthy, last_sent_at FROM alert_state WHERE service_name = ?;`, service).
		Scan(&healthy, &lastSent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert state: %w", err)
	}
	rec := &repo.AlertRecord{Service: service, Healthy: healthy}
	if lastSent.Valid {
		t, err := time.Parse(tsLayout, lastSent.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_sent_at: %w", err)
		}
		rec.LastSentAt = &t
	}
	return rec, nil
}

func (s *Store) Set(ctx context.Context, service string, healthy bool, sentAt time.Time) error {
	var sent any
	if !sentAt.IsZero() {
		sent = formatTS(sentAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_state(service_name, healthy, last_sent_at)
		VALUES (?, ?, ?)
		ON CONFLICT(service_name) DO UPDATE SET
			healthy = excluded.healthy,
			last_sent_at = excluded.last_sent_at;`,
		service, healthy, sent)
	if err != nil {
		return fmt.Errorf("set alert state: %w", err)
	}
	return nil
}
