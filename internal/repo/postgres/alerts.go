package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/busmonitor/internal/repo"
)

func (s *Store) Get(ctx context.Context, service string) (*repo.AlertRecord, error) {
	const q = `SELECT healthy, last_sent_at FROM alert_state WHERE service_name=$1`
	r := repo.AlertRecord{Service: service}
	var lastSent *time.Time
	err := s.pool.QueryRow(ctx, q, service).Scan(&r.Healthy, &lastSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert state: %w", err)
	}
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) Set(ctx context.Context, service string, healthy bool, sentAt time.Time) error {
	const q = `
		INSERT INTO alert_state (service_name, healthy, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (service_name)
		DO UPDATE SET healthy=EXCLUDED.healthy, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	if _, err := s.pool.Exec(ctx, q, service, healthy, ts); err != nil {
		return fmt.Errorf("set alert state: %w", err)
	}
	return nil
}
