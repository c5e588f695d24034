package repo

import (
	"context"
	"time"
)

// AlertRecord holds the last health state seen for a service and the last time
// a notification went out for it (used for cooldown).
type AlertRecord struct {
	Service    string
	Healthy    bool
	LastSentAt *time.Time
}

// AlertStore persists alert state between alerter scans.
type AlertStore interface {
	// Get returns nil, nil if there's no record yet.
	Get(ctx context.Context, service string) (*AlertRecord, error)
	// Set upserts the record. A zero sentAt keeps no send time.
	Set(ctx context.Context, service string, healthy bool, sentAt time.Time) error
}
