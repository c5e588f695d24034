package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Alert is a change in a monitored service's health.
type Alert struct {
	Service   string
	Healthy   bool
	Status    string
	Kind      string // failure kind from the probe taxonomy, empty when healthy
	Error     string
	CheckedAt time.Time
}

func (a Alert) State() string {
	if a.Healthy {
		return "recovered"
	}
	return "down"
}

func (a Alert) Title() string {
	if a.Healthy {
		return "🟢 " + a.Service + " RECOVERED"
	}
	return "🔴 " + a.Service + " DOWN"
}

// Text is the plain-text body used where fields cannot be rendered.
func (a Alert) Text() string {
	errTxt := a.Error
	if errTxt == "" {
		errTxt = "n/a"
	}
	return fmt.Sprintf("Service: %s\nStatus: %s\nError: %s\nChecked: %s",
		a.Service, a.Status, errTxt, a.CheckedAt.Format(time.RFC3339))
}

// Notifier delivers an alert about a monitored service.
type Notifier interface {
	Send(ctx context.Context, a Alert) error
}

// Multi sends to every notifier and returns all failures combined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, a Alert) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, a))
	}
	return err
}

// Log records alerts in the application log; it never fails.
type Log struct {
	L *zap.Logger
}

func (l Log) Send(_ context.Context, a Alert) error {
	l.L.Warn("alert",
		zap.String("service", a.Service),
		zap.String("state", a.State()),
		zap.String("kind", a.Kind),
		zap.String("error", a.Error),
		zap.Time("checked_at", a.CheckedAt),
	)
	return nil
}

// Build returns the log notifier plus Slack when a webhook is configured.
func Build(slackWebhook string, log *zap.Logger) Multi {
	m := Multi{Log{L: log}}
	if s := NewSlack(slackWebhook); s != nil {
		m = append(m, s)
	}
	return m
}
