package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/domain"
	"github.com/hamed0406/busmonitor/internal/metrics"
	"github.com/hamed0406/busmonitor/internal/notify"
	"github.com/hamed0406/busmonitor/internal/probe"
	"github.com/hamed0406/busmonitor/internal/repo"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	PollInterval    time.Duration
}

// Alerter watches the newest stored outcome of each service and notifies when
// a service goes down or recovers.
type Alerter struct {
	logger   *zap.Logger
	records  repo.Store
	alertDB  repo.AlertStore
	notifier notify.Notifier
	cfg      AlerterConfig
	now      func() time.Time
}

func NewAlerter(
	logger *zap.Logger,
	records repo.Store,
	alertDB repo.AlertStore,
	notifier notify.Notifier,
	cfg AlerterConfig,
) *Alerter {
	return &Alerter{
		logger:   logger,
		records:  records,
		alertDB:  alertDB,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	// initial pass
	a.logScan(a.scanOnce(ctx))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.logScan(a.scanOnce(ctx))
		}
	}
}

func (a *Alerter) logScan(err error) {
	if err != nil {
		a.logger.Warn("alerter_scan_error", zap.Error(err))
	}
}

// latest picks the newest slot per service. Slots from one fan-out share a
// timestamp, so any of them represents that check.
func latest(all map[string]map[string]domain.SlotRecord) map[string]domain.SlotRecord {
	out := make(map[string]domain.SlotRecord, len(all))
	for svc, slots := range all {
		for _, s := range slots {
			if cur, ok := out[svc]; !ok || s.Timestamp.After(cur.Timestamp) {
				out[svc] = s
			}
		}
	}
	return out
}

func (a *Alerter) scanOnce(ctx context.Context) error {
	all, err := a.records.ReadAll(ctx, repo.ReadWindow)
	if err != nil {
		return err
	}

	now := a.now()

	for svc, s := range latest(all) {
		healthy := s.Status == domain.StatusSuccess
		rec, err := a.alertDB.Get(ctx, svc)
		if err != nil {
			a.logger.Warn("alerter_state_error", zap.String("service", svc), zap.Error(err))
			continue
		}

		// A first healthy sighting is not a recovery.
		stateChanged := (rec == nil && !healthy) || (rec != nil && rec.Healthy != healthy)

		// Cooldown only matters for DOWN alerts (suppresses noisy repeats).
		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		downAlert := stateChanged && !healthy && cooled
		recoveryAlert := stateChanged && healthy && a.cfg.AlertOnRecovery // bypass cooldown

		if downAlert || recoveryAlert {
			alert := notify.Alert{
				Service:   svc,
				Healthy:   healthy,
				Status:    string(s.Status),
				Kind:      probe.KindOfMessage(s.Error),
				Error:     s.Error,
				CheckedAt: s.Timestamp,
			}
			state := alert.State()

			if err := a.notifier.Send(ctx, alert); err != nil {
				a.logger.Warn("alerter_notify_error", zap.String("service", svc), zap.Error(err))
			}
			metrics.IncAlertSent(svc, state)
			if err := a.alertDB.Set(ctx, svc, healthy, now); err != nil {
				a.logger.Warn("alerter_state_error", zap.String("service", svc), zap.Error(err))
			}
			continue
		}

		// Record the new state without a send time when nothing went out
		// (DOWN within cooldown, recovery alerts disabled, first healthy sighting).
		if stateChanged || rec == nil {
			var sent time.Time
			if rec != nil && rec.LastSentAt != nil {
				sent = *rec.LastSentAt
			}
			if err := a.alertDB.Set(ctx, svc, healthy, sent); err != nil {
				a.logger.Warn("alerter_state_error", zap.String("service", svc), zap.Error(err))
			}
		}
	}

	return nil
}
