// Package metrics exposes Prometheus collectors for the monitor.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are registered via Register; helpers no-op until then.
var (
	regOK atomic.Bool

	checks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busmonitor",
			Subsystem: "monitor",
			Name:      "checks_total",
			Help:      "Completed probe checks by outcome.",
		}, []string{"service", "status"},
	)
	checkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busmonitor",
			Subsystem: "monitor",
			Name:      "check_failures_total",
			Help:      "Failed probe checks by error kind.",
		}, []string{"service", "kind"},
	)
	checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "busmonitor",
			Subsystem: "monitor",
			Name:      "check_duration_seconds",
			Help:      "Wall time of a full auth+query check.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"service"},
	)
	dedupSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busmonitor",
			Subsystem: "monitor",
			Name:      "dedup_skips_total",
			Help:      "Polls skipped because the service already ran this minute.",
		}, []string{"service"},
	)
	recordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busmonitor",
			Subsystem: "store",
			Name:      "records_written_total",
			Help:      "Rows appended to the store.",
		}, []string{"service"},
	)
	cleanupDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "busmonitor",
			Subsystem: "store",
			Name:      "cleanup_deleted_total",
			Help:      "Rows removed by retention cleanup.",
		},
	)
	alertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busmonitor",
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Notifications sent by state.",
		}, []string{"service", "state"},
	)
)

// Register registers all metrics with r.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{checks, checkFailures, checkDuration, dedupSkips, recordsWritten, cleanupDeleted, alertsSent}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func ObserveCheck(service, status string, d time.Duration) {
	if regOK.Load() {
		checks.WithLabelValues(service, status).Inc()
		checkDuration.WithLabelValues(service).Observe(d.Seconds())
	}
}

func IncCheckFailure(service, kind string) {
	if regOK.Load() {
		checkFailures.WithLabelValues(service, kind).Inc()
	}
}

func IncDedupSkip(service string) {
	if regOK.Load() {
		dedupSkips.WithLabelValues(service).Inc()
	}
}

func AddRecordsWritten(service string, n int) {
	if regOK.Load() {
		recordsWritten.WithLabelValues(service).Add(float64(n))
	}
}

func AddCleanupDeleted(n int64) {
	if regOK.Load() {
		cleanupDeleted.Add(float64(n))
	}
}

func IncAlertSent(service, state string) {
	if regOK.Load() {
		alertsSent.WithLabelValues(service, state).Inc()
	}
}
