package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/domain"
	"github.com/hamed0406/busmonitor/internal/metrics"
	"github.com/hamed0406/busmonitor/internal/probe"
	"github.com/hamed0406/busmonitor/internal/repo"
	"github.com/hamed0406/busmonitor/internal/sanitize"
)

// ErrUnknownService is returned by Poll for a name that is not registered.
var ErrUnknownService = errors.New("unknown service")

// tick is the loop resolution.
const tick = time.Second

// Service is one registry entry.
type Service struct {
	Def    domain.ServiceDefinition
	Prober probe.Prober
}

type Options struct {
	Retention       time.Duration
	CleanupInterval time.Duration
	// Now defaults to time.Now. Slot labels use the returned time's location.
	Now func() time.Time
}

// Orchestrator owns the service registry and all polling state. A single
// goroutine (Run) probes services sequentially and writes their results.
type Orchestrator struct {
	logger *zap.Logger
	store  repo.Store
	opts   Options

	services []Service
	byName   map[string]int

	mu          sync.Mutex
	lastMinute  map[string]time.Time // dedup guard
	nextDue     map[string]time.Time
	nextCleanup time.Time
}

func New(logger *zap.Logger, store repo.Store, services []Service, opts Options) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("scheduler: nil store")
	}
	if opts.Retention <= 0 {
		return nil, fmt.Errorf("scheduler: retention %s must be positive", opts.Retention)
	}
	if opts.CleanupInterval <= 0 {
		return nil, fmt.Errorf("scheduler: cleanup interval %s must be positive", opts.CleanupInterval)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	o := &Orchestrator{
		logger:     logger,
		store:      store,
		opts:       opts,
		byName:     make(map[string]int, len(services)),
		lastMinute: make(map[string]time.Time, len(services)),
		nextDue:    make(map[string]time.Time, len(services)),
	}
	for _, s := range services {
		if err := s.Def.Validate(); err != nil {
			return nil, err
		}
		if s.Prober == nil {
			return nil, fmt.Errorf("service %q: nil prober", s.Def.Name)
		}
		if _, dup := o.byName[s.Def.Name]; dup {
			return nil, fmt.Errorf("service %q registered twice", s.Def.Name)
		}
		o.byName[s.Def.Name] = len(o.services)
		o.services = append(o.services, s)
	}
	return o, nil
}

// Services returns the registered definitions in registration order.
func (o *Orchestrator) Services() []domain.ServiceDefinition {
	out := make([]domain.ServiceDefinition, len(o.services))
	for i, s := range o.services {
		out[i] = s.Def
	}
	return out
}

func (o *Orchestrator) Has(name string) bool {
	_, ok := o.byName[name]
	return ok
}

// Run does an immediate pass, then re-evaluates due work every second.
// Stops when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("scheduler_started", zap.Int("services", len(o.services)))
	t := time.NewTicker(tick)
	defer t.Stop()

	o.RunDue(ctx, o.opts.Now())
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("scheduler_stopped")
			return ctx.Err()
		case <-t.C:
			o.RunDue(ctx, o.opts.Now())
		}
	}
}

// RunDue polls every service whose interval has elapsed, one after another,
// then runs cleanup if its cadence is due. Failures are logged, never returned.
func (o *Orchestrator) RunDue(ctx context.Context, now time.Time) {
	for _, s := range o.services {
		if !o.claimDue(s, now) {
			continue
		}
		_, _ = o.Poll(ctx, s.Def.Name)
	}

	o.mu.Lock()
	cleanup := !now.Before(o.nextCleanup)
	if cleanup {
		o.nextCleanup = now.Add(o.opts.CleanupInterval)
	}
	o.mu.Unlock()
	if cleanup {
		_, _ = o.Cleanup(ctx)
	}
}

func (o *Orchestrator) claimDue(s Service, now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	due := o.nextDue[s.Def.Name]
	if now.Before(due) {
		return false
	}
	next := due.Add(s.Def.Interval)
	if due.IsZero() || !next.After(now) {
		next = now.Add(s.Def.Interval)
	}
	o.nextDue[s.Def.Name] = next
	return true
}

// Poll runs the named service's check and stores its fan-out. It reports
// false without probing when the service already ran in the current
// wall-clock minute. Store failures and probe panics are logged and returned.
func (o *Orchestrator) Poll(ctx context.Context, name string) (bool, error) {
	i, ok := o.byName[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	s := o.services[i]
	now := o.opts.Now()

	minute := now.Truncate(time.Minute)
	o.mu.Lock()
	if last, seen := o.lastMinute[name]; seen && last.Equal(minute) {
		o.mu.Unlock()
		metrics.IncDedupSkip(name)
		o.logger.Debug("poll_dedup_skip", zap.String("service", name), zap.Time("minute", minute))
		return false, nil
	}
	o.lastMinute[name] = minute
	o.mu.Unlock()

	if err := o.execute(ctx, s, now); err != nil {
		o.logger.Error("poll_check_error", zap.String("service", name), zap.Error(err))
		return true, err
	}
	return true, nil
}

func (o *Orchestrator) execute(ctx context.Context, s Service, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	res := s.Prober.Check(ctx)
	elapsed := time.Since(start)

	metrics.ObserveCheck(s.Def.Name, string(res.Status), elapsed)
	if res.Status == domain.StatusError {
		metrics.IncCheckFailure(s.Def.Name, probe.Kind(res.Err))
	}

	base := buildRecord(s.Def.Name, now, res)
	base.CheckID = uuid.NewString()

	// one call so a failed write leaves none of the check's slots set
	slots := domain.FanOutSlots(now, s.Def.Interval)
	recs := make([]*domain.MonitoringRecord, len(slots))
	for i, slot := range slots {
		rec := base
		rec.TimeSlot = domain.SlotLabel(slot)
		recs[i] = &rec
	}
	if err := o.store.Append(ctx, recs...); err != nil {
		return fmt.Errorf("append %d slots: %w", len(recs), err)
	}
	written := len(recs)
	metrics.AddRecordsWritten(s.Def.Name, written)

	fields := []zap.Field{
		zap.String("service", s.Def.Name),
		zap.String("status", string(res.Status)),
		zap.String("check_id", base.CheckID),
		zap.Int("slots", written),
		zap.Duration("duration", elapsed),
	}
	if res.Status == domain.StatusError {
		fields = append(fields, zap.String("kind", probe.Kind(res.Err)), zap.String("error", base.ErrorMessage))
	}
	o.logger.Info("poll_checked", fields...)
	return nil
}

// buildRecord sanitizes a probe result into the row shape shared by a fan-out.
func buildRecord(service string, now time.Time, res probe.Result) domain.MonitoringRecord {
	req := sanitize.Request(res.Request, res.Secrets...)
	reqJSON, err := json.Marshal(req)
	if err != nil {
		reqJSON = []byte(fmt.Sprintf("%q", fmt.Sprintf("unserializable request: %v", err)))
	}
	return domain.MonitoringRecord{
		ServiceName:  service,
		Timestamp:    now,
		Status:       res.Status,
		RequestData:  string(reqJSON),
		ResponseData: sanitize.Text(responseText(res.Response), res.Secrets...),
		ErrorMessage: sanitize.Text(res.Error, res.Secrets...),
	}
}

func responseText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Cleanup applies retention once.
func (o *Orchestrator) Cleanup(ctx context.Context) (int64, error) {
	n, err := o.store.Cleanup(ctx, o.opts.Retention)
	if err != nil {
		o.logger.Error("cleanup_error", zap.Error(err))
		return 0, err
	}
	metrics.AddCleanupDeleted(n)
	o.logger.Info("cleanup_done", zap.Int64("deleted", n), zap.Duration("retention", o.opts.Retention))
	return n, nil
}
