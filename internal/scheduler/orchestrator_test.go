package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/domain"
	"github.com/hamed0406/busmonitor/internal/probe"
	"github.com/hamed0406/busmonitor/internal/repo"
	"github.com/hamed0406/busmonitor/internal/repo/memory"
)

// --- fakes ---

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeProber struct {
	name  string
	mu    sync.Mutex
	calls int
	res   probe.Result
	panic bool
}

func (f *fakeProber) Name() string { return f.name }

func (f *fakeProber) Check(ctx context.Context) probe.Result {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panic {
		panic("vendor exploded")
	}
	return f.res
}

func (f *fakeProber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okProber(name string) *fakeProber {
	return &fakeProber{name: name, res: probe.Result{
		Status:   domain.StatusSuccess,
		Request:  domain.RequestSnapshot{URL: "https://vendor.test/trips", Method: "POST"},
		Response: map[string]any{"trips": []any{}},
	}}
}

// captureStore records every appended row and can fail appends per service.
type captureStore struct {
	*memory.Store
	mu       sync.Mutex
	appended []domain.MonitoringRecord
	batches  []int
	failFor  string
	cleanups int
	cleanErr error
}

func newCaptureStore(now func() time.Time) *captureStore {
	m := memory.New()
	m.Now = now
	return &captureStore{Store: m}
}

func (c *captureStore) Append(ctx context.Context, rs ...*domain.MonitoringRecord) error {
	for _, r := range rs {
		if r.ServiceName == c.failFor {
			return errors.New("disk full")
		}
	}
	c.mu.Lock()
	c.batches = append(c.batches, len(rs))
	for _, r := range rs {
		c.appended = append(c.appended, *r)
	}
	c.mu.Unlock()
	return c.Store.Append(ctx, rs...)
}

func (c *captureStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	c.mu.Lock()
	c.cleanups++
	c.mu.Unlock()
	if c.cleanErr != nil {
		return 0, c.cleanErr
	}
	return c.Store.Cleanup(ctx, retention)
}

func (c *captureStore) rows(service string) []domain.MonitoringRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.MonitoringRecord
	for _, r := range c.appended {
		if r.ServiceName == service {
			out = append(out, r)
		}
	}
	return out
}

var at1403 = time.Date(2025, 8, 18, 14, 3, 0, 0, time.UTC)

func svc(name string, interval time.Duration, p probe.Prober) Service {
	return Service{Def: domain.ServiceDefinition{Name: name, Interval: interval}, Prober: p}
}

func newOrch(t *testing.T, clk *clock, store repo.Store, services ...Service) *Orchestrator {
	t.Helper()
	o, err := New(zap.NewNop(), store, services, Options{
		Retention:       24 * time.Hour,
		CleanupInterval: time.Hour,
		Now:             clk.Now,
	})
	require.NoError(t, err)
	return o
}

// --- tests ---

func TestNew_RejectsBadRegistry(t *testing.T) {
	store := memory.New()
	opts := Options{Retention: time.Hour, CleanupInterval: time.Hour}

	_, err := New(zap.NewNop(), store, []Service{svc("a", 7*time.Minute, okProber("a"))}, opts)
	assert.ErrorContains(t, err, "multiple of")

	_, err = New(zap.NewNop(), store, []Service{svc("a", 5*time.Minute, okProber("a")), svc("a", 5*time.Minute, okProber("a"))}, opts)
	assert.ErrorContains(t, err, "registered twice")

	_, err = New(zap.NewNop(), store, []Service{svc("a", 5*time.Minute, nil)}, opts)
	assert.ErrorContains(t, err, "nil prober")

	_, err = New(zap.NewNop(), store, nil, Options{CleanupInterval: time.Hour})
	assert.ErrorContains(t, err, "retention")

	_, err = New(zap.NewNop(), nil, nil, opts)
	assert.Error(t, err)
}

func TestPoll_FanOutWritesConsecutiveIdenticalSlots(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	p := okProber("b")
	o := newOrch(t, clk, store, svc("b", 15*time.Minute, p))

	ran, err := o.Poll(context.Background(), "b")
	require.NoError(t, err)
	require.True(t, ran)

	rows := store.rows("b")
	require.Len(t, rows, 3)
	wantSlots := []string{"14:00", "14:05", "14:10"}
	for i, r := range rows {
		assert.Equal(t, wantSlots[i], r.TimeSlot)
		assert.Equal(t, rows[0].Status, r.Status)
		assert.Equal(t, rows[0].RequestData, r.RequestData)
		assert.Equal(t, rows[0].ResponseData, r.ResponseData)
		assert.Equal(t, rows[0].ErrorMessage, r.ErrorMessage)
		assert.Equal(t, rows[0].CheckID, r.CheckID)
		assert.True(t, r.Timestamp.Equal(at1403))
	}
	assert.NotEmpty(t, rows[0].CheckID)
	assert.Equal(t, []int{3}, store.batches, "fan-out is written in one call")
}

func TestPoll_FailedFanOutLeavesNoSlot(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	store.failFor = "b"
	o := newOrch(t, clk, store, svc("b", 15*time.Minute, okProber("b")))

	_, err := o.Poll(context.Background(), "b")
	require.ErrorContains(t, err, "append 3 slots")

	got, err := store.ReadService(context.Background(), "b", repo.ReadWindow)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPoll_DedupWithinSameMinute(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	p := okProber("a")
	o := newOrch(t, clk, store, svc("a", 5*time.Minute, p))
	ctx := context.Background()

	ran, err := o.Poll(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ran)

	clk.Set(at1403.Add(45 * time.Second))
	ran, err = o.Poll(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ran)

	assert.Equal(t, 1, p.Calls())
	assert.Len(t, store.rows("a"), 1)

	clk.Set(at1403.Add(time.Minute))
	ran, err = o.Poll(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, p.Calls())
}

func TestPoll_UnknownService(t *testing.T) {
	clk := &clock{t: at1403}
	o := newOrch(t, clk, memory.New())
	_, err := o.Poll(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestPoll_StoresSanitizedPayload(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	p := &fakeProber{name: "a", res: probe.Result{
		Status: domain.StatusError,
		Request: domain.RequestSnapshot{
			URL:     "https://vendor.test/trips?username=VI_WEB",
			Method:  "GET",
			Headers: map[string]string{"Authorization": "Bearer tok-123"},
		},
		Response: map[string]any{"echo": "tok-123"},
		Error:    "auth failed for tok-123",
		Err:      probe.ErrAuth,
		Secrets:  []string{"VI_WEB", "tok-123"},
	}}
	o := newOrch(t, clk, store, svc("a", 5*time.Minute, p))

	_, err := o.Poll(context.Background(), "a")
	require.NoError(t, err)

	rows := store.rows("a")
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, domain.StatusError, r.Status)
	for _, field := range []string{r.RequestData, r.ResponseData, r.ErrorMessage} {
		assert.NotContains(t, field, "tok-123")
		assert.NotContains(t, field, "VI_WEB")
	}
	assert.Contains(t, r.RequestData, "Bearer [REDACTED]")
	assert.Equal(t, "auth failed for [REDACTED]", r.ErrorMessage)
}

func TestRunDue_IsolatesFailures(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	store.failFor = "b"
	boom := &fakeProber{name: "a", panic: true}
	b := okProber("b")
	c := okProber("c")
	o := newOrch(t, clk, store,
		svc("a", 5*time.Minute, boom),
		svc("b", 5*time.Minute, b),
		svc("c", 5*time.Minute, c),
	)
	ctx := context.Background()

	o.RunDue(ctx, clk.Now())
	assert.Equal(t, 1, boom.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Len(t, store.rows("c"), 1)

	_, err := o.Poll(ctx, "b")
	assert.NoError(t, err, "dedup guard skips before touching the store")

	clk.Set(at1403.Add(5 * time.Minute))
	o.RunDue(ctx, clk.Now())
	assert.Equal(t, 2, boom.Calls())
	assert.Len(t, store.rows("c"), 2)
}

func TestPoll_ReturnsStoreAndPanicErrors(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	store.failFor = "b"
	o := newOrch(t, clk, store,
		svc("a", 5*time.Minute, &fakeProber{name: "a", panic: true}),
		svc("b", 5*time.Minute, okProber("b")),
	)

	_, err := o.Poll(context.Background(), "a")
	assert.ErrorContains(t, err, "panic: vendor exploded")
	_, err = o.Poll(context.Background(), "b")
	assert.ErrorContains(t, err, "disk full")
}

func TestRunDue_HonoursIntervalsAndCleanupCadence(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	a := okProber("a")
	b := okProber("b")
	o := newOrch(t, clk, store, svc("a", 5*time.Minute, a), svc("b", 10*time.Minute, b))
	ctx := context.Background()

	step := func(d time.Duration) {
		clk.Set(at1403.Add(d))
		o.RunDue(ctx, clk.Now())
	}

	step(0)
	step(time.Second)
	step(4 * time.Minute)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, 1, store.cleanups)

	step(5 * time.Minute)
	assert.Equal(t, 2, a.Calls())
	assert.Equal(t, 1, b.Calls())

	step(10 * time.Minute)
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, 2, b.Calls())

	step(time.Hour)
	assert.Equal(t, 2, store.cleanups)
}

func TestRunDue_CleanupFailureIsNonFatal(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	store.cleanErr = errors.New("locked")
	a := okProber("a")
	o := newOrch(t, clk, store, svc("a", 5*time.Minute, a))

	o.RunDue(context.Background(), clk.Now())
	assert.Equal(t, 1, store.cleanups)
	assert.Equal(t, 1, a.Calls())

	_, err := o.Cleanup(context.Background())
	assert.ErrorContains(t, err, "locked")
}

func TestScenario_1403(t *testing.T) {
	clk := &clock{t: at1403}
	store := newCaptureStore(clk.Now)
	o := newOrch(t, clk, store,
		svc("serviceA", 5*time.Minute, okProber("serviceA")),
		svc("serviceB", 10*time.Minute, okProber("serviceB")),
	)
	ctx := context.Background()

	_, err := o.Poll(ctx, "serviceA")
	require.NoError(t, err)
	_, err = o.Poll(ctx, "serviceB")
	require.NoError(t, err)

	a, err := store.ReadService(ctx, "serviceA", repo.ReadWindow)
	require.NoError(t, err)
	assert.Len(t, a, 1)
	assert.Contains(t, a, "14:00")

	b, err := store.ReadService(ctx, "serviceB", repo.ReadWindow)
	require.NoError(t, err)
	require.Len(t, b, 2)
	assert.Equal(t, b["14:00"], b["14:05"])

	// a same-day row the next morning survives the next day's 14:03 cleanup
	clk.Set(at1403.Add(20 * time.Hour))
	_, err = o.Poll(ctx, "serviceA")
	require.NoError(t, err)

	clk.Set(at1403.Add(24*time.Hour + 30*time.Second))
	n, err := o.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	all, err := store.ReadAll(ctx, repo.ReadWindow)
	require.NoError(t, err)
	assert.Empty(t, all["serviceB"])
	assert.Len(t, all["serviceA"], 1)
	assert.Contains(t, all["serviceA"], "10:00")
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := memory.New()
	a := okProber("a")
	o, err := New(zap.NewNop(), store, []Service{svc("a", 5*time.Minute, a)}, Options{
		Retention:       time.Hour,
		CleanupInterval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestServicesAndHas(t *testing.T) {
	clk := &clock{t: at1403}
	o := newOrch(t, clk, memory.New(), svc("a", 5*time.Minute, okProber("a")), svc("b", 10*time.Minute, okProber("b")))
	defs := o.Services()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, 10*time.Minute, defs[1].Interval)
	assert.True(t, o.Has("b"))
	assert.False(t, o.Has("z"))
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "raw", responseText("raw"))
	assert.True(t, strings.HasPrefix(responseText(map[string]any{"k": 1}), "{\n"))
}
