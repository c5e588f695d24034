// Package repotest holds the behavioural suite every repo.Store backend runs.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/busmonitor/internal/domain"
	"github.com/hamed0406/busmonitor/internal/repo"
)

// Factory opens an empty store whose clock is now.
type Factory func(t *testing.T, now func() time.Time) repo.Store

// Base is the reference instant the suite runs at: 14:03 UTC.
var Base = time.Date(2025, 8, 18, 14, 3, 0, 0, time.UTC)

func record(service, slot string, ts time.Time, st domain.Status, body string) *domain.MonitoringRecord {
	r := &domain.MonitoringRecord{
		ServiceName:  service,
		Timestamp:    ts,
		TimeSlot:     slot,
		Status:       st,
		RequestData:  `{"url":"https://vendor.test"}`,
		ResponseData: body,
		CheckID:      "check-" + slot,
	}
	if st == domain.StatusError {
		r.ErrorMessage = "boom"
	}
	return r
}

func appendAll(t *testing.T, s repo.Store, recs ...*domain.MonitoringRecord) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, s.Append(context.Background(), r))
	}
}

// Run exercises the Store contract against a fresh store per subtest.
func Run(t *testing.T, open Factory) {
	clock := func(at time.Time) func() time.Time { return func() time.Time { return at } }

	t.Run("append assigns id and created_at", func(t *testing.T) {
		s := open(t, clock(Base))
		r := record("a", "14:00", Base, domain.StatusSuccess, "{}")
		appendAll(t, s, r)
		assert.NotZero(t, r.ID)
		assert.False(t, r.CreatedAt.IsZero())
	})

	t.Run("append batch is all or nothing", func(t *testing.T) {
		s := open(t, clock(Base))
		good := record("a", "14:00", Base, domain.StatusSuccess, "{}")
		bad := record("a", "14:05", Base, domain.Status("unknown"), "{}")
		require.Error(t, s.Append(context.Background(), good, bad))

		st, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.Zero(t, st.TotalRecords)

		batch := []*domain.MonitoringRecord{
			record("a", "14:00", Base, domain.StatusSuccess, "{}"),
			record("a", "14:05", Base, domain.StatusSuccess, "{}"),
			record("a", "14:10", Base, domain.StatusSuccess, "{}"),
		}
		require.NoError(t, s.Append(context.Background(), batch...))
		assert.Less(t, batch[0].ID, batch[1].ID)
		assert.Less(t, batch[1].ID, batch[2].ID)
		got, err := s.ReadService(context.Background(), "a", repo.ReadWindow)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("read collapses to latest timestamp", func(t *testing.T) {
		s := open(t, clock(Base))
		older := record("a", "14:00", Base.Add(-2*time.Minute), domain.StatusError, "old")
		newer := record("a", "14:00", Base, domain.StatusSuccess, "new")
		// insert newer first so ordering comes from the timestamp, not insertion
		appendAll(t, s, newer, older)

		got, err := s.ReadService(context.Background(), "a", repo.ReadWindow)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.StatusSuccess, got["14:00"].Status)
		assert.Equal(t, "new", got["14:00"].Response)
		assert.True(t, got["14:00"].Timestamp.Equal(Base))
	})

	t.Run("equal timestamps resolve to the later insert", func(t *testing.T) {
		s := open(t, clock(Base))
		appendAll(t, s,
			record("a", "14:00", Base, domain.StatusError, "first"),
			record("a", "14:00", Base, domain.StatusSuccess, "second"),
		)
		got, err := s.ReadService(context.Background(), "a", repo.ReadWindow)
		require.NoError(t, err)
		assert.Equal(t, "second", got["14:00"].Response)
	})

	t.Run("read honours the window", func(t *testing.T) {
		s := open(t, clock(Base))
		appendAll(t, s,
			record("a", "14:00", Base.Add(-25*time.Hour), domain.StatusSuccess, "stale"),
			record("a", "13:55", Base.Add(-8*time.Minute), domain.StatusSuccess, "fresh"),
		)
		got, err := s.ReadService(context.Background(), "a", repo.ReadWindow)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "fresh", got["13:55"].Response)

		none, err := s.ReadService(context.Background(), "unknown", repo.ReadWindow)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("read all groups by service", func(t *testing.T) {
		s := open(t, clock(Base))
		appendAll(t, s,
			record("a", "14:00", Base, domain.StatusSuccess, "a1"),
			record("b", "14:00", Base, domain.StatusError, "b1"),
			record("b", "14:05", Base, domain.StatusError, "b1"),
			record("b", "14:00", Base.Add(-time.Minute), domain.StatusSuccess, "b0"),
		)
		all, err := s.ReadAll(context.Background(), repo.ReadWindow)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Len(t, all["a"], 1)
		assert.Len(t, all["b"], 2)
		assert.Equal(t, domain.StatusError, all["b"]["14:00"].Status)
		assert.Equal(t, "boom", all["b"]["14:05"].Error)
	})

	t.Run("cleanup deletes strictly older rows and counts them", func(t *testing.T) {
		now := Base.Add(24 * time.Hour)
		s := open(t, clock(now))
		cutoff := now.Add(-24 * time.Hour)
		appendAll(t, s,
			record("a", "14:00", cutoff.Add(-time.Second), domain.StatusSuccess, "gone"),
			record("b", "13:55", cutoff.Add(-time.Hour), domain.StatusSuccess, "gone"),
			record("a", "14:00", cutoff, domain.StatusSuccess, "edge"),
			record("a", "14:00", now, domain.StatusSuccess, "today"),
		)
		n, err := s.Cleanup(context.Background(), 24*time.Hour)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		st, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 2, st.TotalRecords)
		assert.True(t, st.Services["a"].OldestRecord.Equal(cutoff))

		again, err := s.Cleanup(context.Background(), 24*time.Hour)
		require.NoError(t, err)
		assert.Zero(t, again)
	})

	t.Run("scenario at 14:03", func(t *testing.T) {
		at := Base
		s := open(t, func() time.Time { return at })
		appendAll(t, s,
			record("serviceA", "14:00", Base, domain.StatusSuccess, "ok"),
			record("serviceB", "14:00", Base, domain.StatusSuccess, "ok"),
			record("serviceB", "14:05", Base, domain.StatusSuccess, "ok"),
			record("serviceA", "10:00", Base.Add(20*time.Hour), domain.StatusSuccess, "next day"),
		)

		// the next day's 14:03 cleanup runs a few seconds after the poll did
		at = Base.Add(24*time.Hour + 30*time.Second)
		n, err := s.Cleanup(context.Background(), 24*time.Hour)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		all, err := s.ReadAll(context.Background(), repo.ReadWindow)
		require.NoError(t, err)
		assert.Empty(t, all["serviceB"])
		require.Len(t, all["serviceA"], 1)
		assert.Equal(t, "next day", all["serviceA"]["10:00"].Response)
	})

	t.Run("stats", func(t *testing.T) {
		s := open(t, clock(Base))
		appendAll(t, s,
			record("a", "13:50", Base.Add(-13*time.Minute), domain.StatusSuccess, "x"),
			record("a", "14:00", Base, domain.StatusSuccess, "x"),
			record("b", "14:00", Base, domain.StatusError, "x"),
		)
		st, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 3, st.TotalRecords)
		require.Len(t, st.Services, 2)
		assert.EqualValues(t, 2, st.Services["a"].TotalRecords)
		assert.True(t, st.Services["a"].OldestRecord.Equal(Base.Add(-13*time.Minute)))
		assert.True(t, st.Services["a"].NewestRecord.Equal(Base))
		assert.Positive(t, st.DatabaseSizeBytes)
	})
}

// RunAlerts exercises an AlertStore.
func RunAlerts(t *testing.T, s repo.AlertStore) {
	ctx := context.Background()

	rec, err := s.Get(ctx, "svc")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.Set(ctx, "svc", false, time.Time{}))
	rec, err = s.Get(ctx, "svc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Healthy)
	assert.Nil(t, rec.LastSentAt)

	sent := Base
	require.NoError(t, s.Set(ctx, "svc", true, sent))
	rec, err = s.Get(ctx, "svc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Healthy)
	require.NotNil(t, rec.LastSentAt)
	assert.True(t, rec.LastSentAt.Equal(sent))
}
