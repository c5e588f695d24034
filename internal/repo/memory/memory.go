package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/busmonitor/internal/domain"
	"github.com/hamed0406/busmonitor/internal/repo"
)

var (
	_ repo.Store      = (*Store)(nil)
	_ repo.AlertStore = (*Store)(nil)
)

// Store keeps records in process memory. Used by tests and ephemeral runs.
type Store struct {
	mu     sync.RWMutex
	rows   []domain.MonitoringRecord
	nextID int64
	alerts map[string]repo.AlertRecord

	// Now is the clock used for windows and retention.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		rows:   make([]domain.MonitoringRecord, 0, 128),
		alerts: make(map[string]repo.AlertRecord),
		Now:    time.Now,
	}
}

func (m *Store) Append(ctx context.Context, rs ...*domain.MonitoringRecord) error {
	for _, r := range rs {
		if !r.Status.Valid() {
			return fmt.Errorf("insert record: invalid status %q", r.Status)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		m.nextID++
		r.ID = m.nextID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = m.Now().UTC()
		}
		m.rows = append(m.rows, *r)
	}
	return nil
}

// since returns rows at or after the cutoff, newest first.
func (m *Store) since(cutoff time.Time, match func(*domain.MonitoringRecord) bool) []*domain.MonitoringRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.MonitoringRecord, 0, len(m.rows))
	for i := range m.rows {
		r := m.rows[i]
		if r.Timestamp.Before(cutoff) || !match(&r) {
			continue
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *Store) ReadService(ctx context.Context, name string, window time.Duration) (map[string]domain.SlotRecord, error) {
	c := repo.NewCollapser()
	for _, r := range m.since(m.Now().Add(-window), func(r *domain.MonitoringRecord) bool { return r.ServiceName == name }) {
		c.Add(r)
	}
	return c.Service(name), nil
}

func (m *Store) ReadAll(ctx context.Context, window time.Duration) (map[string]map[string]domain.SlotRecord, error) {
	c := repo.NewCollapser()
	for _, r := range m.since(m.Now().Add(-window), func(*domain.MonitoringRecord) bool { return true }) {
		c.Add(r)
	}
	return c.All(), nil
}

func (m *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := m.Now().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var deleted int64
	for _, r := range m.rows {
		if r.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

func (m *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := domain.StoreStats{Services: make(map[string]domain.ServiceStats)}
	var size int64
	for _, r := range m.rows {
		st.TotalRecords++
		s := st.Services[r.ServiceName]
		if s.TotalRecords == 0 || r.Timestamp.Before(s.OldestRecord) {
			s.OldestRecord = r.Timestamp
		}
		if s.TotalRecords == 0 || r.Timestamp.After(s.NewestRecord) {
			s.NewestRecord = r.Timestamp
		}
		s.TotalRecords++
		st.Services[r.ServiceName] = s
		size += int64(len(r.ServiceName) + len(r.TimeSlot) + len(r.Status) +
			len(r.RequestData) + len(r.ResponseData) + len(r.ErrorMessage) + len(r.CheckID))
	}
	st.SetSize(size)
	return st, nil
}

func (m *Store) Close() error { return nil }

// ---- AlertStore ----

func (m *Store) Get(ctx context.Context, service string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.alerts[service]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Store) Set(ctx context.Context, service string, healthy bool, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := repo.AlertRecord{Service: service, Healthy: healthy}
	if !sentAt.IsZero() {
		rec.LastSentAt = &sentAt
	}
	m.alerts[service] = rec
	return nil
}
