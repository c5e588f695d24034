package repo

import (
	"context"
	"time"

	"github.com/hamed0406/busmonitor/internal/domain"
)

// ReadWindow is how far back the read API looks.
const ReadWindow = 24 * time.Hour

// Store persists monitoring records. Rows are only ever inserted; reads collapse
// duplicates per (service, slot) keeping the newest row. Each call is a
// self-contained unit so readers and the poll loop do not block each other.
type Store interface {
	// Append inserts every record or none of them. IDs are set on success.
	Append(ctx context.Context, rs ...*domain.MonitoringRecord) error
	ReadService(ctx context.Context, name string, window time.Duration) (map[string]domain.SlotRecord, error)
	ReadAll(ctx context.Context, window time.Duration) (map[string]map[string]domain.SlotRecord, error)
	// Cleanup deletes rows with a timestamp strictly older than now-retention
	// and reports how many were removed.
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
	Stats(ctx context.Context) (domain.StoreStats, error)
	Close() error
}

// Collapser folds rows that arrive newest first into slot maps. The first
// row seen for a (service, slot) wins.
type Collapser struct {
	out map[string]map[string]domain.SlotRecord
}

func NewCollapser() *Collapser {
	return &Collapser{out: make(map[string]map[string]domain.SlotRecord)}
}

func (c *Collapser) Add(r *domain.MonitoringRecord) {
	slots := c.out[r.ServiceName]
	if slots == nil {
		slots = make(map[string]domain.SlotRecord)
		c.out[r.ServiceName] = slots
	}
	if _, seen := slots[r.TimeSlot]; seen {
		return
	}
	slots[r.TimeSlot] = r.Slot()
}

func (c *Collapser) All() map[string]map[string]domain.SlotRecord { return c.out }

// Service returns the slot map for name, never nil.
func (c *Collapser) Service(name string) map[string]domain.SlotRecord {
	if s := c.out[name]; s != nil {
		return s
	}
	return map[string]domain.SlotRecord{}
}

// Backend is a Store that also keeps alert state; every driver provides both.
type Backend interface {
	Store
	AlertStore
}
