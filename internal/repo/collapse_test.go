package repo

import (
	"testing"
	"time"

	"github.com/hamed0406/busmonitor/internal/domain"
)

func TestCollapser_FirstRowWins(t *testing.T) {
	newer := time.Date(2025, 8, 18, 14, 3, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	c := NewCollapser()
	c.Add(&domain.MonitoringRecord{ServiceName: "a", TimeSlot: "14:00", Timestamp: newer, Status: domain.StatusSuccess})
	c.Add(&domain.MonitoringRecord{ServiceName: "a", TimeSlot: "14:00", Timestamp: older, Status: domain.StatusError})
	c.Add(&domain.MonitoringRecord{ServiceName: "b", TimeSlot: "14:00", Timestamp: older, Status: domain.StatusError})

	got := c.Service("a")["14:00"]
	if got.Status != domain.StatusSuccess || !got.Timestamp.Equal(newer) {
		t.Fatalf("expected newest row to win, got %+v", got)
	}
	if len(c.All()) != 2 {
		t.Fatalf("expected 2 services, got %d", len(c.All()))
	}
	if m := c.Service("missing"); m == nil || len(m) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", m)
	}
}
