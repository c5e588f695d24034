package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSlotLabel_FloorsToFiveMinutes(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2025, 8, 18, 14, 3, 59, 0, time.UTC), "14:00"},
		{time.Date(2025, 8, 18, 14, 5, 0, 0, time.UTC), "14:05"},
		{time.Date(2025, 8, 18, 0, 0, 1, 0, time.UTC), "00:00"},
		{time.Date(2025, 8, 18, 23, 59, 59, 0, time.UTC), "23:55"},
	}
	for _, c := range cases {
		if got := SlotLabel(c.in); got != c.want {
			t.Fatalf("SlotLabel(%s)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestFanOutSlots(t *testing.T) {
	at := time.Date(2025, 8, 18, 14, 3, 0, 0, time.UTC)

	one := FanOutSlots(at, 5*time.Minute)
	if len(one) != 1 || SlotLabel(one[0]) != "14:00" {
		t.Fatalf("interval 5: got %v", one)
	}

	two := FanOutSlots(at, 10*time.Minute)
	if len(two) != 2 || SlotLabel(two[0]) != "14:00" || SlotLabel(two[1]) != "14:05" {
		t.Fatalf("interval 10: got %v", two)
	}

	// crossing midnight keeps consecutive buckets
	late := FanOutSlots(time.Date(2025, 8, 18, 23, 58, 0, 0, time.UTC), 15*time.Minute)
	want := []string{"23:55", "00:00", "00:05"}
	for i, s := range late {
		if SlotLabel(s) != want[i] {
			t.Fatalf("slot %d = %s want %s", i, SlotLabel(s), want[i])
		}
	}
}

func TestBucketCount_RoundsUp(t *testing.T) {
	if BucketCount(7*time.Minute) != 2 {
		t.Fatalf("want 2 buckets for 7m")
	}
	if BucketCount(30*time.Minute) != 6 {
		t.Fatalf("want 6 buckets for 30m")
	}
}

func TestServiceDefinition_Validate(t *testing.T) {
	if err := (ServiceDefinition{Name: "a", Interval: 10 * time.Minute}).Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := (ServiceDefinition{Name: "a", Interval: 7 * time.Minute}).Validate(); err == nil {
		t.Fatalf("want error for 7m interval")
	}
	if err := (ServiceDefinition{Name: "", Interval: 5 * time.Minute}).Validate(); err == nil {
		t.Fatalf("want error for empty name")
	}
}

func TestStoreStats_SetSize(t *testing.T) {
	var s StoreStats
	s.SetSize(3 * 1024 * 1024 / 2)
	if s.DatabaseSizeMB != 1.5 {
		t.Fatalf("want 1.5 MB, got %v", s.DatabaseSizeMB)
	}
}

func TestSlotRecord_JSONShape(t *testing.T) {
	rec := MonitoringRecord{
		ServiceName:  "bolivariano",
		Timestamp:    time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
		TimeSlot:     "12:00",
		Status:       StatusError,
		ErrorMessage: "HTTP 500",
	}
	b, err := json.Marshal(rec.Slot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"timestamp", "status", "request", "response", "error"} {
		if _, ok := got[k]; !ok {
			t.Fatalf("missing key %q in %s", k, b)
		}
	}
	if got["status"] != "error" || got["error"] != "HTTP 500" {
		t.Fatalf("unexpected payload: %s", b)
	}
}
