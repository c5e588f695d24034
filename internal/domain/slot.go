package domain

import "time"

// BucketWidth is the display granularity of the history.
const BucketWidth = 5 * time.Minute

// FloorToBucket drops t to the start of its 5-minute bucket in t's location.
func FloorToBucket(t time.Time) time.Time {
	m := t.Minute() - t.Minute()%int(BucketWidth/time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, 0, 0, t.Location())
}

// SlotLabel formats the bucket containing t as "HH:MM".
func SlotLabel(t time.Time) string {
	return FloorToBucket(t).Format("15:04")
}

// BucketCount is the number of buckets one poll paints: ceil(interval/width).
func BucketCount(interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	n := int(interval / BucketWidth)
	if interval%BucketWidth != 0 {
		n++
	}
	return n
}

// FanOutSlots returns the consecutive bucket starts covered by a poll at t.
func FanOutSlots(t time.Time, interval time.Duration) []time.Time {
	base := FloorToBucket(t)
	n := BucketCount(interval)
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, base.Add(time.Duration(i)*BucketWidth))
	}
	return out
}
