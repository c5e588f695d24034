package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

func (s Status) Valid() bool { return s == StatusSuccess || s == StatusError }

// RequestSnapshot is the structured capture of the last request a probe made.
// It is unsanitized until it passes through the sanitize package.
type RequestSnapshot struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// MonitoringRecord is one persisted row. Rows are never updated; several rows
// may share (ServiceName, TimeSlot) and the newest one wins on read.
type MonitoringRecord struct {
	ID           int64     `json:"id"`
	ServiceName  string    `json:"service_name"`
	Timestamp    time.Time `json:"timestamp"`
	TimeSlot     string    `json:"time_slot"`
	Status       Status    `json:"status"`
	RequestData  string    `json:"request_data"`
	ResponseData string    `json:"response_data"`
	ErrorMessage string    `json:"error_message"`
	CheckID      string    `json:"check_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// SlotRecord is the read view of the authoritative row for a slot.
type SlotRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Request   string    `json:"request"`
	Response  string    `json:"response"`
	Error     string    `json:"error"`
}

func (r *MonitoringRecord) Slot() SlotRecord {
	return SlotRecord{
		Timestamp: r.Timestamp,
		Status:    r.Status,
		Request:   r.RequestData,
		Response:  r.ResponseData,
		Error:     r.ErrorMessage,
	}
}

type ServiceStats struct {
	TotalRecords int64     `json:"total_records"`
	OldestRecord time.Time `json:"oldest_record"`
	NewestRecord time.Time `json:"newest_record"`
}

type StoreStats struct {
	TotalRecords      int64                   `json:"total_records"`
	Services          map[string]ServiceStats `json:"services"`
	DatabaseSizeBytes int64                   `json:"database_size_bytes"`
	DatabaseSizeMB    float64                 `json:"database_size_mb"`
}

// SetSize fills both size fields; MB is rounded to two decimals.
func (s *StoreStats) SetSize(bytes int64) {
	s.DatabaseSizeBytes = bytes
	s.DatabaseSizeMB = float64(int64(float64(bytes)/(1024*1024)*100+0.5)) / 100
}

// ServiceDefinition binds a service name to its poll interval. The prober is
// attached by the monitor package to keep domain free of transport concerns.
type ServiceDefinition struct {
	Name     string
	Interval time.Duration
}

func (d ServiceDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("service name is empty")
	}
	if d.Interval <= 0 || d.Interval%BucketWidth != 0 {
		return fmt.Errorf("service %q: interval %s must be a positive multiple of %s", d.Name, d.Interval, BucketWidth)
	}
	return nil
}
