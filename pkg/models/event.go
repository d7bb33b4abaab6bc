package models

import "time"

// EventType enumerates the ExecutionEvent types (spec.md §3).
type EventType string

const (
	EventJobStatus    EventType = "job_status"
	EventDeviceStatus EventType = "device_status"
	EventLog          EventType = "log"
	EventJobComplete  EventType = "job_complete"
)

// ExecutionEvent is a single entry in a job's ordered event log. For a given
// JobID, events are totally ordered by append order, and a job_complete
// event is always the final event for that job (spec.md §3 invariant).
type ExecutionEvent struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
}
