package domain

import "time"

// EventType identifies a job lifecycle event.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventContent  EventType = "content"
	EventSource   EventType = "source"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// EventData is the optional payload of an Event; only the field matching
// the event type is set.
type EventData struct {
	Progress *int    `json:"progress,omitempty"`
	Content  string  `json:"content,omitempty"`
	Source   *Source `json:"source,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Event is emitted by the orchestrator while a job runs.
// Within one job events arrive as start, progress..., content, complete
// or start, progress..., error.
type Event struct {
	JobID     string     `json:"job_id"`
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Data      *EventData `json:"data,omitempty"`
}
