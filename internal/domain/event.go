package domain

import "time"

// EventType discriminates the kinds of DomainEvent published across
// aggregates (spec.md §3).
type EventType string

const (
	EventJobCreated        EventType = "JobCreated"
	EventJobStatusChanged  EventType = "JobStatusChanged"
	EventTaskScheduled     EventType = "TaskScheduled"
	EventTaskStatusChanged EventType = "TaskStatusChanged"
	EventSchedulePublished EventType = "SchedulePublished"
	EventScheduleOptimized EventType = "ScheduleOptimized"
)

// DomainEvent is a timestamped, typed, immutable record identifying one
// aggregate and describing a change (spec.md §3). It is only published
// after the enclosing transaction commits successfully.
type DomainEvent struct {
	EventID     ID        `json:"event_id"`
	EventType   EventType `json:"event_type"`
	AggregateID ID        `json:"aggregate_id"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload,omitempty"`
}

// NewDomainEvent constructs a DomainEvent with a fresh id and the given
// timestamp.
func NewDomainEvent(eventType EventType, aggregateID ID, payload any, now time.Time) DomainEvent {
	return DomainEvent{
		EventID:     NewID(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Timestamp:   now,
		Payload:     payload,
	}
}

// JobStatusChangedPayload is the payload for EventJobStatusChanged.
type JobStatusChangedPayload struct {
	From JobStatus `json:"from"`
	To   JobStatus `json:"to"`
}

// TaskScheduledPayload is the payload for EventTaskScheduled.
type TaskScheduledPayload struct {
	MachineID ID        `json:"machine_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// TaskStatusChangedPayload is the payload for EventTaskStatusChanged.
type TaskStatusChangedPayload struct {
	From TaskStatus `json:"from"`
	To   TaskStatus `json:"to"`
}

// ScheduleOptimizedPayload is the payload for EventScheduleOptimized.
type ScheduleOptimizedPayload struct {
	Status        string  `json:"status"`
	QualityScore  float64 `json:"quality_score"`
	FallbackUsed  bool    `json:"fallback_used"`
}
