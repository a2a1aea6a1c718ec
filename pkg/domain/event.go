package domain

import "time"

// EventType identifies an orchestration event.
type EventType string

const (
	EventTypeOrchestrationStarted   EventType = "orchestration.started"
	EventTypeTaskDispatched         EventType = "task.dispatched"
	EventTypeOrchestrationCompleted EventType = "orchestration.completed"
	EventTypeOrchestrationFailed    EventType = "orchestration.failed"
)

// Event is published on the event bus while a session runs.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
