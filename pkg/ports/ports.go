// Package ports declares the interfaces the orchestration core depends on.
// Adapters under pkg/adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/aescanero/carecoord/pkg/domain"
)

// SessionStore keeps orchestration sessions keyed by session id.
type SessionStore interface {
	// Record stores the session, replacing any previous value.
	Record(ctx context.Context, session *domain.Session) error
	// Fetch returns the stored session. The bool is false when the session
	// has never been recorded.
	Fetch(ctx context.Context, sessionID string) (*domain.Session, bool, error)
	// List returns the ids of all stored sessions.
	List(ctx context.Context) ([]string, error)
}

// EventHandler processes one event.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes orchestration events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	// Subscribe registers handler until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordOrchestration(workflow, status string, duration time.Duration)
	RecordDispatch(agent, status string, duration time.Duration)
	RecordValidationFailure(reason string)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetQueueDepth(queue string, depth int)
	SetActiveExecutions(count int)
}

// SymptomAnalyzer is the remote symptom extraction agent.
type SymptomAnalyzer interface {
	AnalyzeSymptoms(ctx context.Context, req domain.SymptomRequest) (*domain.Envelope, error)
}

// DiseasePredictor is the remote disease prediction agent.
type DiseasePredictor interface {
	PredictDisease(ctx context.Context, req domain.DiseaseRequest) (*domain.Envelope, error)
}

// JourneyTracker is the remote patient journey service.
type JourneyTracker interface {
	GetJourney(ctx context.Context, req domain.JourneyRequest) (*domain.Envelope, error)
}

// PromptProcessor turns a natural-language prompt into a task graph.
type PromptProcessor interface {
	ProcessPrompt(ctx context.Context, req domain.PromptRequest) (*domain.PromptResult, error)
}
