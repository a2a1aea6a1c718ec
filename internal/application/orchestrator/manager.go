package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/aescanero/carecoord/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventsTopic is the event bus topic orchestration events are published on.
const EventsTopic = "orchestration.events"

// StatusSuccess is the status of an orchestration that got past validation
// and sequencing. Individual tasks may still have failed.
const StatusSuccess = "success"

// JobQueue runs orchestration jobs in the background.
type JobQueue interface {
	Submit(id string, job func(ctx context.Context)) error
}

// Outcome is the answer to one orchestration request. Results is aligned with
// the sequenced task list.
type Outcome struct {
	Status     string                  `json:"status"`
	SessionID  string                  `json:"session_id,omitempty"`
	Workflow   string                  `json:"workflow"`
	Results    []domain.DispatchResult `json:"results"`
	Aggregated []domain.AgentOutput    `json:"aggregated"`
	Complete   bool                    `json:"complete"`
}

// Components are the collaborators of a Manager. Jobs may be nil, in which
// case prompt runs get their own goroutine.
type Components struct {
	Validator  *Validator
	Sequencer  *Sequencer
	Dispatcher *Dispatcher
	Aggregator *Aggregator
	Sessions   ports.SessionStore
	Events     ports.EventBus
	Metrics    ports.MetricsCollector
	Prompts    ports.PromptProcessor
	Jobs       JobQueue
}

// Manager runs the validate, sequence, dispatch and aggregate pipeline and
// keeps session state for polling clients.
type Manager struct {
	validator  *Validator
	sequencer  *Sequencer
	dispatcher *Dispatcher
	aggregator *Aggregator
	sessions   ports.SessionStore
	events     ports.EventBus
	metrics    ports.MetricsCollector
	prompts    ports.PromptProcessor
	jobs       JobQueue
	logger     *zap.Logger

	// Track active executions
	executions sync.Map // map[string]*executionContext
	inflight   sync.Map // session ids with a queued or running prompt
	active     atomic.Int64
	stopped    atomic.Bool

	runTimeout time.Duration
}

// executionContext holds state for a single session run
type executionContext struct {
	sessionID  string
	startedAt  time.Time
	cancelFunc context.CancelFunc
}

// NewManager creates a new orchestration manager. A zero runTimeout leaves
// runs unbounded.
func NewManager(c Components, runTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		validator:  c.Validator,
		sequencer:  c.Sequencer,
		dispatcher: c.Dispatcher,
		aggregator: c.Aggregator,
		sessions:   c.Sessions,
		events:     c.Events,
		metrics:    c.Metrics,
		prompts:    c.Prompts,
		jobs:       c.Jobs,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

// Orchestrate runs doc through the whole pipeline without touching sessions.
// Validation and sequencing errors abort the request; dispatch errors are
// reported per task in the outcome.
func (m *Manager) Orchestrate(ctx context.Context, doc map[string]interface{}) (*Outcome, error) {
	return m.orchestrate(ctx, doc, "", nil)
}

// OrchestrateSession runs doc for sessionID, publishes progress events and
// records the results in the session store.
func (m *Manager) OrchestrateSession(ctx context.Context, sessionID string, doc map[string]interface{}) (*Outcome, error) {
	if m.stopped.Load() {
		return nil, ErrManagerStopped
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	runCtx, done := m.track(ctx, sessionID)
	defer done()

	return m.execute(runCtx, sessionID, "", doc)
}

// SubmitPrompt queues a prompt run and returns immediately. A completed
// session is returned as is unless the request is a retry. Status polls
// and requests for a session already in flight get the processing
// placeholder.
func (m *Manager) SubmitPrompt(ctx context.Context, req domain.PromptRequest) (*domain.Session, error) {
	if m.stopped.Load() {
		return nil, ErrManagerStopped
	}
	req = normalizePrompt(req)

	if req.GetStatus {
		return m.Status(ctx, req.SessionID, req.Workflow)
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidPrompt)
	}

	existing, ok, err := m.sessions.Fetch(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	if ok && existing.Status == domain.SessionStatusCompleted && !req.IsRetry {
		return existing, nil
	}

	if _, loaded := m.inflight.LoadOrStore(req.SessionID, struct{}{}); loaded {
		return placeholder(req.SessionID, req.Workflow), nil
	}

	job := func(jobCtx context.Context) {
		defer m.inflight.Delete(req.SessionID)
		if m.stopped.Load() {
			m.recordFailure(jobCtx, req.SessionID, req.Workflow, ErrManagerStopped)
			return
		}
		if _, err := m.runPrompt(jobCtx, req); err != nil {
			m.logger.Warn("prompt run failed",
				zap.String("session_id", req.SessionID),
				zap.Error(err))
		}
	}

	if m.jobs == nil {
		go job(context.Background())
	} else if err := m.jobs.Submit(req.SessionID, job); err != nil {
		m.inflight.Delete(req.SessionID)
		return nil, fmt.Errorf("failed to queue prompt: %w", err)
	}

	m.logger.Info("prompt queued",
		zap.String("session_id", req.SessionID),
		zap.String("workflow", req.Workflow))

	return placeholder(req.SessionID, req.Workflow), nil
}

// PredictDisease dispatches a single disease prediction for symptoms outside
// of any session.
func (m *Manager) PredictDisease(ctx context.Context, symptoms []string) domain.DispatchResult {
	entry := domain.PlanEntry{
		Agent:    domain.AgentDiseasePrediction,
		Action:   domain.ActionPredictDisease,
		Params:   map[string]interface{}{"symptoms": symptoms},
		Inputs:   []string{},
		Outputs:  []string{},
		Priority: domain.PriorityMedium,
	}
	return m.dispatcher.Dispatch(ctx, []domain.PlanEntry{entry})[0]
}

// Status returns the recorded session, or a processing placeholder listing
// the tasks workflow is expected to produce.
func (m *Manager) Status(ctx context.Context, sessionID, workflow string) (*domain.Session, error) {
	session, ok, err := m.sessions.Fetch(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	if ok {
		return session, nil
	}
	if workflow == "" {
		workflow = domain.WorkflowMedicalDiagnosis
	}
	return placeholder(sessionID, workflow), nil
}

// Sessions lists the ids of all recorded sessions.
func (m *Manager) Sessions(ctx context.Context) ([]string, error) {
	ids, err := m.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// Watch calls fn for every event of sessionID until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context, sessionID string, fn func(domain.Event)) error {
	return m.events.Subscribe(ctx, EventsTopic, func(_ context.Context, event domain.Event) error {
		if event.SessionID == sessionID {
			fn(event)
		}
		return nil
	})
}

// Shutdown cancels every running session. New requests are refused.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestration manager")
	m.stopped.Store(true)

	m.executions.Range(func(key, value interface{}) bool {
		execCtx := value.(*executionContext)
		m.logger.Info("cancelling session run",
			zap.String("session_id", execCtx.sessionID),
			zap.Duration("running_for", time.Since(execCtx.startedAt)))
		execCtx.cancelFunc()
		return true
	})

	m.logger.Info("orchestration manager shut down complete")
	return nil
}

func (m *Manager) runPrompt(ctx context.Context, req domain.PromptRequest) (*Outcome, error) {
	runCtx, done := m.track(ctx, req.SessionID)
	defer done()

	result, err := m.prompts.ProcessPrompt(runCtx, req)
	if err == nil && result.Graph == nil {
		err = ErrEmptyResponse
	}
	if err != nil {
		err = fmt.Errorf("failed to process prompt: %w", err)
		m.publish(ctx, domain.EventTypeOrchestrationFailed, req.SessionID, map[string]interface{}{
			"error": err.Error(),
		})
		m.recordFailure(ctx, req.SessionID, req.Workflow, err)
		return nil, err
	}

	doc := result.Graph
	if _, ok := doc["semantic_context"]; !ok && result.SemanticContext != nil {
		doc = cloneMap(doc)
		doc["semantic_context"] = result.SemanticContext
	}

	outcome, err := m.execute(runCtx, req.SessionID, req.UserID, doc)
	if err != nil {
		m.recordFailure(ctx, req.SessionID, req.Workflow, err)
		return nil, err
	}
	return outcome, nil
}

// execute runs the pipeline for a tracked session. userID, when set, is the
// patient id of last resort for journey tasks.
func (m *Manager) execute(ctx context.Context, sessionID, userID string, doc map[string]interface{}) (*Outcome, error) {
	m.publish(ctx, domain.EventTypeOrchestrationStarted, sessionID, nil)

	outcome, err := m.orchestrate(ctx, doc, userID, func(r domain.DispatchResult) {
		data := map[string]interface{}{
			"agent":  r.Agent,
			"action": r.Action,
			"failed": r.Failed(),
		}
		if r.Failed() {
			data["error"] = *r.Error
		}
		m.publish(ctx, domain.EventTypeTaskDispatched, sessionID, data)
	})
	if err != nil {
		m.publish(ctx, domain.EventTypeOrchestrationFailed, sessionID, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	outcome.SessionID = sessionID

	session := &domain.Session{
		ID:        sessionID,
		Status:    domain.SessionStatusCompleted,
		Workflow:  outcome.Workflow,
		Results:   outcome.Results,
		Complete:  outcome.Complete,
		UpdatedAt: time.Now(),
	}
	if err := m.sessions.Record(ctx, session); err != nil {
		m.logger.Error("failed to record session",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to record session: %w", err)
	}

	m.publish(ctx, domain.EventTypeOrchestrationCompleted, sessionID, map[string]interface{}{
		"workflow": outcome.Workflow,
		"complete": outcome.Complete,
		"tasks":    len(outcome.Results),
	})

	return outcome, nil
}

func (m *Manager) orchestrate(ctx context.Context, doc map[string]interface{}, userID string, onResult func(domain.DispatchResult)) (*Outcome, error) {
	start := time.Now()

	graph, plan, err := m.validator.extract(doc)
	if err != nil {
		m.metrics.RecordOrchestration("unknown", "invalid", time.Since(start))
		return nil, err
	}

	sequenced, err := m.sequencer.Sequence(plan)
	if err != nil {
		m.metrics.RecordOrchestration(graph.Workflow, "invalid", time.Since(start))
		return nil, err
	}

	run := NewRunState(firstNonEmpty(userID, m.dispatcher.defaultPatientID))
	results := m.dispatcher.DispatchWith(ctx, run, sequenced, onResult)
	aggregated := m.aggregator.Aggregate(results)
	complete := CheckWorkflowCompletion(graph.Workflow, completedOutputs(results))

	duration := time.Since(start)
	m.metrics.RecordOrchestration(graph.Workflow, StatusSuccess, duration)
	m.logger.Info("orchestration finished",
		zap.String("workflow", graph.Workflow),
		zap.Int("tasks", len(results)),
		zap.Bool("complete", complete),
		zap.Duration("duration", duration))

	return &Outcome{
		Status:     StatusSuccess,
		Workflow:   graph.Workflow,
		Results:    results,
		Aggregated: aggregated,
		Complete:   complete,
	}, nil
}

// track registers a cancellable run for sessionID. The returned func must be
// called when the run ends.
func (m *Manager) track(ctx context.Context, sessionID string) (context.Context, func()) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if m.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, m.runTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	execCtx := &executionContext{
		sessionID:  sessionID,
		startedAt:  time.Now(),
		cancelFunc: cancel,
	}
	m.executions.Store(execCtx, execCtx)
	m.metrics.SetActiveExecutions(int(m.active.Add(1)))

	return runCtx, func() {
		cancel()
		m.executions.Delete(execCtx)
		m.metrics.SetActiveExecutions(int(m.active.Add(-1)))
	}
}

func (m *Manager) recordFailure(ctx context.Context, sessionID, workflow string, cause error) {
	session := &domain.Session{
		ID:        sessionID,
		Status:    domain.SessionStatusFailed,
		Workflow:  workflow,
		Results:   []domain.DispatchResult{},
		Error:     cause.Error(),
		UpdatedAt: time.Now(),
	}
	if err := m.sessions.Record(ctx, session); err != nil {
		m.logger.Error("failed to record failed session",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, eventType domain.EventType, sessionID string, data map[string]interface{}) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	}

	if err := m.events.Publish(context.WithoutCancel(ctx), EventsTopic, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("session_id", sessionID),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

// completedOutputs projects the results that carry a usable payload.
func completedOutputs(results []domain.DispatchResult) []domain.AgentOutput {
	outputs := make([]domain.AgentOutput, 0, len(results))
	for _, r := range results {
		if usable(r) {
			outputs = append(outputs, r.Output())
		}
	}
	return outputs
}

func normalizePrompt(req domain.PromptRequest) domain.PromptRequest {
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	if req.Workflow == "" {
		req.Workflow = domain.WorkflowMedicalDiagnosis
	}
	return req
}

// placeholder is what pollers see while a session has no recorded results.
func placeholder(sessionID, workflow string) *domain.Session {
	results := []domain.DispatchResult{}
	for _, task := range expectedTasks(workflow) {
		results = append(results, domain.DispatchResult{Agent: task[0], Action: task[1]})
	}
	return &domain.Session{
		ID:        sessionID,
		Status:    domain.SessionStatusProcessing,
		Workflow:  workflow,
		Results:   results,
		UpdatedAt: time.Now(),
	}
}

func expectedTasks(workflow string) [][2]string {
	if workflow == domain.WorkflowPatientJourney {
		return [][2]string{{domain.AgentPatientJourney, domain.ActionGetJourney}}
	}
	return [][2]string{
		{domain.AgentSymptomAnalyzer, domain.ActionAnalyzeSymptoms},
		{domain.AgentDiseasePrediction, domain.ActionPredictDisease},
	}
}

// IsClientError reports whether err was caused by the submitted graph or
// request rather than by the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrCircularDependency) ||
		errors.Is(err, ErrInvalidPrompt)
}
