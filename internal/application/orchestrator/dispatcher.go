package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/aescanero/carecoord/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Keys of RunState.Intermediate.
const (
	KeyStructuredSymptoms = "structured_symptoms"
	KeySeverityLevel      = "severity_level"
	KeyPatientID          = "patient_id"
)

// RunState is the mutable state of a single Dispatch call. It is created
// fresh per call and never shared between requests.
type RunState struct {
	// Intermediate holds data produced by earlier tasks of the same call.
	Intermediate map[string]interface{}
	// Semantic is the most recent semantic analysis payload.
	Semantic map[string]interface{}
	// DefaultPatientID is used when neither params nor upstream tasks name a patient.
	DefaultPatientID string
}

// NewRunState creates an empty run state.
func NewRunState(defaultPatientID string) *RunState {
	return &RunState{
		Intermediate:     make(map[string]interface{}),
		DefaultPatientID: defaultPatientID,
	}
}

// TaskHandler executes one plan entry against a remote agent. A returned
// error is recorded on that task only.
type TaskHandler interface {
	Handle(ctx context.Context, run *RunState, task domain.PlanEntry) (domain.DispatchResult, error)
}

// TaskHandlerFunc adapts a function to TaskHandler.
type TaskHandlerFunc func(ctx context.Context, run *RunState, task domain.PlanEntry) (domain.DispatchResult, error)

// Handle calls f.
func (f TaskHandlerFunc) Handle(ctx context.Context, run *RunState, task domain.PlanEntry) (domain.DispatchResult, error) {
	return f(ctx, run, task)
}

type route struct {
	agent  string
	action string
}

// Dispatcher executes sequenced tasks strictly in order.
type Dispatcher struct {
	routes           map[route]TaskHandler
	agents           map[string]bool
	defaultPatientID string
	metrics          ports.MetricsCollector
	tracer           trace.Tracer
	logger           *zap.Logger
}

// AgentClients bundles the remote agents the default routes call.
type AgentClients struct {
	Symptoms ports.SymptomAnalyzer
	Diseases ports.DiseasePredictor
	Journeys ports.JourneyTracker
}

// NewDispatcher creates a dispatcher with the default route table.
func NewDispatcher(clients AgentClients, defaultPatientID string, metrics ports.MetricsCollector, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		routes:           make(map[route]TaskHandler),
		agents:           make(map[string]bool),
		defaultPatientID: defaultPatientID,
		metrics:          metrics,
		tracer:           otel.Tracer("github.com/aescanero/carecoord/orchestrator"),
		logger:           logger,
	}

	symptoms := &symptomHandler{client: clients.Symptoms}
	diseases := &diseaseHandler{client: clients.Diseases}
	journeys := &journeyHandler{client: clients.Journeys}

	d.Register(domain.AgentSymptomAnalyzer, domain.ActionAnalyzeSymptoms, symptoms)
	d.Register(domain.AgentDiseasePrediction, domain.ActionPredictDisease, diseases)
	d.Register(domain.AgentPatientJourney, domain.ActionGetJourney, journeys)
	d.Register(domain.AgentPatientJourney, domain.ActionUpdateJourney, journeys)
	d.Register(domain.AgentPatientJourney, domain.ActionTrackJourney, journeys)

	return d
}

// Register binds handler to an agent/action pair. Agent names are matched
// case-insensitively.
func (d *Dispatcher) Register(agent, action string, handler TaskHandler) {
	key := strings.ToLower(agent)
	d.agents[key] = true
	d.routes[route{agent: key, action: action}] = handler
}

// Resolve returns the handler for agent/action or a *RoutingError.
func (d *Dispatcher) Resolve(agent, action string) (TaskHandler, error) {
	key := strings.ToLower(agent)
	if !d.agents[key] {
		return nil, &RoutingError{Agent: agent, Action: action, Err: ErrUnknownAgent}
	}

	handler, ok := d.routes[route{agent: key, action: action}]
	if !ok {
		return nil, &RoutingError{Agent: agent, Action: action, Err: ErrUnknownAction}
	}

	return handler, nil
}

// Dispatch runs tasks with a fresh run state.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []domain.PlanEntry) []domain.DispatchResult {
	return d.DispatchWith(ctx, NewRunState(d.defaultPatientID), tasks, nil)
}

// DispatchWith runs tasks in order against run. The returned slice is aligned
// with tasks. onResult, when set, is called after every task.
func (d *Dispatcher) DispatchWith(ctx context.Context, run *RunState, tasks []domain.PlanEntry, onResult func(domain.DispatchResult)) []domain.DispatchResult {
	results := make([]domain.DispatchResult, 0, len(tasks))

	for _, task := range tasks {
		result := d.dispatchTask(ctx, run, task)
		results = append(results, result)
		if onResult != nil {
			onResult(result)
		}
	}

	return results
}

// dispatchTask isolates one task: routing misses, handler errors and panics
// all end up as an error on this task's result.
func (d *Dispatcher) dispatchTask(ctx context.Context, run *RunState, task domain.PlanEntry) (result domain.DispatchResult) {
	ctx, span := d.tracer.Start(ctx, "dispatch "+task.Agent+"."+task.Action,
		trace.WithAttributes(
			attribute.String("agent", task.Agent),
			attribute.String("action", task.Action),
			attribute.String("priority", string(task.Priority)),
		))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = dispatchFailure(task, fmt.Errorf("panic: %v", r))
		}

		status := "success"
		if result.Failed() {
			status = "error"
			span.SetStatus(codes.Error, *result.Error)
		}
		span.SetAttributes(attribute.String("status", status))
		span.End()

		duration := time.Since(start)
		d.metrics.RecordDispatch(task.Agent, status, duration)
		d.logger.Info("task dispatched",
			zap.String("agent", task.Agent),
			zap.String("action", task.Action),
			zap.String("status", status),
			zap.Duration("duration", duration))
	}()

	handler, err := d.Resolve(task.Agent, task.Action)
	if err != nil {
		return domain.DispatchResult{
			Agent:  task.Agent,
			Action: task.Action,
			Error:  domain.ErrorText(err.Error()),
		}
	}

	result, err = handler.Handle(ctx, run, task)
	if err != nil {
		span.RecordError(err)
		return dispatchFailure(task, err)
	}

	if result.Agent == "" {
		result.Agent = task.Agent
	}
	if result.Action == "" {
		result.Action = task.Action
	}

	return result
}

func dispatchFailure(task domain.PlanEntry, err error) domain.DispatchResult {
	return domain.DispatchResult{
		Agent:  task.Agent,
		Action: task.Action,
		Error:  domain.ErrorText(fmt.Sprintf("Error dispatching to %s: %s", task.Agent, err.Error())),
	}
}
