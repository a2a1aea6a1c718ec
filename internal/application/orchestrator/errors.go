package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Orchestration errors.
var (
	// ErrInvalidGraph is returned when a task graph fails validation.
	ErrInvalidGraph = errors.New("invalid MCP/ACL structure")

	// ErrUnknownEdgeAgent is returned in strict mode for data_flow edges
	// naming an agent that no action targets.
	ErrUnknownEdgeAgent = errors.New("data_flow references unknown agent")

	// ErrCircularDependency is returned when the plan's data flow forms a cycle.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrUnknownAgent is returned when no handler is registered for an agent.
	ErrUnknownAgent = errors.New("no handler implemented for agent")

	// ErrUnknownAction is returned when an agent does not support an action.
	ErrUnknownAction = errors.New("unknown action for agent")

	// ErrEmptyResponse is returned when an agent answers without a result.
	ErrEmptyResponse = errors.New("agent returned no result")

	// ErrInvalidPrompt is returned for prompt requests missing required fields.
	ErrInvalidPrompt = errors.New("invalid prompt request")

	// ErrManagerStopped is returned after Shutdown.
	ErrManagerStopped = errors.New("orchestrator stopped")
)

// ValidationError names the part of a task graph that failed validation.
type ValidationError struct {
	Field   string // offending field, e.g. "actions[1].params"
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Err.Error(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: ErrInvalidGraph}
}

// CycleError reports the task ids on the detected cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCircularDependency.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCircularDependency.Error(), strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCircularDependency
}

// RoutingError is the typed outcome of a dispatch table miss.
type RoutingError struct {
	Agent  string
	Action string
	Err    error
}

func (e *RoutingError) Error() string {
	if errors.Is(e.Err, ErrUnknownAction) {
		return fmt.Sprintf("Unknown action for %s: %s", e.Agent, e.Action)
	}
	return fmt.Sprintf("No handler implemented for agent: %s", e.Agent)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}
