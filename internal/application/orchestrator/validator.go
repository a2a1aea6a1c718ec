package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/aescanero/carecoord/pkg/ports"
	"go.uber.org/zap"
)

var (
	requiredGraphFields  = []string{"agents", "workflow", "actions", "data_flow"}
	requiredActionFields = []string{"agent", "action", "params"}
	requiredEdgeFields   = []string{"from", "to", "data"}
)

// Validator checks MCP/ACL task graphs and turns them into execution plans.
type Validator struct {
	strictDataFlow bool
	metrics        ports.MetricsCollector
	logger         *zap.Logger
}

// NewValidator creates a new task graph validator. With strictDataFlow set,
// data_flow edges must reference agents that appear in actions.
func NewValidator(strictDataFlow bool, metrics ports.MetricsCollector, logger *zap.Logger) *Validator {
	return &Validator{
		strictDataFlow: strictDataFlow,
		metrics:        metrics,
		logger:         logger,
	}
}

// Validate reports whether doc is a well-formed task graph. The reason for a
// rejection is logged; use Check to obtain it.
func (v *Validator) Validate(doc map[string]interface{}) bool {
	if err := v.Check(doc); err != nil {
		v.reject(err)
		return false
	}
	return true
}

// Check validates doc and returns a *ValidationError describing the first
// violated rule.
func (v *Validator) Check(doc map[string]interface{}) error {
	_, err := v.Parse(doc)
	return err
}

// Parse validates doc and decodes it into a TaskGraph.
func (v *Validator) Parse(doc map[string]interface{}) (graph *domain.TaskGraph, err error) {
	defer func() {
		if r := recover(); r != nil {
			graph = nil
			err = &ValidationError{
				Message: fmt.Sprintf("unexpected failure while checking graph: %v", r),
				Err:     ErrInvalidGraph,
			}
		}
	}()

	if doc == nil {
		return nil, invalidField("", "graph is empty")
	}

	for _, field := range requiredGraphFields {
		if _, ok := doc[field]; !ok {
			return nil, invalidField(field, "field is required")
		}
	}

	if err := checkEntries(doc["actions"], "actions", requiredActionFields); err != nil {
		return nil, err
	}
	if err := checkEntries(doc["data_flow"], "data_flow", requiredEdgeFields); err != nil {
		return nil, err
	}

	if raw, ok := doc["semantic_context"]; ok && raw != nil {
		if err := checkSemanticContext(raw); err != nil {
			return nil, err
		}
	}

	graph = &domain.TaskGraph{}
	if err := remarshal(doc, graph); err != nil {
		return nil, invalidField("", fmt.Sprintf("malformed graph: %v", err))
	}

	if v.strictDataFlow {
		if err := checkEdgeAgents(graph); err != nil {
			return nil, err
		}
	}

	return graph, nil
}

// ExtractPlan validates doc and derives one plan entry per action.
func (v *Validator) ExtractPlan(doc map[string]interface{}) ([]domain.PlanEntry, error) {
	_, plan, err := v.extract(doc)
	return plan, err
}

func (v *Validator) extract(doc map[string]interface{}) (*domain.TaskGraph, []domain.PlanEntry, error) {
	graph, err := v.Parse(doc)
	if err != nil {
		v.reject(err)
		return nil, nil, err
	}

	plan := BuildPlan(graph)
	v.logger.Debug("plan extracted",
		zap.String("workflow", graph.Workflow),
		zap.Int("tasks", len(plan)))

	return graph, plan, nil
}

// BuildPlan derives plan entries from an already validated graph. Inputs and
// outputs come from data_flow edges whose to/from equals the action's agent.
func BuildPlan(graph *domain.TaskGraph) []domain.PlanEntry {
	plan := make([]domain.PlanEntry, 0, len(graph.Actions))

	for _, action := range graph.Actions {
		entry := domain.PlanEntry{
			Agent:    action.Agent,
			Action:   action.Action,
			Params:   cloneMap(action.Params),
			Inputs:   []string{},
			Outputs:  []string{},
			Priority: domain.PriorityMedium,
		}

		for _, edge := range graph.DataFlow {
			if edge.To == action.Agent {
				entry.Inputs = append(entry.Inputs, edge.Data)
			}
			if edge.From == action.Agent {
				entry.Outputs = append(entry.Outputs, edge.Data)
			}
		}

		if sc := graph.SemanticContext; sc != nil {
			entry.Params["semantic_understanding"] = sc.Understanding()
			entry.Priority = sc.Priority()
		}

		plan = append(plan, entry)
	}

	return plan
}

func (v *Validator) reject(err error) {
	field := ""
	var verr *ValidationError
	if errors.As(err, &verr) {
		field = verr.Field
	}

	v.logger.Warn("task graph rejected",
		zap.String("field", field),
		zap.Error(err))
	v.metrics.RecordValidationFailure(failureReason(field))
}

// checkEntries verifies that raw is a list of objects each carrying fields.
func checkEntries(raw interface{}, name string, fields []string) error {
	if raw == nil {
		return invalidField(name, "must be a list")
	}

	var entries []map[string]json.RawMessage
	if err := remarshal(raw, &entries); err != nil {
		return invalidField(name, "must be a list of objects")
	}

	for i, entry := range entries {
		for _, field := range fields {
			if _, ok := entry[field]; !ok {
				return invalidField(fmt.Sprintf("%s[%d].%s", name, i, field), "field is required")
			}
		}
	}

	return nil
}

// semanticShape mirrors domain.SemanticContext with pointers so that missing
// required keys can be told apart from zero values.
type semanticShape struct {
	Intent             *string     `json:"intent"`
	IdentifiedConcepts *[]string   `json:"identified_concepts"`
	Confidence         *float64    `json:"confidence"`
	TemporalContext    interface{} `json:"temporal_context"`
	SeverityIndicators []string    `json:"severity_indicators"`
}

func checkSemanticContext(raw interface{}) error {
	var shape semanticShape
	if err := remarshal(raw, &shape); err != nil {
		return invalidField("semantic_context", fmt.Sprintf("malformed: %v", err))
	}

	switch {
	case shape.Intent == nil:
		return invalidField("semantic_context.intent", "field is required")
	case shape.IdentifiedConcepts == nil:
		return invalidField("semantic_context.identified_concepts", "field is required")
	case shape.Confidence == nil:
		return invalidField("semantic_context.confidence", "field is required")
	}

	return nil
}

func checkEdgeAgents(graph *domain.TaskGraph) error {
	known := make(map[string]bool, len(graph.Actions))
	for _, action := range graph.Actions {
		known[action.Agent] = true
	}

	for i, edge := range graph.DataFlow {
		for _, agent := range []string{edge.From, edge.To} {
			if !known[agent] {
				return &ValidationError{
					Field:   fmt.Sprintf("data_flow[%d]", i),
					Message: fmt.Sprintf("agent %q has no action", agent),
					Err:     fmt.Errorf("%w: %w", ErrInvalidGraph, ErrUnknownEdgeAgent),
				}
			}
		}
	}

	return nil
}

// failureReason keeps the validation metric's label set small.
func failureReason(field string) string {
	if field == "" {
		return "malformed"
	}
	if i := strings.IndexAny(field, "[."); i > 0 {
		return field[:i]
	}
	return field
}

func remarshal(in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
