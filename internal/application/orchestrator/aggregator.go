package orchestrator

import (
	"strings"

	"github.com/aescanero/carecoord/pkg/domain"
	"go.uber.org/zap"
)

// Aggregator projects dispatch results onto the normalized per-agent view
// returned to callers. Only symptom analysis and disease prediction results
// are kept.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates a new result aggregator.
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate normalizes results in two passes. Symptom analyzer results come
// first; their symptom list is then injected as input_symptoms into every
// disease prediction result. Failed results and other agents are dropped.
func (a *Aggregator) Aggregate(results []domain.DispatchResult) []domain.AgentOutput {
	aggregated := []domain.AgentOutput{}
	if len(results) == 0 {
		return aggregated
	}

	var symptoms []string
	for _, r := range results {
		if !isAgent(r.Agent, domain.AgentSymptomAnalyzer) || !usable(r) {
			continue
		}
		normalized := normalizeSymptoms(r.Result)
		symptoms = normalized["identified_symptoms"].([]string)
		aggregated = append(aggregated, domain.AgentOutput{
			Agent:  domain.AgentSymptomAnalyzer,
			Result: normalized,
		})
	}

	for _, r := range results {
		if !isAgent(r.Agent, domain.AgentDiseasePrediction) || !usable(r) {
			continue
		}
		raw := cloneMap(r.Result)
		if symptoms != nil {
			raw["input_symptoms"] = symptoms
		}
		aggregated = append(aggregated, domain.AgentOutput{
			Agent:  domain.AgentDiseasePrediction,
			Result: normalizePrediction(raw),
		})
	}

	a.logger.Debug("results aggregated",
		zap.Int("results", len(results)),
		zap.Int("aggregated", len(aggregated)))

	return aggregated
}

// CheckCompletion reports whether outputs hold both a symptom analysis with
// identified symptoms and a disease prediction with predicted diseases.
func CheckCompletion(outputs []domain.AgentOutput) bool {
	var hasSymptoms, hasPredictions bool
	for _, o := range outputs {
		switch {
		case isAgent(o.Agent, domain.AgentSymptomAnalyzer):
			hasSymptoms = hasSymptoms || nonEmptyList(o.Result, "identified_symptoms")
		case isAgent(o.Agent, domain.AgentDiseasePrediction):
			hasPredictions = hasPredictions || nonEmptyList(o.Result, "predicted_diseases")
		}
	}
	return hasSymptoms && hasPredictions
}

// CheckWorkflowCompletion applies the completion rule of workflow. The patient
// journey workflow completes once a journey with steps is present; every other
// workflow uses CheckCompletion.
func CheckWorkflowCompletion(workflow string, outputs []domain.AgentOutput) bool {
	if workflow != domain.WorkflowPatientJourney {
		return CheckCompletion(outputs)
	}
	for _, o := range outputs {
		if isAgent(o.Agent, domain.AgentPatientJourney) && nonEmptyList(o.Result, "journey_steps") {
			return true
		}
	}
	return false
}

func normalizeSymptoms(result map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"identified_symptoms": stringSlice(result["identified_symptoms"]),
		"severity_level":      stringOr(result["severity_level"], "unknown"),
		"confidence":          floatOr(result["confidence"], 0.0),
	}
}

// normalizePrediction projects a prediction onto its three reported fields.
// input_symptoms rides along because dispatch results are never mutated.
func normalizePrediction(result map[string]interface{}) map[string]interface{} {
	normalized := map[string]interface{}{
		"predicted_diseases":  listOrEmpty(result["predicted_diseases"]),
		"confidence":          floatOr(result["confidence"], 0.0),
		"severity_assessment": stringOr(result["severity_assessment"], "unknown"),
	}
	if input, ok := result["input_symptoms"]; ok {
		normalized["input_symptoms"] = input
	}
	return normalized
}

func usable(r domain.DispatchResult) bool {
	return r.Result != nil && !r.Failed()
}

func isAgent(name, agent string) bool {
	return strings.EqualFold(name, agent)
}

func nonEmptyList(result map[string]interface{}, key string) bool {
	switch list := result[key].(type) {
	case []interface{}:
		return len(list) > 0
	case []string:
		return len(list) > 0
	case []map[string]interface{}:
		return len(list) > 0
	default:
		return false
	}
}

// listOrEmpty keeps list values as they are. Predicted diseases may be
// plain names or objects.
func listOrEmpty(v interface{}) interface{} {
	switch v.(type) {
	case []interface{}, []string, []map[string]interface{}:
		return v
	default:
		return []interface{}{}
	}
}

func stringOr(v interface{}, fallback string) string {
	if s := stringValue(v); s != "" {
		return s
	}
	return fallback
}

func floatOr(v interface{}, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}
