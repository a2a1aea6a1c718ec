package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/aescanero/carecoord/pkg/ports"
)

// symptomHandler calls the symptom analyzer and records its findings for
// later tasks of the same run.
type symptomHandler struct {
	client ports.SymptomAnalyzer
}

func (h *symptomHandler) Handle(ctx context.Context, run *RunState, task domain.PlanEntry) (domain.DispatchResult, error) {
	req := domain.SymptomRequest{
		SymptomsText:    stringParam(task.Params, "symptoms_text"),
		SemanticContext: semanticPayload(task.Params, run),
		Priority:        string(task.Priority.Normalize()),
		PatientID:       firstNonEmpty(stringParam(task.Params, KeyPatientID), stringValue(run.Intermediate[KeyPatientID])),
	}

	env, err := h.client.AnalyzeSymptoms(ctx, req)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	if env.Error != "" {
		return failedResult(task, env.Error), nil
	}
	if env.Result == nil {
		return domain.DispatchResult{}, ErrEmptyResponse
	}

	run.Intermediate[KeyStructuredSymptoms] = stringSlice(env.Result["identified_symptoms"])
	if severity := stringValue(env.Result[KeySeverityLevel]); severity != "" {
		run.Intermediate[KeySeverityLevel] = severity
	}
	patientID := firstNonEmpty(stringValue(env.Result[KeyPatientID]), req.PatientID)
	if patientID != "" {
		run.Intermediate[KeyPatientID] = patientID
	}
	if analysis, ok := env.Result["semantic_analysis"].(map[string]interface{}); ok {
		run.Semantic = analysis
	}

	return domain.DispatchResult{
		Agent:           task.Agent,
		Action:          task.Action,
		Result:          env.Result,
		PatientID:       patientID,
		SemanticContext: run.Semantic,
	}, nil
}

// diseaseHandler prefers symptoms produced upstream in the same run over the
// task's own params.
type diseaseHandler struct {
	client ports.DiseasePredictor
}

func (h *diseaseHandler) Handle(ctx context.Context, run *RunState, task domain.PlanEntry) (domain.DispatchResult, error) {
	symptoms, ok := run.Intermediate[KeyStructuredSymptoms].([]string)
	if !ok {
		symptoms = stringSlice(task.Params["symptoms"])
	}

	patientID := firstNonEmpty(stringValue(run.Intermediate[KeyPatientID]), stringParam(task.Params, KeyPatientID))

	req := domain.DiseaseRequest{
		Symptoms:        symptoms,
		SeverityLevel:   firstNonEmpty(stringValue(run.Intermediate[KeySeverityLevel]), stringParam(task.Params, KeySeverityLevel)),
		PatientID:       patientID,
		SemanticContext: semanticPayload(task.Params, run),
	}

	env, err := h.client.PredictDisease(ctx, req)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	if env.Error != "" {
		return failedResult(task, env.Error), nil
	}
	if env.Result == nil {
		return domain.DispatchResult{}, ErrEmptyResponse
	}

	result := cloneMap(env.Result)
	if patientID != "" {
		result[KeyPatientID] = patientID
	}

	return domain.DispatchResult{
		Agent:           task.Agent,
		Action:          task.Action,
		Result:          result,
		PatientID:       patientID,
		SemanticContext: req.SemanticContext,
	}, nil
}

// journeyHandler serves get_journey, update_journey and track_journey. A
// remote error is surfaced as the result body as well as the error field.
type journeyHandler struct {
	client ports.JourneyTracker
}

func (h *journeyHandler) Handle(ctx context.Context, run *RunState, task domain.PlanEntry) (domain.DispatchResult, error) {
	patientID := firstNonEmpty(
		stringParam(task.Params, KeyPatientID),
		stringValue(run.Intermediate[KeyPatientID]),
		run.DefaultPatientID,
	)
	if patientID == "" {
		return domain.DispatchResult{}, errors.New("no patient_id available")
	}

	enriched := cloneMap(task.Params)
	enriched[KeyPatientID] = patientID
	enriched["action"] = task.Action
	if semantic := semanticPayload(task.Params, run); semantic != nil {
		enriched["semantic_context"] = semantic
	}

	env, err := h.client.GetJourney(ctx, domain.JourneyRequest{PatientID: patientID, Context: enriched})
	if err != nil {
		return domain.DispatchResult{}, err
	}

	run.Intermediate[KeyPatientID] = patientID

	if env.Error != "" {
		return domain.DispatchResult{
			Agent:     task.Agent,
			Action:    task.Action,
			Result:    map[string]interface{}{"error": env.Error},
			Error:     domain.ErrorText(env.Error),
			PatientID: patientID,
		}, nil
	}
	if env.Result == nil {
		return domain.DispatchResult{}, ErrEmptyResponse
	}

	return domain.DispatchResult{
		Agent:     task.Agent,
		Action:    task.Action,
		Result:    env.Result,
		PatientID: patientID,
	}, nil
}

func failedResult(task domain.PlanEntry, msg string) domain.DispatchResult {
	return domain.DispatchResult{
		Agent:  task.Agent,
		Action: task.Action,
		Error:  domain.ErrorText(fmt.Sprintf("Error dispatching to %s: %s", task.Agent, msg)),
	}
}

// semanticPayload merges the plan's semantic_understanding with the latest
// semantic analysis of the run. Run values win. Returns nil when neither is set.
func semanticPayload(params map[string]interface{}, run *RunState) map[string]interface{} {
	understanding, _ := params["semantic_understanding"].(map[string]interface{})
	if understanding == nil && run.Semantic == nil {
		return nil
	}

	merged := make(map[string]interface{}, len(understanding)+len(run.Semantic))
	for k, v := range understanding {
		merged[k] = v
	}
	for k, v := range run.Semantic {
		merged[k] = v
	}
	return merged
}

func stringParam(params map[string]interface{}, key string) string {
	return stringValue(params[key])
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// stringSlice accepts both []string and decoded JSON arrays.
func stringSlice(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
