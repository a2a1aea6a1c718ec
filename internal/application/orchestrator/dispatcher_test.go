package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_ThreadsSymptomsIntoPrediction(t *testing.T) {
	a := newAgents()
	a.symptoms.fn = func(req domain.SymptomRequest) (*domain.Envelope, error) {
		return &domain.Envelope{Result: map[string]interface{}{
			"identified_symptoms": []interface{}{"fever", "cough"},
			"severity_level":      "severe",
			"confidence":          0.9,
			"patient_id":          "p-42",
			"semantic_analysis":   map[string]interface{}{"intent": "diagnosis"},
		}}, nil
	}

	results := a.dispatcher().Dispatch(context.Background(), []domain.PlanEntry{
		task("symptom_analyzer", "analyze_symptoms", map[string]interface{}{"symptoms_text": "fever and cough"}),
		task("disease_prediction", "predict_disease", map[string]interface{}{"symptoms": []interface{}{"ignored"}}),
	})
	require.Len(t, results, 2)

	require.Len(t, a.symptoms.requests(), 1)
	assert.Equal(t, "fever and cough", a.symptoms.requests()[0].SymptomsText)
	assert.Equal(t, "medium", a.symptoms.requests()[0].Priority)

	require.Len(t, a.diseases.requests(), 1)
	req := a.diseases.requests()[0]
	assert.Equal(t, []string{"fever", "cough"}, req.Symptoms)
	assert.Equal(t, "severe", req.SeverityLevel)
	assert.Equal(t, "p-42", req.PatientID)
	assert.Equal(t, "diagnosis", req.SemanticContext["intent"])

	assert.Nil(t, results[0].Error)
	assert.Equal(t, "p-42", results[0].PatientID)
	assert.Nil(t, results[1].Error)
	assert.Equal(t, "p-42", results[1].Result["patient_id"])
	assert.Equal(t, []interface{}{"influenza"}, results[1].Result["predicted_diseases"])
}

func TestDispatcher_PredictionFallsBackToParams(t *testing.T) {
	a := newAgents()

	results := a.dispatcher().Dispatch(context.Background(), []domain.PlanEntry{
		task("disease_prediction", "predict_disease", map[string]interface{}{
			"symptoms":   []interface{}{"headache"},
			"patient_id": "p-7",
		}),
	})
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Error)

	req := a.diseases.requests()[0]
	assert.Equal(t, []string{"headache"}, req.Symptoms)
	assert.Equal(t, "p-7", req.PatientID)
	assert.Nil(t, req.SemanticContext)
}

func TestDispatcher_StateIsFreshPerCall(t *testing.T) {
	a := newAgents()
	d := a.dispatcher()

	d.Dispatch(context.Background(), []domain.PlanEntry{
		task("symptom_analyzer", "analyze_symptoms", map[string]interface{}{"symptoms_text": "fever"}),
	})
	d.Dispatch(context.Background(), []domain.PlanEntry{
		task("disease_prediction", "predict_disease", map[string]interface{}{"symptoms": []interface{}{"rash"}}),
	})

	reqs := a.diseases.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"rash"}, reqs[0].Symptoms)
	assert.Empty(t, reqs[0].SeverityLevel)
}

func TestDispatcher_IsolatesTaskFailures(t *testing.T) {
	a := newAgents()
	a.diseases.fn = func(domain.DiseaseRequest) (*domain.Envelope, error) {
		return nil, errors.New("connection refused")
	}

	results := a.dispatcher().Dispatch(context.Background(), []domain.PlanEntry{
		task("symptom_analyzer", "analyze_symptoms", map[string]interface{}{"symptoms_text": "fever"}),
		task("disease_prediction", "predict_disease", nil),
		task("patient_journey", "get_journey", nil),
	})
	require.Len(t, results, 3)

	assert.Nil(t, results[0].Error)
	assert.NotNil(t, results[0].Result)

	require.NotNil(t, results[1].Error)
	assert.Equal(t, "Error dispatching to disease_prediction: connection refused", *results[1].Error)
	assert.Nil(t, results[1].Result)

	assert.Nil(t, results[2].Error)
	assert.NotNil(t, results[2].Result)
}

func TestDispatcher_EnvelopeErrorFailsTask(t *testing.T) {
	a := newAgents()
	a.symptoms.fn = func(domain.SymptomRequest) (*domain.Envelope, error) {
		return &domain.Envelope{Error: "empty symptoms_text"}, nil
	}

	results := a.dispatcher().Dispatch(context.Background(), []domain.PlanEntry{
		task("symptom_analyzer", "analyze_symptoms", nil),
	})
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "Error dispatching to symptom_analyzer: empty symptoms_text", *results[0].Error)
	assert.Nil(t, results[0].Result)
}

func TestDispatcher_EmptyResponse(t *testing.T) {
	a := newAgents()
	a.diseases.fn = func(domain.DiseaseRequest) (*domain.Envelope, error) {
		return &domain.Envelope{}, nil
	}

	results := a.dispatcher().Dispatch(context.Background(), []domain.PlanEntry{
		task("disease_prediction", "predict_disease", nil),
	})
	require.NotNil(t, results[0].Error)
	assert.Contains(t, *results[0].Error, ErrEmptyResponse.Error())
}

func TestDispatcher_RoutingMisses(t *testing.T) {
	results := newAgents().dispatcher().Dispatch(context.Background(), []domain.PlanEntry{
		task("radiology", "scan", nil),
		task("symptom_analyzer", "predict_disease", nil),
		task("Symptom_Analyzer", "analyze_symptoms", map[string]interface{}{"symptoms_text": "cough"}),
	})
	require.Len(t, results, 3)

	require.NotNil(t, results[0].Error)
	assert.Equal(t, "No handler implemented for agent: radiology", *results[0].Error)
	assert.Nil(t, results[0].Result)

	require.NotNil(t, results[1].Error)
	assert.Equal(t, "Unknown action for symptom_analyzer: predict_disease", *results[1].Error)

	assert.Nil(t, results[2].Error)
	assert.Equal(t, "Symptom_Analyzer", results[2].Agent)
}

func TestDispatcher_Resolve(t *testing.T) {
	d := newAgents().dispatcher()

	_, err := d.Resolve("patient_journey", "track_journey")
	assert.NoError(t, err)

	_, err = d.Resolve("patient_journey", "delete_journey")
	var rerr *RoutingError
	require.True(t, errors.As(err, &rerr))
	assert.True(t, errors.Is(err, ErrUnknownAction))

	_, err = d.Resolve("billing", "charge")
	assert.True(t, errors.Is(err, ErrUnknownAgent))
}

func TestDispatcher_RecoversFromPanics(t *testing.T) {
	d := newAgents().dispatcher()
	d.Register("triage", "assess", TaskHandlerFunc(func(context.Context, *RunState, domain.PlanEntry) (domain.DispatchResult, error) {
		panic("nil map")
	}))

	results := d.Dispatch(context.Background(), []domain.PlanEntry{
		task("triage", "assess", nil),
		task("patient_journey", "get_journey", nil),
	})
	require.Len(t, results, 2)

	require.NotNil(t, results[0].Error)
	assert.Equal(t, "Error dispatching to triage: panic: nil map", *results[0].Error)
	assert.Nil(t, results[1].Error)
}

func TestDispatcher_JourneyErrorBecomesResultBody(t *testing.T) {
	a := newAgents()
	a.journeys.fn = func(domain.JourneyRequest) (*domain.Envelope, error) {
		return &domain.Envelope{Error: "patient not found"}, nil
	}

	results := a.dispatcher().Dispatch(context.Background(), []domain.PlanEntry{
		task("patient_journey", "get_journey", map[string]interface{}{"patient_id": "ghost"}),
	})
	require.Len(t, results, 1)

	require.NotNil(t, results[0].Error)
	assert.Equal(t, "patient not found", *results[0].Error)
	assert.Equal(t, map[string]interface{}{"error": "patient not found"}, results[0].Result)
	assert.Equal(t, "ghost", results[0].PatientID)
}

func TestDispatcher_JourneyPatientResolution(t *testing.T) {
	a := newAgents()
	a.symptoms.fn = func(domain.SymptomRequest) (*domain.Envelope, error) {
		return &domain.Envelope{Result: map[string]interface{}{
			"identified_symptoms": []interface{}{},
			"patient_id":          "from-symptoms",
		}}, nil
	}
	d := a.dispatcher()

	d.Dispatch(context.Background(), []domain.PlanEntry{task("patient_journey", "get_journey", nil)})
	d.Dispatch(context.Background(), []domain.PlanEntry{
		task("symptom_analyzer", "analyze_symptoms", nil),
		task("patient_journey", "update_journey", nil),
	})
	d.Dispatch(context.Background(), []domain.PlanEntry{
		task("patient_journey", "track_journey", map[string]interface{}{"patient_id": "explicit"}),
	})

	reqs := a.journeys.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "pat1", reqs[0].PatientID)
	assert.Equal(t, "from-symptoms", reqs[1].PatientID)
	assert.Equal(t, "update_journey", reqs[1].Context["action"])
	assert.Equal(t, "explicit", reqs[2].PatientID)
	assert.Equal(t, "explicit", reqs[2].Context["patient_id"])
}

func TestDispatcher_JourneyReceivesSemanticContext(t *testing.T) {
	a := newAgents()

	understanding := map[string]interface{}{"intent": "journey", "confidence": 0.9}
	a.dispatcher().Dispatch(context.Background(), []domain.PlanEntry{
		task("patient_journey", "get_journey", map[string]interface{}{"semantic_understanding": understanding}),
	})

	reqs := a.journeys.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, understanding, reqs[0].Context["semantic_context"])
}

func TestDispatcher_DispatchWithReportsEachResult(t *testing.T) {
	a := newAgents()

	var seen []string
	run := NewRunState("pat9")
	results := a.dispatcher().DispatchWith(context.Background(), run, []domain.PlanEntry{
		task("symptom_analyzer", "analyze_symptoms", nil),
		task("radiology", "scan", nil),
	}, func(r domain.DispatchResult) {
		seen = append(seen, r.Agent)
	})

	assert.Len(t, results, 2)
	assert.Equal(t, []string{"symptom_analyzer", "radiology"}, seen)
	assert.Equal(t, []string{"fever", "cough"}, run.Intermediate[KeyStructuredSymptoms])
	assert.Equal(t, "moderate", run.Intermediate[KeySeverityLevel])
}
