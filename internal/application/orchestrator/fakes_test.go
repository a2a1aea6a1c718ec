package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aescanero/carecoord/pkg/adapters/metrics/noop"
	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const diagnosisGraph = `{
	"agents": ["symptom_analyzer", "disease_prediction"],
	"workflow": "medical_diagnosis",
	"actions": [
		{"agent": "symptom_analyzer", "action": "analyze_symptoms", "params": {"symptoms_text": "fever and cough"}},
		{"agent": "disease_prediction", "action": "predict_disease", "params": {"symptoms": []}}
	],
	"data_flow": [
		{"from": "symptom_analyzer", "to": "disease_prediction", "data": "structured_symptoms"}
	]
}`

const journeyGraph = `{
	"agents": ["patient_journey"],
	"workflow": "patient_journey_tracking",
	"actions": [
		{"agent": "patient_journey", "action": "get_journey", "params": {"query_type": "history"}}
	],
	"data_flow": []
}`

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

// mustDoc decodes a JSON graph so arrays and objects have their decoded types.
func mustDoc(t testingT, raw string) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

type fakeSymptoms struct {
	mu   sync.Mutex
	reqs []domain.SymptomRequest
	fn   func(req domain.SymptomRequest) (*domain.Envelope, error)
}

func (f *fakeSymptoms) AnalyzeSymptoms(_ context.Context, req domain.SymptomRequest) (*domain.Envelope, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(req)
	}
	return &domain.Envelope{Result: map[string]interface{}{
		"identified_symptoms": []interface{}{"fever", "cough"},
		"severity_level":      "moderate",
		"confidence":          0.8,
	}}, nil
}

func (f *fakeSymptoms) requests() []domain.SymptomRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SymptomRequest(nil), f.reqs...)
}

type fakeDiseases struct {
	mu   sync.Mutex
	reqs []domain.DiseaseRequest
	fn   func(req domain.DiseaseRequest) (*domain.Envelope, error)
}

func (f *fakeDiseases) PredictDisease(_ context.Context, req domain.DiseaseRequest) (*domain.Envelope, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(req)
	}
	return &domain.Envelope{Result: map[string]interface{}{
		"predicted_diseases": []interface{}{"influenza"},
		"confidence":         0.7,
		"severity_level":     "moderate",
	}}, nil
}

func (f *fakeDiseases) requests() []domain.DiseaseRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DiseaseRequest(nil), f.reqs...)
}

type fakeJourneys struct {
	mu   sync.Mutex
	reqs []domain.JourneyRequest
	fn   func(req domain.JourneyRequest) (*domain.Envelope, error)
}

func (f *fakeJourneys) GetJourney(_ context.Context, req domain.JourneyRequest) (*domain.Envelope, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(req)
	}
	return &domain.Envelope{Result: map[string]interface{}{
		"journey_steps": []interface{}{"admission", "diagnosis"},
		"confidence":    0.9,
		"patient_name":  "Jane Roe",
	}}, nil
}

func (f *fakeJourneys) requests() []domain.JourneyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.JourneyRequest(nil), f.reqs...)
}

type fakePrompts struct {
	mu    sync.Mutex
	calls int
	fn    func(req domain.PromptRequest) (*domain.PromptResult, error)
}

func (f *fakePrompts) ProcessPrompt(_ context.Context, req domain.PromptRequest) (*domain.PromptResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakePrompts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type agents struct {
	symptoms *fakeSymptoms
	diseases *fakeDiseases
	journeys *fakeJourneys
}

func newAgents() agents {
	return agents{
		symptoms: &fakeSymptoms{},
		diseases: &fakeDiseases{},
		journeys: &fakeJourneys{},
	}
}

func (a agents) dispatcher() *Dispatcher {
	return NewDispatcher(AgentClients{
		Symptoms: a.symptoms,
		Diseases: a.diseases,
		Journeys: a.journeys,
	}, "pat1", noop.New(), zap.NewNop())
}

func task(agent, action string, params map[string]interface{}) domain.PlanEntry {
	if params == nil {
		params = map[string]interface{}{}
	}
	return domain.PlanEntry{
		Agent:    agent,
		Action:   action,
		Params:   params,
		Inputs:   []string{},
		Outputs:  []string{},
		Priority: domain.PriorityMedium,
	}
}
