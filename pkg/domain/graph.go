package domain

// Agent names understood by the dispatcher.
const (
	AgentSymptomAnalyzer   = "symptom_analyzer"
	AgentDiseasePrediction = "disease_prediction"
	AgentPatientJourney    = "patient_journey"
)

// Actions per agent.
const (
	ActionAnalyzeSymptoms = "analyze_symptoms"
	ActionPredictDisease  = "predict_disease"
	ActionGetJourney      = "get_journey"
	ActionUpdateJourney   = "update_journey"
	ActionTrackJourney    = "track_journey"
)

// Known workflow labels.
const (
	WorkflowMedicalDiagnosis = "medical_diagnosis"
	WorkflowPatientJourney   = "patient_journey_tracking"
)

// Priority is a scheduling hint attached to a plan entry.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Normalize maps unknown or empty priorities to medium.
func (p Priority) Normalize() Priority {
	switch p {
	case PriorityHigh, PriorityLow:
		return p
	default:
		return PriorityMedium
	}
}

// TaskGraph is the MCP/ACL document submitted for orchestration.
type TaskGraph struct {
	Agents          []string         `json:"agents"`
	Workflow        string           `json:"workflow"`
	Actions         []Action         `json:"actions"`
	DataFlow        []DataEdge       `json:"data_flow"`
	SemanticContext *SemanticContext `json:"semantic_context,omitempty"`
}

// Action is a single agent invocation requested by a task graph.
type Action struct {
	Agent  string                 `json:"agent"`
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params"`
}

// DataEdge declares that data produced by one agent is consumed by another.
type DataEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Data string `json:"data"`
}

// SemanticContext carries hints produced by the enrichment stage.
type SemanticContext struct {
	Intent             string      `json:"intent"`
	IdentifiedConcepts []string    `json:"identified_concepts"`
	Confidence         float64     `json:"confidence"`
	TemporalContext    interface{} `json:"temporal_context,omitempty"`
	SeverityIndicators []string    `json:"severity_indicators,omitempty"`
}

// Priority derives a scheduling priority from the confidence score.
func (s *SemanticContext) Priority() Priority {
	switch {
	case s.Confidence > 0.8:
		return PriorityHigh
	case s.Confidence < 0.5:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Understanding renders the context as the semantic_understanding plan parameter.
func (s *SemanticContext) Understanding() map[string]interface{} {
	concepts := make([]string, len(s.IdentifiedConcepts))
	copy(concepts, s.IdentifiedConcepts)

	u := map[string]interface{}{
		"intent":     s.Intent,
		"concepts":   concepts,
		"confidence": s.Confidence,
	}
	if s.TemporalContext != nil {
		u["temporal_context"] = s.TemporalContext
	}
	if len(s.SeverityIndicators) > 0 {
		indicators := make([]string, len(s.SeverityIndicators))
		copy(indicators, s.SeverityIndicators)
		u["severity_indicators"] = indicators
	}
	return u
}

// PlanEntry is the execution-ready form of an Action.
type PlanEntry struct {
	Agent    string                 `json:"agent"`
	Action   string                 `json:"action"`
	Params   map[string]interface{} `json:"params"`
	Inputs   []string               `json:"inputs"`
	Outputs  []string               `json:"outputs"`
	Priority Priority               `json:"priority"`
}

// TaskID is the agent_action composite used for dependency tracking.
func (p PlanEntry) TaskID() string {
	return p.Agent + "_" + p.Action
}
