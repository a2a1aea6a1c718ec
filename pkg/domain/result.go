package domain

// DispatchResult is the outcome of one dispatched task. Result and Error
// serialize as null when unset.
type DispatchResult struct {
	Agent           string                 `json:"agent"`
	Action          string                 `json:"action,omitempty"`
	Result          map[string]interface{} `json:"result"`
	Error           *string                `json:"error"`
	PatientID       string                 `json:"patient_id,omitempty"`
	SemanticContext map[string]interface{} `json:"semantic_context,omitempty"`
}

// Failed reports whether the task carries an error.
func (r DispatchResult) Failed() bool {
	return r.Error != nil
}

// Output projects the result onto the agent/result pair.
func (r DispatchResult) Output() AgentOutput {
	return AgentOutput{Agent: r.Agent, Result: r.Result}
}

// AgentOutput is an aggregated, normalized per-agent result.
type AgentOutput struct {
	Agent  string                 `json:"agent"`
	Result map[string]interface{} `json:"result"`
}

// ErrorText returns a pointer suitable for DispatchResult.Error.
func ErrorText(msg string) *string {
	return &msg
}

// Envelope is the {result, error} wrapper every collaborator responds with.
type Envelope struct {
	Result map[string]interface{} `json:"result"`
	Error  string                 `json:"error,omitempty"`
}

// SymptomRequest is sent to the symptom analyzer.
type SymptomRequest struct {
	SymptomsText    string                 `json:"symptoms_text"`
	SemanticContext map[string]interface{} `json:"semantic_context,omitempty"`
	Priority        string                 `json:"priority,omitempty"`
	PatientID       string                 `json:"patient_id,omitempty"`
}

// DiseaseRequest is sent to the disease predictor.
type DiseaseRequest struct {
	Symptoms        []string               `json:"symptoms"`
	SeverityLevel   string                 `json:"severity_level,omitempty"`
	PatientID       string                 `json:"patient_id,omitempty"`
	SemanticContext map[string]interface{} `json:"semantic_context,omitempty"`
}

// JourneyRequest is sent to the patient journey service.
type JourneyRequest struct {
	PatientID string                 `json:"patient_id"`
	Context   map[string]interface{} `json:"context,omitempty"`
}
