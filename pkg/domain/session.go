package domain

import "time"

// SessionStatus is the lifecycle state of an orchestration session.
type SessionStatus string

const (
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Session is what the session store keeps per session id.
type Session struct {
	ID        string           `json:"session_id"`
	Status    SessionStatus    `json:"status"`
	Workflow  string           `json:"workflow,omitempty"`
	Results   []DispatchResult `json:"results"`
	Complete  bool             `json:"complete"`
	Error     string           `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// PromptRequest is a natural-language request handed to the prompt processor.
type PromptRequest struct {
	Prompt    string `json:"prompt"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Workflow  string `json:"workflow"`
	GetStatus bool   `json:"get_status,omitempty"`
	IsRetry   bool   `json:"is_retry,omitempty"`
}

// PromptResult is the prompt processor's answer.
type PromptResult struct {
	Graph           map[string]interface{} `json:"mcp_acl"`
	SemanticContext map[string]interface{} `json:"semantic_context,omitempty"`
}
