package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/carecoord/internal/application/orchestrator"
	"github.com/aescanero/carecoord/internal/application/workers"
	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PredictRequest is the body of the disease prediction shortcut
type PredictRequest struct {
	Symptoms []string `json:"symptoms" binding:"required"`
}

// SessionListResponse lists the recorded session ids
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
	Total    int      `json:"total"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"orchestrator": "ok"}
	status, code := "healthy", http.StatusOK

	if s.health != nil {
		pool := s.health.GetStatus()
		checks["workers"] = pool
		if !pool.Healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   "carecoord",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// handleOrchestrate runs a task graph. The body is either {"mcp_acl": graph}
// or the graph itself; ?session_id records the run.
func (s *Server) handleOrchestrate(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, "INVALID_REQUEST", err)
		return
	}

	doc := body
	if wrapped, ok := body["mcp_acl"].(map[string]interface{}); ok {
		doc = wrapped
	}

	var (
		outcome *orchestrator.Outcome
		err     error
	)
	if sessionID := c.Query("session_id"); sessionID != "" {
		outcome, err = s.orchestrator.OrchestrateSession(c.Request.Context(), sessionID, doc)
	} else {
		outcome, err = s.orchestrator.Orchestrate(c.Request.Context(), doc)
	}
	if err != nil {
		s.fail(c, "ORCHESTRATION_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// handleChatOrchestrate turns a prompt into a task graph and runs it in the
// background. Polls use get_status=true.
func (s *Server) handleChatOrchestrate(c *gin.Context) {
	var req domain.PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "INVALID_REQUEST", err)
		return
	}

	session, err := s.orchestrator.SubmitPrompt(c.Request.Context(), req)
	if err != nil {
		s.fail(c, "SUBMISSION_FAILED", err)
		return
	}

	code := http.StatusOK
	if session.Status == domain.SessionStatusProcessing {
		code = http.StatusAccepted
	}
	c.JSON(code, session)
}

// handlePredictDisease dispatches a single disease prediction
func (s *Server) handlePredictDisease(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "INVALID_REQUEST", err)
		return
	}

	result := s.orchestrator.PredictDisease(c.Request.Context(), req.Symptoms)
	if result.Failed() {
		c.JSON(http.StatusOK, gin.H{"error": *result.Error})
		return
	}

	diseases, ok := result.Result["predicted_diseases"].([]interface{})
	if !ok {
		diseases = []interface{}{}
	}
	confidence, ok := result.Result["confidence"].(float64)
	if !ok {
		confidence = 0.0
	}

	c.JSON(http.StatusOK, gin.H{
		"result": gin.H{
			"predicted_diseases": diseases,
			"confidence":         confidence,
		},
	})
}

// handleListSessions handles listing sessions
func (s *Server) handleListSessions(c *gin.Context) {
	ids, err := s.orchestrator.Sessions(c.Request.Context())
	if err != nil {
		s.fail(c, "STORAGE_ERROR", err)
		return
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: ids, Total: len(ids)})
}

// handleGetSession returns the recorded session or a processing placeholder
func (s *Server) handleGetSession(c *gin.Context) {
	session, err := s.orchestrator.Status(c.Request.Context(), c.Param("id"), c.Query("workflow"))
	if err != nil {
		s.fail(c, "STORAGE_ERROR", err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (s *Server) badRequest(c *gin.Context, code string, err error) {
	s.logger.Warn("invalid request",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: err.Error()},
	})
}

// fail maps orchestration errors to a status code
func (s *Server) fail(c *gin.Context, code string, err error) {
	switch {
	case orchestrator.IsClientError(err):
		s.badRequest(c, code, err)
		return
	case errors.Is(err, orchestrator.ErrManagerStopped), errors.Is(err, workers.ErrQueueFull), errors.Is(err, workers.ErrPoolStopped):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{Code: "UNAVAILABLE", Message: err.Error()},
		})
		return
	}

	s.logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: err.Error()},
	})
}
