// Package rest calls the symptom analyzer, disease predictor, patient
// journey and prompt processor services over JSON/HTTP.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aescanero/carecoord/pkg/domain"
	"go.uber.org/zap"
)

// Service paths.
const (
	PathAnalyzeSymptoms = "/analyze_symptoms"
	PathPredictDisease  = "/predict_disease"
	PathPatientJourney  = "/patient_journey"
	PathProcessPrompt   = "/process_prompt"
)

// ErrAgentRequest wraps every transport or protocol failure of an agent call.
var ErrAgentRequest = errors.New("agent request failed")

// Endpoints holds the base URL of each collaborator.
type Endpoints struct {
	SymptomAnalyzer   string
	DiseasePrediction string
	PatientJourney    string
	PromptProcessor   string
}

// Client implements ports.SymptomAnalyzer, ports.DiseasePredictor,
// ports.JourneyTracker and ports.PromptProcessor.
type Client struct {
	httpClient *http.Client
	endpoints  Endpoints
	logger     *zap.Logger
}

// NewClient creates a client. A zero timeout leaves calls bounded only by the
// caller's context.
func NewClient(endpoints Endpoints, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoints:  endpoints,
		logger:     logger,
	}
}

// AnalyzeSymptoms calls the symptom analyzer
func (c *Client) AnalyzeSymptoms(ctx context.Context, req domain.SymptomRequest) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := c.post(ctx, c.endpoints.SymptomAnalyzer, PathAnalyzeSymptoms, req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// PredictDisease calls the disease predictor
func (c *Client) PredictDisease(ctx context.Context, req domain.DiseaseRequest) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := c.post(ctx, c.endpoints.DiseasePrediction, PathPredictDisease, req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// GetJourney calls the patient journey service
func (c *Client) GetJourney(ctx context.Context, req domain.JourneyRequest) (*domain.Envelope, error) {
	var env domain.Envelope
	if err := c.post(ctx, c.endpoints.PatientJourney, PathPatientJourney, req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// ProcessPrompt asks the prompt processor for a task graph
func (c *Client) ProcessPrompt(ctx context.Context, req domain.PromptRequest) (*domain.PromptResult, error) {
	var result domain.PromptResult
	if err := c.post(ctx, c.endpoints.PromptProcessor, PathProcessPrompt, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, baseURL, path string, body, out interface{}) error {
	url := strings.TrimRight(baseURL, "/") + path

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshal body: %v", ErrAgentRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrAgentRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrAgentRequest, err)
	}

	c.logger.Debug("agent call finished",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrAgentRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrAgentRequest, err)
	}

	return nil
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
