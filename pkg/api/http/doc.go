// Package http provides the REST API of the orchestration service.
//
// The HTTP server exposes endpoints for:
//   - Task graph orchestration (/orchestrate)
//   - Prompt orchestration with session polling (/chat_orchestrate)
//   - Single disease predictions (/predict_disease)
//   - Session queries under /api/v1/sessions
//   - Health checks and Prometheus metrics
package http
