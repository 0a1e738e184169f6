package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ragbot/internal/contextutil"
	"ragbot/internal/llm"
	"ragbot/internal/vectorstore"
)

// ModelLister lists the models served by the completion backend.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// SourceCounter reports how many documents the source registry knows.
type SourceCounter interface {
	Len() int
}

// Health statuses.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	vectorStore        vectorstore.VectorStore
	sources            SourceCounter
	models             ModelLister
	modelName          string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. modelName may be empty to skip the model check.
func NewHealthHandler(vectorStore vectorstore.VectorStore, sources SourceCounter, models ModelLister, modelName string) *HealthHandler {
	return &HealthHandler{
		vectorStore:        vectorStore,
		sources:            sources,
		models:             models,
		modelName:          modelName,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// Active index, when one exists
	Index *vectorstore.IndexInfo `json:"index,omitempty"`

	// Number of documents in the source registry
	Sources int `json:"sources"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// Healthy reports whether every check passed.
func (r HealthResponse) Healthy() bool {
	return r.Status == HealthHealthy
}

// ServeHTTP handles HTTP requests for health checks.
//
// Returns 200 OK if healthy, 503 Service Unavailable if degraded or unhealthy.
//
// swagger:route GET /api/health healthCheck
//
// # Health check endpoint
//
// Reports whether an index is present, how many sources are registered and
// whether the completion backend answers /v1/models.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: System is healthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
//	'503':
//	  description: System is degraded or unhealthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	response := h.Check(ctx)
	httpStatus := http.StatusOK
	if !response.Healthy() {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(ctx, w, httpStatus, response)
}

// Check runs every health check. It is shared by the HTTP endpoint and the CLI.
func (h *HealthHandler) Check(ctx context.Context) HealthResponse {
	logger := contextutil.LoggerFromContext(ctx)

	// Create context with timeout for health checks
	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    HealthHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string),
	}
	var fatal, minor []string

	info, state := h.checkIndex(checkCtx, logger)
	response.Checks["index"] = state
	switch state {
	case "ok":
		response.Index = &info
	case "missing":
		fatal = append(fatal, "index_missing")
	default:
		fatal = append(fatal, "index_unavailable")
	}

	response.Sources = h.sources.Len()
	if response.Sources == 0 {
		response.Checks["sources"] = "empty"
		minor = append(minor, "no_sources")
	} else {
		response.Checks["sources"] = "ok"
	}

	state = h.checkLLM(checkCtx, logger)
	response.Checks["llm"] = state
	switch state {
	case "ok":
	case "model_not_listed":
		minor = append(minor, "llm_model_not_listed")
	default:
		fatal = append(fatal, "llm_unavailable")
	}

	switch {
	case len(fatal) > 0:
		response.Status = HealthUnhealthy
	case len(minor) > 0:
		response.Status = HealthDegraded
	}
	if issues := append(fatal, minor...); len(issues) > 0 {
		response.Issues = issues
	}
	return response
}

// checkIndex reports "ok", "missing" or "error".
func (h *HealthHandler) checkIndex(ctx context.Context, logger *slog.Logger) (vectorstore.IndexInfo, string) {
	info, err := h.vectorStore.Info(ctx)
	if err != nil {
		if errors.Is(err, vectorstore.ErrIndexNotFound) {
			logger.WarnContext(ctx, "no index has been built")
			return vectorstore.IndexInfo{}, "missing"
		}
		logger.WarnContext(ctx, "index health check failed", "error", err)
		return vectorstore.IndexInfo{}, "error"
	}
	return info, "ok"
}

// checkLLM reports "ok", "model_not_listed" or "error".
func (h *HealthHandler) checkLLM(ctx context.Context, logger *slog.Logger) string {
	models, err := h.models.ListModels(ctx)
	if err != nil {
		logger.WarnContext(ctx, "LLM health check failed", "error", err)
		return "error"
	}
	if h.modelName != "" && !llm.HasModel(models, h.modelName) {
		logger.WarnContext(ctx, "configured model is not listed", "model", h.modelName, "models", len(models))
		return "model_not_listed"
	}
	return "ok"
}
