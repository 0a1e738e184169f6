package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"ragbot/internal/contextutil"
	"ragbot/internal/rag"
)

// AskHandler handles HTTP requests for RAG queries.
type AskHandler struct {
	ragEngine rag.Engine
	validate  *validator.Validate
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(ragEngine rag.Engine) *AskHandler {
	return &AskHandler{
		ragEngine: ragEngine,
		validate:  newValidator(),
	}
}

// AskRequest represents the HTTP request payload for RAG queries.
//
// swagger:model AskRequest
type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
	K        int    `json:"k,omitempty" validate:"min=0,max=20"`
}

// AskResponse represents the HTTP response payload for RAG queries.
//
// swagger:model AskResponse
type AskResponse struct {
	// The answer with citation markers turned into links, or a fallback message
	Answer string `json:"answer"`

	// How the answer was produced: answered, no_context, index_not_ready, backend_unavailable or ungrounded
	Status string `json:"status"`

	// Source URLs in citation order; [1] refers to the first one
	Sources []string `json:"sources"`

	// Citation markers in the model output that referred to no source
	InvalidCitations []int `json:"invalid_citations,omitempty"`

	// Debug contains debug information when debug mode is enabled (via ?debug=true query parameter).
	Debug *DebugInfo `json:"debug,omitempty"`
}

// DebugInfo contains debug information when debug mode is enabled.
//
// swagger:model DebugInfo
type DebugInfo struct {
	// RawAnswer is the model output before grounding and citation processing.
	RawAnswer string `json:"raw_answer,omitempty"`
	// RetrievedChunks contains all retrieved chunks with distances and ranks.
	RetrievedChunks []DebugRetrievedChunk `json:"retrieved_chunks"`
}

// DebugRetrievedChunk represents a retrieved chunk with scoring information.
//
// swagger:model DebugRetrievedChunk
type DebugRetrievedChunk struct {
	// Rank is the rank of this chunk in the retrieval results (1-based).
	Rank int `json:"rank"`
	// Position is the chunk's position in the index.
	Position int `json:"position"`
	// Distance is the squared L2 distance to the question embedding.
	Distance float32 `json:"distance"`
	// SourceFile is the chunk file name.
	SourceFile string `json:"source_file"`
	// URL is the source the chunk came from, or "unknown".
	URL string `json:"url"`
	// Text is the chunk text.
	Text string `json:"text"`
	// InPrompt reports whether the chunk fit into the prompt.
	InPrompt bool `json:"in_prompt"`
}

// ServeHTTP handles HTTP requests for RAG queries.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question about the indexed cases
//
// Answers from the indexed corpus only. Backend failures and a missing index are
// reported through the status field with a fallback answer, not as HTTP errors.
//
// Use the `debug=true` query parameter to include the retrieved chunks and their distances.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Answer or fallback message
//	  schema:
//	    "$ref": "#/definitions/AskResponse"
//	'400':
//	  description: Bad request (missing question, k out of range)
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: Internal server error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if err := h.validate.Struct(req); err != nil {
		logger.WarnContext(ctx, "invalid ask request", "error", err)
		writeValidationError(w, validationFields(err))
		return
	}

	debug := debugRequested(r)
	ragResp, err := h.ragEngine.Ask(ctx, rag.AskRequest{
		Question: req.Question,
		K:        req.K,
		Debug:    debug,
	})
	if err != nil {
		h.handleRAGError(ctx, w, err)
		return
	}

	resp := AskResponse{
		Answer:           ragResp.Answer,
		Status:           string(ragResp.Status),
		Sources:          ragResp.Sources,
		InvalidCitations: ragResp.InvalidCitations,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	if debug {
		resp.Debug = newDebugInfo(ragResp.RawAnswer, ragResp.Chunks)
	}

	writeJSON(ctx, w, http.StatusOK, resp)
}

func newDebugInfo(rawAnswer string, chunks []rag.RetrievedChunk) *DebugInfo {
	debugChunks := make([]DebugRetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		debugChunks = append(debugChunks, DebugRetrievedChunk{
			Rank:       chunk.Rank,
			Position:   chunk.Position,
			Distance:   chunk.Distance,
			SourceFile: chunk.SourceFile,
			URL:        chunk.URL,
			Text:       chunk.Text,
			InPrompt:   chunk.InPrompt,
		})
	}
	return &DebugInfo{
		RawAnswer:       rawAnswer,
		RetrievedChunks: debugChunks,
	}
}

// handleRAGError maps RAG engine errors to HTTP status codes.
func (h *AskHandler) handleRAGError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := contextutil.LoggerFromContext(ctx)

	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		writeValidationError(w, map[string]string{"question": "failed on 'required' tag"})
	case errors.Is(err, context.Canceled):
		logger.InfoContext(ctx, "client went away before the answer was ready")
	default:
		logger.ErrorContext(ctx, "RAG engine error", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process question")
	}
}
