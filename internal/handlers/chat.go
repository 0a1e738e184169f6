package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ragbot/internal/contextutil"
	"ragbot/internal/format"
	"ragbot/internal/service"
)

// defaultHistoryLimit caps the turns returned when ?limit= is absent.
const defaultHistoryLimit = 20

// ChatHandler handles HTTP requests for session-bound chat.
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// ChatRequest represents the HTTP request payload for chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ChatResponse represents the HTTP response payload for chat.
type ChatResponse struct {
	TurnID  string     `json:"turn_id,omitempty"`
	Reply   string     `json:"reply"`
	HTML    string     `json:"html"`
	Status  string     `json:"status"`
	Sources []string   `json:"sources"`
	Debug   *DebugInfo `json:"debug,omitempty"`
}

// TurnResponse is one entry of a session's history.
type TurnResponse struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer,omitempty"`
	HTML        string     `json:"html,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HistoryResponse lists a session's latest turns, oldest first.
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []TurnResponse `json:"turns"`
}

// ServeHTTP handles HTTP requests for chat.
//
// swagger:route POST /api/v1/chat chatMessage
//
// # Send a chat message
//
// A new message for a session cancels that session's in-flight message, which then
// answers 409. The commands /start and /help are answered without retrieval.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	debug := debugRequested(r)
	svcResp, err := h.chatService.HandleMessage(ctx, service.ChatRequest{
		SessionID: req.SessionID,
		Text:      req.Text,
		Debug:     debug,
	})
	if err != nil {
		h.handleServiceError(ctx, w, err, "Failed to process chat message")
		return
	}

	resp := ChatResponse{
		TurnID:  svcResp.TurnID,
		Reply:   svcResp.Reply,
		HTML:    svcResp.HTML,
		Status:  string(svcResp.Status),
		Sources: svcResp.Sources,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	if debug && svcResp.Chunks != nil {
		resp.Debug = newDebugInfo("", svcResp.Chunks)
	}

	writeJSON(ctx, w, http.StatusOK, resp)
}

// History handles GET /api/v1/sessions/{sessionID}/turns.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	sessionID := chi.URLParam(r, "sessionID")
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			logger.WarnContext(ctx, "invalid limit", "limit", raw)
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	turns, err := h.chatService.History(ctx, sessionID, limit)
	if err != nil {
		h.handleServiceError(ctx, w, err, "Failed to load history")
		return
	}

	resp := HistoryResponse{
		SessionID: sessionID,
		Turns:     make([]TurnResponse, 0, len(turns)),
	}
	for _, turn := range turns {
		rendered, err := format.RenderHTML(turn.Answer)
		if err != nil {
			logger.WarnContext(ctx, "failed to render stored answer", "turn", turn.ID, "error", err)
		}
		resp.Turns = append(resp.Turns, TurnResponse{
			ID:          turn.ID,
			Question:    turn.Question,
			Answer:      turn.Answer,
			HTML:        rendered,
			Status:      turn.Status,
			CreatedAt:   turn.CreatedAt,
			CompletedAt: turn.CompletedAt,
		})
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func (h *ChatHandler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		logger.WarnContext(ctx, "invalid chat request", "error", err)
		writeValidationError(w, map[string]string{validationErr.Field: validationErr.Message})
	case errors.Is(err, service.ErrSuperseded):
		logger.InfoContext(ctx, "chat message superseded")
		writeError(w, http.StatusConflict, "Superseded by a newer message")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, context.Canceled):
		logger.InfoContext(ctx, "client went away before the answer was ready")
	default:
		logger.ErrorContext(ctx, "service error", "error", err)
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}
