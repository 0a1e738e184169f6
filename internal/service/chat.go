package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_service.go -package=mocks -mock_names=ChatService=MockChatService ragbot/internal/service ChatService

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"ragbot/internal/contextutil"
	"ragbot/internal/format"
	"ragbot/internal/rag"
	"ragbot/internal/storage"
)

// MaxMessageRunes bounds the length of a chat message.
const MaxMessageRunes = 4000

// StatusCommand marks replies to chat commands, which never reach retrieval.
const StatusCommand rag.Status = "command"

// Chat commands.
const (
	CommandStart = "/start"
	CommandHelp  = "/help"
)

const (
	startReply = "Hi! I answer questions about the published client cases. " +
		"Ask me something like \"What did you build for Lamoda?\" and I will reply with links to the cases I used."
	helpReply = "Send a question in plain text. Answers are built only from the indexed cases, " +
		"and every [n] marker links to the case it came from.\n\n" +
		"/start shows the greeting\n/help shows this message"
)

// ChatRequest represents a chat message in the domain layer.
type ChatRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
	Text      string `json:"text" validate:"required,max=4000"`
	Debug     bool   `json:"debug,omitempty"`
}

// ChatResponse represents a chat reply in the domain layer.
type ChatResponse struct {
	TurnID  string
	Reply   string
	HTML    string
	Status  rag.Status
	Sources []string
	Chunks  []rag.RetrievedChunk
}

// ChatService provides session-bound question answering.
type ChatService interface {
	// HandleMessage answers one message. A newer message for the same session cancels
	// this one, which then returns ErrSuperseded.
	HandleMessage(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// History returns the session's latest turns, oldest first.
	History(ctx context.Context, sessionID string, limit int) ([]storage.Turn, error)
}

// chatService implements ChatService.
type chatService struct {
	engine   rag.Engine
	sessions storage.SessionStore
	validate *validator.Validate

	mu       sync.Mutex
	inflight map[string]*inflightTurn
}

type inflightTurn struct {
	cancel context.CancelCauseFunc
}

// NewChatService creates a new ChatService.
func NewChatService(engine rag.Engine, sessions storage.SessionStore) ChatService {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	return &chatService{
		engine:   engine,
		sessions: sessions,
		validate: validate,
		inflight: make(map[string]*inflightTurn),
	}
}

// HandleMessage processes a chat message.
func (s *chatService) HandleMessage(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validateRequest(req); err != nil {
		logger.WarnContext(ctx, "invalid chat message", "session_id", req.SessionID, "error", err)
		return ChatResponse{}, err
	}

	if reply, ok := commandReply(req.Text); ok {
		logger.InfoContext(ctx, "chat command handled", "session_id", req.SessionID, "command", req.Text)
		return ChatResponse{
			Reply:   reply,
			HTML:    s.render(ctx, reply),
			Status:  StatusCommand,
			Sources: []string{},
		}, nil
	}

	turnCtx, release := s.claim(ctx, req.SessionID)
	defer release()

	turn, err := s.sessions.BeginTurn(turnCtx, req.SessionID, req.Text)
	if err != nil {
		if errors.Is(context.Cause(turnCtx), ErrSuperseded) {
			return ChatResponse{}, ErrSuperseded
		}
		logger.ErrorContext(ctx, "failed to begin turn", "session_id", req.SessionID, "error", err)
		return ChatResponse{}, WrapError(err, "failed to begin turn")
	}

	resp, err := s.engine.Ask(turnCtx, rag.AskRequest{Question: req.Text, Debug: req.Debug})
	if err != nil {
		switch {
		case errors.Is(context.Cause(turnCtx), ErrSuperseded):
			logger.InfoContext(ctx, "turn superseded", "session_id", req.SessionID, "turn_id", turn.ID)
			return ChatResponse{}, ErrSuperseded
		case ctx.Err() != nil:
			return ChatResponse{}, ctx.Err()
		case errors.Is(err, rag.ErrEmptyQuestion):
			return ChatResponse{}, &ValidationError{Field: "text", Message: "is required"}
		}
		logger.ErrorContext(ctx, "failed to answer question", "session_id", req.SessionID, "error", err)
		return ChatResponse{}, WrapError(err, "failed to answer question")
	}

	// The answer is written even if the caller has gone away; the slot check decides.
	stored, err := s.sessions.CompleteTurn(context.WithoutCancel(ctx), req.SessionID, turn.ID, resp.Answer, string(resp.Status))
	if err != nil {
		logger.ErrorContext(ctx, "failed to complete turn", "session_id", req.SessionID, "turn_id", turn.ID, "error", err)
		return ChatResponse{}, WrapError(err, "failed to complete turn")
	}
	if !stored {
		logger.InfoContext(ctx, "late answer discarded", "session_id", req.SessionID, "turn_id", turn.ID)
		return ChatResponse{}, ErrSuperseded
	}

	logger.InfoContext(ctx, "chat message processed",
		"session_id", req.SessionID,
		"turn_id", turn.ID,
		"status", resp.Status,
		"sources", len(resp.Sources),
	)
	return ChatResponse{
		TurnID:  turn.ID,
		Reply:   resp.Answer,
		HTML:    s.render(ctx, resp.Answer),
		Status:  resp.Status,
		Sources: resp.Sources,
		Chunks:  resp.Chunks,
	}, nil
}

// History returns the latest turns of a session.
func (s *chatService) History(ctx context.Context, sessionID string, limit int) ([]storage.Turn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id", Message: "is required"}
	}
	turns, err := s.sessions.ListTurns(ctx, sessionID, limit)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, WrapError(err, "failed to list turns")
	}
	return turns, nil
}

// claim registers a new in-flight turn for the session and cancels the previous one.
func (s *chatService) claim(ctx context.Context, sessionID string) (context.Context, func()) {
	turnCtx, cancel := context.WithCancelCause(ctx)
	entry := &inflightTurn{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.inflight[sessionID]; ok {
		prev.cancel(ErrSuperseded)
	}
	s.inflight[sessionID] = entry
	s.mu.Unlock()

	return turnCtx, func() {
		s.mu.Lock()
		if s.inflight[sessionID] == entry {
			delete(s.inflight, sessionID)
		}
		s.mu.Unlock()
		cancel(nil)
	}
}

func (s *chatService) validateRequest(req ChatRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return WrapError(err, "failed to validate request")
	}
	fe := errs[0]
	return &ValidationError{Field: fe.Field(), Message: validationMessage(fe)}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' tag", fe.Tag())
	}
}

// commandReply answers /start and /help. A "@botname" suffix is ignored.
func commandReply(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	command, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	switch command {
	case CommandStart:
		return startReply, true
	case CommandHelp:
		return helpReply, true
	default:
		return "", false
	}
}

func (s *chatService) render(ctx context.Context, answer string) string {
	html, err := format.RenderHTML(answer)
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to render answer", "error", err)
		return ""
	}
	return html
}
