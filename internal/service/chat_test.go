package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ragbot/internal/rag"
	ragmocks "ragbot/internal/rag/mocks"
	"ragbot/internal/service"
	"ragbot/internal/storage"
	storagemocks "ragbot/internal/storage/mocks"

	"go.uber.org/mock/gomock"
)

func init() {
	// Set default logger to discard output for cleaner test output
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const lamodaURL = "https://eora.ru/cases/lamoda"

func TestNewChatService(t *testing.T) {
	ctrl := gomock.NewController(t)

	svc := service.NewChatService(ragmocks.NewMockEngine(ctrl), storagemocks.NewMockSessionStore(ctrl))
	if svc == nil {
		t.Fatal("NewChatService() returned nil")
	}
}

func TestChatService_HandleMessage(t *testing.T) {
	answered := rag.AskResponse{
		Answer:  `Lamoda got a returns assistant <a href="` + lamodaURL + `">[1]</a>.`,
		Status:  rag.StatusAnswered,
		Sources: []string{lamodaURL},
	}

	tests := []struct {
		name         string
		req          service.ChatRequest
		mockSetup    func(engine *ragmocks.MockEngine, sessions *storagemocks.MockSessionStore)
		wantErr      bool
		checkErr     func(error) bool
		wantStatus   rag.Status
		wantReply    string
		wantHTMLPart string
		wantNoHTML   string
	}{
		{
			name: "answered",
			req:  service.ChatRequest{SessionID: "chat-1", Text: "  What did you build for Lamoda?  "},
			mockSetup: func(engine *ragmocks.MockEngine, sessions *storagemocks.MockSessionStore) {
				gomock.InOrder(
					sessions.EXPECT().
						BeginTurn(gomock.Any(), "chat-1", "What did you build for Lamoda?").
						Return(&storage.Turn{ID: "turn-1", SessionID: "chat-1"}, nil),
					engine.EXPECT().
						Ask(gomock.Any(), rag.AskRequest{Question: "What did you build for Lamoda?"}).
						Return(answered, nil),
					sessions.EXPECT().
						CompleteTurn(gomock.Any(), "chat-1", "turn-1", answered.Answer, "answered").
						Return(true, nil),
				)
			},
			wantStatus:   rag.StatusAnswered,
			wantReply:    answered.Answer,
			wantHTMLPart: `<a href="` + lamodaURL + `">[1]</a>`,
		},
		{
			name: "markup in the answer is not rendered",
			req:  service.ChatRequest{SessionID: "chat-1", Text: "Tell me about Lamoda"},
			mockSetup: func(engine *ragmocks.MockEngine, sessions *storagemocks.MockSessionStore) {
				sessions.EXPECT().BeginTurn(gomock.Any(), "chat-1", "Tell me about Lamoda").
					Return(&storage.Turn{ID: "turn-5"}, nil)
				engine.EXPECT().Ask(gomock.Any(), gomock.Any()).
					Return(rag.AskResponse{
						Answer:  `Lamoda bot <a href="` + lamodaURL + `">[1]</a> <img src=x onerror=alert(document.cookie)>`,
						Status:  rag.StatusAnswered,
						Sources: []string{lamodaURL},
					}, nil)
				sessions.EXPECT().CompleteTurn(gomock.Any(), "chat-1", "turn-5", gomock.Any(), "answered").
					Return(true, nil)
			},
			wantStatus:   rag.StatusAnswered,
			wantHTMLPart: `<a href="` + lamodaURL + `">[1]</a>`,
			wantNoHTML:   "<img",
		},
		{
			name: "fallback answers are stored too",
			req:  service.ChatRequest{SessionID: "chat-1", Text: "Anything?"},
			mockSetup: func(engine *ragmocks.MockEngine, sessions *storagemocks.MockSessionStore) {
				sessions.EXPECT().BeginTurn(gomock.Any(), "chat-1", "Anything?").
					Return(&storage.Turn{ID: "turn-2"}, nil)
				engine.EXPECT().Ask(gomock.Any(), gomock.Any()).
					Return(rag.AskResponse{Answer: rag.FallbackIndexNotReady, Status: rag.StatusIndexNotReady, Sources: []string{}}, nil)
				sessions.EXPECT().CompleteTurn(gomock.Any(), "chat-1", "turn-2", rag.FallbackIndexNotReady, "index_not_ready").
					Return(true, nil)
			},
			wantStatus: rag.StatusIndexNotReady,
			wantReply:  rag.FallbackIndexNotReady,
		},
		{
			name:       "start command",
			req:        service.ChatRequest{SessionID: "chat-1", Text: "/start"},
			mockSetup:  func(*ragmocks.MockEngine, *storagemocks.MockSessionStore) {},
			wantStatus: service.StatusCommand,
		},
		{
			name:       "help command addressed to the bot",
			req:        service.ChatRequest{SessionID: "chat-1", Text: "/HELP@ragbot"},
			mockSetup:  func(*ragmocks.MockEngine, *storagemocks.MockSessionStore) {},
			wantStatus: service.StatusCommand,
		},
		{
			name:      "empty text",
			req:       service.ChatRequest{SessionID: "chat-1", Text: "   "},
			mockSetup: func(*ragmocks.MockEngine, *storagemocks.MockSessionStore) {},
			wantErr:   true,
			checkErr:  validationOn("text"),
		},
		{
			name:      "missing session",
			req:       service.ChatRequest{Text: "hello"},
			mockSetup: func(*ragmocks.MockEngine, *storagemocks.MockSessionStore) {},
			wantErr:   true,
			checkErr:  validationOn("session_id"),
		},
		{
			name:      "message too long",
			req:       service.ChatRequest{SessionID: "chat-1", Text: strings.Repeat("ы", service.MaxMessageRunes+1)},
			mockSetup: func(*ragmocks.MockEngine, *storagemocks.MockSessionStore) {},
			wantErr:   true,
			checkErr:  validationOn("text"),
		},
		{
			name: "begin turn error",
			req:  service.ChatRequest{SessionID: "chat-1", Text: "hello"},
			mockSetup: func(engine *ragmocks.MockEngine, sessions *storagemocks.MockSessionStore) {
				sessions.EXPECT().BeginTurn(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil, errors.New("database is locked"))
			},
			wantErr: true,
		},
		{
			name: "engine error",
			req:  service.ChatRequest{SessionID: "chat-1", Text: "hello"},
			mockSetup: func(engine *ragmocks.MockEngine, sessions *storagemocks.MockSessionStore) {
				sessions.EXPECT().BeginTurn(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(&storage.Turn{ID: "turn-3"}, nil)
				engine.EXPECT().Ask(gomock.Any(), gomock.Any()).
					Return(rag.AskResponse{}, errors.New("boom"))
			},
			wantErr: true,
			checkErr: func(err error) bool {
				return strings.Contains(err.Error(), "failed to answer question")
			},
		},
		{
			name: "late answer discarded",
			req:  service.ChatRequest{SessionID: "chat-1", Text: "hello"},
			mockSetup: func(engine *ragmocks.MockEngine, sessions *storagemocks.MockSessionStore) {
				sessions.EXPECT().BeginTurn(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(&storage.Turn{ID: "turn-4"}, nil)
				engine.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(answered, nil)
				sessions.EXPECT().CompleteTurn(gomock.Any(), "chat-1", "turn-4", gomock.Any(), gomock.Any()).
					Return(false, nil)
			},
			wantErr: true,
			checkErr: func(err error) bool {
				return errors.Is(err, service.ErrSuperseded)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			engine := ragmocks.NewMockEngine(ctrl)
			sessions := storagemocks.NewMockSessionStore(ctrl)
			tt.mockSetup(engine, sessions)

			svc := service.NewChatService(engine, sessions)
			resp, err := svc.HandleMessage(context.Background(), tt.req)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("HandleMessage() expected error, got nil")
				}
				if tt.checkErr != nil && !tt.checkErr(err) {
					t.Errorf("HandleMessage() error mismatch: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("HandleMessage() unexpected error: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("HandleMessage() status = %v, want %v", resp.Status, tt.wantStatus)
			}
			if tt.wantReply != "" && resp.Reply != tt.wantReply {
				t.Errorf("HandleMessage() reply = %q, want %q", resp.Reply, tt.wantReply)
			}
			if resp.Reply == "" || resp.HTML == "" {
				t.Errorf("HandleMessage() reply or HTML empty: %+v", resp)
			}
			if tt.wantHTMLPart != "" && !strings.Contains(resp.HTML, tt.wantHTMLPart) {
				t.Errorf("HandleMessage() HTML = %q, want it to contain %q", resp.HTML, tt.wantHTMLPart)
			}
			if tt.wantNoHTML != "" && strings.Contains(resp.HTML, tt.wantNoHTML) {
				t.Errorf("HandleMessage() HTML = %q, must not contain %q", resp.HTML, tt.wantNoHTML)
			}
			if resp.Sources == nil {
				t.Error("HandleMessage() Sources should never be nil")
			}
		})
	}
}

func TestChatService_NewMessageSupersedesInFlightTurn(t *testing.T) {
	db, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}
	repo := storage.NewSessionRepo(db)

	ctrl := gomock.NewController(t)
	engine := ragmocks.NewMockEngine(ctrl)
	started := make(chan struct{})
	engine.EXPECT().Ask(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req rag.AskRequest) (rag.AskResponse, error) {
			if req.Question == "first" {
				close(started)
				<-ctx.Done()
				return rag.AskResponse{}, ctx.Err()
			}
			return rag.AskResponse{Answer: "second answer", Status: rag.StatusAnswered, Sources: []string{}}, nil
		}).
		Times(2)

	svc := service.NewChatService(engine, repo)
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.HandleMessage(ctx, service.ChatRequest{SessionID: "chat-1", Text: "first"})
		firstErr <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never reached the engine")
	}

	resp, err := svc.HandleMessage(ctx, service.ChatRequest{SessionID: "chat-1", Text: "second"})
	if err != nil {
		t.Fatalf("HandleMessage(second) error = %v", err)
	}
	if resp.Reply != "second answer" {
		t.Errorf("HandleMessage(second) reply = %q", resp.Reply)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, service.ErrSuperseded) {
			t.Errorf("HandleMessage(first) error = %v, want ErrSuperseded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first turn was not cancelled")
	}

	turns, err := svc.History(ctx, "chat-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("History() returned %d turns, want 2", len(turns))
	}
	if turns[0].Question != "first" || turns[0].Status != storage.TurnSuperseded || turns[0].Answer != "" {
		t.Errorf("first turn = %+v, want superseded without answer", turns[0])
	}
	if turns[1].Question != "second" || turns[1].Status != "answered" || turns[1].Answer != "second answer" {
		t.Errorf("second turn = %+v", turns[1])
	}
}

func TestChatService_History(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := storagemocks.NewMockSessionStore(ctrl)
	svc := service.NewChatService(ragmocks.NewMockEngine(ctrl), sessions)
	ctx := context.Background()

	if _, err := svc.History(ctx, " ", 10); !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("History() with blank session error = %v, want ErrInvalidInput", err)
	}

	sessions.EXPECT().ListTurns(gomock.Any(), "missing", 10).Return(nil, storage.ErrNotFound)
	if _, err := svc.History(ctx, "missing", 10); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("History() unknown session error = %v, want ErrNotFound", err)
	}

	sessions.EXPECT().ListTurns(gomock.Any(), "chat-1", 10).Return([]storage.Turn{{ID: "t1"}}, nil)
	turns, err := svc.History(ctx, "chat-1", 10)
	if err != nil || len(turns) != 1 {
		t.Errorf("History() = %v, %v", turns, err)
	}
}

func validationOn(field string) func(error) bool {
	return func(err error) bool {
		var validationErr *service.ValidationError
		return errors.As(err, &validationErr) && validationErr.Field == field
	}
}
