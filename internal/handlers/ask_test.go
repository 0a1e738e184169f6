package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ragbot/internal/rag"
)

const lamodaURL = "https://eora.ru/cases/lamoda"

func TestAskHandler_DebugMode(t *testing.T) {
	mockRAGEngine := &mockRAGEngine{}
	handler := NewAskHandler(mockRAGEngine)

	answered := rag.AskResponse{
		Answer:    `A returns assistant <a href="` + lamodaURL + `">[1]</a>.`,
		RawAnswer: "A returns assistant [1].",
		Status:    rag.StatusAnswered,
		Sources:   []string{lamodaURL},
		Chunks: []rag.RetrievedChunk{
			{
				Rank:       1,
				Position:   0,
				Distance:   0.25,
				SourceFile: "eora.ru_cases_lamoda_chunk0.txt",
				URL:        lamodaURL,
				Text:       "Lamoda case text",
				InPrompt:   true,
			},
		},
	}

	tests := []struct {
		name           string
		debugParam     string
		expectDebug    bool
		requestBody    AskRequest
		ragResponse    rag.AskResponse
		expectedStatus int
	}{
		{
			name:           "debug mode enabled via true",
			debugParam:     "true",
			expectDebug:    true,
			requestBody:    AskRequest{Question: "What did you build for Lamoda?"},
			ragResponse:    answered,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "debug mode enabled via 1",
			debugParam:     "1",
			expectDebug:    true,
			requestBody:    AskRequest{Question: "What did you build for Lamoda?"},
			ragResponse:    answered,
			expectedStatus: http.StatusOK,
		},
		{
			name:        "debug mode disabled",
			debugParam:  "false",
			expectDebug: false,
			requestBody: AskRequest{Question: "What did you build for Lamoda?"},
			ragResponse: rag.AskResponse{
				Answer:  answered.Answer,
				Status:  rag.StatusAnswered,
				Sources: []string{lamodaURL},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:        "debug mode not specified",
			debugParam:  "",
			expectDebug: false,
			requestBody: AskRequest{Question: "What did you build for Lamoda?", K: 3},
			ragResponse: rag.AskResponse{
				Answer:  answered.Answer,
				Status:  rag.StatusAnswered,
				Sources: []string{lamodaURL},
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRAGEngine.reset()
			mockRAGEngine.response = tt.ragResponse

			// Create request body
			body, err := json.Marshal(tt.requestBody)
			if err != nil {
				t.Fatalf("failed to marshal request body: %v", err)
			}

			// Create request with debug parameter
			req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewReader(body))
			if tt.debugParam != "" {
				req.URL.RawQuery = "debug=" + tt.debugParam
			}
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			// Check that debug flag and K were passed correctly
			if mockRAGEngine.lastRequest.Debug != tt.expectDebug {
				t.Errorf("expected debug flag %v, got %v", tt.expectDebug, mockRAGEngine.lastRequest.Debug)
			}
			if mockRAGEngine.lastRequest.K != tt.requestBody.K {
				t.Errorf("expected k %d, got %d", tt.requestBody.K, mockRAGEngine.lastRequest.K)
			}

			var resp AskResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Answer != tt.ragResponse.Answer || resp.Status != "answered" {
				t.Errorf("unexpected response %+v", resp)
			}
			if len(resp.Sources) != 1 || resp.Sources[0] != lamodaURL {
				t.Errorf("expected sources [%s], got %v", lamodaURL, resp.Sources)
			}

			if tt.expectDebug {
				if resp.Debug == nil {
					t.Fatal("expected debug info in response, got nil")
				}
				if len(resp.Debug.RetrievedChunks) != len(tt.ragResponse.Chunks) {
					t.Errorf("expected %d retrieved chunks, got %d",
						len(tt.ragResponse.Chunks),
						len(resp.Debug.RetrievedChunks))
				}
				if got := resp.Debug.RetrievedChunks[0]; got.Distance != 0.25 || !got.InPrompt || got.URL != lamodaURL {
					t.Errorf("unexpected debug chunk %+v", got)
				}
				if resp.Debug.RawAnswer != tt.ragResponse.RawAnswer {
					t.Errorf("expected raw answer %q, got %q", tt.ragResponse.RawAnswer, resp.Debug.RawAnswer)
				}
			} else if resp.Debug != nil {
				t.Errorf("expected no debug info in response, got %+v", resp.Debug)
			}
		})
	}
}

func TestAskHandler_Errors(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		body           string
		engineErr      error
		expectedStatus int
		expectCall     bool
		wantField      string
	}{
		{
			name:           "method not allowed",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "invalid JSON",
			method:         http.MethodPost,
			body:           "invalid json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "blank question",
			method:         http.MethodPost,
			body:           `{"question": "   "}`,
			expectedStatus: http.StatusBadRequest,
			wantField:      "question",
		},
		{
			name:           "k out of range",
			method:         http.MethodPost,
			body:           `{"question": "Lamoda?", "k": 500}`,
			expectedStatus: http.StatusBadRequest,
			wantField:      "k",
		},
		{
			name:           "empty question from engine",
			method:         http.MethodPost,
			body:           `{"question": "Lamoda?"}`,
			engineErr:      rag.ErrEmptyQuestion,
			expectedStatus: http.StatusBadRequest,
			expectCall:     true,
			wantField:      "question",
		},
		{
			name:           "engine failure",
			method:         http.MethodPost,
			body:           `{"question": "Lamoda?"}`,
			engineErr:      errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectCall:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockRAGEngine{err: tt.engineErr}
			handler := NewAskHandler(engine)

			req := httptest.NewRequest(tt.method, "/api/v1/ask", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
			if (engine.calls > 0) != tt.expectCall {
				t.Errorf("engine called %d times, expectCall %v", engine.calls, tt.expectCall)
			}
			if tt.wantField != "" {
				var resp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode error: %v", err)
				}
				if _, ok := resp.Fields[tt.wantField]; !ok {
					t.Errorf("expected field error for %q, got %v", tt.wantField, resp.Fields)
				}
			}
		})
	}
}

func TestAskHandler_FallbackIsNotAnHTTPError(t *testing.T) {
	engine := &mockRAGEngine{response: rag.AskResponse{
		Answer: rag.FallbackIndexNotReady,
		Status: rag.StatusIndexNotReady,
	}}
	handler := NewAskHandler(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question": "Lamoda?"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp AskResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "index_not_ready" || resp.Answer != rag.FallbackIndexNotReady {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Sources == nil {
		t.Error("sources should be an empty list, not null")
	}
}

// mockRAGEngine is a simple mock for testing
type mockRAGEngine struct {
	lastRequest rag.AskRequest
	response    rag.AskResponse
	err         error
	calls       int
}

func (m *mockRAGEngine) reset() {
	m.lastRequest = rag.AskRequest{}
	m.response = rag.AskResponse{}
	m.err = nil
	m.calls = 0
}

func (m *mockRAGEngine) Ask(ctx context.Context, req rag.AskRequest) (rag.AskResponse, error) {
	m.calls++
	m.lastRequest = req
	if m.err != nil {
		return rag.AskResponse{}, m.err
	}
	return m.response, nil
}
