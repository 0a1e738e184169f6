package http

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"ragbot/internal/registry"
	"ragbot/internal/service/mocks"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	ctrl := gomock.NewController(t)
	dir := t.TempDir()
	return &Deps{
		ChatService: mocks.NewMockChatService(ctrl),
		Sources:     registry.New(filepath.Join(dir, "url_mapping.json")),
		FilesDir:    dir,
		IndexHTML:   "<html><body>Test</body></html>",
	}
}

func TestNewRouter(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	if router == nil {
		t.Fatal("NewRouter() returned nil")
	}
}

func TestRouter_Routes(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{
			name:       "GET root serves HTML",
			method:     http.MethodGet,
			path:       "/",
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST /api/v1/chat exists",
			method:     http.MethodPost,
			path:       "/api/v1/chat",
			wantStatus: http.StatusBadRequest, // Bad request due to invalid body, but route exists
		},
		{
			name:       "POST /api/v1/ask exists",
			method:     http.MethodPost,
			path:       "/api/v1/ask",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET /api/v1/chat method not allowed",
			method:     http.MethodGet,
			path:       "/api/v1/chat",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "GET /api/v1/index method not allowed",
			method:     http.MethodGet,
			path:       "/api/v1/index",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "GET /api/v1/sources lists registry",
			method:     http.MethodGet,
			path:       "/api/v1/sources",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown source page",
			method:     http.MethodGet,
			path:       "/sources/missing.html",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/api/v2/ask",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_RootServesHTML(t *testing.T) {
	deps := newTestDeps(t)
	deps.IndexHTML = "<html><body>Test HTML</body></html>"
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Router GET / status = %v, want %v", w.Code, http.StatusOK)
	}

	if w.Body.String() != deps.IndexHTML {
		t.Errorf("Router GET / body = %v, want %v", w.Body.String(), deps.IndexHTML)
	}

	if w.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		t.Errorf("Router GET / Content-Type = %v, want text/html; charset=utf-8", w.Header().Get("Content-Type"))
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// Check CORS headers are present
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Router should apply CORS middleware")
	}
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	// A nil engine panics inside the ask handler; Recoverer turns that into a 500.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question": "Lamoda?"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Router status after panic = %v, want %v", w.Code, http.StatusInternalServerError)
	}
}
