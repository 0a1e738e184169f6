package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ragbot/internal/handlers"
	"ragbot/internal/rag"
	"ragbot/internal/service"
	"ragbot/internal/vectorstore"
)

// SourceRegistry is what the router needs from the source registry.
type SourceRegistry interface {
	handlers.SourceCatalog
	handlers.SourceCounter
}

// Deps holds dependencies for the HTTP router.
type Deps struct {
	RAGEngine    rag.Engine
	ChatService  service.ChatService
	VectorStore  vectorstore.VectorStore
	Sources      SourceRegistry
	Models       handlers.ModelLister
	ModelName    string
	IndexBuilder handlers.IndexBuilder
	FilesDir     string
	IndexHTML    string // Embedded chat page
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	askHandler := handlers.NewAskHandler(deps.RAGEngine)
	chatHandler := handlers.NewChatHandler(deps.ChatService)
	indexHandler := handlers.NewIndexHandler(deps.IndexBuilder)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Sources, deps.Models, deps.ModelName)
	sourceHandler := handlers.NewSourceHandler(deps.Sources, deps.FilesDir)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodPost, "/ask", askHandler)
			r.Method(http.MethodPost, "/chat", chatHandler)
			r.Get("/sessions/{sessionID}/turns", chatHandler.History)
			r.Method(http.MethodPost, "/index", indexHandler)
			r.Get("/sources", sourceHandler.List)
		})
	})
	r.Get("/sources/{filename}", sourceHandler.ServeHTTP)

	// Serve the chat page at root
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(deps.IndexHTML))
	})

	return r
}
