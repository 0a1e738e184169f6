package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"ragbot/internal/contextutil"
	"ragbot/internal/indexer"
)

// IndexBuilder rebuilds the vector index from the fetched corpus.
type IndexBuilder interface {
	Rebuild(ctx context.Context) (*indexer.BuildStats, error)
}

// IndexHandler handles HTTP requests for triggering re-indexing.
type IndexHandler struct {
	builder IndexBuilder
	running atomic.Bool
	done    func()
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(builder IndexBuilder) *IndexHandler {
	return &IndexHandler{
		builder: builder,
	}
}

// IndexResponse represents the response from the index endpoint.
type IndexResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP handles HTTP requests for triggering re-indexing.
//
// swagger:route POST /api/v1/index rebuildIndex
//
// # Rebuild the index in the background
//
// Answers 202 at once. Questions keep using the previous index until the new one is swapped in.
// Answers 409 while a rebuild is already running.
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !h.running.CompareAndSwap(false, true) {
		logger.WarnContext(ctx, "index rebuild already running")
		writeError(w, http.StatusConflict, "Index rebuild already running")
		return
	}

	logger.InfoContext(ctx, "index rebuild triggered via API")

	// The rebuild outlives the request but keeps its logger.
	buildCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			h.running.Store(false)
			if h.done != nil {
				h.done()
			}
		}()
		start := time.Now()
		stats, err := h.builder.Rebuild(buildCtx)
		if err != nil {
			logger.ErrorContext(buildCtx, "index rebuild failed", "error", err)
			return
		}
		logger.InfoContext(buildCtx, "index rebuild completed",
			"chunks_embedded", stats.ChunksEmbedded,
			"chunks_skipped", stats.ChunksSkipped,
			"duration", time.Since(start),
		)
	}()

	writeJSON(ctx, w, http.StatusAccepted, IndexResponse{
		Message: "Index rebuild started. Check server logs for progress.",
		Status:  "accepted",
	})
}
