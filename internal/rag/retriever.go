package rag

import (
	"context"
	"errors"
	"fmt"

	"ragbot/internal/contextutil"
	"ragbot/internal/vectorstore"
)

// DefaultK is the number of chunks retrieved when the caller does not ask for a count.
const DefaultK = 4

var (
	// ErrIndexNotReady is returned when no usable index is persisted.
	ErrIndexNotReady = errors.New("index not ready, run the build step")
	// ErrEmbeddingFailed is returned when the question could not be embedded.
	ErrEmbeddingFailed = errors.New("failed to embed question")
)

// Embedder turns texts into vectors, one entry per input (nil when an input failed).
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever finds the indexed chunks nearest to a question.
type Retriever struct {
	embedder Embedder
	store    vectorstore.VectorStore
	defaultK int
}

// NewRetriever creates a retriever. defaultK <= 0 selects DefaultK.
func NewRetriever(embedder Embedder, store vectorstore.VectorStore, defaultK int) *Retriever {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	return &Retriever{embedder: embedder, store: store, defaultK: defaultK}
}

// Retrieve returns up to k chunks in ascending distance. k <= 0 selects the default.
//
// Failures never panic: the result is always a non-nil (possibly empty) slice, and the
// error wraps ErrIndexNotReady (no index, corrupt index, or one built for another
// embedding size) or ErrEmbeddingFailed. Cancellation returns the context's error.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]vectorstore.SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)
	if k <= 0 {
		k = r.defaultK
	}

	vectors, err := r.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return []vectorstore.SearchResult{}, ctx.Err()
		}
		logger.ErrorContext(ctx, "failed to embed question", "error", err)
		return []vectorstore.SearchResult{}, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		logger.ErrorContext(ctx, "no embedding returned for question", "vectors", len(vectors))
		return []vectorstore.SearchResult{}, fmt.Errorf("%w: no vector returned", ErrEmbeddingFailed)
	}

	results, err := r.store.Search(ctx, vectors[0], k)
	if err != nil {
		if errors.Is(err, vectorstore.ErrIndexNotFound) ||
			errors.Is(err, vectorstore.ErrCorruptIndex) ||
			errors.Is(err, vectorstore.ErrDimensionMismatch) {
			logger.WarnContext(ctx, "index not ready", "error", err)
			return []vectorstore.SearchResult{}, fmt.Errorf("%w: %w", ErrIndexNotReady, err)
		}
		logger.ErrorContext(ctx, "failed to search vector store", "error", err)
		return []vectorstore.SearchResult{}, fmt.Errorf("failed to search index: %w", err)
	}
	if results == nil {
		results = []vectorstore.SearchResult{}
	}

	logger.InfoContext(ctx, "retrieval completed", "k", k, "results", len(results))
	if len(results) > 0 {
		logger.DebugContext(ctx, "nearest chunk", "source_file", results[0].SourceFile, "distance", results[0].Distance)
	}
	return results, nil
}
