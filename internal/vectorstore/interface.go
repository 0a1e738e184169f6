package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks ragbot/internal/vectorstore VectorStore

import (
	"context"
	"errors"
)

var (
	// ErrIndexNotFound means no index has been built yet.
	ErrIndexNotFound = errors.New("vector index not found")
	// ErrCorruptIndex means the persisted vectors and metadata cannot be read or do not line up.
	ErrCorruptIndex = errors.New("vector index is corrupt")
	// ErrDimensionMismatch means a vector does not have the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyIndex is returned by Replace when there is nothing to store.
	ErrEmptyIndex = errors.New("no vectors to index")
	// ErrInvalidVector means a vector contains NaN or infinite components.
	ErrInvalidVector = errors.New("vector has non-finite components")
)

// Record is the metadata stored alongside each vector.
type Record struct {
	Text       string `json:"text"`
	SourceFile string `json:"source_file"`
	URL        string `json:"url"`
}

// Point is a vector with its metadata, in insertion order.
type Point struct {
	Vec    []float32
	Record Record
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	Record
	// Position is the entry's insertion position in the index.
	Position int
	// Distance is the squared Euclidean distance to the query.
	Distance float32
}

// IndexInfo describes the active index.
type IndexInfo struct {
	Backend    string
	Generation string
	Count      int
	Dimension  int
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Replace atomically swaps the whole index for points. Readers see either the old or the new index.
	Replace(ctx context.Context, points []Point) (IndexInfo, error)

	// Search returns up to k entries in ascending distance, ties in insertion order.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)

	// Info describes the active index or returns ErrIndexNotFound.
	Info(ctx context.Context) (IndexInfo, error)
}
