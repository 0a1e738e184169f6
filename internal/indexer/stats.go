package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

const (
	// ChunkerVersion is the version identifier for the chunker implementation.
	// Update this when chunking logic changes significantly.
	ChunkerVersion = "fixed-window-v1"
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
)

// Skip reasons recorded in BuildStats.ChunksSkippedReasons.
const (
	SkipEmptyText        = "empty_text"
	SkipEmbeddingError   = "embedding_error"
	SkipEmptyEmbedding   = "empty_embedding"
	SkipInvalidEmbedding = "invalid_embedding"
)

// BuildStats contains statistics about one index build.
type BuildStats struct {
	// DocsProcessed is the number of distinct source documents among the input chunks.
	DocsProcessed int `json:"docs_processed"`
	// ChunksAttempted is the total number of chunks that were attempted to be embedded.
	ChunksAttempted int `json:"chunks_attempted"`
	// ChunksEmbedded is the number of chunks successfully embedded and stored.
	ChunksEmbedded int `json:"chunks_embedded"`
	// ChunksSkipped is the number of chunks left out of the index.
	ChunksSkipped int `json:"chunks_skipped"`
	// ChunksSkippedReasons is a breakdown of why chunks were skipped.
	ChunksSkippedReasons map[string]int `json:"chunks_skipped_reasons,omitempty"`
	// UnresolvedURLs counts indexed chunks whose document has no registry entry.
	UnresolvedURLs int `json:"unresolved_urls"`
	// Dimension is the embedding size fixed by the first vector.
	Dimension int `json:"dimension"`
	// Replaced reports whether the persisted index was swapped.
	Replaced bool `json:"replaced"`
	// Generation identifies the persisted index when Replaced is true.
	Generation string `json:"generation,omitempty"`
	// ChunkTokenStats contains statistics about token counts per embedded chunk.
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
	// IndexVersion is a hash identifying the build configuration (chunker + embedding model + params).
	IndexVersion string `json:"index_version"`
}

func newBuildStats() *BuildStats {
	return &BuildStats{
		ChunksSkippedReasons: make(map[string]int),
		ChunkerVersion:       ChunkerVersion,
	}
}

func (s *BuildStats) skip(reason string) {
	s.ChunksSkipped++
	s.ChunksSkippedReasons[reason]++
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	// Min is the minimum token count across all chunks.
	Min int `json:"min"`
	// Max is the maximum token count across all chunks.
	Max int `json:"max"`
	// Mean is the mean token count across all chunks.
	Mean float64 `json:"mean"`
	// P95 is the 95th percentile token count.
	P95 int `json:"p95"`
}

// estimateTokens approximates the token count of text from its rune count.
func estimateTokens(text string) int {
	tokenCount := int(math.Round(float64(utf8.RuneCountInString(text)) / TokensPerRune))
	if tokenCount < 1 {
		tokenCount = 1 // Minimum 1 token
	}
	return tokenCount
}

// indexVersion hashes the parameters that make two builds comparable.
func indexVersion(embeddingModel string, dimension, chunkSize, chunkOverlap int) string {
	input := fmt.Sprintf("%s|%s|dim=%d|chunkSize=%d|chunkOverlap=%d|metric=l2sq",
		ChunkerVersion, embeddingModel, dimension, chunkSize, chunkOverlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16] // 16 hex chars = 64 bits
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	p95Index := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if p95Index < 0 {
		p95Index = 0
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  sorted[p95Index],
	}
}
