package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ragbot/internal/contextutil"
)

const (
	// DefaultChunkSize is the window length in characters.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is how many characters consecutive windows share.
	DefaultChunkOverlap = 100
)

// ChunkText cuts text into windows of size runes, each starting size-overlap runes after
// the previous one. The last window may be shorter. Windows that are only whitespace are dropped.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	step := size - overlap

	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// ChunkDirStats summarises a ChunkDir run.
type ChunkDirStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// ChunkDir chunks every .txt document in textDir into chunkDir as "<stem>_chunk<i>.txt".
// Existing chunk files are removed first, because the index is always rebuilt wholesale.
func ChunkDir(ctx context.Context, textDir, chunkDir string, size, overlap int) (ChunkDirStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	var stats ChunkDirStats

	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return stats, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(chunkDir, "*.txt"))
	if err != nil {
		return stats, fmt.Errorf("failed to list chunk files: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return stats, fmt.Errorf("failed to remove stale chunk %s: %w", path, err)
		}
	}

	docs, err := filepath.Glob(filepath.Join(textDir, "*.txt"))
	if err != nil {
		return stats, fmt.Errorf("failed to list documents: %w", err)
	}

	for _, docPath := range docs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		content, err := os.ReadFile(docPath)
		if err != nil {
			logger.WarnContext(ctx, "failed to read document", "path", docPath, "error", err)
			continue
		}

		stem := strings.TrimSuffix(filepath.Base(docPath), ".txt")
		chunks := ChunkText(string(content), size, overlap)
		for i, chunk := range chunks {
			name := fmt.Sprintf("%s_chunk%d.txt", stem, i)
			if err := os.WriteFile(filepath.Join(chunkDir, name), []byte(chunk), 0644); err != nil {
				return stats, fmt.Errorf("failed to write chunk %s: %w", name, err)
			}
		}

		stats.Documents++
		stats.Chunks += len(chunks)
		logger.DebugContext(ctx, "chunked document", "document", filepath.Base(docPath), "chunks", len(chunks))
	}

	logger.InfoContext(ctx, "chunking completed", "documents", stats.Documents, "chunks", stats.Chunks)
	return stats, nil
}
