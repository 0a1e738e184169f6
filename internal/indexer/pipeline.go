package indexer

import (
	"context"
	"fmt"
	"strings"

	"ragbot/internal/contextutil"
	"ragbot/internal/registry"
	"ragbot/internal/vectorstore"
)

// DefaultBatchSize is how many chunks are sent per embeddings request.
const DefaultBatchSize = 16

// Embedder turns texts into vectors. The result has one entry per input; a nil entry
// means that input could not be embedded.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// URLResolver maps a document filename to its citation URL, or registry.UnknownSource.
type URLResolver interface {
	ResolveURL(filename string) string
}

// Options configures a Pipeline.
type Options struct {
	BatchSize      int
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
}

// Pipeline builds the vector index from chunks.
type Pipeline struct {
	embedder Embedder
	store    vectorstore.VectorStore
	sources  URLResolver
	opts     Options
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(embedder Embedder, store vectorstore.VectorStore, sources URLResolver, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		sources:  sources,
		opts:     opts,
	}
}

// BuildFromDir loads the chunk files in dir and builds the index from them.
func (p *Pipeline) BuildFromDir(ctx context.Context, dir string) (*BuildStats, error) {
	chunks, err := LoadChunks(dir)
	if err != nil {
		return nil, err
	}
	return p.Build(ctx, chunks)
}

// Build embeds chunks in batches and replaces the persisted index with the result.
//
// A failed batch is retried one chunk at a time; chunks that still fail are skipped.
// If nothing could be embedded the previous index is left as it is and Replaced is false.
// A vector whose length differs from the first one aborts the build with
// vectorstore.ErrDimensionMismatch before anything is written.
func (p *Pipeline) Build(ctx context.Context, chunks []Chunk) (*BuildStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	stats := newBuildStats()

	docs := make(map[string]struct{})
	for _, c := range chunks {
		docs[registry.DocumentName(c.SourceFile)] = struct{}{}
	}
	stats.DocsProcessed = len(docs)
	stats.ChunksAttempted = len(chunks)

	logger.InfoContext(ctx, "starting index build", "chunks", len(chunks), "documents", stats.DocsProcessed, "batch_size", p.opts.BatchSize)

	points := make([]vectorstore.Point, 0, len(chunks))
	tokenCounts := make([]int, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+p.opts.BatchSize, len(chunks))

		batch := make([]Chunk, 0, end-start)
		for _, c := range chunks[start:end] {
			if strings.TrimSpace(c.Text) == "" {
				stats.skip(SkipEmptyText)
				logger.WarnContext(ctx, "skipping empty chunk", "chunk", c.SourceFile)
				continue
			}
			batch = append(batch, c)
		}
		if len(batch) == 0 {
			continue
		}

		vectors, err := p.embedBatch(ctx, batch, stats)
		if err != nil {
			return stats, err
		}

		for i, c := range batch {
			vec := vectors[i]
			if vec == nil {
				continue
			}
			if !vectorstore.Finite(vec) {
				stats.skip(SkipInvalidEmbedding)
				logger.WarnContext(ctx, "skipping chunk with non-finite embedding", "chunk", c.SourceFile)
				continue
			}
			if stats.Dimension == 0 {
				stats.Dimension = len(vec)
			}
			if len(vec) != stats.Dimension {
				logger.ErrorContext(ctx, "embedding dimension changed mid-build", "chunk", c.SourceFile, "want", stats.Dimension, "got", len(vec))
				return stats, fmt.Errorf("chunk %s: %w: got %d, want %d", c.SourceFile, vectorstore.ErrDimensionMismatch, len(vec), stats.Dimension)
			}

			url := p.sources.ResolveURL(registry.DocumentName(c.SourceFile))
			if url == registry.UnknownSource {
				stats.UnresolvedURLs++
				logger.DebugContext(ctx, "no source URL for chunk", "chunk", c.SourceFile)
			}

			points = append(points, vectorstore.Point{
				Vec: vec,
				Record: vectorstore.Record{
					Text:       c.Text,
					SourceFile: c.SourceFile,
					URL:        url,
				},
			})
			tokenCounts = append(tokenCounts, estimateTokens(c.Text))
		}
	}

	stats.ChunksEmbedded = len(points)
	stats.ChunkTokenStats = computeTokenStats(tokenCounts)
	stats.IndexVersion = indexVersion(p.opts.EmbeddingModel, stats.Dimension, p.opts.ChunkSize, p.opts.ChunkOverlap)

	if len(points) == 0 {
		logger.WarnContext(ctx, "no chunks embedded, keeping previous index", "attempted", stats.ChunksAttempted, "skipped", stats.ChunksSkipped)
		return stats, nil
	}

	info, err := p.store.Replace(ctx, points)
	if err != nil {
		return stats, fmt.Errorf("failed to replace index: %w", err)
	}
	stats.Replaced = true
	stats.Generation = info.Generation

	logger.InfoContext(ctx, "index build completed",
		"attempted", stats.ChunksAttempted,
		"embedded", stats.ChunksEmbedded,
		"skipped", stats.ChunksSkipped,
		"unresolved_urls", stats.UnresolvedURLs,
		"dimension", stats.Dimension,
		"generation", stats.Generation,
	)
	return stats, nil
}

// embedBatch returns one vector (or nil) per chunk, falling back to one request per chunk
// when the batch request fails. Only context cancellation is returned as an error.
func (p *Pipeline) embedBatch(ctx context.Context, batch []Chunk, stats *BuildStats) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err == nil && len(vectors) == len(batch) {
		for i, vec := range vectors {
			if len(vec) == 0 {
				vectors[i] = nil
				stats.skip(SkipEmptyEmbedding)
				logger.WarnContext(ctx, "skipping chunk with empty embedding", "chunk", batch[i].SourceFile)
			}
		}
		return vectors, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err == nil {
		err = fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors))
	}
	logger.WarnContext(ctx, "batch embedding failed, retrying chunks individually", "batch_size", len(batch), "error", err)

	vectors = make([][]float32, len(batch))
	for i, c := range batch {
		single, err := p.embedder.EmbedTexts(ctx, []string{c.Text})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			stats.skip(SkipEmbeddingError)
			logger.WarnContext(ctx, "skipping chunk after embedding error", "chunk", c.SourceFile, "error", err)
			continue
		}
		if len(single) != 1 || len(single[0]) == 0 {
			stats.skip(SkipEmptyEmbedding)
			logger.WarnContext(ctx, "skipping chunk with empty embedding", "chunk", c.SourceFile)
			continue
		}
		vectors[i] = single[0]
	}
	return vectors, nil
}
