// Package app wires the configured components together. An App is built once by the
// CLI and handed to whichever command runs.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ragbot/internal/config"
	"ragbot/internal/contextutil"
	"ragbot/internal/indexer"
	"ragbot/internal/ingest"
	"ragbot/internal/llm"
	"ragbot/internal/rag"
	"ragbot/internal/registry"
	"ragbot/internal/service"
	"ragbot/internal/storage"
	"ragbot/internal/vectorstore"
)

// ModelLister lists the models an LLM server serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// App holds the long-lived components of one process.
type App struct {
	Config    *config.Config
	Registry  *registry.Registry
	Store     vectorstore.VectorStore
	Embedder  rag.Embedder
	Completer rag.Completer
	Models    ModelLister
	Engine    rag.Engine
	DB        *sql.DB
	Chat      service.ChatService

	closers []func() error
}

// IngestStats summarises one ingest run.
type IngestStats struct {
	Sources int               `json:"sources"`
	Fetch   ingest.FetchStats `json:"fetch"`
	Parse   ingest.ParseStats `json:"parse"`
}

// RebuildStats summarises one chunk-and-index run.
type RebuildStats struct {
	Chunks indexer.ChunkDirStats `json:"chunks"`
	Build  *indexer.BuildStats   `json:"build"`
}

// New builds an App from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := contextutil.LoggerFromContext(ctx)
	a := &App{Config: cfg}

	reg, err := registry.Open(ctx, cfg.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open source registry: %w", err)
	}
	a.Registry = reg

	if err := a.openStore(); err != nil {
		_ = a.Close()
		return nil, err
	}

	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		backend := llm.NewOpenAIBackend(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.EmbeddingModelName, cfg.EmbeddingDimension)
		backend.ChatTimeout = cfg.CompletionTimeout
		backend.EmbedTimeout = cfg.EmbeddingTimeout
		backend.SetRateLimit(cfg.EmbeddingRPS)
		a.Embedder = backend
		a.Completer = backend
		a.Models = backend
	default:
		embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingDimension)
		embedder.Timeout = cfg.EmbeddingTimeout
		embedder.SetRateLimit(cfg.EmbeddingRPS)
		completer := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
		completer.Timeout = cfg.CompletionTimeout
		a.Embedder = embedder
		a.Completer = completer
		a.Models = completer
	}

	a.Engine = rag.NewEngine(
		rag.NewRetriever(a.Embedder, a.Store, cfg.TopK),
		rag.NewAssembler(cfg.MaxContextChars),
		a.Completer,
		rag.NewHeuristicChecker(),
		rag.Options{
			Model:       cfg.LLMModelName,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
	)

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	if err := storage.Migrate(db); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	a.Chat = service.NewChatService(a.Engine, storage.NewSessionRepo(db))

	logger.InfoContext(ctx, "application initialized",
		"provider", cfg.LLMProvider,
		"index_backend", cfg.IndexBackend,
		"sources", reg.Len(),
		"db_path", cfg.DBPath,
	)
	return a, nil
}

func (a *App) openStore() error {
	cfg := a.Config
	switch cfg.IndexBackend {
	case config.IndexBackendQdrant:
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection, cfg.IndexDir())
		if err != nil {
			return fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	default:
		a.Store = vectorstore.NewFileStore(cfg.IndexDir())
	}
	return nil
}

// Ingest fetches every configured source page and extracts its text.
func (a *App) Ingest(ctx context.Context) (IngestStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	var stats IngestStats

	urls, err := ingest.LoadSources(a.Config.SourcesFile)
	if err != nil {
		return stats, fmt.Errorf("failed to load sources: %w", err)
	}
	stats.Sources = len(urls)

	fetcher := ingest.NewFetcher(a.Registry, a.Config.FilesDir(), a.Config.FetchTimeout)
	stats.Fetch, err = fetcher.FetchAll(ctx, urls)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch sources: %w", err)
	}

	stats.Parse, err = ingest.ParseDir(ctx, a.Config.FilesDir())
	if err != nil {
		return stats, fmt.Errorf("failed to parse pages: %w", err)
	}

	logger.InfoContext(ctx, "ingest completed",
		"sources", stats.Sources,
		"fetched", stats.Fetch.Fetched,
		"fetch_failed", stats.Fetch.Failed,
		"parsed", stats.Parse.Parsed,
	)
	return stats, nil
}

// Rebuild chunks the extracted documents and replaces the index with their embeddings.
// The registry is re-read from disk so pages ingested by another process resolve.
func (a *App) Rebuild(ctx context.Context) (*indexer.BuildStats, error) {
	stats, err := a.RebuildWithChunks(ctx)
	return stats.Build, err
}

// RebuildWithChunks is Rebuild that also reports the chunking step.
func (a *App) RebuildWithChunks(ctx context.Context) (RebuildStats, error) {
	cfg := a.Config
	var stats RebuildStats

	reg, err := registry.Open(ctx, cfg.RegistryPath())
	if err != nil {
		return stats, fmt.Errorf("failed to open source registry: %w", err)
	}

	stats.Chunks, err = indexer.ChunkDir(ctx, cfg.FilesDir(), cfg.ChunksDir(), cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return stats, fmt.Errorf("failed to chunk documents: %w", err)
	}

	pipeline := indexer.NewPipeline(a.Embedder, a.Store, reg, indexer.Options{
		BatchSize:      cfg.EmbeddingBatchSize,
		EmbeddingModel: cfg.EmbeddingModelName,
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
	})
	stats.Build, err = pipeline.BuildFromDir(ctx, cfg.ChunksDir())
	if err != nil {
		return stats, fmt.Errorf("failed to build index: %w", err)
	}
	return stats, nil
}

// WatchIndex reloads the file index when another process swaps it. It blocks until
// ctx is done and returns at once for backends that need no watching.
func (a *App) WatchIndex(ctx context.Context) error {
	store, ok := a.Store.(*vectorstore.FileStore)
	if !ok {
		return nil
	}
	return store.Watch(ctx, nil)
}

// Close releases the database and backend connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
