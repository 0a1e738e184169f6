package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ragbot/internal/contextutil"
	"ragbot/internal/http"
)

//go:embed web/index.html
var indexHTML string

const shutdownTimeout = 10 * time.Second

func (c *cli) newServeCmd() *cobra.Command {
	var indexOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and chat page",
		Long: `Serves the ask, chat, index and health endpoints plus the chat page at /.
The file index is reloaded automatically when build-index swaps it from another process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd.Context(), indexOnStart)
		},
	}
	cmd.Flags().BoolVar(&indexOnStart, "index-on-start", false, "rebuild the index in the background after the server starts")
	return cmd
}

func (c *cli) runServe(ctx context.Context, indexOnStart bool) error {
	logger := contextutil.LoggerFromContext(ctx)
	a := c.app
	cfg := a.Config

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := http.NewRouter(&http.Deps{
		RAGEngine:    a.Engine,
		ChatService:  a.Chat,
		VectorStore:  a.Store,
		Sources:      a.Registry,
		Models:       a.Models,
		ModelName:    cfg.LLMModelName,
		IndexBuilder: a,
		FilesDir:     cfg.FilesDir(),
		IndexHTML:    indexHTML,
	})

	go func() {
		if err := a.WatchIndex(ctx); err != nil {
			logger.ErrorContext(ctx, "Index watcher stopped", "error", err)
		}
	}()

	if indexOnStart {
		// Start indexing in background after router is ready
		go func() {
			indexCtx := context.WithoutCancel(ctx)
			logger.InfoContext(indexCtx, "Starting background indexing")
			stats, err := a.Rebuild(indexCtx)
			if err != nil {
				logger.ErrorContext(indexCtx, "Indexing completed with errors", "error", err)
				return
			}
			logger.InfoContext(indexCtx, "Indexing completed successfully", "embedded", stats.ChunksEmbedded, "replaced", stats.Replaced)
		}()
	}

	addr := ":" + cfg.APIPort
	srv := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "Starting API server", "addr", addr)
		logger.DebugContext(ctx, "LLM configuration", "provider", cfg.LLMProvider, "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "Received shutdown signal, shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
