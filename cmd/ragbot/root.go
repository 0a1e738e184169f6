package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ragbot/internal/app"
	"ragbot/internal/config"
	"ragbot/internal/contextutil"
)

// cli carries the state shared by every command of one invocation.
type cli struct {
	app *app.App
}

// execute runs the command line and returns the process exit code.
func execute() int {
	c := &cli{}
	root := c.newRootCmd()
	root.SetOut(os.Stdout)
	err := root.Execute()
	if closeErr := c.close(); closeErr != nil {
		slog.Error("Failed to close application", "error", closeErr)
	}
	if err != nil {
		return 1
	}
	return 0
}

func (c *cli) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragbot",
		Short: "Grounded question answering over the indexed case pages",
		Long: `ragbot fetches the configured case pages, indexes them with an embedding model and
answers questions from that index only, citing the pages it used.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	root.AddCommand(
		c.newServeCmd(),
		c.newIngestCmd(),
		c.newBuildIndexCmd(),
		c.newAskCmd(),
		c.newHealthCmd(),
	)
	return root
}

// setup loads the configuration, installs the logger and builds the application.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = contextutil.WithLogger(ctx, logger)
	cmd.SetContext(ctx)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
