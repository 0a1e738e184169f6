package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"ragbot/internal/contextutil"
)

// Watch follows CURRENT swaps made by other processes (the build-index command) and
// reloads the new generation ahead of the next query. It blocks until ctx is done.
// onSwap, if non-nil, is called after each reload attempt.
func (s *FileStore) Watch(ctx context.Context, onSwap func(IndexInfo, error)) error {
	logger := contextutil.LoggerFromContext(ctx)

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch index directory: %w", err)
	}
	logger.InfoContext(ctx, "watching index directory", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != currentFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			s.Invalidate()
			info, err := s.Info(ctx)
			switch {
			case err == nil:
				logger.InfoContext(ctx, "index swap detected", "generation", info.Generation, "count", info.Count)
			case errors.Is(err, ErrIndexNotFound):
				logger.WarnContext(ctx, "index pointer removed")
			default:
				logger.ErrorContext(ctx, "failed to reload swapped index", "error", err)
			}
			if onSwap != nil {
				onSwap(info, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "index watcher error", "error", err)
		}
	}
}
