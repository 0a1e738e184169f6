package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"ragbot/internal/contextutil"
	"ragbot/internal/registry"
)

const (
	// DefaultFetchTimeout bounds one page download.
	DefaultFetchTimeout = 15 * time.Second
	maxPageBytes        = 10 << 20
	userAgent           = "ragbot/1.0"
)

// FetchStats summarises a FetchAll run.
type FetchStats struct {
	Fetched int `json:"fetched"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Fetcher downloads source pages into a directory and records where each came from.
type Fetcher struct {
	registry *registry.Registry
	filesDir string
	client   *http.Client
}

// NewFetcher creates a fetcher saving pages into filesDir. timeout <= 0 selects
// DefaultFetchTimeout. Redirects are followed.
func NewFetcher(reg *registry.Registry, filesDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		registry: reg,
		filesDir: filesDir,
		client:   &http.Client{Timeout: timeout},
	}
}

// FetchAll downloads every URL not already represented by a saved page. Per-URL failures
// are logged and counted; only cancellation and registry save errors are returned.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) (FetchStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	var stats FetchStats

	if err := os.MkdirAll(f.filesDir, 0755); err != nil {
		return stats, fmt.Errorf("failed to create files directory: %w", err)
	}

	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return stats, errors.Join(err, f.registry.Save())
		}

		if f.alreadyFetched(url) {
			stats.Skipped++
			logger.DebugContext(ctx, "skipping fetched url", "url", url)
			continue
		}

		filename, finalURL, err := f.fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return stats, errors.Join(ctx.Err(), f.registry.Save())
			}
			stats.Failed++
			logger.WarnContext(ctx, "failed to fetch url", "url", url, "error", err)
			continue
		}

		f.registry.Register(filename, url, finalURL)
		stats.Fetched++
		if finalURL != url {
			logger.InfoContext(ctx, "fetched url after redirect", "url", url, "final_url", finalURL, "file", filename)
		} else {
			logger.InfoContext(ctx, "fetched url", "url", url, "file", filename)
		}
	}

	if err := f.registry.Save(); err != nil {
		return stats, fmt.Errorf("failed to save registry: %w", err)
	}

	logger.InfoContext(ctx, "fetch completed", "fetched", stats.Fetched, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

// alreadyFetched reports whether url maps to a registered file that still exists.
func (f *Fetcher) alreadyFetched(url string) bool {
	filename, ok := f.registry.LookupURL(url)
	if !ok {
		return false
	}
	_, err := os.Stat(filepath.Join(f.filesDir, filename))
	return err == nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) (filename, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("bad status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", "", fmt.Errorf("failed to read body: %w", err)
	}

	finalURL = resp.Request.URL.String()
	filename = registry.FilenameForURL(finalURL)
	if err := os.WriteFile(filepath.Join(f.filesDir, filename), body, 0644); err != nil {
		return "", "", fmt.Errorf("failed to save page: %w", err)
	}
	return filename, finalURL, nil
}
