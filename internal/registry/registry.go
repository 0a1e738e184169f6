// Package registry tracks which source URL each fetched document came from.
//
// The mapping file is a JSON object keyed by document filename. Older files store a bare
// URL string per entry; newer ones store {"original_url", "final_url"}. Both are accepted
// on load and normalised into Source, and Save always writes the structured form.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"ragbot/internal/contextutil"
)

// UnknownSource is recorded for chunks whose document has no registry entry.
const UnknownSource = "unknown"

// Source is the provenance of one fetched document.
type Source struct {
	OriginalURL string `json:"original_url"`
	FinalURL    string `json:"final_url"`
}

// URL returns the URL citations should link to, preferring the post-redirect one.
func (s Source) URL() string {
	if s.FinalURL != "" {
		return s.FinalURL
	}
	return s.OriginalURL
}

// Registry is a thread-safe, insertion-ordered filename → Source mapping backed by a JSON file.
type Registry struct {
	mu      sync.RWMutex
	path    string
	order   []string
	entries map[string]Source
}

// New returns an empty registry that will save to path.
func New(path string) *Registry {
	return &Registry{
		path:    path,
		entries: make(map[string]Source),
	}
}

// Open loads the registry at path. A missing or unreadable-as-JSON file yields an empty
// registry and a warning; only filesystem errors other than "not exist" are returned.
func Open(ctx context.Context, path string) (*Registry, error) {
	logger := contextutil.LoggerFromContext(ctx)
	r := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.InfoContext(ctx, "registry file not found, starting empty", "path", path)
			return r, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	skipped, err := r.decode(data)
	if err != nil {
		logger.WarnContext(ctx, "registry file is corrupt, starting empty", "path", path, "error", err)
		return New(path), nil
	}
	if skipped > 0 {
		logger.WarnContext(ctx, "skipped malformed registry entries", "path", path, "skipped", skipped)
	}

	logger.InfoContext(ctx, "loaded registry", "path", path, "entries", len(r.order))
	return r, nil
}

// decode reads the JSON object preserving key order. Entries that are neither a string
// nor a Source object are skipped and counted.
func (r *Registry) decode(data []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return 0, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return 0, fmt.Errorf("expected JSON object, got %v", tok)
	}

	skipped := 0
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return 0, err
		}
		filename, ok := keyTok.(string)
		if !ok {
			return 0, fmt.Errorf("unexpected key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return 0, err
		}
		src, ok := decodeEntry(raw)
		if !ok || filename == "" {
			skipped++
			continue
		}
		r.put(filename, src)
	}
	if _, err := dec.Token(); err != nil {
		return 0, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return 0, fmt.Errorf("trailing data after registry object")
	}
	return skipped, nil
}

func decodeEntry(raw json.RawMessage) (Source, bool) {
	var legacy string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		if legacy == "" {
			return Source{}, false
		}
		return Source{OriginalURL: legacy, FinalURL: legacy}, true
	}

	var src Source
	if err := json.Unmarshal(raw, &src); err != nil {
		return Source{}, false
	}
	if src.OriginalURL == "" && src.FinalURL == "" {
		return Source{}, false
	}
	if src.OriginalURL == "" {
		src.OriginalURL = src.FinalURL
	}
	if src.FinalURL == "" {
		src.FinalURL = src.OriginalURL
	}
	return src, true
}

func (r *Registry) put(filename string, src Source) {
	if _, exists := r.entries[filename]; !exists {
		r.order = append(r.order, filename)
	}
	r.entries[filename] = src
}

// Register records that filename was fetched from originalURL and ended at finalURL.
// A new filename is appended. For a known filename only the final URL may change;
// the original URL is never rewritten. It reports whether the registry changed.
func (r *Registry) Register(filename, originalURL, finalURL string) bool {
	if finalURL == "" {
		finalURL = originalURL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[filename]
	if !ok {
		if originalURL == "" {
			originalURL = finalURL
		}
		r.put(filename, Source{OriginalURL: originalURL, FinalURL: finalURL})
		return true
	}
	if existing.FinalURL == finalURL {
		return false
	}
	existing.FinalURL = finalURL
	r.entries[filename] = existing
	return true
}

// Resolve returns the Source recorded for filename.
func (r *Registry) Resolve(filename string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.entries[filename]
	return src, ok
}

// ResolveURL returns the citation URL for filename, or UnknownSource.
func (r *Registry) ResolveURL(filename string) string {
	src, ok := r.Resolve(filename)
	if !ok || src.URL() == "" {
		return UnknownSource
	}
	return src.URL()
}

// LookupURL finds the filename already representing url, as original or final URL.
func (r *Registry) LookupURL(url string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		src := r.entries[name]
		if src.OriginalURL == url || src.FinalURL == url {
			return name, true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Filenames returns the registered filenames in insertion order.
func (r *Registry) Filenames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Path returns the file the registry saves to.
func (r *Registry) Path() string {
	return r.path
}

// Save writes the registry atomically (temp file + rename), entries in insertion order.
func (r *Registry) Save() error {
	r.mu.RLock()
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, name := range r.order {
		key, err := json.Marshal(name)
		if err != nil {
			r.mu.RUnlock()
			return fmt.Errorf("failed to marshal registry key: %w", err)
		}
		val, err := json.Marshal(r.entries[name])
		if err != nil {
			r.mu.RUnlock()
			return fmt.Errorf("failed to marshal registry entry: %w", err)
		}
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
		if i < len(r.order)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	r.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close registry: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
