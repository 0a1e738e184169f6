package vectorstore

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragbot/internal/contextutil"
)

const (
	currentFile      = "CURRENT"
	vectorsFile      = "vectors.gob"
	metaFile         = "meta.json"
	generationPrefix = "gen-"
)

// BackendFile names the local flat-file backend in IndexInfo.
const BackendFile = "file"

type vectorsBlob struct {
	Dimension int
	Vectors   [][]float32
}

type metaBlob struct {
	Generation string   `json:"generation"`
	Count      int      `json:"count"`
	Dimension  int      `json:"dimension"`
	CreatedAt  string   `json:"created_at"`
	Records    []Record `json:"records"`
}

// FileStore persists a FlatIndex as generation directories under dir:
//
//	dir/CURRENT            name of the active generation
//	dir/gen-<id>/vectors.gob
//	dir/gen-<id>/meta.json
//
// Replace writes a new generation and then renames CURRENT into place, so a reader
// sees either the previous or the new index. The active and the previous generation
// are kept on disk; older ones are pruned.
type FileStore struct {
	dir string

	replaceMu sync.Mutex

	mu        sync.RWMutex
	cachedGen string
	cached    *FlatIndex
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the index directory.
func (s *FileStore) Dir() string { return s.dir }

// Replace writes points as a new generation and makes it current.
func (s *FileStore) Replace(ctx context.Context, points []Point) (IndexInfo, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return IndexInfo{}, ErrEmptyIndex
	}

	index := NewFlatIndex(0)
	for i, p := range points {
		if err := index.Add(p.Vec, p.Record); err != nil {
			return IndexInfo{}, fmt.Errorf("point %d: %w", i, err)
		}
	}

	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return IndexInfo{}, fmt.Errorf("failed to create index directory: %w", err)
	}

	previous, err := s.currentGeneration()
	if err != nil && !errors.Is(err, ErrIndexNotFound) {
		return IndexInfo{}, err
	}

	gen := time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
	genDir := filepath.Join(s.dir, generationPrefix+gen)
	if err := s.writeGeneration(genDir, gen, index); err != nil {
		_ = os.RemoveAll(genDir)
		return IndexInfo{}, err
	}

	if err := writeFileAtomic(filepath.Join(s.dir, currentFile), []byte(gen+"\n")); err != nil {
		_ = os.RemoveAll(genDir)
		return IndexInfo{}, fmt.Errorf("failed to swap index: %w", err)
	}

	s.mu.Lock()
	s.cachedGen = gen
	s.cached = index
	s.mu.Unlock()

	s.prune(ctx, gen, previous)

	info := IndexInfo{Backend: BackendFile, Generation: gen, Count: index.Len(), Dimension: index.Dim()}
	logger.InfoContext(ctx, "index replaced", "generation", gen, "previous", previous, "count", info.Count, "dimension", info.Dimension)
	return info, nil
}

func (s *FileStore) writeGeneration(genDir, gen string, index *FlatIndex) error {
	if err := os.MkdirAll(genDir, 0755); err != nil {
		return fmt.Errorf("failed to create generation directory: %w", err)
	}

	vf, err := os.Create(filepath.Join(genDir, vectorsFile))
	if err != nil {
		return fmt.Errorf("failed to create vectors file: %w", err)
	}
	if err := gob.NewEncoder(vf).Encode(vectorsBlob{Dimension: index.dim, Vectors: index.vectors}); err != nil {
		_ = vf.Close()
		return fmt.Errorf("failed to encode vectors: %w", err)
	}
	if err := vf.Sync(); err != nil {
		_ = vf.Close()
		return fmt.Errorf("failed to sync vectors file: %w", err)
	}
	if err := vf.Close(); err != nil {
		return fmt.Errorf("failed to close vectors file: %w", err)
	}

	meta, err := json.MarshalIndent(metaBlob{
		Generation: gen,
		Count:      index.Len(),
		Dimension:  index.dim,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Records:    index.records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(genDir, metaFile), meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// prune removes generation directories other than the current and previous ones.
func (s *FileStore) prune(ctx context.Context, current, previous string) {
	logger := contextutil.LoggerFromContext(ctx)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.WarnContext(ctx, "failed to list index generations", "error", err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, generationPrefix) {
			continue
		}
		gen := strings.TrimPrefix(name, generationPrefix)
		if gen == current || gen == previous {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			logger.WarnContext(ctx, "failed to prune index generation", "generation", gen, "error", err)
			continue
		}
		logger.DebugContext(ctx, "pruned index generation", "generation", gen)
	}
}

func (s *FileStore) currentGeneration() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrIndexNotFound
		}
		return "", fmt.Errorf("failed to read index pointer: %w", err)
	}
	gen := strings.TrimSpace(string(data))
	if gen == "" || strings.ContainsAny(gen, `/\`) {
		return "", fmt.Errorf("%w: invalid generation pointer %q", ErrCorruptIndex, gen)
	}
	return gen, nil
}

// Load returns the active index, reading it from disk when the generation changed.
func (s *FileStore) Load(ctx context.Context) (*FlatIndex, string, error) {
	gen, err := s.currentGeneration()
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	if s.cached != nil && s.cachedGen == gen {
		index := s.cached
		s.mu.RUnlock()
		return index, gen, nil
	}
	s.mu.RUnlock()

	index, err := readGeneration(filepath.Join(s.dir, generationPrefix+gen))
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	s.cachedGen = gen
	s.cached = index
	s.mu.Unlock()

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "loaded index", "generation", gen, "count", index.Len(), "dimension", index.Dim())
	return index, gen, nil
}

func readGeneration(genDir string) (*FlatIndex, error) {
	vf, err := os.Open(filepath.Join(genDir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open vectors: %v", ErrCorruptIndex, err)
	}
	var blob vectorsBlob
	err = gob.NewDecoder(vf).Decode(&blob)
	_ = vf.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode vectors: %v", ErrCorruptIndex, err)
	}

	metaBytes, err := os.ReadFile(filepath.Join(genDir, metaFile))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read metadata: %v", ErrCorruptIndex, err)
	}
	var meta metaBlob
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: failed to decode metadata: %v", ErrCorruptIndex, err)
	}

	if len(blob.Vectors) != len(meta.Records) || meta.Count != len(meta.Records) {
		return nil, fmt.Errorf("%w: %d vectors, %d records, count %d", ErrCorruptIndex, len(blob.Vectors), len(meta.Records), meta.Count)
	}
	if blob.Dimension <= 0 || (meta.Dimension != 0 && meta.Dimension != blob.Dimension) {
		return nil, fmt.Errorf("%w: dimension %d, metadata says %d", ErrCorruptIndex, blob.Dimension, meta.Dimension)
	}

	index := NewFlatIndex(blob.Dimension)
	for i, vec := range blob.Vectors {
		if err := index.Add(vec, meta.Records[i]); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptIndex, i, err)
		}
	}
	return index, nil
}

// Search loads the active index and searches it.
func (s *FileStore) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	index, _, err := s.Load(ctx)
	if err != nil {
		return []SearchResult{}, err
	}
	results, err := index.Search(query, k)
	if err != nil {
		return []SearchResult{}, err
	}
	return results, nil
}

// Info describes the active generation.
func (s *FileStore) Info(ctx context.Context) (IndexInfo, error) {
	index, gen, err := s.Load(ctx)
	if err != nil {
		return IndexInfo{}, err
	}
	return IndexInfo{Backend: BackendFile, Generation: gen, Count: index.Len(), Dimension: index.Dim()}, nil
}

// Invalidate drops the in-memory copy; the next Load reads from disk.
func (s *FileStore) Invalidate() {
	s.mu.Lock()
	s.cachedGen = ""
	s.cached = nil
	s.mu.Unlock()
}

// writeFileAtomic writes data to a temp file in the target directory and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
