package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var chunkIndexPattern = regexp.MustCompile(`^(.*)_chunk(\d+)$`)

// LoadChunks reads every .txt file in dir as a Chunk, ordered by document and then by
// chunk number (so "_chunk10" follows "_chunk9").
func LoadChunks(dir string) ([]Chunk, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk directory: %w", err)
	}

	var chunks []Chunk
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %s: %w", e.Name(), err)
		}
		chunks = append(chunks, Chunk{
			ID:         strings.TrimSuffix(e.Name(), ".txt"),
			Text:       string(content),
			SourceFile: e.Name(),
		})
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		di, ni := chunkSortKey(chunks[i].ID)
		dj, nj := chunkSortKey(chunks[j].ID)
		if di != dj {
			return di < dj
		}
		return ni < nj
	})
	return chunks, nil
}

func chunkSortKey(id string) (string, int) {
	m := chunkIndexPattern.FindStringSubmatch(id)
	if m == nil {
		return id, -1
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return id, -1
	}
	return m[1], n
}
