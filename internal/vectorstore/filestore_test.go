package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePoints(n, dim int) []Point {
	points := make([]Point, n)
	for i := range points {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(i) + float32(j)*0.125
		}
		points[i] = Point{
			Vec: vec,
			Record: Record{
				Text:       fmt.Sprintf("chunk %d", i),
				SourceFile: fmt.Sprintf("doc_chunk%d.txt", i),
				URL:        fmt.Sprintf("https://example.com/%d", i),
			},
		}
	}
	return points
}

func TestFileStore_RoundTripAlignment(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	points := samplePoints(5, 3)

	info, err := NewFileStore(dir).Replace(ctx, points)
	require.NoError(t, err)
	assert.Equal(t, 5, info.Count)
	assert.Equal(t, 3, info.Dimension)
	assert.Equal(t, BackendFile, info.Backend)

	// A fresh store reads from disk.
	reloaded := NewFileStore(dir)
	index, gen, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Generation, gen)
	require.Equal(t, len(points), index.Len())

	for i, p := range points {
		results, err := reloaded.Search(ctx, p.Vec, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, i, results[0].Position)
		assert.Equal(t, float32(0), results[0].Distance)
		assert.Equal(t, p.Record, results[0].Record)
		assert.Equal(t, p.Vec, index.vectors[i])
	}
}

func TestFileStore_NoIndex(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing"))

	results, err := store.Search(context.Background(), []float32{1}, 4)
	assert.ErrorIs(t, err, ErrIndexNotFound)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	_, err = store.Info(context.Background())
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestFileStore_ReplaceRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	_, err := store.Replace(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	mixed := []Point{{Vec: []float32{1, 2}}, {Vec: []float32{1}}}
	_, err = store.Replace(ctx, mixed)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = os.Stat(filepath.Join(dir, currentFile))
	assert.True(t, os.IsNotExist(err), "nothing should be written")
}

func TestFileStore_ReplaceKeepsPreviousAndPrunesOlder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	first, err := store.Replace(ctx, samplePoints(2, 2))
	require.NoError(t, err)
	second, err := store.Replace(ctx, samplePoints(3, 2))
	require.NoError(t, err)
	third, err := store.Replace(ctx, samplePoints(4, 2))
	require.NoError(t, err)

	gens := generationDirs(t, dir)
	assert.ElementsMatch(t, []string{second.Generation, third.Generation}, gens)
	assert.NotContains(t, gens, first.Generation)

	info, err := NewFileStore(dir).Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.Generation, info.Generation)
	assert.Equal(t, 4, info.Count)

	for _, e := range mustReadDir(t, dir) {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestFileStore_CorruptIndex(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		corrupt func(t *testing.T, genDir string)
	}{
		{
			name: "invalid metadata json",
			corrupt: func(t *testing.T, genDir string) {
				require.NoError(t, os.WriteFile(filepath.Join(genDir, metaFile), []byte("{"), 0644))
			},
		},
		{
			name: "metadata shorter than vectors",
			corrupt: func(t *testing.T, genDir string) {
				meta := `{"count": 1, "dimension": 2, "records": [{"text": "x", "source_file": "x.txt", "url": "u"}]}`
				require.NoError(t, os.WriteFile(filepath.Join(genDir, metaFile), []byte(meta), 0644))
			},
		},
		{
			name: "garbage vectors",
			corrupt: func(t *testing.T, genDir string) {
				require.NoError(t, os.WriteFile(filepath.Join(genDir, vectorsFile), []byte("not gob"), 0644))
			},
		},
		{
			name: "missing vectors",
			corrupt: func(t *testing.T, genDir string) {
				require.NoError(t, os.Remove(filepath.Join(genDir, vectorsFile)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			info, err := NewFileStore(dir).Replace(ctx, samplePoints(3, 2))
			require.NoError(t, err)

			tt.corrupt(t, filepath.Join(dir, generationPrefix+info.Generation))

			results, err := NewFileStore(dir).Search(ctx, []float32{0, 0}, 2)
			assert.ErrorIs(t, err, ErrCorruptIndex)
			assert.Empty(t, results)
		})
	}
}

func TestFileStore_DanglingPointer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("nope\n"), 0644))

	_, err := NewFileStore(dir).Search(context.Background(), []float32{0}, 1)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestFileStore_CacheFollowsExternalSwap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reader := NewFileStore(dir)
	writer := NewFileStore(dir)

	_, err := writer.Replace(ctx, samplePoints(2, 2))
	require.NoError(t, err)
	info, err := reader.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Count)

	_, err = writer.Replace(ctx, samplePoints(6, 2))
	require.NoError(t, err)
	info, err = reader.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, info.Count)
}

func generationDirs(t *testing.T, dir string) []string {
	t.Helper()
	var gens []string
	for _, e := range mustReadDir(t, dir) {
		if e.IsDir() && strings.HasPrefix(e.Name(), generationPrefix) {
			gens = append(gens, strings.TrimPrefix(e.Name(), generationPrefix))
		}
	}
	return gens
}

func mustReadDir(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}
