package vectorstore

import (
	"fmt"
	"math"
	"sort"
)

// FlatIndex is an exact, brute-force squared-L2 index. Search is O(N·D).
type FlatIndex struct {
	dim     int
	vectors [][]float32
	records []Record
}

// NewFlatIndex creates an index for vectors of length dim. A zero dim is fixed by the first Add.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Add appends a vector and its record at the next position.
func (f *FlatIndex) Add(vec []float32, rec Record) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if f.dim == 0 {
		f.dim = len(vec)
	}
	if len(vec) != f.dim {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), f.dim)
	}
	if !Finite(vec) {
		return ErrInvalidVector
	}
	f.vectors = append(f.vectors, vec)
	f.records = append(f.records, rec)
	return nil
}

// Len returns the number of entries.
func (f *FlatIndex) Len() int { return len(f.vectors) }

// Dim returns the vector dimension, zero while empty.
func (f *FlatIndex) Dim() int { return f.dim }

// Search returns the k nearest entries by squared Euclidean distance, ascending,
// ties broken by insertion position. k larger than the index returns every entry.
func (f *FlatIndex) Search(query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(f.vectors) == 0 {
		return []SearchResult{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if !Finite(query) {
		return nil, ErrInvalidVector
	}

	results := make([]SearchResult, len(f.vectors))
	for i, vec := range f.vectors {
		results[i] = SearchResult{
			Record:   f.records[i],
			Position: i,
			Distance: squaredL2(query, vec),
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Distance < results[b].Distance
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}

// Finite reports whether vec holds no NaN or infinite component.
func Finite(vec []float32) bool {
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}
