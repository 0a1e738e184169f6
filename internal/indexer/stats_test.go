package indexer

import (
	"testing"
)

func TestComputeTokenStats(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		want   ChunkTokenStats
	}{
		{name: "empty", counts: nil, want: ChunkTokenStats{}},
		{name: "single", counts: []int{7}, want: ChunkTokenStats{Min: 7, Max: 7, Mean: 7, P95: 7}},
		{name: "unsorted", counts: []int{3, 1, 2}, want: ChunkTokenStats{Min: 1, Max: 3, Mean: 2, P95: 3}},
		{
			name:   "twenty values",
			counts: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 100},
			want:   ChunkTokenStats{Min: 1, Max: 100, Mean: 14.5, P95: 19},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeTokenStats(tt.counts)
			if got != tt.want {
				t.Errorf("computeTokenStats() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(""); got != 1 {
		t.Errorf("estimateTokens(\"\") = %d, want 1", got)
	}
	if got := estimateTokens("абвгдежз"); got != 2 {
		t.Errorf("estimateTokens(8 runes) = %d, want 2", got)
	}
}

func TestIndexVersion(t *testing.T) {
	a := indexVersion("e5", 768, 800, 100)
	if len(a) != 16 {
		t.Fatalf("indexVersion() length = %d, want 16", len(a))
	}
	if a != indexVersion("e5", 768, 800, 100) {
		t.Error("indexVersion() should be deterministic")
	}
	if a == indexVersion("e5", 768, 600, 100) {
		t.Error("indexVersion() should change with chunk size")
	}
}
