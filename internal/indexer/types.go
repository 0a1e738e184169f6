package indexer

// Chunk is one fixed-size slice of a parsed document, as stored in the chunks directory.
type Chunk struct {
	ID         string // File stem, e.g. "site_cases_lamoda_chunk0"
	Text       string // Chunk text content
	SourceFile string // Chunk file name, e.g. "site_cases_lamoda_chunk0.txt"
}
