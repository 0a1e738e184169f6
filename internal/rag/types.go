package rag

// Status classifies how a question was answered.
type Status string

const (
	// StatusAnswered means the model answered from retrieved context.
	StatusAnswered Status = "answered"
	// StatusNoContext means retrieval returned nothing to answer from.
	StatusNoContext Status = "no_context"
	// StatusIndexNotReady means no usable index exists yet.
	StatusIndexNotReady Status = "index_not_ready"
	// StatusBackendUnavailable means the embedding or completion backend failed.
	StatusBackendUnavailable Status = "backend_unavailable"
	// StatusUngrounded means the answer was replaced because it looked unsupported by the context.
	StatusUngrounded Status = "ungrounded"
)

// Fallback answers shown to the user instead of a generated one.
const (
	FallbackNoContext          = "I couldn't find anything in the indexed cases to answer this question."
	FallbackIndexNotReady      = "The search index is not ready yet. Run the build step (ragbot build-index) and try again."
	FallbackBackendUnavailable = "Sorry, the language model is unavailable right now. Please try again later."
	FallbackUngrounded         = "I can't answer that reliably from the indexed cases. Try rephrasing the question."
)

// AskRequest represents a RAG query request.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string `json:"question"`
	// K optionally overrides how many chunks are retrieved.
	K int `json:"k,omitempty"`
	// Debug enables debug mode, returning the retrieved chunks.
	Debug bool `json:"debug,omitempty"`
}

// AskResponse represents the response from a RAG query.
type AskResponse struct {
	// Answer is the final answer with citation links resolved, or a fallback message.
	Answer string `json:"answer"`
	// RawAnswer is the model output before grounding and citation processing.
	RawAnswer string `json:"raw_answer,omitempty"`
	// Status tells how the answer was produced.
	Status Status `json:"status"`
	// Sources is the manifest the citation numbers refer to ([1] is Sources[0]).
	Sources []string `json:"sources"`
	// InvalidCitations lists markers in the raw answer that point outside Sources.
	InvalidCitations []int `json:"invalid_citations,omitempty"`
	// Chunks contains the retrieved chunks when debug mode is enabled.
	Chunks []RetrievedChunk `json:"chunks,omitempty"`
}

// RetrievedChunk represents a retrieved chunk with scoring information.
type RetrievedChunk struct {
	// Rank is the 1-based rank in the retrieval results.
	Rank int `json:"rank"`
	// Position is the chunk's position in the index.
	Position int `json:"position"`
	// Distance is the squared L2 distance to the query.
	Distance float32 `json:"distance"`
	// SourceFile is the chunk file name.
	SourceFile string `json:"source_file"`
	// URL is the resolved source URL.
	URL string `json:"url"`
	// Text is the chunk text.
	Text string `json:"text"`
	// InPrompt reports whether the chunk fit in the prompt's context budget.
	InPrompt bool `json:"in_prompt"`
}
