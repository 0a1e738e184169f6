package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks ragbot/internal/rag Engine,Completer,Embedder,GroundingChecker

import (
	"context"
	"errors"
	"strings"

	"ragbot/internal/contextutil"
	"ragbot/internal/llm"
	"ragbot/internal/vectorstore"
)

// ErrEmptyQuestion is returned for a question that is blank after trimming.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Engine provides RAG (Retrieval-Augmented Generation) functionality.
type Engine interface {
	// Ask answers a question from the indexed corpus.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

// Completer generates a reply for a list of chat messages.
type Completer interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

// Options holds the generation parameters used for every answer.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Stop        []string
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	retriever *Retriever
	assembler *Assembler
	completer Completer
	checker   GroundingChecker
	opts      Options
}

// NewEngine creates a new RAG engine. A nil checker selects the heuristic one.
func NewEngine(retriever *Retriever, assembler *Assembler, completer Completer, checker GroundingChecker, opts Options) Engine {
	if checker == nil {
		checker = NewHeuristicChecker()
	}
	if assembler == nil {
		assembler = NewAssembler(0)
	}
	return &ragEngine{
		retriever: retriever,
		assembler: assembler,
		completer: completer,
		checker:   checker,
		opts:      opts,
	}
}

// Ask answers a question using RAG.
//
// Backend failures, a missing index and ungrounded answers are reported through
// AskResponse.Status with a fallback Answer. An error is returned only for an empty
// question or when ctx is cancelled.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AskResponse{}, ErrEmptyQuestion
	}

	logger.InfoContext(ctx, "RAG query started", "question_length", len(question), "k", req.K)

	results, err := e.retriever.Retrieve(ctx, question, req.K)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return AskResponse{}, err
		}
		if errors.Is(err, ErrIndexNotReady) {
			return fallback(StatusIndexNotReady, FallbackIndexNotReady), nil
		}
		return fallback(StatusBackendUnavailable, FallbackBackendUnavailable), nil
	}
	if len(results) == 0 {
		logger.InfoContext(ctx, "no search results found")
		return fallback(StatusNoContext, FallbackNoContext), nil
	}

	prompt := e.assembler.Assemble(question, results)
	logger.InfoContext(ctx, "prompt assembled",
		"chunks_kept", prompt.Kept,
		"chunks_dropped", prompt.Dropped,
		"sources", len(prompt.Manifest),
		"context_length", len(prompt.Context),
	)
	if prompt.OverBudget {
		logger.WarnContext(ctx, "first chunk exceeds the context budget, sending it whole",
			"context_chars", prompt.ContextChars,
			"source_file", results[0].SourceFile,
		)
	}

	raw, err := e.completer.ChatWithMessages(ctx, prompt.Messages, llm.ChatParams{
		Model:       e.opts.Model,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
		Stop:        e.opts.Stop,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return AskResponse{}, err
		}
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err, "timeout", errors.Is(err, llm.ErrTimeout))
		resp := fallback(StatusBackendUnavailable, FallbackBackendUnavailable)
		resp.Chunks = debugChunks(req.Debug, results, prompt.Kept)
		return resp, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		logger.ErrorContext(ctx, "LLM returned an empty answer")
		resp := fallback(StatusBackendUnavailable, FallbackBackendUnavailable)
		resp.Chunks = debugChunks(req.Debug, results, prompt.Kept)
		return resp, nil
	}

	logger.InfoContext(ctx, "received LLM response", "answer_length", len(raw))
	logger.DebugContext(ctx, "LLM answer", "answer", raw)

	resp := AskResponse{
		RawAnswer:        raw,
		Sources:          prompt.Manifest,
		InvalidCitations: InvalidCitations(raw, prompt.Manifest),
		Chunks:           debugChunks(req.Debug, results, prompt.Kept),
	}
	if len(resp.InvalidCitations) > 0 {
		logger.WarnContext(ctx, "answer cites unknown sources", "markers", resp.InvalidCitations, "sources", len(prompt.Manifest))
	}

	if e.checker.Ungrounded(raw, prompt.Context) {
		logger.WarnContext(ctx, "answer looks ungrounded, using fallback")
		resp.Status = StatusUngrounded
		resp.Answer = FallbackUngrounded
		return resp, nil
	}

	resp.Status = StatusAnswered
	resp.Answer = ResolveCitations(raw, prompt.Manifest)

	logger.InfoContext(ctx, "RAG query completed", "status", resp.Status, "sources", len(resp.Sources))
	return resp, nil
}

func fallback(status Status, answer string) AskResponse {
	return AskResponse{Answer: answer, Status: status, Sources: []string{}}
}

func debugChunks(enabled bool, results []vectorstore.SearchResult, kept int) []RetrievedChunk {
	if !enabled {
		return nil
	}
	chunks := make([]RetrievedChunk, len(results))
	for i, r := range results {
		chunks[i] = RetrievedChunk{
			Rank:       i + 1,
			Position:   r.Position,
			Distance:   r.Distance,
			SourceFile: r.SourceFile,
			URL:        r.URL,
			Text:       r.Text,
			InPrompt:   i < kept,
		}
	}
	return chunks
}
