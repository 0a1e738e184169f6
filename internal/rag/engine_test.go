package rag_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"ragbot/internal/contextutil"
	"ragbot/internal/llm"
	"ragbot/internal/rag"
	rag_mocks "ragbot/internal/rag/mocks"
	"ragbot/internal/vectorstore"
	vectorstore_mocks "ragbot/internal/vectorstore/mocks"
)

const (
	urlL = "https://eora.ru/cases/lamoda"
	urlK = "https://eora.ru/cases/kazanexpress"
)

var scenarioResults = []vectorstore.SearchResult{
	{Record: vectorstore.Record{Text: "Lamoda case text", SourceFile: "lamoda_chunk0.txt", URL: urlL}, Position: 0, Distance: 0.1},
	{Record: vectorstore.Record{Text: "KazanExpress case text", SourceFile: "kzex_chunk0.txt", URL: urlK}, Position: 1, Distance: 0.4},
}

type engineFixture struct {
	embedder  *rag_mocks.MockEmbedder
	store     *vectorstore_mocks.MockVectorStore
	completer *rag_mocks.MockCompleter
	engine    rag.Engine
}

func newEngineFixture(t *testing.T, checker rag.GroundingChecker) *engineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &engineFixture{
		embedder:  rag_mocks.NewMockEmbedder(ctrl),
		store:     vectorstore_mocks.NewMockVectorStore(ctrl),
		completer: rag_mocks.NewMockCompleter(ctrl),
	}
	f.engine = rag.NewEngine(
		rag.NewRetriever(f.embedder, f.store, 2),
		rag.NewAssembler(0),
		f.completer,
		checker,
		rag.Options{Model: "local-model", Temperature: 0.2, MaxTokens: 512},
	)
	return f
}

func (f *engineFixture) expectRetrieval(results []vectorstore.SearchResult, err error) {
	f.embedder.EXPECT().EmbedTexts(gomock.Any(), []string{"What did you build for Lamoda?"}).Return([][]float32{{1, 0}}, nil)
	f.store.EXPECT().Search(gomock.Any(), []float32{1, 0}, 2).Return(results, err)
}

func TestEngine_Ask_Answered(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.expectRetrieval(scenarioResults, nil)
	f.completer.EXPECT().
		ChatWithMessages(gomock.Any(), gomock.Len(2), llm.ChatParams{Model: "local-model", Temperature: 0.2, MaxTokens: 512}).
		DoAndReturn(func(_ context.Context, messages []llm.Message, _ llm.ChatParams) (string, error) {
			assert.Contains(t, messages[1].Content, "[1] "+urlL)
			assert.Contains(t, messages[1].Content, "[2] "+urlK)
			return "We built a bot [1] and vision search [2]", nil
		})

	resp, err := f.engine.Ask(context.Background(), rag.AskRequest{Question: "  What did you build for Lamoda?  "})
	require.NoError(t, err)
	assert.Equal(t, rag.StatusAnswered, resp.Status)
	assert.Equal(t, `We built a bot <a href="`+urlL+`">[1]</a> and vision search <a href="`+urlK+`">[2]</a>`, resp.Answer)
	assert.Equal(t, "We built a bot [1] and vision search [2]", resp.RawAnswer)
	assert.Equal(t, []string{urlL, urlK}, resp.Sources)
	assert.Empty(t, resp.InvalidCitations)
	assert.Nil(t, resp.Chunks)
}

func TestEngine_Ask_WarnsWhenFirstChunkExceedsBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := rag_mocks.NewMockEmbedder(ctrl)
	store := vectorstore_mocks.NewMockVectorStore(ctrl)
	completer := rag_mocks.NewMockCompleter(ctrl)
	engine := rag.NewEngine(
		rag.NewRetriever(embedder, store, 2),
		rag.NewAssembler(10),
		completer,
		nil,
		rag.Options{Model: "local-model"},
	)

	long := strings.Repeat("Lamoda returns ", 10)
	embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).Return([][]float32{{1, 0}}, nil)
	store.EXPECT().Search(gomock.Any(), []float32{1, 0}, 2).Return([]vectorstore.SearchResult{
		{Record: vectorstore.Record{Text: long, SourceFile: "lamoda_chunk0.txt", URL: urlL}},
	}, nil)
	completer.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, messages []llm.Message, _ llm.ChatParams) (string, error) {
			assert.Contains(t, messages[1].Content, long)
			return "Lamoda returns were automated [1]", nil
		})

	var buf bytes.Buffer
	ctx := contextutil.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	resp, err := engine.Ask(ctx, rag.AskRequest{Question: "What did you build for Lamoda?"})
	require.NoError(t, err)
	assert.Equal(t, rag.StatusAnswered, resp.Status)

	logs := buf.String()
	assert.Contains(t, logs, "level=WARN")
	assert.Contains(t, logs, "first chunk exceeds the context budget")
	assert.Contains(t, logs, "context_chars=150")
	assert.Contains(t, logs, "source_file=lamoda_chunk0.txt")
}

func TestEngine_Ask_StripsInconsistentCitations(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.expectRetrieval(scenarioResults, nil)
	f.completer.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("Lamoda got a recommendation system [5].", nil)

	resp, err := f.engine.Ask(context.Background(), rag.AskRequest{Question: "What did you build for Lamoda?"})
	require.NoError(t, err)
	assert.Equal(t, rag.StatusAnswered, resp.Status)
	assert.Equal(t, "Lamoda got a recommendation system.", resp.Answer)
	assert.Equal(t, []int{5}, resp.InvalidCitations)
}

func TestEngine_Ask_Ungrounded(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.expectRetrieval(scenarioResults, nil)
	f.completer.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("I don't know the answer", nil)

	resp, err := f.engine.Ask(context.Background(), rag.AskRequest{Question: "What did you build for Lamoda?"})
	require.NoError(t, err)
	assert.Equal(t, rag.StatusUngrounded, resp.Status)
	assert.Equal(t, rag.FallbackUngrounded, resp.Answer)
	assert.Equal(t, "I don't know the answer", resp.RawAnswer)
}

func TestEngine_Ask_UsesInjectedChecker(t *testing.T) {
	ctrl := gomock.NewController(t)
	checker := rag_mocks.NewMockGroundingChecker(ctrl)
	checker.EXPECT().
		Ungrounded("Answer [1]", "Lamoda case text\n---\nKazanExpress case text").
		Return(true)

	f := newEngineFixture(t, checker)
	f.expectRetrieval(scenarioResults, nil)
	f.completer.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("Answer [1]", nil)

	resp, err := f.engine.Ask(context.Background(), rag.AskRequest{Question: "What did you build for Lamoda?"})
	require.NoError(t, err)
	assert.Equal(t, rag.StatusUngrounded, resp.Status)
}

func TestEngine_Ask_Fallbacks(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *engineFixture)
		wantStatus rag.Status
		wantAnswer string
	}{
		{
			name: "no index",
			setup: func(f *engineFixture) {
				f.expectRetrieval([]vectorstore.SearchResult{}, vectorstore.ErrIndexNotFound)
			},
			wantStatus: rag.StatusIndexNotReady,
			wantAnswer: rag.FallbackIndexNotReady,
		},
		{
			name: "empty retrieval",
			setup: func(f *engineFixture) {
				f.expectRetrieval([]vectorstore.SearchResult{}, nil)
			},
			wantStatus: rag.StatusNoContext,
			wantAnswer: rag.FallbackNoContext,
		},
		{
			name: "embedding backend down",
			setup: func(f *engineFixture) {
				f.embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).Return(nil, &llm.StatusError{StatusCode: 502, Body: "bad gateway"})
			},
			wantStatus: rag.StatusBackendUnavailable,
			wantAnswer: rag.FallbackBackendUnavailable,
		},
		{
			name: "completion timeout",
			setup: func(f *engineFixture) {
				f.expectRetrieval(scenarioResults, nil)
				f.completer.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("", fmt.Errorf("%w: deadline", llm.ErrTimeout))
			},
			wantStatus: rag.StatusBackendUnavailable,
			wantAnswer: rag.FallbackBackendUnavailable,
		},
		{
			name: "blank completion",
			setup: func(f *engineFixture) {
				f.expectRetrieval(scenarioResults, nil)
				f.completer.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("  \n", nil)
			},
			wantStatus: rag.StatusBackendUnavailable,
			wantAnswer: rag.FallbackBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, nil)
			tt.setup(f)

			resp, err := f.engine.Ask(context.Background(), rag.AskRequest{Question: "What did you build for Lamoda?"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantAnswer, resp.Answer)
			assert.NotNil(t, resp.Sources)
		})
	}
}

func TestEngine_Ask_EmptyQuestion(t *testing.T) {
	f := newEngineFixture(t, nil)

	_, err := f.engine.Ask(context.Background(), rag.AskRequest{Question: " \t "})
	assert.ErrorIs(t, err, rag.ErrEmptyQuestion)
}

func TestEngine_Ask_CancelledDuringCompletion(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.expectRetrieval(scenarioResults, nil)
	f.completer.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("", context.Canceled)

	_, err := f.engine.Ask(context.Background(), rag.AskRequest{Question: "What did you build for Lamoda?"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Ask_Debug(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.expectRetrieval(scenarioResults, nil)
	f.completer.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("Lamoda [1]", nil)

	resp, err := f.engine.Ask(context.Background(), rag.AskRequest{Question: "What did you build for Lamoda?", Debug: true})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 2)
	assert.Equal(t, 1, resp.Chunks[0].Rank)
	assert.Equal(t, "lamoda_chunk0.txt", resp.Chunks[0].SourceFile)
	assert.InDelta(t, 0.4, resp.Chunks[1].Distance, 1e-6)
	assert.True(t, resp.Chunks[1].InPrompt)
}
