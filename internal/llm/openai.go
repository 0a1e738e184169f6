package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIBackend serves both chat completions and embeddings through the go-openai SDK.
// It is selected with LLM_PROVIDER=openai and talks to the same OpenAI-compatible server.
type OpenAIBackend struct {
	client         *openai.Client
	ChatModel      string
	EmbeddingModel string
	ExpectedSize   int
	ChatTimeout    time.Duration
	EmbedTimeout   time.Duration
	limiter        *rate.Limiter
}

// NewOpenAIBackend creates a backend for baseURL (without the /v1 suffix).
func NewOpenAIBackend(baseURL, apiKey, chatModel, embeddingModel string, expectedSize int) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return &OpenAIBackend{
		client:         openai.NewClientWithConfig(cfg),
		ChatModel:      chatModel,
		EmbeddingModel: embeddingModel,
		ExpectedSize:   expectedSize,
	}
}

// SetRateLimit paces embedding requests to at most rps per second.
func (b *OpenAIBackend) SetRateLimit(rps float64) {
	if rps <= 0 {
		b.limiter = nil
		return
	}
	b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// ChatWithMessages sends a chat completion request and returns the first choice's content.
func (b *OpenAIBackend) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	model := b.ChatModel
	if params.Model != "" {
		model = params.Model
	}
	req := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	ctx, cancel := withTimeout(ctx, b.ChatTimeout)
	defer cancel()

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
	})
	if err != nil {
		return "", sdkError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// EmbedTexts mirrors EmbeddingsClient.EmbedTexts: one entry per input, nil for unusable vectors.
func (b *OpenAIBackend) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}

	ctx, cancel := withTimeout(ctx, b.EmbedTimeout)
	defer cancel()

	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(b.EmbeddingModel),
		Input: texts,
	})
	if err != nil {
		return nil, sdkError(ctx, err)
	}

	conv := EmbeddingsClient{ExpectedSize: b.ExpectedSize}
	result := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			continue
		}
		raw := make([]float64, len(data.Embedding))
		for j := range data.Embedding {
			raw[j] = float64(data.Embedding[j])
		}
		result[data.Index] = conv.toVector(raw)
	}
	return result, nil
}

// ListModels returns the model IDs the server currently serves.
func (b *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	list, err := b.client.ListModels(ctx)
	if err != nil {
		return nil, sdkError(ctx, err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// sdkError maps go-openai errors onto the package's error values.
func sdkError(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return transportError(ctx, err)
}
