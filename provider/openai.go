package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"go-rag-qa/config"
	"go-rag-qa/rag"
)

const (
	defaultOpenAIEmbedModel    = "text-embedding-3-small"
	defaultOpenAIGenerateModel = "gpt-4o-mini"
)

func newOpenAIClient(cfg config.ProviderConfig) (openai.Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return openai.Client{}, ErrUnavailable
	}
	// Retries are owned by the builder.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return openai.NewClient(opts...), nil
}

type openAIEmbedder struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func newOpenAIEmbedder(_ context.Context, cfg config.ProviderConfig) (rag.Embedder, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return &openAIEmbedder{
		client:  client,
		model:   modelOrDefault(cfg.Model, defaultOpenAIEmbedModel),
		timeout: cfg.Timeout,
	}, nil
}

func (e *openAIEmbedder) ModelName() string {
	return e.model
}

// Embed ignores role; OpenAI embeddings are symmetric.
func (e *openAIEmbedder) Embed(ctx context.Context, text string, _ rag.Role) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai: response has no embeddings")
	}
	values := resp.Data[0].Embedding
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

type openAIGenerator struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func newOpenAIGenerator(_ context.Context, cfg config.ProviderConfig) (rag.Generator, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return &openAIGenerator{
		client:  client,
		model:   modelOrDefault(cfg.Model, defaultOpenAIGenerateModel),
		timeout: cfg.Timeout,
	}, nil
}

func (g *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func init() {
	RegisterEmbedder(config.ProviderOpenAI, newOpenAIEmbedder)
	RegisterGenerator(config.ProviderOpenAI, newOpenAIGenerator)
}
