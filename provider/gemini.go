package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"go-rag-qa/config"
	"go-rag-qa/rag"
)

const (
	defaultGeminiEmbedModel    = "gemini-embedding-001"
	defaultGeminiGenerateModel = "gemini-2.5-flash"
)

// Gemini embedding task types for each side of retrieval.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

func newGeminiClient(ctx context.Context, cfg config.ProviderConfig) (*genai.Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrUnavailable
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("provider: gemini client: %w", err)
	}
	return client, nil
}

type geminiEmbedder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func newGeminiEmbedder(ctx context.Context, cfg config.ProviderConfig) (rag.Embedder, error) {
	client, err := newGeminiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &geminiEmbedder{
		client:  client,
		model:   modelOrDefault(cfg.Model, defaultGeminiEmbedModel),
		timeout: cfg.Timeout,
	}, nil
}

func (e *geminiEmbedder) ModelName() string {
	return e.model
}

func (e *geminiEmbedder) Embed(ctx context.Context, text string, role rag.Role) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType: geminiTaskType(role),
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini: no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

func geminiTaskType(role rag.Role) string {
	if role == rag.RoleQuery {
		return taskRetrievalQuery
	}
	return taskRetrievalDocument
}

type geminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func newGeminiGenerator(ctx context.Context, cfg config.ProviderConfig) (rag.Generator, error) {
	client, err := newGeminiClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &geminiGenerator{
		client:  client,
		model:   modelOrDefault(cfg.Model, defaultGeminiGenerateModel),
		timeout: cfg.Timeout,
	}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func init() {
	RegisterEmbedder(config.ProviderGemini, newGeminiEmbedder)
	RegisterGenerator(config.ProviderGemini, newGeminiGenerator)
}
