// Package provider builds the embedding and generation backends named in
// the configuration.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-rag-qa/config"
	"go-rag-qa/rag"
)

// ErrUnavailable is returned when a hosted provider has no API key.
var ErrUnavailable = errors.New("provider: api key is not configured")

type EmbedderFactory func(ctx context.Context, cfg config.ProviderConfig) (rag.Embedder, error)

type GeneratorFactory func(ctx context.Context, cfg config.ProviderConfig) (rag.Generator, error)

var (
	embedders  = map[string]EmbedderFactory{}
	generators = map[string]GeneratorFactory{}
)

func RegisterEmbedder(name string, factory EmbedderFactory) {
	key := normalize(name)
	if key == "" || factory == nil {
		return
	}
	embedders[key] = factory
}

func RegisterGenerator(name string, factory GeneratorFactory) {
	key := normalize(name)
	if key == "" || factory == nil {
		return
	}
	generators[key] = factory
}

func NewEmbedder(ctx context.Context, cfg config.ProviderConfig) (rag.Embedder, error) {
	key := normalize(cfg.Provider)
	if key == "" {
		return nil, errors.New("provider: embedder.provider is required")
	}
	factory := embedders[key]
	if factory == nil {
		return nil, fmt.Errorf("provider: unsupported embedding provider: %s", cfg.Provider)
	}
	return factory(ctx, cfg)
}

func NewGenerator(ctx context.Context, cfg config.ProviderConfig) (rag.Generator, error) {
	key := normalize(cfg.Provider)
	if key == "" {
		return nil, errors.New("provider: generator.provider is required")
	}
	factory := generators[key]
	if factory == nil {
		return nil, fmt.Errorf("provider: unsupported generation provider: %s", cfg.Provider)
	}
	return factory(ctx, cfg)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// withTimeout bounds one provider call. A zero timeout leaves ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func modelOrDefault(model, fallback string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return fallback
}

func init() {
	RegisterEmbedder(config.ProviderSimple, func(context.Context, config.ProviderConfig) (rag.Embedder, error) {
		return rag.NewSimpleEmbedder(), nil
	})
}
