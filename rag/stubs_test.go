package rag

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

var errProviderDown = errors.New("provider unavailable")

// stubEmbedder answers from a table and falls back to fn, counting calls.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fn      func(text string, role Role) ([]float32, error)
	calls   atomic.Int64
	roles   []Role
}

func (s *stubEmbedder) Embed(_ context.Context, text string, role Role) ([]float32, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.roles = append(s.roles, role)
	s.mu.Unlock()
	if v, ok := s.vectors[text]; ok {
		return slices.Clone(v), nil
	}
	if s.fn != nil {
		return s.fn(text, role)
	}
	return []float32{float32(len(text)), 1}, nil
}

func (s *stubEmbedder) ModelName() string {
	return "stub-embedding"
}

func failingEmbedder() *stubEmbedder {
	return &stubEmbedder{fn: func(string, Role) ([]float32, error) {
		return nil, errProviderDown
	}}
}

// stubGenerator records prompts. When honorFallback is set it answers with
// FallbackAnswer if the prompt carries no context.
type stubGenerator struct {
	prompts       []string
	reply         string
	err           error
	honorFallback bool
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if g.honorFallback && promptContext(prompt) == "" {
		return FallbackAnswer, nil
	}
	return g.reply, nil
}

func promptContext(prompt string) string {
	_, rest, ok := strings.Cut(prompt, "--- CONTEXT START ---")
	if !ok {
		return ""
	}
	ctx, _, _ := strings.Cut(rest, "--- CONTEXT END ---")
	return strings.TrimSpace(ctx)
}
