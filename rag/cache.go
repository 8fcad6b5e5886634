package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"go-rag-qa/logging"
)

// WithCache wraps e with an expiring LRU keyed by model, role and text.
// A non-positive size or ttl returns e unchanged.
func WithCache(e Embedder, size int, ttl time.Duration) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &cachedEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string, role Role) ([]float32, error) {
	key := cacheKey(c.next.ModelName(), role, text)
	if cached, ok := c.cache.Get(key); ok {
		logging.FromContext(ctx).Debug("embedding cache hit", zap.String("role", string(role)))
		return slices.Clone(cached), nil
	}
	vec, err := c.next.Embed(ctx, text, role)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, slices.Clone(vec))
	return vec, nil
}

func (c *cachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

func cacheKey(model string, role Role, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + string(role) + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
