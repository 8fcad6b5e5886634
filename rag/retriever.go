package rag

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"go-rag-qa/logging"
)

// DefaultTopK is the number of passages handed to the answer synthesizer.
const DefaultTopK = 3

// Retriever embeds a query and ranks the stored chunks against it. Unlike a
// build, a retrieval fails fast: a provider error is returned as is.
type Retriever struct {
	embedder   Embedder
	similarity SimilarityFunc
}

type RetrieverOption func(*Retriever)

// WithSimilarity replaces the default DotProduct scoring.
func WithSimilarity(fn SimilarityFunc) RetrieverOption {
	return func(r *Retriever) {
		if fn != nil {
			r.similarity = fn
		}
	}
}

func NewRetriever(emb Embedder, opts ...RetrieverOption) (*Retriever, error) {
	if emb == nil {
		return nil, errors.New("rag: retriever embedder is required")
	}
	r := &Retriever{embedder: emb, similarity: DotProduct}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Search returns up to k scored entries, most relevant first. An empty store
// yields no results without calling the embedding provider.
func (r *Retriever) Search(ctx context.Context, query string, store *VectorStore, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidTopK
	}
	if store == nil {
		return nil, errors.New("rag: retriever store is required")
	}
	if store.Len() == 0 {
		return []SearchResult{}, nil
	}
	vec, err := r.embedder.Embed(ctx, query, RoleQuery)
	if err != nil {
		return nil, &EmbeddingError{Role: RoleQuery, Err: err}
	}
	results, err := store.Search(vec, k, r.similarity)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("retrieved passages",
		zap.Int("results", len(results)), zap.Int("top_k", k), zap.Int("entries", store.Len()))
	return results, nil
}

// TopK returns the chunk texts of the k best entries.
func (r *Retriever) TopK(ctx context.Context, query string, store *VectorStore, k int) ([]string, error) {
	results, err := r.Search(ctx, query, store, k)
	if err != nil {
		return nil, err
	}
	passages := make([]string, len(results))
	for i := range results {
		passages[i] = results[i].Entry.Chunk
	}
	return passages, nil
}
