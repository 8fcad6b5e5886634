package rag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetriever(t *testing.T) {
	_, err := NewRetriever(nil)
	require.Error(t, err)
}

func TestRetriever_TopK(t *testing.T) {
	store := newTestStore(t,
		Entry{Chunk: "The sky is blue.", Embedding: []float32{1, 0, 0}},
		Entry{Chunk: "Grass is green.", Embedding: []float32{0, 1, 0}},
		Entry{Chunk: "Snow is white.", Embedding: []float32{0, 0, 1}},
	)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"What color is the sky?": {0.9, 0.2, 0.1},
	}}
	r, err := NewRetriever(emb)
	require.NoError(t, err)

	t.Run("ShouldReturnMostSimilarFirst", func(t *testing.T) {
		got, err := r.TopK(testContext(t), "What color is the sky?", store, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"The sky is blue.", "Grass is green."}, got)
	})
	t.Run("ShouldReturnAllWhenKExceedsStore", func(t *testing.T) {
		got, err := r.TopK(testContext(t), "What color is the sky?", store, 10)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
	t.Run("ShouldBeDeterministic", func(t *testing.T) {
		first, err := r.TopK(testContext(t), "What color is the sky?", store, 3)
		require.NoError(t, err)
		for range 5 {
			again, err := r.TopK(testContext(t), "What color is the sky?", store, 3)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})
	t.Run("ShouldRejectNonPositiveK", func(t *testing.T) {
		_, err := r.TopK(testContext(t), "q", store, 0)
		require.ErrorIs(t, err, ErrInvalidTopK)
	})
	t.Run("ShouldRequireStore", func(t *testing.T) {
		_, err := r.TopK(testContext(t), "q", nil, 1)
		require.Error(t, err)
	})
	t.Run("ShouldEmbedWithQueryRole", func(t *testing.T) {
		e := &stubEmbedder{fn: func(string, Role) ([]float32, error) { return []float32{1, 0, 0}, nil }}
		rr, err := NewRetriever(e)
		require.NoError(t, err)
		_, err = rr.TopK(testContext(t), "q", store, 1)
		require.NoError(t, err)
		assert.Equal(t, []Role{RoleQuery}, e.roles)
	})
}

func TestRetriever_Failures(t *testing.T) {
	t.Run("ShouldPropagateQueryEmbeddingError", func(t *testing.T) {
		store := newTestStore(t, Entry{Chunk: "a", Embedding: []float32{1}})
		r, err := NewRetriever(failingEmbedder())
		require.NoError(t, err)

		_, err = r.TopK(testContext(t), "q", store, 1)
		var embErr *EmbeddingError
		require.True(t, errors.As(err, &embErr))
		assert.Equal(t, RoleQuery, embErr.Role)
		assert.ErrorIs(t, err, errProviderDown)
	})
	t.Run("ShouldReturnEmptyForEmptyStoreWithoutEmbedding", func(t *testing.T) {
		emb := failingEmbedder()
		r, err := NewRetriever(emb)
		require.NoError(t, err)

		got, err := r.TopK(testContext(t), "anything", NewVectorStore(nil, ""), 3)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NotNil(t, got)
		assert.Zero(t, emb.calls.Load())
	})
	t.Run("ShouldRejectQueryOfWrongDimension", func(t *testing.T) {
		store := newTestStore(t, Entry{Chunk: "a", Embedding: []float32{1, 2}})
		r, err := NewRetriever(&stubEmbedder{fn: func(string, Role) ([]float32, error) {
			return []float32{1, 2, 3}, nil
		}})
		require.NoError(t, err)
		_, err = r.TopK(testContext(t), "q", store, 1)
		require.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestRetriever_Similarity(t *testing.T) {
	store := newTestStore(t,
		Entry{Chunk: "aligned", Embedding: []float32{1, 0}},
		Entry{Chunk: "dense", Embedding: []float32{4, 4}},
	)
	emb := &stubEmbedder{fn: func(string, Role) ([]float32, error) { return []float32{1, 0}, nil }}

	t.Run("ShouldUseDotProductByDefault", func(t *testing.T) {
		r, err := NewRetriever(emb)
		require.NoError(t, err)
		res, err := r.Search(testContext(t), "q", store, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"dense", "aligned"}, chunksOf(res))
		assert.InDelta(t, 4.0, res[0].Score, 1e-9)
	})
	t.Run("ShouldUseConfiguredSimilarity", func(t *testing.T) {
		r, err := NewRetriever(emb, WithSimilarity(Cosine))
		require.NoError(t, err)
		res, err := r.Search(testContext(t), "q", store, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"aligned", "dense"}, chunksOf(res))
	})
	t.Run("ShouldIgnoreNilSimilarity", func(t *testing.T) {
		r, err := NewRetriever(emb, WithSimilarity(nil))
		require.NoError(t, err)
		res, err := r.Search(testContext(t), "q", store, 1)
		require.NoError(t, err)
		assert.Equal(t, "dense", res[0].Entry.Chunk)
	})
}
