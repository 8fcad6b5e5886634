package rag

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"go-rag-qa/logging"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	return logging.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func newTestBuilder(t *testing.T, emb Embedder, opts BuildOptions) *Builder {
	t.Helper()
	b, err := NewBuilder(emb, opts)
	require.NoError(t, err)
	return b
}

func TestNewBuilder(t *testing.T) {
	t.Run("ShouldRequireEmbedder", func(t *testing.T) {
		_, err := NewBuilder(nil, BuildOptions{})
		require.Error(t, err)
	})
	t.Run("ShouldApplyDefaults", func(t *testing.T) {
		b := newTestBuilder(t, NewSimpleEmbedder(), BuildOptions{})
		assert.Equal(t, DefaultChunkWidth, b.opts.ChunkWidth)
		assert.Equal(t, 1, b.opts.Concurrency)
		assert.Equal(t, defaultRetryBackoff, b.opts.RetryBackoff)
	})
}

func TestBuilder_BuildOrLoad(t *testing.T) {
	for _, ext := range []string{".json", ".db"} {
		t.Run("ShouldBeIdempotent"+ext, func(t *testing.T) {
			ctx := testContext(t)
			dir := t.TempDir()
			docs := []string{
				writeDoc(t, dir, "sky.md", "The sky is blue."),
				writeDoc(t, dir, "grass.md", "Grass is green."),
			}
			storePath := filepath.Join(dir, "store"+ext)
			emb := &stubEmbedder{}
			b := newTestBuilder(t, emb, BuildOptions{})

			built, err := b.BuildOrLoad(ctx, docs, storePath)
			require.NoError(t, err)
			require.Equal(t, 2, built.Len())
			assert.EqualValues(t, 2, emb.calls.Load())

			first, err := b.BuildOrLoad(ctx, docs, storePath)
			require.NoError(t, err)
			second, err := b.BuildOrLoad(ctx, docs, storePath)
			require.NoError(t, err)
			assert.EqualValues(t, 2, emb.calls.Load(), "loading must not call the provider")

			for _, s := range []*VectorStore{first, second} {
				assert.Equal(t, built.Entries(), s.Entries())
				assert.Equal(t, built.Sources(), s.Sources())
				assert.Equal(t, built.Model(), s.Model())
				assert.Equal(t, built.Dimension(), s.Dimension())
			}
		})
	}
	t.Run("ShouldDropSingleFailedChunk", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		docs := []string{
			writeDoc(t, dir, "a.md", "alpha"),
			writeDoc(t, dir, "b.md", "bravo"),
			writeDoc(t, dir, "c.md", "charlie"),
		}
		emb := &stubEmbedder{fn: func(text string, _ Role) ([]float32, error) {
			if text == "bravo" {
				return nil, errProviderDown
			}
			return []float32{float32(len(text)), 1}, nil
		}}
		b := newTestBuilder(t, emb, BuildOptions{Retries: 1, RetryBackoff: time.Millisecond})
		storePath := filepath.Join(dir, "store.json")

		store, err := b.BuildOrLoad(ctx, docs, storePath)
		require.NoError(t, err)
		require.Equal(t, 2, store.Len())
		assert.Equal(t, []string{"alpha", "charlie"}, chunkTexts(store))
		assert.EqualValues(t, 4, emb.calls.Load(), "failed chunk is retried once")

		loaded, err := LoadStore(ctx, storePath)
		require.NoError(t, err)
		assert.Equal(t, store.Entries(), loaded.Entries())
	})
	t.Run("ShouldPersistEmptyStoreWhenEveryChunkFails", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		docs := []string{writeDoc(t, dir, "a.md", "one two three")}
		storePath := filepath.Join(dir, "store.json")
		b := newTestBuilder(t, failingEmbedder(), BuildOptions{})

		store, err := b.BuildOrLoad(ctx, docs, storePath)
		require.NoError(t, err)
		assert.Zero(t, store.Len())

		exists, err := StoreExists(storePath)
		require.NoError(t, err)
		assert.True(t, exists)
		loaded, err := LoadStore(ctx, storePath)
		require.NoError(t, err)
		assert.Zero(t, loaded.Len())
	})
	t.Run("ShouldAbortOnMissingDocument", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		docs := []string{writeDoc(t, dir, "a.md", "alpha"), filepath.Join(dir, "gone.md")}
		storePath := filepath.Join(dir, "store.json")
		emb := &stubEmbedder{}
		b := newTestBuilder(t, emb, BuildOptions{})

		_, err := b.BuildOrLoad(ctx, docs, storePath)
		require.ErrorIs(t, err, ErrDocumentNotFound)
		assert.Zero(t, emb.calls.Load())
		exists, err := StoreExists(storePath)
		require.NoError(t, err)
		assert.False(t, exists)
	})
	t.Run("ShouldLoadExistingStoreWithoutCheckingDocuments", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		storePath := filepath.Join(dir, "store.json")
		seed := NewVectorStore([]string{"old.md"}, "stub-embedding")
		require.NoError(t, seed.Add(Entry{Chunk: "stale", Embedding: []float32{1, 2}}))
		require.NoError(t, SaveStore(ctx, storePath, seed))

		emb := &stubEmbedder{}
		b := newTestBuilder(t, emb, BuildOptions{})
		store, err := b.BuildOrLoad(ctx, []string{filepath.Join(dir, "does-not-exist.md")}, storePath)
		require.NoError(t, err)
		assert.Equal(t, []string{"stale"}, chunkTexts(store))
		assert.Equal(t, []string{"old.md"}, store.Sources())
		assert.Zero(t, emb.calls.Load())
	})
	t.Run("ShouldRebuildWhenForced", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		storePath := filepath.Join(dir, "store.json")
		seed := NewVectorStore(nil, "")
		require.NoError(t, seed.Add(Entry{Chunk: "stale", Embedding: []float32{1, 2}}))
		require.NoError(t, SaveStore(ctx, storePath, seed))

		docs := []string{writeDoc(t, dir, "a.md", "fresh")}
		emb := &stubEmbedder{}
		b := newTestBuilder(t, emb, BuildOptions{ForceRebuild: true})
		store, err := b.BuildOrLoad(ctx, docs, storePath)
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, chunkTexts(store))

		loaded, err := LoadStore(ctx, storePath)
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, chunkTexts(loaded))
	})
}

func TestBuilder_Build(t *testing.T) {
	t.Run("ShouldPreserveChunkOrderWithWorkerPool", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		words := make([]string, 40)
		for i := range words {
			words[i] = fmt.Sprintf("w%02d", i)
		}
		docs := []string{writeDoc(t, dir, "a.md", strings.Join(words, " "))}
		emb := &stubEmbedder{fn: func(text string, _ Role) ([]float32, error) {
			time.Sleep(time.Duration(len(text)%3) * time.Millisecond)
			return []float32{float32(len(text))}, nil
		}}
		b := newTestBuilder(t, emb, BuildOptions{ChunkWidth: 3, Concurrency: 8})

		store, err := b.Build(ctx, docs)
		require.NoError(t, err)
		assert.Equal(t, words, chunkTexts(store))
		assert.Equal(t, docs, store.Sources())
		assert.Equal(t, "stub-embedding", store.Model())
	})
	t.Run("ShouldRecoverAfterRetry", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		docs := []string{writeDoc(t, dir, "a.md", "flaky")}
		attempts := 0
		emb := &stubEmbedder{fn: func(string, Role) ([]float32, error) {
			attempts++
			if attempts == 1 {
				return nil, errProviderDown
			}
			return []float32{1, 2, 3}, nil
		}}
		b := newTestBuilder(t, emb, BuildOptions{Retries: 2, RetryBackoff: time.Millisecond})

		store, err := b.Build(ctx, docs)
		require.NoError(t, err)
		assert.Equal(t, 1, store.Len())
		assert.Equal(t, 2, attempts)
	})
	t.Run("ShouldDropMismatchedDimensions", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		docs := []string{writeDoc(t, dir, "a.md", "aa b cc")}
		emb := &stubEmbedder{vectors: map[string][]float32{
			"aa": {1, 2},
			"b":  {1, 2, 3},
			"cc": {3, 4},
		}}
		b := newTestBuilder(t, emb, BuildOptions{ChunkWidth: 1})

		store, err := b.Build(ctx, docs)
		require.NoError(t, err)
		assert.Equal(t, []string{"aa", "cc"}, chunkTexts(store))
		assert.Equal(t, 2, store.Dimension())
	})
	t.Run("ShouldDropNonFiniteEmbeddings", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		docs := []string{writeDoc(t, dir, "a.md", "aa b cc d")}
		nan := float32(math.NaN())
		inf := float32(math.Inf(1))
		emb := &stubEmbedder{vectors: map[string][]float32{
			"aa": {nan, 1},
			"b":  {1, 2},
			"cc": {inf, 1},
			"d":  {3, 4},
		}}
		storePath := filepath.Join(dir, "store.json")
		b := newTestBuilder(t, emb, BuildOptions{ChunkWidth: 1})

		store, err := b.BuildOrLoad(ctx, docs, storePath)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "d"}, chunkTexts(store))

		loaded, err := LoadStore(ctx, storePath)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "d"}, chunkTexts(loaded))
	})
	t.Run("ShouldDropEmptyEmbeddings", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		docs := []string{writeDoc(t, dir, "a.md", "x")}
		emb := &stubEmbedder{fn: func(string, Role) ([]float32, error) { return nil, nil }}
		b := newTestBuilder(t, emb, BuildOptions{})

		store, err := b.Build(ctx, docs)
		require.NoError(t, err)
		assert.Zero(t, store.Len())
	})
	t.Run("ShouldEmbedWithDocumentRole", func(t *testing.T) {
		ctx := testContext(t)
		dir := t.TempDir()
		docs := []string{writeDoc(t, dir, "a.md", "x")}
		emb := &stubEmbedder{}
		_, err := newTestBuilder(t, emb, BuildOptions{}).Build(ctx, docs)
		require.NoError(t, err)
		assert.Equal(t, []Role{RoleDocument}, emb.roles)
	})
	t.Run("ShouldStopOnCanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(testContext(t))
		cancel()
		dir := t.TempDir()
		docs := []string{writeDoc(t, dir, "a.md", "one two")}
		b := newTestBuilder(t, &stubEmbedder{}, BuildOptions{ChunkWidth: 3})

		_, err := b.Build(ctx, docs)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func chunkTexts(store *VectorStore) []string {
	entries := store.Entries()
	out := make([]string, len(entries))
	for i := range entries {
		out[i] = entries[i].Chunk
	}
	return out
}
