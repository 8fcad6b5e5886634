package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-rag-qa/logging"
)

const defaultRetryBackoff = 500 * time.Millisecond

// BuildOptions tunes store construction.
type BuildOptions struct {
	// ChunkWidth is the maximum fragment width; DefaultChunkWidth when unset.
	ChunkWidth int
	// Concurrency bounds parallel embedding calls; 1 when unset.
	Concurrency int
	// Retries is the number of extra attempts per chunk after a failure.
	Retries      uint64
	RetryBackoff time.Duration
	// ForceRebuild ignores an existing artifact and rebuilds it.
	ForceRebuild bool
}

// Builder turns documents into a persisted VectorStore. Embedding failures
// are isolated per chunk: the chunk is dropped and the build goes on.
type Builder struct {
	embedder Embedder
	opts     BuildOptions
}

func NewBuilder(emb Embedder, opts BuildOptions) (*Builder, error) {
	if emb == nil {
		return nil, errors.New("rag: builder embedder is required")
	}
	if opts.ChunkWidth <= 0 {
		opts.ChunkWidth = DefaultChunkWidth
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Builder{embedder: emb, opts: opts}, nil
}

// BuildOrLoad returns the store at storePath when one exists. The artifact is
// not checked against paths; set ForceRebuild to discard it. Otherwise the
// store is built from paths and saved to storePath.
func (b *Builder) BuildOrLoad(ctx context.Context, paths []string, storePath string) (*VectorStore, error) {
	log := logging.FromContext(ctx).With(zap.String("store_path", storePath))
	if !b.opts.ForceRebuild {
		exists, err := StoreExists(storePath)
		if err != nil {
			return nil, err
		}
		if exists {
			log.Info("loading existing vector store")
			return LoadStore(ctx, storePath)
		}
	}
	log.Info("creating new vector store", zap.Strings("documents", paths))
	store, err := b.Build(ctx, paths)
	if err != nil {
		return nil, err
	}
	log.Info("saving vector store", zap.Int("entries", store.Len()))
	if err := SaveStore(ctx, storePath, store); err != nil {
		return nil, err
	}
	return store, nil
}

// Build reads, chunks and embeds the documents without touching disk
// beyond reading them.
func (b *Builder) Build(ctx context.Context, paths []string) (*VectorStore, error) {
	log := logging.FromContext(ctx)
	docs, err := ReadDocuments(paths)
	if err != nil {
		return nil, err
	}
	chunks := ChunkDocuments(docs, b.opts.ChunkWidth)
	log.Info("embedding text chunks", zap.Int("chunks", len(chunks)), zap.Int("concurrency", b.opts.Concurrency))

	vectors, err := b.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}
	store := NewVectorStore(paths, b.embedder.ModelName())
	dim, skipped := 0, 0
	for i, vec := range vectors {
		if vec == nil {
			skipped++
			continue
		}
		if !finite(vec) {
			log.Warn("dropping chunk with non-finite embedding values", zap.Int("chunk", i))
			skipped++
			continue
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			log.Warn("dropping chunk with mismatched embedding dimension",
				zap.Int("chunk", i), zap.Int("got", len(vec)), zap.Int("want", dim))
			skipped++
			continue
		}
		if err := store.Add(Entry{Chunk: chunks[i], Embedding: vec}); err != nil {
			return nil, fmt.Errorf("rag: add chunk %d: %w", i, err)
		}
	}
	log.Info("vector store built", zap.Int("entries", store.Len()), zap.Int("skipped", skipped))
	return store, nil
}

func finite(vec []float32) bool {
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// embedAll returns one slot per chunk; a failed chunk leaves its slot nil.
func (b *Builder) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	log := logging.FromContext(ctx)
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			vec, err := b.embedChunk(gctx, chunks[i])
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("error embedding chunk, skipping", zap.Int("chunk", i), zap.Error(err))
				return nil
			}
			log.Debug("embedded chunk", zap.Int("chunk", i), zap.Int("of", len(chunks)))
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (b *Builder) embedChunk(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	backoff := retry.WithMaxRetries(b.opts.Retries, retry.NewExponential(b.opts.RetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := b.embedder.Embed(ctx, text, RoleDocument)
		if err != nil {
			return retry.RetryableError(err)
		}
		if len(v) == 0 {
			return errors.New("provider returned an empty embedding")
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, &EmbeddingError{Role: RoleDocument, Err: err}
	}
	return vec, nil
}
