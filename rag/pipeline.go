package rag

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"go-rag-qa/logging"
)

// Pipeline answers questions against one loaded store.
type Pipeline struct {
	store     *VectorStore
	retriever *Retriever
	answerer  *Answerer
	topK      int
}

// Result is the outcome of Ask. Answer holds the failure message when
// SynthesisErr is set.
type Result struct {
	Query        string
	Passages     []string
	Answer       string
	SynthesisErr error
}

func NewPipeline(store *VectorStore, retriever *Retriever, answerer *Answerer, topK int) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("rag: pipeline store is required")
	}
	if retriever == nil {
		return nil, errors.New("rag: pipeline retriever is required")
	}
	if answerer == nil {
		return nil, errors.New("rag: pipeline answerer is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Pipeline{store: store, retriever: retriever, answerer: answerer, topK: topK}, nil
}

func (p *Pipeline) Store() *VectorStore {
	return p.store
}

// Retrieve returns the k most relevant passages; k <= 0 uses the pipeline
// default.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = p.topK
	}
	return p.retriever.TopK(ctx, query, p.store, k)
}

func (p *Pipeline) Answer(ctx context.Context, query string, passages []string) string {
	return p.answerer.Answer(ctx, query, passages)
}

// Ask retrieves passages and synthesizes an answer. Retrieval errors are
// returned; synthesis errors are reported in the result.
func (p *Pipeline) Ask(ctx context.Context, query string, k int) (*Result, error) {
	passages, err := p.Retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}
	res := &Result{Query: query, Passages: passages}
	text, err := p.answerer.Synthesize(ctx, query, passages)
	if err != nil {
		logging.FromContext(ctx).Error("answer generation failed", zap.Error(err))
		res.SynthesisErr = err
		res.Answer = FailureMessage(err)
		return res, nil
	}
	res.Answer = text
	return res, nil
}
