package rag

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("rag: document not found")
	ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")
	ErrInvalidTopK       = errors.New("rag: top k must be greater than zero")
)

// EmbeddingError reports a failed call to the embedding provider.
type EmbeddingError struct {
	Role Role
	Err  error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("rag: embed %s: %v", e.Role, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// SynthesisError reports a failed call to the answer generator.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("rag: synthesize answer: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
