package rag

import "context"

// Embedder maps text to a fixed-dimension vector. Implementations may fail
// per call.
type Embedder interface {
	Embed(ctx context.Context, text string, role Role) ([]float32, error)
	ModelName() string
}

// SimpleEmbedder is a deterministic offline embedder based on rune counts.
// It needs no credentials and is meant for local runs and tests.
type SimpleEmbedder struct{}

func NewSimpleEmbedder() *SimpleEmbedder {
	return &SimpleEmbedder{}
}

func (e *SimpleEmbedder) ModelName() string {
	return "simple-4d"
}

func (e *SimpleEmbedder) Embed(_ context.Context, text string, _ Role) ([]float32, error) {
	// length, vowels, consonants, spaces
	var length, vowels, consonants, spaces float32
	for _, r := range text {
		length++
		switch {
		case r == 'a' || r == 'e' || r == 'i' || r == 'o' || r == 'u' ||
			r == 'A' || r == 'E' || r == 'I' || r == 'O' || r == 'U':
			vowels++
		case r == ' ':
			spaces++
		default:
			consonants++
		}
	}
	return []float32{length, vowels, consonants, spaces}, nil
}
