package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"go-rag-qa/logging"
)

// FallbackAnswer is the sentence the generator is told to emit when the
// passages do not contain the answer.
const FallbackAnswer = "I could not find an answer in the provided text."

const DefaultContextLabel = "the provided documents"

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// BuildPrompt restricts the generator to passages as its only evidence and
// forwards query.
func BuildPrompt(label, query string, passages []string) string {
	if strings.TrimSpace(label) == "" {
		label = DefaultContextLabel
	}
	return fmt.Sprintf(`Here is the context from %s:
--- CONTEXT START ---
%s
--- CONTEXT END ---

Based ONLY on the context provided, please answer the following question.
Do not use any other information. If the answer is not found in the context, say %q

Question: %s
Answer:
`, label, strings.Join(passages, "\n\n"), FallbackAnswer, query)
}

// Answerer turns a query and its retrieved passages into an answer.
type Answerer struct {
	gen   Generator
	label string
}

func NewAnswerer(gen Generator, label string) (*Answerer, error) {
	if gen == nil {
		return nil, errors.New("rag: answer generator is required")
	}
	return &Answerer{gen: gen, label: label}, nil
}

// Synthesize returns the generated answer or a *SynthesisError.
func (a *Answerer) Synthesize(ctx context.Context, query string, passages []string) (string, error) {
	text, err := a.gen.Generate(ctx, BuildPrompt(a.label, query, passages))
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	return text, nil
}

// Answer is Synthesize with failures rendered as a message for the user.
func (a *Answerer) Answer(ctx context.Context, query string, passages []string) string {
	text, err := a.Synthesize(ctx, query, passages)
	if err != nil {
		logging.FromContext(ctx).Error("answer generation failed", zap.Error(err))
		return FailureMessage(err)
	}
	return text
}

// FailureMessage renders a synthesis failure for display.
func FailureMessage(err error) string {
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) {
		err = synthErr.Err
	}
	return fmt.Sprintf("An error occurred while generating the answer: %v", err)
}
