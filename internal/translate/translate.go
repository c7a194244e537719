// Package translate turns English sentences into Japanese through a
// pluggable backend.
package translate

import (
	"context"
	"errors"
	"fmt"
)

// ErrLengthMismatch means a backend returned a different number of
// translations than it was given sentences.
var ErrLengthMismatch = errors.New("translation count does not match input")

// Translator translates a batch of sentences. The result has the same length
// and order as the input.
type Translator interface {
	TranslateBatch(ctx context.Context, sentences []string) ([]string, error)
}

// Func adapts a plain function to Translator.
type Func func(ctx context.Context, sentences []string) ([]string, error)

func (f Func) TranslateBatch(ctx context.Context, sentences []string) ([]string, error) {
	return f(ctx, sentences)
}

// UntranslatedPrefix marks placeholder output from Stub.
const UntranslatedPrefix = "【未翻訳】"

// Stub returns each sentence prefixed with UntranslatedPrefix. It lets the
// pipeline run without credentials; a later backfill replaces the text.
type Stub struct{}

func (Stub) TranslateBatch(_ context.Context, sentences []string) ([]string, error) {
	out := make([]string, len(sentences))
	for i, s := range sentences {
		out[i] = UntranslatedPrefix + s
	}
	return out, nil
}

func checkLength(in, out []string) error {
	if len(in) != len(out) {
		return fmt.Errorf("%w: sent %d, got %d", ErrLengthMismatch, len(in), len(out))
	}
	return nil
}
