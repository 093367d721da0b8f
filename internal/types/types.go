package types

import (
	"context"
	"errors"
)

// ErrEmbedding wraps every failure to turn text into vectors, including a
// vector length that differs from the one already in use.
var ErrEmbedding = errors.New("embedding error")

// Embedder turns texts into fixed-length vectors. Implementations must
// return one vector per input in input order, and every vector produced by
// one instance must have the same length.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// TextExtractable is anything an uploaded document can be read from.
type TextExtractable interface {
	ExtractText(ctx context.Context) (string, error)
	Source() string
}
