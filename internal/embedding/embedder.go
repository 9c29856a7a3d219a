// Package embedding turns text into fixed-length vectors.
package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// The same input must always produce the same vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}
