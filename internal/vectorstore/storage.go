// Package vectorstore holds one embedding per document and ranks them by
// cosine similarity.
package vectorstore

import (
	"cmp"
	"context"
	"math"
	"slices"

	"compliance-rag/internal/domain"
)

// Storage persists vectors and supports similarity search. Put replaces any
// existing record with the same document id.
type Storage interface {
	Put(ctx context.Context, rec domain.EmbeddingRecord) error
	Delete(ctx context.Context, documentID string) error
	Get(ctx context.Context, documentID string) (domain.EmbeddingRecord, bool, error)
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank orders results by score descending, then by document id ascending,
// and truncates to topK.
func Rank(results []domain.SearchResult, topK int) []domain.SearchResult {
	slices.SortFunc(results, func(a, b domain.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.DocumentID, b.DocumentID)
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
