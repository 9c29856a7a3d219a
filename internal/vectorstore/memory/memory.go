package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/vectorstore"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// Records are immutable once stored; Put swaps in a fresh record, so a
// concurrent Search sees either the old or the new one in full.
type Storage struct {
	records sync.Map // document id -> *domain.EmbeddingRecord
	count   atomic.Int64
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Put(_ context.Context, rec domain.EmbeddingRecord) error {
	stored := &domain.EmbeddingRecord{
		DocumentID: rec.DocumentID,
		Vector:     append([]float64(nil), rec.Vector...),
		Content:    rec.Content,
	}
	if _, loaded := s.records.Swap(rec.DocumentID, stored); !loaded {
		s.count.Add(1)
	}
	return nil
}

func (s *Storage) Delete(_ context.Context, documentID string) error {
	if _, loaded := s.records.LoadAndDelete(documentID); loaded {
		s.count.Add(-1)
	}
	return nil
}

func (s *Storage) Get(_ context.Context, documentID string) (domain.EmbeddingRecord, bool, error) {
	v, ok := s.records.Load(documentID)
	if !ok {
		return domain.EmbeddingRecord{}, false, nil
	}
	rec := v.(*domain.EmbeddingRecord)
	out := *rec
	out.Vector = append([]float64(nil), rec.Vector...)
	return out, true, nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	var results []domain.SearchResult
	s.records.Range(func(_, v any) bool {
		rec := v.(*domain.EmbeddingRecord)
		results = append(results, domain.SearchResult{
			DocumentID: rec.DocumentID,
			Score:      vectorstore.Cosine(rec.Vector, vector),
			Content:    rec.Content,
		})
		return ctx.Err() == nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectorstore.Rank(results, topK), nil
}

func (s *Storage) Count(context.Context) (int, error) { return int(s.count.Load()), nil }
