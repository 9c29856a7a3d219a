// Package retrieval selects stored document content relevant to a question.
package retrieval

import (
	"context"
	"errors"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/logger"
	"compliance-rag/internal/metrics"
)

const (
	DefaultTopK = 3
	// DefaultThreshold is a percentage: a result is relevant when score*100 exceeds it.
	DefaultThreshold = 5.0

	Placeholder = "No relevant information found for this document"
)

// Searcher ranks indexed documents against free text. *index.Index satisfies it.
type Searcher interface {
	Search(ctx context.Context, text string, topK int) ([]domain.SearchResult, error)
}

type Config struct {
	TopK int
	// Threshold is a percentage; nil means DefaultThreshold.
	Threshold *float64
}

type Engine struct {
	searcher  Searcher
	topK      int
	threshold float64
	metrics   *metrics.Metrics
}

func NewEngine(searcher Searcher, cfg Config, m *metrics.Metrics) (*Engine, error) {
	if searcher == nil {
		return nil, errors.New("retrieval: searcher is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	threshold := DefaultThreshold
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	if threshold < 0 {
		return nil, domain.InvalidArgument("retrieval.new_engine", "threshold must not be negative, got %v", threshold)
	}
	return &Engine{searcher: searcher, topK: cfg.TopK, threshold: threshold, metrics: m}, nil
}

// Query returns up to topK slots in descending similarity. Slots below the
// relevance threshold carry Placeholder instead of the document content.
// A non-positive topK uses the configured default.
func (e *Engine) Query(ctx context.Context, text string, topK int) ([]domain.Retrieved, error) {
	if topK <= 0 {
		topK = e.topK
	}
	results, err := e.searcher.Search(ctx, text, topK)
	if err != nil {
		logger.FromContext(ctx).Error("Retrieval failed", "kind", domain.KindOf(err), "error", err)
		return nil, err
	}
	out := make([]domain.Retrieved, 0, len(results))
	placeholders := 0
	for _, r := range results {
		slot := domain.Retrieved{DocumentID: r.DocumentID, Score: r.Score}
		if r.Score*100 > e.threshold {
			slot.Text = r.Content
			slot.Relevant = true
		} else {
			slot.Text = Placeholder
			placeholders++
		}
		out = append(out, slot)
	}
	e.metrics.Query(placeholders)
	return out, nil
}

// Texts returns the text of every slot, placeholders included.
func Texts(slots []domain.Retrieved) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Text
	}
	return out
}
