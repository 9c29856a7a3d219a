package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/embedding/hashing"
	"compliance-rag/internal/index"
	"compliance-rag/internal/vectorstore/memory"
)

type staticSearcher struct {
	results []domain.SearchResult
	err     error
	topK    int
}

func (s *staticSearcher) Search(_ context.Context, _ string, topK int) ([]domain.SearchResult, error) {
	s.topK = topK
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > topK {
		return s.results[:topK], nil
	}
	return s.results, nil
}

func TestEngineQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldReplaceBelowThresholdWithPlaceholder", func(t *testing.T) {
		s := &staticSearcher{results: []domain.SearchResult{
			{DocumentID: "hit", Score: 0.06, Content: "relevant text"},
			{DocumentID: "miss", Score: 0.04, Content: "irrelevant text"},
		}}
		e, err := NewEngine(s, Config{}, nil)
		require.NoError(t, err)
		out, err := e.Query(ctx, "q", 0)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "relevant text", out[0].Text)
		assert.True(t, out[0].Relevant)
		assert.Equal(t, Placeholder, out[1].Text)
		assert.False(t, out[1].Relevant)
		assert.Equal(t, "miss", out[1].DocumentID)
		assert.Equal(t, DefaultTopK, s.topK)
	})
	t.Run("ShouldHonorExplicitZeroThreshold", func(t *testing.T) {
		s := &staticSearcher{results: []domain.SearchResult{
			{DocumentID: "weak", Score: 0.01, Content: "weak match"},
			{DocumentID: "none", Score: 0, Content: "no match"},
		}}
		zero := 0.0
		e, err := NewEngine(s, Config{Threshold: &zero}, nil)
		require.NoError(t, err)
		out, err := e.Query(ctx, "q", 3)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "weak match", out[0].Text)
		assert.Equal(t, Placeholder, out[1].Text)
	})
	t.Run("ShouldRejectNegativeThreshold", func(t *testing.T) {
		negative := -1.0
		_, err := NewEngine(&staticSearcher{}, Config{Threshold: &negative}, nil)
		assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
	})
	t.Run("ShouldReturnEmptyForEmptyIndex", func(t *testing.T) {
		ix, err := index.New(hashing.NewEmbedder(0), memory.NewStorage())
		require.NoError(t, err)
		e, err := NewEngine(ix, Config{}, nil)
		require.NoError(t, err)
		out, err := e.Query(ctx, "anything", 3)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
	t.Run("ShouldUsePlaceholderForOrthogonalDocument", func(t *testing.T) {
		ix, err := index.New(hashing.NewEmbedder(0), memory.NewStorage())
		require.NoError(t, err)
		require.NoError(t, ix.Upsert(ctx, "doc", "Multi-factor authentication is required for administrators."))
		e, err := NewEngine(ix, Config{}, nil)
		require.NoError(t, err)

		out, err := e.Query(ctx, "Multi-factor authentication is required for administrators.", 3)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.True(t, out[0].Relevant)

		out, err = e.Query(ctx, "", 3)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, Placeholder, out[0].Text)
	})
	t.Run("ShouldPropagateSearchFailure", func(t *testing.T) {
		e, err := NewEngine(&staticSearcher{err: domain.NewError(domain.KindEmbedding, "x", errors.New("down"))}, Config{}, nil)
		require.NoError(t, err)
		_, err = e.Query(ctx, "q", 3)
		assert.Equal(t, domain.KindEmbedding, domain.KindOf(err))
	})
}

func TestTexts(t *testing.T) {
	assert.Equal(t, []string{"a", Placeholder}, Texts([]domain.Retrieved{{Text: "a"}, {Text: Placeholder}}))
}
