// Package index keeps exactly one embedding per document.
package index

import (
	"context"
	"errors"
	"fmt"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/embedding"
	"compliance-rag/internal/logger"
	"compliance-rag/internal/vectorstore"
)

type Index struct {
	embedder embedding.Embedder
	query    embedding.Embedder
	storage  vectorstore.Storage
}

type Option func(*Index)

// WithQueryEmbedder embeds search text with e instead of the document
// embedder. It must produce vectors in the same space, e.g. a cache over it.
func WithQueryEmbedder(e embedding.Embedder) Option {
	return func(ix *Index) {
		if e != nil {
			ix.query = e
		}
	}
}

func New(embedder embedding.Embedder, storage vectorstore.Storage, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("index: embedder is required")
	}
	if storage == nil {
		return nil, errors.New("index: storage is required")
	}
	ix := &Index{embedder: embedder, query: embedder, storage: storage}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Upsert embeds content and stores it as the record for documentID,
// replacing any previous record.
func (ix *Index) Upsert(ctx context.Context, documentID, content string) error {
	vec, err := embed(ctx, ix.embedder, "index.upsert", content)
	if err != nil {
		return withDocument(err, documentID)
	}
	if err := ix.storage.Put(ctx, domain.EmbeddingRecord{DocumentID: documentID, Vector: vec, Content: content}); err != nil {
		return &domain.Error{Kind: domain.KindUnexpected, Op: "index.upsert", DocumentID: documentID, ChunkIndex: domain.NoChunk, Err: err}
	}
	logger.FromContext(ctx).Debug("Indexed document", "document_id", documentID, "embedder", ix.embedder.Name())
	return nil
}

// Remove deletes the record for documentID. Missing records are not an error.
func (ix *Index) Remove(ctx context.Context, documentID string) error {
	if err := ix.storage.Delete(ctx, documentID); err != nil {
		return &domain.Error{Kind: domain.KindUnexpected, Op: "index.remove", DocumentID: documentID, ChunkIndex: domain.NoChunk, Err: err}
	}
	return nil
}

func (ix *Index) Len(ctx context.Context) (int, error) {
	n, err := ix.storage.Count(ctx)
	if err != nil {
		return 0, domain.NewError(domain.KindUnexpected, "index.len", err)
	}
	return n, nil
}

// Search embeds text and returns the topK most similar records.
func (ix *Index) Search(ctx context.Context, text string, topK int) ([]domain.SearchResult, error) {
	vec, err := embed(ctx, ix.query, "index.search", text)
	if err != nil {
		return nil, err
	}
	res, err := ix.storage.Search(ctx, vec, topK)
	if err != nil {
		return nil, domain.NewError(domain.KindUnexpected, "index.search", err)
	}
	return res, nil
}

func embed(ctx context.Context, e embedding.Embedder, op, text string) ([]float64, error) {
	vec, err := e.Embed(ctx, text)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.NewError(domain.KindEmbedding, op, err)
	}
	if d := e.Dimension(); d > 0 && len(vec) != d {
		return nil, domain.NewError(domain.KindEmbedding, op, fmt.Errorf("expected dimension %d, got %d", d, len(vec)))
	}
	return vec, nil
}

func withDocument(err error, documentID string) error {
	var de *domain.Error
	if errors.As(err, &de) && de.DocumentID == "" {
		cp := *de
		cp.DocumentID = documentID
		return &cp
	}
	return err
}
