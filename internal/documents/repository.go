// Package documents persists domain.Document values over a store.Store.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/store"
)

const keyPrefix = "doc:"

type Repository struct {
	store store.Store
}

func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

func key(id string) string { return keyPrefix + id }

// Get returns the document or a KindNotFound error.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Document, error) {
	raw, err := r.store.Get(ctx, key(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, &domain.Error{Kind: domain.KindNotFound, Op: "documents.get", DocumentID: id, ChunkIndex: domain.NoChunk, Err: err}
	}
	if err != nil {
		return nil, err
	}
	var doc domain.Document
	if err := msgpack.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

// Save writes the whole document in one Put.
func (r *Repository) Save(ctx context.Context, doc *domain.Document) error {
	raw, err := msgpack.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	return r.store.Put(ctx, key(doc.ID), raw)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, key(id))
}

// List returns all documents ordered by id.
func (r *Repository) List(ctx context.Context) ([]*domain.Document, error) {
	keys, err := r.store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	docs := make([]*domain.Document, 0, len(keys))
	for _, k := range keys {
		doc, err := r.Get(ctx, strings.TrimPrefix(k, keyPrefix))
		if domain.IsKind(err, domain.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
