// Package storetest is a conformance suite shared by the store backends.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/internal/store"
)

// Run exercises s against the store.Store contract. s must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("ShouldReturnErrNotFoundForMissingKey", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
	t.Run("ShouldOverwriteOnPut", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "doc:a", []byte("one")))
		require.NoError(t, s.Put(ctx, "doc:a", []byte("two")))
		v, err := s.Get(ctx, "doc:a")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), v)
	})
	t.Run("ShouldListKeysByPrefixInOrder", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "doc:c", []byte("c")))
		require.NoError(t, s.Put(ctx, "doc:b", []byte("b")))
		require.NoError(t, s.Put(ctx, "other:x", []byte("x")))
		keys, err := s.Keys(ctx, "doc:")
		require.NoError(t, err)
		assert.Equal(t, []string{"doc:a", "doc:b", "doc:c"}, keys)
	})
	t.Run("ShouldDeleteIdempotently", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "doc:b"))
		require.NoError(t, s.Delete(ctx, "doc:b"))
		_, err := s.Get(ctx, "doc:b")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
