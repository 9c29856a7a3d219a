package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/internal/domain"
)

// fakeQdrant implements the handful of endpoints the client uses.
type fakeQdrant struct {
	mu      sync.Mutex
	size    int
	creates int
	points  map[string]point
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := "/collections/docs"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == base:
		if f.size == 0 {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"status": map[string]any{"error": "Collection `docs` doesn't exist!"}})
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size, "distance": "Cosine"}}},
		}})
	case r.Method == http.MethodPut && r.URL.Path == base:
		if f.size != 0 {
			w.WriteHeader(http.StatusConflict)
			writeJSON(w, map[string]any{"status": map[string]any{"error": "Collection `docs` already exists!"}})
			return
		}
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.size = body.Vectors.Size
		f.creates++
		writeJSON(w, map[string]any{"result": true})
	case r.Method == http.MethodPut && r.URL.Path == base+"/points":
		var body struct {
			Points []point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p.ID] = p
		}
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
	case r.Method == http.MethodPost && r.URL.Path == base+"/points/delete":
		var body struct {
			Points []string `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.Points {
			delete(f.points, id)
		}
		writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
	case r.Method == http.MethodPost && r.URL.Path == base+"/points/count":
		writeJSON(w, map[string]any{"result": map[string]any{"count": len(f.points)}})
	case r.Method == http.MethodPost && r.URL.Path == base+"/points/search":
		var res []map[string]any
		for _, p := range f.points {
			res = append(res, map[string]any{"score": 0.5, "payload": p.Payload})
		}
		writeJSON(w, map[string]any{"result": res})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, base+"/points/"):
		id := r.URL.Path[len(base+"/points/"):]
		p, ok := f.points[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"status": map[string]any{"error": "Not found"}})
			return
		}
		writeJSON(w, map[string]any{"result": p})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestServer(t *testing.T, fake *fakeQdrant) string {
	t.Helper()
	if fake.points == nil {
		fake.points = map[string]point{}
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(Config{URL: newTestServer(t, &fakeQdrant{}), Collection: "docs"})
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background(), 2))
	return s
}

func TestStorageInit(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldReuseExistingCollection", func(t *testing.T) {
		fake := &fakeQdrant{}
		url := newTestServer(t, fake)
		for range 2 {
			s, err := NewStorage(Config{URL: url, Collection: "docs"})
			require.NoError(t, err)
			require.NoError(t, s.Init(ctx, 2))
		}
		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Equal(t, 1, fake.creates)
	})
	t.Run("ShouldRejectDimensionMismatch", func(t *testing.T) {
		url := newTestServer(t, &fakeQdrant{size: 384})
		s, err := NewStorage(Config{URL: url, Collection: "docs"})
		require.NoError(t, err)
		err = s.Init(ctx, 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vector size 384")
	})
}

func TestStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldOverwriteSameDocument", func(t *testing.T) {
		s := newTestStorage(t)
		require.NoError(t, s.Put(ctx, domain.EmbeddingRecord{DocumentID: "a.pdf", Vector: []float64{1, 0}, Content: "old"}))
		require.NoError(t, s.Put(ctx, domain.EmbeddingRecord{DocumentID: "a.pdf", Vector: []float64{0, 1}, Content: "new"}))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		rec, ok, err := s.Get(ctx, "a.pdf")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "new", rec.Content)
	})
	t.Run("ShouldBreakEqualScoresByDocumentID", func(t *testing.T) {
		s := newTestStorage(t)
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Put(ctx, domain.EmbeddingRecord{DocumentID: id, Vector: []float64{1, 1}}))
		}
		res, err := s.Search(ctx, []float64{1, 1}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "a", res[0].DocumentID)
		assert.Equal(t, "b", res[1].DocumentID)
	})
	t.Run("ShouldReportMissingAndDeleted", func(t *testing.T) {
		s := newTestStorage(t)
		_, ok, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, s.Put(ctx, domain.EmbeddingRecord{DocumentID: "x", Vector: []float64{1, 0}}))
		require.NoError(t, s.Delete(ctx, "x"))
		n, _ := s.Count(ctx)
		assert.Zero(t, n)
	})
}

func TestPointID(t *testing.T) {
	assert.Equal(t, PointID("a.pdf"), PointID("a.pdf"))
	assert.NotEqual(t, PointID("a.pdf"), PointID("b.pdf"))
}
