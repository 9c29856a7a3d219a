package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/internal/domain"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Dimension: 3})
	require.NoError(t, err)
	return c
}

func TestClientEmbed(t *testing.T) {
	t.Run("ShouldReturnOpenAIShapedVector", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
			var req embeddingRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "hello", req.Input)
			assert.Equal(t, DefaultModel, req.Model)
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
		})
		v, err := c.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float64{0.1, 0.2, 0.3}, v)
	})
	t.Run("ShouldAcceptOllamaShape", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[1,0,0]}`))
		})
		v, err := c.Embed(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 0, 0}, v)
	})
	t.Run("ShouldReportHTTPErrorsAsEmbeddingFailure", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := c.Embed(context.Background(), "x")
		require.Error(t, err)
		assert.Equal(t, domain.KindEmbedding, domain.KindOf(err))
	})
	t.Run("ShouldRejectWrongDimension", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2]}]}`))
		})
		_, err := c.Embed(context.Background(), "x")
		assert.Equal(t, domain.KindEmbedding, domain.KindOf(err))
	})
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
