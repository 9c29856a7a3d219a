// Package openai is an OpenAI-compatible /embeddings client.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/embedding"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "text-embedding-3-small"
	DefaultDimension = 1536
	DefaultTimeout   = 30 * time.Second
)

type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Client embeds text remotely. Every failure is reported as KindEmbedding.
type Client struct {
	http      *resty.Client
	model     string
	dimension int
}

var _ embedding.Embedder = (*Client)(nil)

type embeddingRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape.
	Embedding []float64 `json:"embedding"`
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai embeddings: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Client{http: client, model: cfg.Model, dimension: cfg.Dimension}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var out embeddingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(embeddingRequest{Input: text, Model: c.model, Dimensions: c.dimension}).
		SetResult(&out).
		Post("/embeddings")
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewError(domain.KindCanceled, "embedding.openai", ctx.Err())
		}
		return nil, failure(fmt.Errorf("send request: %w", err), 0)
	}
	if resp.IsError() {
		return nil, failure(fmt.Errorf("embeddings request failed: %s", resp.Status()), resp.StatusCode())
	}
	vec := out.Embedding
	if len(out.Data) > 0 {
		vec = out.Data[0].Embedding
	}
	if len(vec) == 0 {
		return nil, failure(errors.New("no embedding returned"), resp.StatusCode())
	}
	if len(vec) != c.dimension {
		return nil, failure(fmt.Errorf("expected dimension %d, got %d", c.dimension, len(vec)), resp.StatusCode())
	}
	return vec, nil
}

func failure(err error, status int) error {
	e := domain.NewError(domain.KindEmbedding, "embedding.openai", err)
	e.StatusCode = status
	return e
}
