package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	http       *resty.Client
	collection string
}

var _ vectorstore.Storage = (*Storage)(nil)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
}

type payload struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

type qdrantError struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	return &Storage{http: client, collection: cfg.Collection}, nil
}

// PointID maps a document id onto the stable UUID used as its point id.
func PointID(documentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("compliance-rag/"+documentID)).String()
}

// Init creates the collection unless it already exists. An existing
// collection must have the same vector size.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant: invalid dimension")
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	resp, err := s.http.R().SetContext(ctx).SetResult(&info).SetError(&qdrantError{}).
		Get(s.path(""))
	if err == nil && resp.StatusCode() != http.StatusNotFound {
		if err := check(resp, err, "get collection"); err != nil {
			return err
		}
		if size := info.Result.Config.Params.Vectors.Size; size != dimension {
			return fmt.Errorf("qdrant: collection %s has vector size %d, embedder produces %d", s.collection, size, dimension)
		}
		return nil
	}
	if err != nil {
		return check(resp, err, "get collection")
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
	}
	resp, err = s.http.R().SetContext(ctx).SetBody(body).SetError(&qdrantError{}).
		Put(s.path(""))
	// Another process may have created it in between.
	if err == nil && resp.StatusCode() == http.StatusConflict {
		return nil
	}
	return check(resp, err, "create collection")
}

func (s *Storage) Put(ctx context.Context, rec domain.EmbeddingRecord) error {
	body := map[string]any{"points": []point{{
		ID:      PointID(rec.DocumentID),
		Vector:  rec.Vector,
		Payload: payload{DocumentID: rec.DocumentID, Content: rec.Content},
	}}}
	resp, err := s.http.R().SetContext(ctx).SetBody(body).SetError(&qdrantError{}).
		SetQueryParam("wait", "true").
		Put(s.path("/points"))
	return check(resp, err, "upsert point")
}

func (s *Storage) Delete(ctx context.Context, documentID string) error {
	body := map[string]any{"points": []string{PointID(documentID)}}
	resp, err := s.http.R().SetContext(ctx).SetBody(body).SetError(&qdrantError{}).
		SetQueryParam("wait", "true").
		Post(s.path("/points/delete"))
	return check(resp, err, "delete point")
}

func (s *Storage) Get(ctx context.Context, documentID string) (domain.EmbeddingRecord, bool, error) {
	var out struct {
		Result point `json:"result"`
	}
	resp, err := s.http.R().SetContext(ctx).SetResult(&out).SetError(&qdrantError{}).
		Get(s.path("/points/" + PointID(documentID)))
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return domain.EmbeddingRecord{}, false, nil
	}
	if err := check(resp, err, "get point"); err != nil {
		return domain.EmbeddingRecord{}, false, err
	}
	return domain.EmbeddingRecord{
		DocumentID: out.Result.Payload.DocumentID,
		Vector:     out.Result.Vector,
		Content:    out.Result.Payload.Content,
	}, true, nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var out struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	resp, err := s.http.R().SetContext(ctx).SetBody(req).SetResult(&out).SetError(&qdrantError{}).
		Post(s.path("/points/search"))
	if err := check(resp, err, "search"); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(out.Result))
	for _, r := range out.Result {
		results = append(results, domain.SearchResult{
			DocumentID: r.Payload.DocumentID,
			Score:      r.Score,
			Content:    r.Payload.Content,
		})
	}
	// Qdrant does not order equal scores deterministically.
	return vectorstore.Rank(results, topK), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var out struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	resp, err := s.http.R().SetContext(ctx).SetBody(map[string]any{"exact": true}).
		SetResult(&out).SetError(&qdrantError{}).
		Post(s.path("/points/count"))
	if err := check(resp, err, "count"); err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

func (s *Storage) path(suffix string) string {
	return "/collections/" + s.collection + suffix
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	if resp.IsError() {
		if qe, ok := resp.Error().(*qdrantError); ok && qe.Status.Error != "" {
			return fmt.Errorf("qdrant %s failed: %s: %s", op, resp.Status(), qe.Status.Error)
		}
		return fmt.Errorf("qdrant %s failed: %s", op, resp.Status())
	}
	return nil
}
