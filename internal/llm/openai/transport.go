// Package openai is the chat-completion transport for OpenAI-compatible APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/llm"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Transport posts to /chat/completions. It never retries; retry policy lives in llm.Client.
type Transport struct {
	client *resty.Client
}

var _ llm.Transport = (*Transport)(nil)

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewTransport(cfg Config) (*Transport, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	return &Transport{client: client}, nil
}

func (t *Transport) Send(ctx context.Context, req llm.Request) (string, error) {
	var out chatResponse
	var apiErr apiError
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.NewError(domain.KindCanceled, "openai.send", ctx.Err())
		}
		return "", domain.NewError(domain.KindRemoteAPI, "openai.send", fmt.Errorf("send request: %w", err))
	}
	status := resp.StatusCode()
	if status == http.StatusTooManyRequests {
		e := domain.NewError(domain.KindRateLimited, "openai.send", errors.New(errorMessage(resp, &apiErr)))
		e.StatusCode = status
		return "", e
	}
	if resp.IsError() || status >= 300 {
		e := domain.NewError(domain.KindRemoteAPI, "openai.send", errors.New(errorMessage(resp, &apiErr)))
		e.StatusCode = status
		return "", e
	}
	if len(out.Choices) == 0 {
		return "", domain.NewError(domain.KindUnexpected, "openai.send", errors.New("response has no choices"))
	}
	return out.Choices[0].Message.Content, nil
}

func errorMessage(resp *resty.Response, apiErr *apiError) string {
	if apiErr != nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return resp.Status()
}
