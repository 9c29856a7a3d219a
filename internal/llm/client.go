package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/logger"
	"compliance-rag/internal/metrics"
	"compliance-rag/internal/usage"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultMaxTokens      = 1500
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxInFlight    = 5

	ChunkAPIName = "chat.completions.chunk"
	ChatAPIName  = "chat.completions.chat"
)

// Message is one role/content pair of a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat-completion request.
type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Transport sends one chat-completion request. Failures must be *domain.Error
// with KindRateLimited for 429, KindRemoteAPI for other HTTP and network
// failures, and KindUnexpected for unusable responses.
type Transport interface {
	Send(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Model          string
	MaxTokens      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxInFlight    int
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
}

// Client is the only component that talks to the remote model.
type Client struct {
	transport Transport
	cfg       Config
	usage     usage.Recorder
	metrics   *metrics.Metrics
	sem       *semaphore.Weighted
	now       func() time.Time
}

type Option func(*Client)

func WithUsageRecorder(r usage.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.usage = r
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(transport Transport, cfg Config, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("llm: transport is required")
	}
	cfg.applyDefaults()
	c := &Client{
		transport: transport,
		cfg:       cfg,
		usage:     usage.Nop{},
		sem:       semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewBackoff returns the rate-limit schedule: initial, 2*initial, ... for at
// most maxAttempts-1 retries, so maxAttempts calls are made in total.
func NewBackoff(initial time.Duration, maxAttempts int) retry.Backoff {
	retries := 0
	if maxAttempts > 1 {
		retries = maxAttempts - 1
	}
	return retry.WithMaxRetries(uint64(retries), retry.NewExponential(initial))
}

// Complete sends one chunk for checklist extraction. Rate-limited attempts are
// retried with exponential backoff; any other failure is returned immediately.
func (c *Client) Complete(ctx context.Context, chunk string, index int) (string, error) {
	log := logger.FromContext(ctx).With("chunk", index)
	log.Info("Processing chunk")
	req := Request{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: ComplianceExpertPersona},
			{Role: RoleUser, Content: ChunkPrompt(chunk)},
		},
		MaxTokens: c.cfg.MaxTokens,
	}
	base := NewBackoff(c.cfg.InitialBackoff, c.cfg.MaxRetries)
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		wait, stop := base.Next()
		if !stop {
			c.metrics.RateLimitRetry()
			log.Warn("Rate limit exceeded, backing off", "wait", wait)
		}
		return wait, stop
	})
	var out string
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		text, err := c.send(ctx, ChunkAPIName, req)
		if err == nil {
			out = text
			return nil
		}
		if domain.IsKind(err, domain.KindRateLimited) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		log.Info("Completed chunk", "attempts", attempts)
		return out, nil
	}
	var wrapped *domain.Error
	switch domain.KindOf(err) {
	case domain.KindRateLimited:
		wrapped = &domain.Error{
			Kind:       domain.KindRetriesExhausted,
			Op:         "llm.complete",
			ChunkIndex: index,
			StatusCode: 429,
			Err:        fmt.Errorf("failed after %d attempts: %w", attempts, err),
		}
	case domain.KindCanceled:
		wrapped = &domain.Error{Kind: domain.KindCanceled, Op: "llm.complete", ChunkIndex: index, Err: err}
	default:
		wrapped = withChunk(err, index)
	}
	log.Error("Error processing chunk", "kind", wrapped.Kind, "attempts", attempts, "error", err)
	return "", wrapped
}

// Chat sends a single chat request without retrying; a rate-limit signal is
// returned to the caller as KindRateLimited.
func (c *Client) Chat(ctx context.Context, system, prompt string) (string, error) {
	req := Request{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: prompt},
		},
	}
	text, err := c.send(ctx, ChatAPIName, req)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			de = domain.NewError(domain.KindOf(err), "llm.chat", err)
		}
		logger.FromContext(ctx).Error("Chat completion failed", "kind", de.Kind, "error", err)
		return "", de
	}
	return text, nil
}

// send performs exactly one attempt and emits exactly one usage event for it.
func (c *Client) send(ctx context.Context, api string, req Request) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", domain.NewError(domain.KindCanceled, "llm.send", err)
	}
	text, err := c.transport.Send(ctx, req)
	c.sem.Release(1)

	outcome := usage.OutcomeSuccess
	switch {
	case err == nil:
	case domain.IsKind(err, domain.KindRateLimited):
		outcome = usage.OutcomeRateLimited
	default:
		outcome = usage.OutcomeError
	}
	c.usage.Record(ctx, usage.Event{Timestamp: c.now(), API: api, Outcome: outcome})
	c.metrics.LLMAttempt(api, string(outcome))
	return text, err
}

func withChunk(err error, index int) *domain.Error {
	var de *domain.Error
	if errors.As(err, &de) {
		cp := *de
		cp.ChunkIndex = index
		if cp.Op == "" {
			cp.Op = "llm.complete"
		}
		return &cp
	}
	return &domain.Error{Kind: domain.KindUnexpected, Op: "llm.complete", ChunkIndex: index, Err: err}
}
