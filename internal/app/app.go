// Package app assembles the service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"compliance-rag/internal/chunker"
	"compliance-rag/internal/config"
	"compliance-rag/internal/documents"
	"compliance-rag/internal/embedding"
	"compliance-rag/internal/embedding/hashing"
	embopenai "compliance-rag/internal/embedding/openai"
	"compliance-rag/internal/index"
	"compliance-rag/internal/llm"
	llmopenai "compliance-rag/internal/llm/openai"
	"compliance-rag/internal/logger"
	"compliance-rag/internal/metrics"
	"compliance-rag/internal/pipeline"
	"compliance-rag/internal/qa"
	"compliance-rag/internal/retrieval"
	"compliance-rag/internal/service"
	"compliance-rag/internal/store"
	storemem "compliance-rag/internal/store/memory"
	storeredis "compliance-rag/internal/store/redis"
	storesqlite "compliance-rag/internal/store/sqlite"
	"compliance-rag/internal/usage"
	"compliance-rag/internal/vectorstore"
	vecmem "compliance-rag/internal/vectorstore/memory"
	"compliance-rag/internal/vectorstore/qdrant"
	"compliance-rag/internal/worker"
)

// App owns every long-lived component. Close releases them.
type App struct {
	Config   *config.AppConfig
	Service  *service.Service
	Registry *prometheus.Registry

	pool    *worker.Pool
	closers []func() error
}

type options struct {
	transport llm.Transport
	embedder  embedding.Embedder
	usage     usage.Recorder
}

type Option func(*options)

// WithTransport replaces the OpenAI chat transport.
func WithTransport(t llm.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithEmbedder replaces the configured embedder.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithUsageRecorder replaces the usage file log.
func WithUsageRecorder(r usage.Recorder) Option {
	return func(o *options) { o.usage = r }
}

// Build wires the components described by cfg. Workers run until Close.
func Build(ctx context.Context, cfg *config.AppConfig, opts ...Option) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	log := logger.FromContext(ctx)

	m, err := metrics.New(a.Registry)
	if err != nil {
		return nil, err
	}
	recorder, err := a.usageRecorder(o.usage)
	if err != nil {
		return nil, err
	}
	transport := o.transport
	if transport == nil {
		transport, err = llmopenai.NewTransport(llmopenai.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.APIKey(),
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set %s)", err, cfg.LLM.APIKeyEnv)
		}
	}
	client, err := llm.NewClient(transport, llm.Config{
		Model:          cfg.LLM.Model,
		MaxTokens:      cfg.LLM.MaxTokens,
		MaxRetries:     cfg.LLM.MaxRetries,
		InitialBackoff: cfg.LLM.InitialBackoff,
		MaxInFlight:    cfg.LLM.MaxInFlight,
	}, llm.WithUsageRecorder(recorder), llm.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	pl, err := pipeline.New(client, pipeline.Config{Workers: cfg.Pipeline.Workers, DispatchDelay: cfg.Pipeline.DispatchDelay}, m)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.NewFixedSizeChunker(cfg.Pipeline.ChunkSize)
	if err != nil {
		return nil, err
	}

	emb := o.embedder
	if emb == nil {
		if emb, err = newEmbedder(cfg); err != nil {
			return nil, err
		}
	}
	cached, err := embedding.NewCached(emb, cfg.Embedder.CacheSize)
	if err != nil {
		return nil, err
	}
	vectors, err := newVectorStorage(ctx, cfg, emb.Dimension())
	if err != nil {
		return nil, err
	}
	ix, err := index.New(emb, vectors, index.WithQueryEmbedder(cached))
	if err != nil {
		return nil, err
	}
	engine, err := retrieval.NewEngine(ix, retrieval.Config{TopK: cfg.Retrieval.TopK, Threshold: cfg.Retrieval.Threshold}, m)
	if err != nil {
		return nil, err
	}
	responder, err := qa.NewResponder(client)
	if err != nil {
		return nil, err
	}

	kv, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, kv.Close)

	a.pool = worker.Start(ctx, worker.Config{Workers: cfg.Worker.Workers, QueueSize: cfg.Worker.QueueSize})
	a.Service, err = service.New(service.Deps{
		Documents: documents.NewRepository(kv),
		Chunker:   ch,
		Pipeline:  pl,
		Index:     ix,
		Retriever: engine,
		Answerer:  responder,
		Pool:      a.pool,
		Metrics:   m,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("Application assembled",
		"embedder", emb.Name(), "vector_store", cfg.VectorStore.Type, "store", cfg.Store.Type)
	return a, nil
}

// Drain waits for every submitted document to finish. No more documents
// can be submitted afterwards.
func (a *App) Drain() error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Close()
}

func (a *App) Close() error {
	errs := []error{a.Drain()}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) usageRecorder(override usage.Recorder) (usage.Recorder, error) {
	if override != nil {
		return override, nil
	}
	fl, err := usage.OpenFileLog(a.Config.Usage.LogPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, fl.Close)
	return fl, nil
}

func newEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai":
		o := cfg.Embedder.OpenAI
		return embopenai.NewClient(embopenai.Config{
			BaseURL:   o.BaseURL,
			APIKey:    os.Getenv(o.APIKeyEnv),
			Model:     o.Model,
			Dimension: cfg.Embedder.Dimension,
			Timeout:   o.Timeout,
		})
	default:
		return hashing.NewEmbedder(cfg.Embedder.Dimension), nil
	}
}

func newVectorStorage(ctx context.Context, cfg *config.AppConfig, dimension int) (vectorstore.Storage, error) {
	if cfg.VectorStore.Type != "qdrant" {
		return vecmem.NewStorage(), nil
	}
	q := cfg.VectorStore.Qdrant
	s, err := qdrant.NewStorage(qdrant.Config{URL: q.URL, APIKey: q.APIKey, Collection: q.Collection, Timeout: q.Timeout})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx, dimension); err != nil {
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, cfg *config.AppConfig) (store.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		r := cfg.Store.Redis
		return storeredis.New(ctx, storeredis.Config{Addr: r.Addr, Password: r.Password, DB: r.DB, Namespace: r.Namespace})
	case "sqlite":
		return storesqlite.Open(cfg.Store.SQLite.Path)
	default:
		return storemem.New(), nil
	}
}
