package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig configures the chat-completion endpoint and its retry policy.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxInFlight    int           `yaml:"max_in_flight"`
	Timeout        time.Duration `yaml:"timeout"`
}

// PipelineConfig controls how a document is split and fanned out.
type PipelineConfig struct {
	ChunkSize     int           `yaml:"chunk_size"`
	Workers       int           `yaml:"workers"`
	DispatchDelay time.Duration `yaml:"dispatch_delay"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	CacheSize int                   `yaml:"cache_size"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StoreConfig selects where documents and their status are kept.
type StoreConfig struct {
	Type   string        `yaml:"type"`
	Redis  *RedisConfig  `yaml:"redis,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// Threshold is a percentage of cosine similarity. Unset means 5; an
	// explicit 0 admits every positive score.
	Threshold *float64 `yaml:"threshold"`
}

type WorkerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type UsageConfig struct {
	LogPath string `yaml:"log_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM         LLMConfig         `yaml:"llm"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Store       StoreConfig       `yaml:"store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Worker      WorkerConfig      `yaml:"worker"`
	Usage       UsageConfig       `yaml:"usage"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/compliance-rag/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// APIKey returns the LLM API key from the configured environment variable.
func (c *AppConfig) APIKey() string { return os.Getenv(c.LLM.APIKeyEnv) }

// Validate reports every setting that cannot be used as given.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Pipeline.ChunkSize <= 0 {
		errs = append(errs, errors.New("pipeline.chunk_size must be positive"))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("pipeline.workers must be positive"))
	}
	if c.Pipeline.DispatchDelay < 0 {
		errs = append(errs, errors.New("pipeline.dispatch_delay must not be negative"))
	}
	if c.LLM.MaxRetries <= 0 {
		errs = append(errs, errors.New("llm.max_retries must be positive"))
	}
	if c.LLM.MaxInFlight <= 0 {
		errs = append(errs, errors.New("llm.max_in_flight must be positive"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("retrieval.top_k must be positive"))
	}
	if t := c.Retrieval.Threshold; t != nil && *t < 0 {
		errs = append(errs, errors.New("retrieval.threshold must not be negative"))
	}
	if c.Worker.Workers <= 0 || c.Worker.QueueSize <= 0 {
		errs = append(errs, errors.New("worker.workers and worker.queue_size must be positive"))
	}
	switch c.Embedder.Type {
	case "hashing":
	case "openai":
		if c.Embedder.OpenAI == nil {
			errs = append(errs, errors.New("embedder.openai section is required for type openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder type %q", c.Embedder.Type))
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			errs = append(errs, errors.New("vector_store.qdrant.url is required for type qdrant"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector store type %q", c.VectorStore.Type))
	}
	switch c.Store.Type {
	case "memory":
	case "redis":
		if c.Store.Redis == nil || c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for type redis"))
		}
	case "sqlite":
		if c.Store.SQLite == nil || c.Store.SQLite.Path == "" {
			errs = append(errs, errors.New("store.sqlite.path is required for type sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store type %q", c.Store.Type))
	}
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "compliance-rag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	l := &cfg.LLM
	if l.BaseURL == "" {
		l.BaseURL = "https://api.openai.com/v1"
	}
	if l.APIKeyEnv == "" {
		l.APIKeyEnv = "OPENAI_API_KEY"
	}
	if l.Model == "" {
		l.Model = "gpt-4o-mini"
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 1500
	}
	if l.MaxRetries == 0 {
		l.MaxRetries = 5
	}
	if l.InitialBackoff == 0 {
		l.InitialBackoff = 2 * time.Second
	}
	if l.MaxInFlight == 0 {
		l.MaxInFlight = 5
	}
	if l.Timeout == 0 {
		l.Timeout = 60 * time.Second
	}

	p := &cfg.Pipeline
	if p.ChunkSize == 0 {
		p.ChunkSize = 50000
	}
	if p.Workers == 0 {
		p.Workers = 5
	}
	if p.DispatchDelay == 0 {
		p.DispatchDelay = 2 * time.Second
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 256
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.Timeout == 0 {
			o.Timeout = 30 * time.Second
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "compliance_documents"
		}
		if q.Timeout == 0 {
			q.Timeout = 15 * time.Second
		}
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if r := cfg.Store.Redis; r != nil && r.Namespace == "" {
		r.Namespace = "compliance"
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Threshold == nil {
		threshold := 5.0
		cfg.Retrieval.Threshold = &threshold
	}
	if cfg.Worker.Workers == 0 {
		cfg.Worker.Workers = 4
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = 100
	}
	if cfg.Usage.LogPath == "" {
		cfg.Usage.LogPath = "api_usage.log"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
