// Package config loads and validates the server configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Storage   StorageConfig    `yaml:"storage"`
	Embedding EmbeddingConfig  `yaml:"embedding"`
	Providers []ProviderConfig `yaml:"providers"`
	// DefaultProvider is the provider used when a request names none
	DefaultProvider string          `yaml:"default_provider"`
	Retrieval       RetrievalConfig `yaml:"retrieval"`
	Indexing        IndexingConfig  `yaml:"indexing"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig configures SQLite storage
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig configures where project trees are materialized
type StorageConfig struct {
	ProjectsDir string `yaml:"projects_dir"`
	UploadsDir  string `yaml:"uploads_dir"`
}

// EmbeddingConfig configures the embedding backend
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"` // "ollama" or "openai"
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"` // env var holding the key
	Model       string        `yaml:"model"`
	Dimension   int           `yaml:"dimension"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`

	// APIKey is resolved from APIKeyEnv at load time, never written to yaml
	APIKey string `yaml:"-"`
}

// ProviderConfig configures one chat/edit model provider
type ProviderConfig struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Kind      string        `yaml:"kind"` // "openai" or "gemini"
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`

	APIKey string `yaml:"-"`
}

// RetrievalConfig tunes evidence search. The merge threshold and the
// oversampling factor are policy knobs, not fixed behavior.
type RetrievalConfig struct {
	TopK           int `yaml:"top_k"`
	Oversample     int `yaml:"oversample"`
	AdjacencyLines int `yaml:"adjacency_lines"`
}

// IndexingConfig tunes background indexing and file watching
type IndexingConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	BatchSize     int           `yaml:"batch_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Watch         bool          `yaml:"watch"`
	DebounceDelay time.Duration `yaml:"debounce_delay"`
}

// Default returns a configuration usable out of the box with a local
// Ollama embedding backend and no chat providers.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".codecontext")

	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "codecontext.db"),
		},
		Storage: StorageConfig{
			ProjectsDir: filepath.Join(dataDir, "projects"),
			UploadsDir:  filepath.Join(dataDir, "uploads"),
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "nomic-embed-text",
			Dimension:   768,
			BatchSize:   64,
			Concurrency: 5,
			Timeout:     60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:           8,
			Oversample:     3,
			AdjacencyLines: 10,
		},
		Indexing: IndexingConfig{
			Concurrency:   4,
			BatchSize:     64,
			PollInterval:  2 * time.Second,
			Watch:         true,
			DebounceDelay: time.Second,
		},
	}
}

// Load reads configuration from path, fills in defaults, resolves API keys
// from the environment, and validates the result. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyDefaults()
	cfg.resolveKeys()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults backfills zero values left by a partial config file
func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = d.Server.CORSOrigins
	}
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Storage.ProjectsDir == "" {
		c.Storage.ProjectsDir = d.Storage.ProjectsDir
	}
	if c.Storage.UploadsDir == "" {
		c.Storage.UploadsDir = d.Storage.UploadsDir
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = d.Embedding.Provider
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = d.Embedding.BaseURL
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = d.Embedding.Model
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = d.Embedding.Dimension
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = d.Embedding.BatchSize
	}
	if c.Embedding.Concurrency == 0 {
		c.Embedding.Concurrency = d.Embedding.Concurrency
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = d.Embedding.Timeout
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = d.Retrieval.TopK
	}
	if c.Retrieval.Oversample == 0 {
		c.Retrieval.Oversample = d.Retrieval.Oversample
	}
	if c.Retrieval.AdjacencyLines == 0 {
		c.Retrieval.AdjacencyLines = d.Retrieval.AdjacencyLines
	}
	if c.Indexing.Concurrency == 0 {
		c.Indexing.Concurrency = d.Indexing.Concurrency
	}
	if c.Indexing.BatchSize == 0 {
		c.Indexing.BatchSize = d.Indexing.BatchSize
	}
	if c.Indexing.PollInterval == 0 {
		c.Indexing.PollInterval = d.Indexing.PollInterval
	}
	if c.Indexing.DebounceDelay == 0 {
		c.Indexing.DebounceDelay = d.Indexing.DebounceDelay
	}
	if c.DefaultProvider == "" && len(c.Providers) > 0 {
		c.DefaultProvider = c.Providers[0].ID
	}
	for i := range c.Providers {
		if c.Providers[i].Timeout == 0 {
			c.Providers[i].Timeout = 120 * time.Second
		}
	}
}

// resolveKeys pulls API keys out of the environment. Keys stay out of the
// config file so it can be committed.
func (c *Config) resolveKeys() {
	if c.Embedding.APIKeyEnv != "" {
		c.Embedding.APIKey = os.Getenv(c.Embedding.APIKeyEnv)
	}
	for i := range c.Providers {
		if c.Providers[i].APIKeyEnv != "" {
			c.Providers[i].APIKey = os.Getenv(c.Providers[i].APIKeyEnv)
		}
	}
}

// Validate rejects configurations that cannot work
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}

	if c.Retrieval.TopK < 0 || c.Retrieval.Oversample < 0 || c.Retrieval.AdjacencyLines < 0 {
		return fmt.Errorf("retrieval settings must not be negative")
	}

	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.Embedding.Provider)
	}

	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		seen[p.ID] = true

		switch p.Kind {
		case "openai", "gemini":
		default:
			return fmt.Errorf("provider %s has unknown kind: %s", p.ID, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %s has no model", p.ID)
		}
	}

	if c.DefaultProvider != "" && !seen[c.DefaultProvider] {
		return fmt.Errorf("default provider %s is not configured", c.DefaultProvider)
	}

	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
