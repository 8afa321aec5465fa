// Package config provides configuration loading for qaforge.
package config

import (
	"fmt"
	"time"

	"github.com/silvanlabs/qaforge/internal/chunker"
	"github.com/silvanlabs/qaforge/internal/embeddings"
	"github.com/silvanlabs/qaforge/internal/generation"
	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

// Config is the complete qaforge configuration.
type Config struct {
	Server      ServerConfig              `koanf:"server"`
	Logging     LoggingConfig             `koanf:"logging"`
	Chunking    ChunkingConfig            `koanf:"chunking"`
	Embeddings  embeddings.ProviderConfig `koanf:"embeddings"`
	VectorStore vectorstore.Config        `koanf:"vectorstore"`
	Retrieval   RetrievalConfig           `koanf:"retrieval"`
	Generation  generation.Config         `koanf:"generation"`
	Resources   ResourcesConfig           `koanf:"resources"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format: "json" or "console".
	Format string `koanf:"format"`
}

// ChunkingConfig configures the text splitter.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// RetrievalConfig configures the retrieval engine.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// ResourcesConfig configures session storage on disk.
type ResourcesConfig struct {
	Dir string `koanf:"dir"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 500
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 50
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	// Backend-specific defaults live in each backend's ApplyDefaults.

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	if cfg.Resources.Dir == "" {
		cfg.Resources.Dir = "./resources"
	}
}

// Validate checks cross-field configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking overlap must be in [0, size), got %d with size %d", c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.Retrieval.TopK)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// SplitterConfig maps the chunking section onto the chunker config.
func (c *Config) SplitterConfig() chunker.Config {
	return chunker.Config{
		ChunkSize:    c.Chunking.Size,
		ChunkOverlap: c.Chunking.Overlap,
	}
}
