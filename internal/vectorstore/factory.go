package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a Store backend.
type Config struct {
	// Provider selects the backend: "memory", "chromem" (default), "qdrant".
	Provider string `koanf:"provider"`

	Memory  MemoryConfig  `koanf:"memory"`
	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// NewStore creates a Store based on the configuration.
//
// Providers:
//   - "chromem" (default): embedded persistent store, no external services
//   - "memory": in-memory store with gob snapshot persistence
//   - "qdrant": external Qdrant server over gRPC
//
// Example usage:
//
//	store, err := vectorstore.NewStore(cfg.VectorStore, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewStore(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(cfg.Chromem, logger)

	case "memory":
		return NewMemoryStore(cfg.Memory, logger)

	case "qdrant":
		return NewQdrantStore(cfg.Qdrant, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: memory, chromem, qdrant)",
			ErrInvalidConfig, cfg.Provider)
	}
}
