// Package vectorstore defines the vector storage contract and its backend
// implementations.
//
// A Store holds (id, content, metadata, vector) records and answers top-k
// nearest-neighbor queries. Stores never embed text themselves: callers
// supply precomputed vectors, which keeps the embedding model a single
// shared dependency of the ingestion and retrieval paths.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates empty or nil records.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrDimensionMismatch is returned when a vector's length disagrees
	// with the store's established dimension. This is a data corruption
	// risk: the ingestion call must fail and the condition be logged.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrBackendUnavailable indicates a connectivity or storage fault.
	// Callers should treat it as retryable with backoff.
	ErrBackendUnavailable = errors.New("vector store backend unavailable")
)

// Store is the capability interface for vector storage backends.
//
// All implementations use cosine distance: results are ordered ascending,
// 0 meaning identical direction. The distance metric is fixed per backend
// and stable within a deployment.
//
// Concurrency: Search is safe to call concurrently with itself. Callers
// must serialize DeleteAll+Insert sequences (the "clear then rebuild"
// pattern) externally; see ingest.Pipeline.Rebuild.
//
// Implementations:
//   - MemoryStore: in-process brute-force search with gob snapshots
//   - ChromemStore: embedded chromem-go with automatic persistence (default)
//   - QdrantStore: external Qdrant server over gRPC
type Store interface {
	// Insert inserts or overwrites records by ID. Backends with per-call
	// limits split the batch internally; the caller sees one atomic-ish
	// call. Fails with ErrDimensionMismatch if any vector's length
	// disagrees with the store's dimension.
	Insert(ctx context.Context, records []Record) error

	// Search returns up to k nearest neighbors of vector, ordered by
	// ascending cosine distance. An empty store yields an empty slice,
	// not an error. Fails with ErrDimensionMismatch if the query vector
	// has the wrong length.
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// DeleteAll removes every record. Safe to call on an empty store;
	// calling it twice is equivalent to calling it once.
	DeleteAll(ctx context.Context) error

	// Persist writes a durable snapshot to location. Backends that
	// persist automatically may no-op, provided data survives restart.
	Persist(ctx context.Context, location string) error

	// Restore loads a snapshot written by Persist. Same caveat as
	// Persist for auto-persisting backends.
	Restore(ctx context.Context, location string) error

	// Dimension returns the store's vector dimension, or 0 if not yet
	// established.
	Dimension() int

	// Close releases backend resources.
	Close() error
}
