package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("qaforge.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/qaforge/vectorstore"
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// Collection is the collection name holding the knowledge base.
	// Default: "qaforge_docs"
	Collection string `koanf:"collection"`

	// VectorSize is the expected embedding dimension. Must match the
	// embedder's output dimension.
	// Default: 384 (bge-small-en-v1.5)
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/qaforge/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "qaforge_docs"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies. It keeps records in memory, writes them through to gob
// files under the configured path, and performs exact cosine search.
// Persistence is automatic, so Persist/Restore are no-ops; data survives
// process restart without them.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating directory %s: %v", ErrBackendUnavailable, expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrBackendUnavailable, err)
	}

	store := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbeddingFunc is handed to chromem so it never falls back to its
// default OpenAI embedder for persisted collections. All records arrive
// with precomputed vectors and queries are made by embedding, so this
// function is never called in normal operation.
func noEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("store requires precomputed vectors")
}

// getOrCreateCollection gets or creates the configured collection.
func (s *ChromemStore) getOrCreateCollection() (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, noEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: getting/creating collection %s: %v", ErrBackendUnavailable, s.config.Collection, err)
	}
	return collection, nil
}

// Insert inserts or overwrites records by ID.
func (s *ChromemStore) Insert(ctx context.Context, records []Record) error {
	start := time.Now()
	var err error
	defer func() { observeInsert("chromem", len(records), start, err) }()

	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.config.Collection),
	)

	if len(records) == 0 {
		err = ErrEmptyRecords
		return err
	}

	for i, r := range records {
		if len(r.Vector) != s.config.VectorSize {
			err = fmt.Errorf("%w: record %d (%s) has dimension %d, store expects %d",
				ErrDimensionMismatch, i, r.ID, len(r.Vector), s.config.VectorSize)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	collection, err := s.getOrCreateCollection()
	if err != nil {
		span.RecordError(err)
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  convertMetadataToString(r.Metadata),
			Embedding: r.Vector,
		}
	}

	// Concurrency of 1: embeddings are already computed, nothing to
	// parallelize.
	if err = collection.AddDocuments(ctx, docs, 1); err != nil {
		err = fmt.Errorf("%w: adding documents: %v", ErrBackendUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("inserted records into chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(records)),
	)
	return nil
}

// Search returns up to k nearest neighbors by cosine distance, ascending.
func (s *ChromemStore) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	start := time.Now()
	var err error
	defer func() { observeSearch("chromem", start, err) }()

	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if k <= 0 {
		err = fmt.Errorf("k must be positive, got %d", k)
		return nil, err
	}
	if len(vector) != s.config.VectorSize {
		err = fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	collection := s.db.GetCollection(s.config.Collection, noEmbeddingFunc)
	if collection == nil {
		// Nothing ingested yet: an empty store is a valid state.
		return []SearchResult{}, nil
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		err = fmt.Errorf("%w: querying collection %s: %v", ErrBackendUnavailable, s.config.Collection, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: convertMetadataFromString(r.Metadata),
			Distance: 1 - r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")
	return searchResults, nil
}

// DeleteAll drops and recreates the collection. Safe on an empty store.
func (s *ChromemStore) DeleteAll(ctx context.Context) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteAll")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.Collection))

	if existing := s.db.GetCollection(s.config.Collection, noEmbeddingFunc); existing != nil {
		if err := s.db.DeleteCollection(s.config.Collection); err != nil {
			err = fmt.Errorf("%w: deleting collection %s: %v", ErrBackendUnavailable, s.config.Collection, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	if _, err := s.getOrCreateCollection(); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("cleared chromem collection", zap.String("collection", s.config.Collection))
	return nil
}

// Persist is a no-op: chromem persists automatically to the configured path.
func (s *ChromemStore) Persist(ctx context.Context, location string) error {
	s.logger.Debug("persist is automatic for chromem", zap.String("requested_location", location))
	return nil
}

// Restore is a no-op: chromem loads automatically from the configured path.
func (s *ChromemStore) Restore(ctx context.Context, location string) error {
	s.logger.Debug("restore is automatic for chromem", zap.String("requested_location", location))
	return nil
}

// Dimension returns the configured vector dimension.
func (s *ChromemStore) Dimension() int {
	return s.config.VectorSize
}

// Close closes the ChromemStore. chromem needs no explicit shutdown.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// convertMetadataToString converts map[string]interface{} to map[string]string.
func convertMetadataToString(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// convertMetadataFromString converts map[string]string back to map[string]interface{}.
func convertMetadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
