// Package retrieval answers top-k semantic similarity queries over the store.
package retrieval

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

var tracer = otel.Tracer("qaforge.retrieval")

// DefaultTopK is the result count used when the caller passes topK <= 0.
const DefaultTopK = 5

// Embedder is the query-embedding dependency. The engine must share the
// provider used at ingestion time so query vectors live in the same space
// as stored vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine retrieves the most similar stored chunks for a query.
type Engine struct {
	embedder Embedder
	store    vectorstore.Store
	topK     int
	logger   *zap.Logger
}

// NewEngine creates an Engine. defaultTopK <= 0 falls back to DefaultTopK.
func NewEngine(embedder Embedder, store vectorstore.Store, defaultTopK int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		topK:     defaultTopK,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns up to topK results ordered by
// ascending distance. Results pass through in store order, without
// re-ranking or filtering. An empty slice is a valid outcome.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) ([]vectorstore.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "Engine.Retrieve")
	defer span.End()

	if topK <= 0 {
		topK = e.topK
	}
	span.SetAttributes(attribute.Int("top_k", topK))

	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := e.store.Search(ctx, vector, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching store: %w", err)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	e.logger.Debug("retrieval complete",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
	)
	return results, nil
}
