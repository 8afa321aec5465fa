// Package ingest builds the knowledge base: chunk, embed, insert.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/silvanlabs/qaforge/internal/chunker"
	"github.com/silvanlabs/qaforge/internal/embeddings"
	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

var tracer = otel.Tracer("qaforge.ingest")

// ErrNoDocuments indicates that no document in the batch produced chunks.
var ErrNoDocuments = errors.New("no valid documents to process")

// Document is one extracted document entering the pipeline.
type Document struct {
	Text     string
	Metadata map[string]interface{}
}

// Report summarizes an ingestion run.
type Report struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
}

// Pipeline turns documents into stored vectors.
//
// Each batch is all-or-nothing: every document is chunked, all chunks are
// embedded in a single pass, and all records are inserted in a single pass.
// A failure at the embed or insert stage leaves the store untouched.
// Documents that yield no chunks (empty text) are skipped individually.
type Pipeline struct {
	splitter *chunker.Splitter
	embedder embeddings.Provider
	store    vectorstore.Store
	logger   *zap.Logger

	// mu serializes Ingest/Rebuild so a rebuild never interleaves with
	// another writer.
	mu sync.Mutex
}

// NewPipeline creates a Pipeline.
func NewPipeline(splitter *chunker.Splitter, embedder embeddings.Provider, store vectorstore.Store, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Ingest processes a batch of documents into the store.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ingestLocked(ctx, docs)
}

// Rebuild clears the store and ingests the batch as the new knowledge base.
func (p *Pipeline) Rebuild(ctx context.Context, docs []Document) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := tracer.Start(ctx, "Pipeline.Rebuild")
	defer span.End()

	if err := p.store.DeleteAll(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("clearing store: %w", err)
	}
	p.logger.Info("knowledge base cleared for rebuild")

	return p.ingestLocked(ctx, docs)
}

func (p *Pipeline) ingestLocked(ctx context.Context, docs []Document) (*Report, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("document_count", len(docs)))

	var (
		chunks   []chunker.Chunk
		docsUsed int
	)
	for i, doc := range docs {
		docChunks, err := p.splitter.Split(doc.Text, doc.Metadata)
		if err != nil {
			if errors.Is(err, chunker.ErrEmptyInput) {
				p.logger.Warn("skipping empty document", zap.Int("index", i))
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("chunking document %d: %w", i, err)
		}
		chunks = append(chunks, docChunks...)
		docsUsed++
	}

	if len(chunks) == 0 {
		p.logger.Warn("ingestion batch produced no chunks", zap.Int("documents", len(docs)))
		return &Report{
			Status:  "error",
			Message: ErrNoDocuments.Error(),
		}, ErrNoDocuments
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		err = fmt.Errorf("%w: got %d vectors for %d chunks", embeddings.ErrEmbeddingFailed, len(vectors), len(chunks))
		span.RecordError(err)
		return nil, err
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:       c.ID,
			Content:  c.Content,
			Metadata: c.Metadata,
			Vector:   vectors[i],
		}
	}

	if err := p.store.Insert(ctx, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			p.logger.Error("embedder/store dimension mismatch, knowledge base needs a rebuild with matching config",
				zap.Int("embedder_dimension", p.embedder.Dimension()),
				zap.Int("store_dimension", p.store.Dimension()),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("inserting %d records: %w", len(records), err)
	}

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	span.SetStatus(codes.Ok, "success")
	p.logger.Info("ingestion complete",
		zap.Int("documents", docsUsed),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Report{
		Status:        "success",
		Message:       fmt.Sprintf("ingested %d chunks from %d documents", len(chunks), docsUsed),
		DocumentCount: docsUsed,
		ChunkCount:    len(chunks),
	}, nil
}
