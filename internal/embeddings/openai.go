package embeddings

import (
	"context"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig holds configuration for the OpenAI embedding provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// Model is the embedding model.
	// Default: "text-embedding-3-small"
	Model string

	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	BaseURL string

	// BatchSize caps the number of texts per CreateEmbeddings call.
	// Default: 256
	BatchSize int
}

// OpenAIProvider generates embeddings via the OpenAI embeddings API.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
	metrics   *Metrics
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required for openai provider", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 256
	}

	dimension := 1536 // text-embedding-3-small, ada-002
	if cfg.Model == "text-embedding-3-large" {
		dimension = 3072
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: dimension,
		batchSize: cfg.BatchSize,
		metrics:   NewMetrics(zap.NewNop()),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts, in input order.
// Large inputs are split into sub-batches of BatchSize texts per API call.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += p.batchSize {
		end := offset + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.model),
			Input: texts[offset:end],
		})
		if err != nil {
			genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
			return nil, genErr
		}
		if len(resp.Data) != end-offset {
			genErr = fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(resp.Data), end-offset)
			return nil, genErr
		}

		// Response data carries an Index per vector; re-order by it so
		// vectors line up with their input texts.
		batch := make([][]float32, end-offset)
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				genErr = fmt.Errorf("%w: out-of-range vector index %d", ErrEmbeddingFailed, d.Index)
				return nil, genErr
			}
			v := make([]float32, len(d.Embedding))
			copy(v, d.Embedding)
			l2normalize(v)
			batch[d.Index] = v
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		genErr = err
		return nil, genErr
	}
	return vectors[0], nil
}

// Dimension returns the embedding dimension for the current model.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op for OpenAI since it uses HTTP.
func (p *OpenAIProvider) Close() error {
	return nil
}

// l2normalize normalizes a vector to unit length in place.
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}

var _ Provider = (*OpenAIProvider)(nil)
