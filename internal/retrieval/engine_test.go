package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvanlabs/qaforge/internal/vectorstore"
)

// fixedEmbedder returns the same vector for every query.
type fixedEmbedder struct {
	vector []float32
	err    error
}

func (e *fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func newSeededStore(t *testing.T, n int) *vectorstore.MemoryStore {
	t.Helper()
	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{Dimension: 2}, nil)
	require.NoError(t, err)

	records := make([]vectorstore.Record, n)
	for i := range records {
		// Decreasing alignment with (1, 0): record 0 is closest.
		records[i] = vectorstore.Record{
			ID:      fmt.Sprintf("doc_%d", i),
			Content: fmt.Sprintf("chunk %d", i),
			Vector:  []float32{1, float32(i)},
		}
	}
	require.NoError(t, store.Insert(context.Background(), records))
	return store
}

func TestEngine_Retrieve(t *testing.T) {
	store := newSeededStore(t, 8)
	engine := NewEngine(&fixedEmbedder{vector: []float32{1, 0}}, store, 0, nil)

	results, err := engine.Retrieve(context.Background(), "some query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "doc_0", results[0].ID)
	assert.Equal(t, "chunk 0", results[0].Content)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestEngine_RetrieveDefaultTopK(t *testing.T) {
	store := newSeededStore(t, 10)
	engine := NewEngine(&fixedEmbedder{vector: []float32{1, 0}}, store, 0, nil)

	// topK <= 0 falls back to the engine default of 5.
	results, err := engine.Retrieve(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)

	results, err = engine.Retrieve(context.Background(), "query", -1)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestEngine_RetrieveConfiguredDefault(t *testing.T) {
	store := newSeededStore(t, 10)
	engine := NewEngine(&fixedEmbedder{vector: []float32{1, 0}}, store, 7, nil)

	results, err := engine.Retrieve(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Len(t, results, 7)
}

func TestEngine_RetrieveEmptyQuery(t *testing.T) {
	store := newSeededStore(t, 2)
	engine := NewEngine(&fixedEmbedder{vector: []float32{1, 0}}, store, 0, nil)

	_, err := engine.Retrieve(context.Background(), "", 5)
	assert.Error(t, err)
}

func TestEngine_RetrieveEmptyStore(t *testing.T) {
	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{Dimension: 2}, nil)
	require.NoError(t, err)
	engine := NewEngine(&fixedEmbedder{vector: []float32{1, 0}}, store, 0, nil)

	results, err := engine.Retrieve(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_RetrieveEmbedderFailure(t *testing.T) {
	store := newSeededStore(t, 2)
	engine := NewEngine(&fixedEmbedder{err: errors.New("model offline")}, store, 0, nil)

	_, err := engine.Retrieve(context.Background(), "query", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding query")
}

func TestEngine_RetrieveDimensionMismatch(t *testing.T) {
	store := newSeededStore(t, 2)
	engine := NewEngine(&fixedEmbedder{vector: []float32{1, 0, 0}}, store, 0, nil)

	_, err := engine.Retrieve(context.Background(), "query", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}
