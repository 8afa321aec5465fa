package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dim int) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(MemoryConfig{Dimension: dim}, nil)
	require.NoError(t, err)
	return s
}

// vec builds a small deterministic test vector.
func vec(vals ...float32) []float32 {
	return vals
}

func TestNewMemoryStore(t *testing.T) {
	tests := []struct {
		name    string
		config  MemoryConfig
		wantErr bool
	}{
		{name: "zero dimension deferred", config: MemoryConfig{}, wantErr: false},
		{name: "explicit dimension", config: MemoryConfig{Dimension: 384}, wantErr: false},
		{name: "negative dimension", config: MemoryConfig{Dimension: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewMemoryStore(tt.config, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Dimension, s.Dimension())
		})
	}
}

func TestMemoryStore_InsertEmpty(t *testing.T) {
	s := newTestStore(t, 3)
	err := s.Insert(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyRecords)
}

func TestMemoryStore_InsertAndSearch(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	records := []Record{
		{ID: "a_0", Content: "alpha", Metadata: map[string]interface{}{"filename": "a.txt"}, Vector: vec(1, 0, 0)},
		{ID: "a_1", Content: "beta", Metadata: map[string]interface{}{"filename": "a.txt"}, Vector: vec(0, 1, 0)},
		{ID: "a_2", Content: "gamma", Metadata: map[string]interface{}{"filename": "a.txt"}, Vector: vec(0, 0, 1)},
	}
	require.NoError(t, s.Insert(ctx, records))

	results, err := s.Search(ctx, vec(1, 0, 0), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Exact direction match comes first with distance ~0, the orthogonal
	// vectors follow at distance 1.
	assert.Equal(t, "a_0", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.InDelta(t, 1, results[1].Distance, 1e-6)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestMemoryStore_SearchAscendingOrder(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, []Record{
		{ID: "far", Vector: vec(-1, 0)},
		{ID: "near", Vector: vec(1, 0.1)},
		{ID: "mid", Vector: vec(0, 1)},
	}))

	results, err := s.Search(ctx, vec(1, 0), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "near", results[0].ID)
	assert.Equal(t, "mid", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestMemoryStore_SearchKLargerThanCount(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, []Record{
		{ID: "only", Vector: vec(1, 0)},
	}))

	results, err := s.Search(ctx, vec(1, 0), 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemoryStore_SearchEmptyStore(t *testing.T) {
	s := newTestStore(t, 2)

	results, err := s.Search(context.Background(), vec(1, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_SearchInvalidK(t *testing.T) {
	s := newTestStore(t, 2)

	_, err := s.Search(context.Background(), vec(1, 0), 0)
	assert.Error(t, err)
	_, err = s.Search(context.Background(), vec(1, 0), -3)
	assert.Error(t, err)
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	// Insert with wrong dimension is rejected atomically.
	err := s.Insert(ctx, []Record{
		{ID: "good", Vector: vec(1, 0, 0)},
		{ID: "bad", Vector: vec(1, 0)},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	results, err := s.Search(ctx, vec(1, 0, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results, "failed batch must not be partially applied")

	// Query with wrong dimension is rejected once records exist.
	require.NoError(t, s.Insert(ctx, []Record{{ID: "a", Vector: vec(1, 0, 0)}}))
	_, err = s.Search(ctx, vec(1, 0), 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_DimensionFromFirstBatch(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	assert.Equal(t, 0, s.Dimension())
	require.NoError(t, s.Insert(ctx, []Record{{ID: "a", Vector: vec(1, 2, 3, 4)}}))
	assert.Equal(t, 4, s.Dimension())

	err := s.Insert(ctx, []Record{{ID: "b", Vector: vec(1, 2)}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_InsertOverwritesByID(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, []Record{
		{ID: "doc_0", Content: "old", Vector: vec(1, 0)},
	}))
	require.NoError(t, s.Insert(ctx, []Record{
		{ID: "doc_0", Content: "new", Vector: vec(0, 1)},
	}))

	results, err := s.Search(ctx, vec(0, 1), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc_0", results[0].ID)
	assert.Equal(t, "new", results[0].Content)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestMemoryStore_DeleteAll(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, []Record{{ID: "a", Vector: vec(1, 0)}}))
	require.NoError(t, s.DeleteAll(ctx))

	results, err := s.Search(ctx, vec(1, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Idempotent on an empty store.
	require.NoError(t, s.DeleteAll(ctx))
}

func TestMemoryStore_DeleteAllResetsInferredDimension(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, []Record{{ID: "a", Vector: vec(1, 2, 3)}}))
	assert.Equal(t, 3, s.Dimension())

	require.NoError(t, s.DeleteAll(ctx))
	assert.Equal(t, 0, s.Dimension())

	// A new dimension can be established after a clear.
	require.NoError(t, s.Insert(ctx, []Record{{ID: "b", Vector: vec(1, 2)}}))
	assert.Equal(t, 2, s.Dimension())
}

func TestMemoryStore_PersistRestore(t *testing.T) {
	ctx := context.Background()
	location := filepath.Join(t.TempDir(), "snapshots", "store.gob")

	src := newTestStore(t, 3)
	require.NoError(t, src.Insert(ctx, []Record{
		{ID: "a_0", Content: "alpha", Metadata: map[string]interface{}{"filename": "a.txt", "chunk_index": 0}, Vector: vec(1, 0, 0)},
		{ID: "a_1", Content: "beta", Metadata: map[string]interface{}{"filename": "a.txt", "chunk_index": 1}, Vector: vec(0, 1, 0)},
	}))
	require.NoError(t, src.Persist(ctx, location))

	dst := newTestStore(t, 0)
	require.NoError(t, dst.Restore(ctx, location))
	assert.Equal(t, 3, dst.Dimension())

	results, err := dst.Search(ctx, vec(0, 1, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a_1", results[0].ID)
	assert.Equal(t, "beta", results[0].Content)
	assert.Equal(t, "a.txt", results[0].Metadata["filename"])

	// Restored records can be overwritten by ID like any others.
	require.NoError(t, dst.Insert(ctx, []Record{
		{ID: "a_1", Content: "beta v2", Vector: vec(0, 1, 0)},
	}))
	results, err = dst.Search(ctx, vec(0, 1, 0), 1)
	require.NoError(t, err)
	assert.Equal(t, "beta v2", results[0].Content)
}

func TestMemoryStore_RestoreMissingFile(t *testing.T) {
	s := newTestStore(t, 0)
	err := s.Restore(context.Background(), filepath.Join(t.TempDir(), "missing.gob"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical direction", a: vec(1, 0), b: vec(2, 0), want: 0},
		{name: "orthogonal", a: vec(1, 0), b: vec(0, 1), want: 1},
		{name: "opposite", a: vec(1, 0), b: vec(-1, 0), want: 2},
		{name: "zero vector", a: vec(0, 0), b: vec(1, 0), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineDistance(tt.a, tt.b), 1e-6)
		})
	}
}
