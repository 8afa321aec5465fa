package vectorstore

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

func init() {
	// Metadata travels through interface values; register the container
	// types so gob snapshots round-trip.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// MemoryConfig holds configuration for the in-memory store.
type MemoryConfig struct {
	// Dimension is the expected vector dimension. If 0, the dimension is
	// established by the first inserted batch.
	Dimension int `koanf:"dimension"`
}

// MemoryStore is an in-process Store using brute-force cosine search.
//
// It holds all records in memory behind a RWMutex, so concurrent searches
// proceed without blocking each other. Persist/Restore snapshot the full
// record set to a gob file.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	configDim int
	index     map[string]int
	records   []Record
	logger    *zap.Logger
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore(cfg MemoryConfig, logger *zap.Logger) (*MemoryStore, error) {
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("%w: dimension must be non-negative, got %d", ErrInvalidConfig, cfg.Dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		dimension: cfg.Dimension,
		configDim: cfg.Dimension,
		index:     make(map[string]int),
		logger:    logger,
	}, nil
}

// Insert inserts or overwrites records by ID.
func (s *MemoryStore) Insert(ctx context.Context, records []Record) error {
	start := time.Now()
	var err error
	defer func() { observeInsert("memory", len(records), start, err) }()

	if len(records) == 0 {
		err = ErrEmptyRecords
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(records[0].Vector)
	}
	for i, r := range records {
		if len(r.Vector) != dim {
			err = fmt.Errorf("%w: record %d (%s) has dimension %d, store expects %d",
				ErrDimensionMismatch, i, r.ID, len(r.Vector), dim)
			return err
		}
	}
	s.dimension = dim

	for _, r := range records {
		if pos, ok := s.index[r.ID]; ok {
			s.records[pos] = r
			continue
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r)
	}

	s.logger.Debug("inserted records into memory store",
		zap.Int("count", len(records)),
		zap.Int("total", len(s.records)),
	)
	return nil
}

// Search returns up to k nearest neighbors by cosine distance, ascending.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	start := time.Now()
	var err error
	defer func() { observeSearch("memory", start, err) }()

	if k <= 0 {
		err = fmt.Errorf("k must be positive, got %d", k)
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return []SearchResult{}, nil
	}
	if len(vector) != s.dimension {
		err = fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			ErrDimensionMismatch, len(vector), s.dimension)
		return nil, err
	}

	results := make([]SearchResult, 0, len(s.records))
	for _, r := range s.records {
		results = append(results, SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
			Distance: cosineDistance(vector, r.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// DeleteAll removes every record. Idempotent.
func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.index = make(map[string]int)
	s.dimension = s.configDim

	s.logger.Debug("cleared memory store")
	return nil
}

// memorySnapshot is the gob wire format for Persist/Restore.
type memorySnapshot struct {
	Dimension int
	Records   []Record
}

// Persist writes a gob snapshot of all records to location.
func (s *MemoryStore) Persist(ctx context.Context, location string) error {
	s.mu.RLock()
	snapshot := memorySnapshot{
		Dimension: s.dimension,
		Records:   append([]Record(nil), s.records...),
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return fmt.Errorf("%w: creating snapshot directory: %v", ErrBackendUnavailable, err)
	}
	f, err := os.Create(location)
	if err != nil {
		return fmt.Errorf("%w: creating snapshot file: %v", ErrBackendUnavailable, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		return fmt.Errorf("%w: encoding snapshot: %v", ErrBackendUnavailable, err)
	}

	s.logger.Info("persisted memory store snapshot",
		zap.String("location", location),
		zap.Int("records", len(snapshot.Records)),
	)
	return nil
}

// Restore replaces the store contents with a snapshot written by Persist.
func (s *MemoryStore) Restore(ctx context.Context, location string) error {
	f, err := os.Open(location)
	if err != nil {
		return fmt.Errorf("%w: opening snapshot file: %v", ErrBackendUnavailable, err)
	}
	defer f.Close()

	var snapshot memorySnapshot
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return fmt.Errorf("%w: decoding snapshot: %v", ErrBackendUnavailable, err)
	}

	index := make(map[string]int, len(snapshot.Records))
	for i, r := range snapshot.Records {
		index[r.ID] = i
	}

	s.mu.Lock()
	s.dimension = snapshot.Dimension
	s.records = snapshot.Records
	s.index = index
	s.mu.Unlock()

	s.logger.Info("restored memory store snapshot",
		zap.String("location", location),
		zap.Int("records", len(snapshot.Records)),
	)
	return nil
}

// Dimension returns the established vector dimension, or 0 if none.
func (s *MemoryStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// cosineDistance returns 1 - cosine similarity, clamped at 0.
func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	if d < 0 {
		d = 0
	}
	return float32(d)
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
