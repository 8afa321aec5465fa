// Package chunker splits raw document text into overlapping bounded-length
// segments suitable for embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrEmptyInput indicates there is nothing to chunk.
var ErrEmptyInput = errors.New("empty input text")

// ErrInvalidConfig indicates invalid chunking configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// defaultSeparators is the ordered fallback list tried per window, from the
// semantically coarsest boundary to the finest. If none matches, the window
// is cut at the size limit (rune-aligned).
var defaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Config holds configuration for the Splitter.
type Config struct {
	// ChunkSize is the maximum chunk length in bytes.
	// Default: 500
	ChunkSize int

	// ChunkOverlap is the number of bytes shared between consecutive
	// chunks. Must be smaller than ChunkSize.
	// Default: 50
	ChunkOverlap int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 500
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 50
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must be non-negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunk is a single retrievable unit produced from a document.
type Chunk struct {
	// ID is derived from the source filename and the chunk ordinal:
	// "<filename>_<index>".
	ID string

	// Content is the chunk text, at most ChunkSize bytes.
	Content string

	// Metadata is the document metadata merged with "chunk_index".
	Metadata map[string]interface{}
}

// Splitter splits text into overlapping chunks, preferring coarse
// separators (paragraph, line, sentence, word) before falling back to a
// hard character cut. Splitting is deterministic: identical input and
// configuration always yield identical chunks.
type Splitter struct {
	config     Config
	separators []string
}

// NewSplitter creates a Splitter with the given configuration.
func NewSplitter(cfg Config) (*Splitter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Splitter{
		config:     cfg,
		separators: defaultSeparators,
	}, nil
}

// Split splits text into chunks carrying the given metadata.
//
// Chunks are exact substrings of the input: consecutive chunks share
// ChunkOverlap bytes and together cover the whole text, so no content is
// lost at chunk boundaries. Returns ErrEmptyInput if text is empty after
// trimming; otherwise at least one chunk is produced.
func (s *Splitter) Split(text string, metadata map[string]interface{}) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	filename := "doc"
	if metadata != nil {
		if name, ok := metadata["filename"].(string); ok && name != "" {
			filename = name
		}
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + s.config.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = s.cut(text, start, end)
		}

		meta := make(map[string]interface{}, len(metadata)+1)
		for k, v := range metadata {
			meta[k] = v
		}
		index := len(chunks)
		meta["chunk_index"] = index

		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("%s_%d", filename, index),
			Content:  text[start:end],
			Metadata: meta,
		})

		if end == len(text) {
			break
		}

		next := end - s.config.ChunkOverlap
		// Guarantee forward progress even for pathological overlap/cut
		// combinations, and never start mid-rune.
		if next <= start {
			next = start + 1
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}

	return chunks, nil
}

// cut returns the end offset for a window starting at start and capped at
// limit, preferring the latest occurrence of the coarsest separator inside
// the window. Falls back to a rune-aligned hard cut at limit.
func (s *Splitter) cut(text string, start, limit int) int {
	window := text[start:limit]
	for _, sep := range s.separators {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i + len(sep)
		}
	}
	// No separator in the window (e.g. one giant word): hard cut, backed
	// off to a rune boundary.
	for limit > start+1 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return limit
}
