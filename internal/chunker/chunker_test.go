package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "defaults",
			config:  Config{},
			wantErr: false,
		},
		{
			name:    "explicit valid config",
			config:  Config{ChunkSize: 100, ChunkOverlap: 10},
			wantErr: false,
		},
		{
			name:    "negative chunk size",
			config:  Config{ChunkSize: -1, ChunkOverlap: 10},
			wantErr: true,
		},
		{
			name:    "negative overlap",
			config:  Config{ChunkSize: 100, ChunkOverlap: -1},
			wantErr: true,
		},
		{
			name:    "overlap equals size",
			config:  Config{ChunkSize: 100, ChunkOverlap: 100},
			wantErr: true,
		},
		{
			name:    "overlap exceeds size",
			config:  Config{ChunkSize: 100, ChunkOverlap: 200},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, s)
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
}

func TestSplit_EmptyInput(t *testing.T) {
	s, err := NewSplitter(Config{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty string", input: ""},
		{name: "whitespace only", input: "   \n\t  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := s.Split(tt.input, nil)
			assert.ErrorIs(t, err, ErrEmptyInput)
			assert.Nil(t, chunks)
		})
	}
}

func TestSplit_ShortText(t *testing.T) {
	s, err := NewSplitter(Config{})
	require.NoError(t, err)

	chunks, err := s.Split("hello world", map[string]interface{}{"filename": "greeting.txt"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "greeting.txt_0", chunks[0].ID)
	assert.Equal(t, "hello world", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Metadata["chunk_index"])
	assert.Equal(t, "greeting.txt", chunks[0].Metadata["filename"])
}

func TestSplit_SeparatorPreference(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 20, ChunkOverlap: 5})
	require.NoError(t, err)

	chunks, err := s.Split("The quick brown fox jumps over the lazy dog", nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// First window has no paragraph, line or sentence boundary, so it cuts
	// at the latest space inside the 20-byte window.
	assert.Equal(t, "The quick brown fox ", chunks[0].Content)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 20)
	}
}

func TestSplit_ParagraphBoundary(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 30, ChunkOverlap: 5})
	require.NoError(t, err)

	text := "First paragraph here.\n\nSecond paragraph follows with more text."
	chunks, err := s.Split(text, nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// The paragraph break is inside the first window and wins over finer
	// separators.
	assert.Equal(t, "First paragraph here.\n\n", chunks[0].Content)
}

func TestSplit_CoversWholeText(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 50, ChunkOverlap: 10})
	require.NoError(t, err)

	text := strings.Repeat("All work and no play makes Jack a dull boy. ", 20)
	chunks, err := s.Split(text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Chunks are exact substrings that cover the text in order with no
	// gaps: each chunk starts overlap bytes before the previous one ended,
	// and the last chunk reaches the end of the input.
	start := 0
	for i, c := range chunks {
		require.Equal(t, text[start:start+len(c.Content)], c.Content, "chunk %d is not a substring at its offset", i)
		start += len(c.Content) - 10
	}
	assert.Equal(t, len(text), start+10)
}

func TestSplit_Overlap(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 40, ChunkOverlap: 10})
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij ", 20)
	chunks, err := s.Split(text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		tail := prev[len(prev)-10:]
		assert.True(t, strings.HasPrefix(chunks[i].Content, tail),
			"chunk %d does not start with the last 10 bytes of chunk %d", i, i-1)
	}
}

func TestSplit_GiantWord(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	// No separator anywhere: every window falls back to a hard cut.
	text := strings.Repeat("x", 350)
	chunks, err := s.Split(text, nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 100)
	}
	assert.Equal(t, 100, len(chunks[0].Content))
}

func TestSplit_MultiByteRunes(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 10, ChunkOverlap: 3})
	require.NoError(t, err)

	// 3-byte runes with no separators force hard cuts that must stay
	// rune-aligned.
	text := strings.Repeat("日本語", 20)
	chunks, err := s.Split(text, nil)
	require.NoError(t, err)

	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content), "chunk %d is not valid UTF-8", i)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 60, ChunkOverlap: 15})
	require.NoError(t, err)

	text := strings.Repeat("Login requires a valid username and password. ", 10)
	first, err := s.Split(text, map[string]interface{}{"filename": "login.md"})
	require.NoError(t, err)
	second, err := s.Split(text, map[string]interface{}{"filename": "login.md"})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
}

func TestSplit_MetadataIsolation(t *testing.T) {
	s, err := NewSplitter(Config{ChunkSize: 30, ChunkOverlap: 5})
	require.NoError(t, err)

	meta := map[string]interface{}{"filename": "spec.txt", "type": "text"}
	chunks, err := s.Split(strings.Repeat("word ", 30), meta)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Each chunk carries its own metadata copy with its own index; the
	// caller's map is untouched.
	assert.NotContains(t, meta, "chunk_index")
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata["chunk_index"])
		assert.Equal(t, "text", c.Metadata["type"])
	}

	chunks[0].Metadata["type"] = "mutated"
	assert.Equal(t, "text", chunks[1].Metadata["type"])
}
