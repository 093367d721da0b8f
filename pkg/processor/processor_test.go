package processor_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/guardian/internal/models"
	"github.com/xhad/guardian/pkg/processor"
)

// reconstruct strips the overlapping prefix each window shares with the text
// already rebuilt.
func reconstruct(chunks []models.Chunk) string {
	var rebuilt []rune
	for _, c := range chunks {
		runes := []rune(c.Text)
		skip := len(rebuilt) - c.Offset
		if skip < 0 {
			skip = 0
		}
		if skip < len(runes) {
			rebuilt = append(rebuilt, runes[skip:]...)
		}
	}
	return string(rebuilt)
}

func TestSplitWindows(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"empty", "", 5, 1, []string{}},
		{"shorter than window", "abc", 5, 1, []string{"abc"}},
		{"exact fit", "abcde", 5, 1, []string{"abcde"}},
		{"overlapping", "abcdefghij", 5, 2, []string{"abcde", "defgh", "ghij"}},
		{"no overlap", "abcdefgh", 4, 0, []string{"abcd", "efgh"}},
		{"multibyte", "héllo wörld", 4, 1, []string{"héll", "lo w", "wörl", "ld"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := processor.SplitWindows(tt.text, tt.size, tt.overlap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitWindowsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		size    int
		overlap int
	}{
		{10, 10},
		{10, 20},
		{0, 0},
		{10, -1},
	}

	for _, tt := range tests {
		_, err := processor.SplitWindows("some text", tt.size, tt.overlap)
		assert.ErrorIs(t, err, processor.ErrInvalidConfiguration, "size=%d overlap=%d", tt.size, tt.overlap)
	}
}

func TestChunkReconstruction(t *testing.T) {
	text := strings.Repeat("Buy Now Pay Later plans split a purchase into instalments. ", 40)

	for _, geometry := range [][2]int{{500, 50}, {100, 99}, {64, 0}, {7, 3}} {
		p, err := processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    geometry[0],
			ChunkOverlap: geometry[1],
		})
		require.NoError(t, err)

		chunks, err := p.Chunk(text, "kb.txt")
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, "kb.txt", c.Source)
			assert.LessOrEqual(t, len([]rune(c.Text)), geometry[0])
		}
		assert.Equal(t, text, reconstruct(chunks), "geometry %v", geometry)
	}
}

func TestNewWithConfigRejectsBadGeometry(t *testing.T) {
	_, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 50, ChunkOverlap: 50})
	assert.ErrorIs(t, err, processor.ErrInvalidConfiguration)

	_, err = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 50, Splitter: "sentences"})
	assert.ErrorIs(t, err, processor.ErrInvalidConfiguration)
}

func TestProcessor_Process(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 20, ChunkOverlap: 5})
	require.NoError(t, err)

	docs := []models.Document{
		{URL: "a.txt", Content: "This is a test document with enough text."},
		{URL: "b.txt", Content: "Second."},
		{URL: "c.txt", Content: ""},
	}

	chunks, err := p.Process(docs)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, "b.txt", last.Source)
	assert.Equal(t, "Second.", last.Text)
}

func TestRecursiveSplitter(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    60,
		ChunkOverlap: 10,
		Splitter:     processor.SplitterRecursive,
	})
	require.NoError(t, err)

	text := "Phishing uses fake messages to steal credentials.\n\n" +
		"Account takeover happens when an attacker logs into a real account.\n\n" +
		"BNPL means Buy Now Pay Later."

	chunks, err := p.Chunk(text, "kb.txt")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)

	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
	assert.Equal(t, 0, chunks[0].Offset)
	assert.Contains(t, chunks[len(chunks)-1].Text, "Buy Now Pay Later")
}
