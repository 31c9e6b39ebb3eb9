package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowChunker_ShortTextProducesSingleChunk(t *testing.T) {
	c := NewWindowChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "a.txt", Text: "the quick brown fox"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 4, chunks[0].TokenCount)
}

func TestWindowChunker_EmptyTextProducesNoChunks(t *testing.T) {
	c := NewWindowChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "empty.txt", Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestWindowChunker_LongTextOverlapsAdjacentChunks(t *testing.T) {
	words := make([]string, 1200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	c := NewWindowChunker()
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "big.txt", Text: text})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// step = 512 - 64 = 448
	assert.Equal(t, DefaultMaxChunkTokens, chunks[0].TokenCount)
	assert.Equal(t, DefaultMaxChunkTokens, chunks[1].TokenCount)

	// The final chunk is emitted even if shorter than the target size.
	last := chunks[len(chunks)-1]
	assert.LessOrEqual(t, last.TokenCount, DefaultMaxChunkTokens)
	assert.Greater(t, last.TokenCount, 0)

	var total int
	for _, ch := range chunks {
		total += ch.TokenCount
	}
	assert.Greater(t, total, 1200) // overlap means sum exceeds original token count
}

func TestWindowChunker_CustomWindowSize(t *testing.T) {
	words := make([]string, 30)
	for i := range words {
		words[i] = "tok"
	}
	c := &WindowChunker{MaxTokens: 10, Overlap: 2}
	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "x.txt", Text: strings.Join(words, " ")})
	require.NoError(t, err)

	// step = 8; starts at 0, 8, 16, 24 -> 4 chunks
	require.Len(t, chunks, 4)
	assert.Equal(t, 10, chunks[0].TokenCount)
	assert.Equal(t, 10, chunks[1].TokenCount)
	assert.Equal(t, 10, chunks[2].TokenCount)
	assert.Equal(t, 6, chunks[3].TokenCount) // 30 - 24 = 6 remaining
}
