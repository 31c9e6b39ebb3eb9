package chunk

import (
	"context"
	"strings"
)

// WindowChunker splits text into overlapping whitespace-token windows.
// The indexed documents are prose, not source code, so there is nothing
// to parse into symbols; a sliding window over whitespace tokens is the
// whole job.
type WindowChunker struct {
	MaxTokens int
	Overlap   int
}

// NewWindowChunker returns a chunker with the default window sizes.
func NewWindowChunker() *WindowChunker {
	return &WindowChunker{MaxTokens: DefaultMaxChunkTokens, Overlap: DefaultOverlapTokens}
}

func (c *WindowChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxChunkTokens
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= maxTokens {
		overlap = DefaultOverlapTokens
	}

	tokens := strings.Fields(file.Text)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := maxTokens - overlap
	var chunks []*Chunk
	for start, idx := 0, 0; start < len(tokens); start += step {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		window := tokens[start:end]
		chunks = append(chunks, &Chunk{
			Index:      idx,
			Content:    strings.Join(window, " "),
			TokenCount: len(window),
		})
		idx++

		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}
