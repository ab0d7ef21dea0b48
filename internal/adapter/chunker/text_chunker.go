package chunker

import (
	"fmt"
	"strings"

	"researchkb/internal/domain"
)

// TextChunker splits document text into rune-bounded windows with a fixed
// overlap between consecutive windows.
type TextChunker struct {
	maxLen  int
	overlap int
}

// NewTextChunker validates the window parameters. overlap must be smaller
// than maxLen or the chunker could never advance.
func NewTextChunker(maxLen, overlap int) (*TextChunker, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("%w: chunk max length must be positive, got %d", domain.ErrConfiguration, maxLen)
	}
	if overlap < 0 || overlap >= maxLen {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", domain.ErrConfiguration, overlap, maxLen)
	}
	return &TextChunker{maxLen: maxLen, overlap: overlap}, nil
}

func (c *TextChunker) MaxLen() int { return c.maxLen }

// Chunk splits content into ordered chunks for docID. Whitespace-only
// content yields no chunks; content within the window yields exactly one.
func (c *TextChunker) Chunk(docID, content string) []domain.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	runes := []rune(content)
	step := c.maxLen - c.overlap

	var chunks []domain.Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.maxLen
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			ID:       chunkID(docID, len(chunks)),
			DocID:    docID,
			Position: len(chunks),
			Text:     string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func chunkID(docID string, position int) string {
	return fmt.Sprintf("%s:%d", docID, position)
}
