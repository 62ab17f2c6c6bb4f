package chunker

import (
	"fmt"
	"strings"

	"pdfrag/internal/domain"
)

// WindowChunker slices whitespace-normalized text into fixed-size character
// windows that overlap by a fixed number of characters.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrValidation, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", domain.ErrValidation, overlap)
	}
	return &WindowChunker{
		size:    size,
		overlap: overlap,
	}, nil
}

func (c *WindowChunker) Chunk(text string) []string {
	return Split(text, c.size, c.overlap)
}

// Normalize collapses every run of whitespace into a single space and trims
// both ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split returns the windows of the normalized text. Offsets count runes, so a
// multi-byte character is never cut in half. When overlap would not move the
// window forward the next window starts where the previous one ended.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(Normalize(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := min(start+size, n)
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
		if next := end - overlap; next > start {
			start = next
		} else {
			start = end
		}
	}
	return chunks
}
