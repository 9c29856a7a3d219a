package chunker

import (
	"unicode/utf8"

	"compliance-rag/internal/domain"
)

// DefaultChunkSize is the number of characters sent to the model per chunk.
const DefaultChunkSize = 50000

// Split partitions text into contiguous slices of at most size characters
// (runes). Concatenating the result in order yields text byte for byte.
func Split(text string, size int) ([]string, error) {
	if size <= 0 {
		return nil, domain.InvalidArgument("chunker.split", "chunk size must be positive, got %d", size)
	}
	if text == "" {
		return nil, nil
	}
	chunks := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	start, runes := 0, 0
	for i := 0; i < len(text); {
		_, w := utf8.DecodeRuneInString(text[i:])
		i += w
		runes++
		if runes == size {
			chunks = append(chunks, text[start:i])
			start, runes = i, 0
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks, nil
}

// FixedSizeChunker splits documents into fixed-size chunks.
type FixedSizeChunker struct {
	size int
}

func NewFixedSizeChunker(size int) (*FixedSizeChunker, error) {
	if size <= 0 {
		return nil, domain.InvalidArgument("chunker.new", "chunk size must be positive, got %d", size)
	}
	return &FixedSizeChunker{size: size}, nil
}

func (c *FixedSizeChunker) Size() int { return c.size }

func (c *FixedSizeChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	parts, err := Split(document.Content, c.size)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = domain.Chunk{DocumentID: document.ID, Index: i, Text: p}
	}
	return chunks, nil
}
