package domain

import "fmt"

const (
	// DefaultChunkSize is the window width in runes.
	DefaultChunkSize = 512
	// DefaultChunkOverlap is the number of runes shared between consecutive
	// windows.
	DefaultChunkOverlap = 16
)

// Chunker defines the interface for splitting document text into chunks.
type Chunker interface {
	Chunk(documentID, text string) []Chunk
}

// ChunkID derives a chunk's storage key from its owning document and its
// position. Re-chunking identical text with identical parameters reproduces
// identical ids, so re-ingestion overwrites chunks instead of duplicating
// them.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", documentID, ordinal)
}

type windowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker creates a chunker producing consecutive windows of up to
// size runes, with overlap runes shared between neighbours. overlap must be
// smaller than size.
func NewWindowChunker(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size %d must be positive: %w", size, ErrInvalidConfig)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0,%d): %w", overlap, size, ErrInvalidConfig)
	}
	return &windowChunker{size: size, overlap: overlap}, nil
}

// Chunk splits text into windows. Empty text yields zero chunks; text
// shorter than the window yields exactly one.
func (c *windowChunker) Chunk(documentID, text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		ordinal := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         ChunkID(documentID, ordinal),
			DocumentID: documentID,
			Ordinal:    ordinal,
			Content:    string(runes[start:end]),
		})
		if end >= len(runes) {
			break
		}
	}
	return chunks
}
