package domain

import "time"

// Chunk is the unit of storage, embedding and retrieval: a contiguous slice
// of a document's text. The chunk id doubles as the storage key.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string
	// Embedding is populated for prebuilt chunks supplied by the caller;
	// chunks produced by the chunker get theirs attached store-side during
	// the pipelined write.
	Embedding []float32
	// Metadata inherits the document's metadata and may be overridden per
	// chunk.
	Metadata map[string]any
}

// StoredChunk is a chunk as read back from the store, carrying the
// document-level fields denormalized onto every chunk record.
type StoredChunk struct {
	Chunk
	DocumentName string
	AddedAt      time.Time
}

// Document is materialized as the union of its chunks plus denormalized
// name and metadata; it is never stored as a single record.
type Document struct {
	ID         string
	Name       string
	Metadata   map[string]any
	ChunkCount int
	AddedAt    time.Time
}
