package domain

import (
	"context"
	"time"
)

// UserRepository persists user records in the auth index.
type UserRepository interface {
	// EnsureIndex creates the auth index when absent.
	EnsureIndex(ctx context.Context) error

	// Put creates or replaces a user record.
	Put(ctx context.Context, user User) error

	// Get retrieves a user by username. Returns nil, nil if not found.
	Get(ctx context.Context, username string) (*User, error)

	// UpdateFields applies a partial update to a user record.
	UpdateFields(ctx context.Context, username string, fields map[string]any) error

	// Delete removes a user record. Returns false when no record existed.
	Delete(ctx context.Context, username string) (bool, error)

	// List returns users newest first with the total count.
	List(ctx context.Context, offset, limit int) ([]User, int, error)
}

// ModelResourceStore manages the three store-side resources derived from a
// model: its inference endpoint, its ingest pipeline and its index template.
type ModelResourceStore interface {
	PutInference(ctx context.Context, cfg ModelConfig) error
	// GetInference retrieves the config behind an inference endpoint.
	// Returns nil, nil if not found.
	GetInference(ctx context.Context, inferenceID string) (*ModelConfig, error)
	// ListInferences returns the configs of every endpoint provisioned by
	// this system.
	ListInferences(ctx context.Context) ([]ModelConfig, error)
	DeleteInference(ctx context.Context, inferenceID string) error

	PutPipeline(ctx context.Context, pipelineID, inferenceID string) error
	HasPipeline(ctx context.Context, pipelineID string) (bool, error)
	DeletePipeline(ctx context.Context, pipelineID string) error

	PutTemplate(ctx context.Context, name, indexPattern, pipelineID string, dimensions int) error
	HasTemplate(ctx context.Context, name string) (bool, error)
	DeleteTemplate(ctx context.Context, name string) error
}

// IndexInfo describes a backing index as reported by the store.
type IndexInfo struct {
	Name     string
	Health   string
	Status   string
	DocCount int
}

// IndexAdmin manages collection indices.
type IndexAdmin interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	// CreateVectorIndex creates an index whose mapping comes from the bound
	// model's template. "Already exists" from a concurrent creation is
	// treated as success.
	CreateVectorIndex(ctx context.Context, name string) error
	// CreateLexicalIndex creates an index with the chunk mapping but no
	// vector field, for collections without a bound model.
	CreateLexicalIndex(ctx context.Context, name string) error
	DeleteIndex(ctx context.Context, name string) error
	ListIndices(ctx context.Context, patterns []string) ([]IndexInfo, error)
}

// ChunkRepository reads and writes chunk records inside a collection index.
type ChunkRepository interface {
	// PutChunk writes one chunk under its chunk id. pipeline names the
	// ingest pipeline computing the embedding store-side; "" writes plain,
	// and a chunk carrying its own embedding bypasses the default pipeline.
	PutChunk(ctx context.Context, index, pipeline string, chunk Chunk, documentName string, addedAt time.Time) error

	// DeleteStale removes chunks of a document at or beyond fromOrdinal.
	// Runs only after all new-chunk writes are acknowledged.
	DeleteStale(ctx context.Context, index, documentID string, fromOrdinal int) (int, error)

	// DeleteDocument removes every chunk of a document. Returns the number
	// removed; zero is not an error.
	DeleteDocument(ctx context.Context, index, documentID string) (int, error)

	// GetDocumentChunks returns a document's chunks ordered by ordinal.
	GetDocumentChunks(ctx context.Context, index, documentID string) ([]StoredChunk, error)

	// ListDocuments aggregates distinct documents newest first.
	ListDocuments(ctx context.Context, index string, offset, limit int) ([]Document, int, error)
}

// SearchHit is a single chunk returned by one retrieval leg.
type SearchHit struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	Content      string
	Metadata     map[string]any
	Embedding    []float32
	Score        float64
}

// Searcher runs the two retrieval legs of a hybrid query against a
// collection index.
type Searcher interface {
	// LexicalSearch runs a relevance query over chunk content.
	LexicalSearch(ctx context.Context, index, query string, filter map[string]any, size int, includeEmbedding bool) ([]SearchHit, error)
	// VectorSearch runs a similarity query over the chunk embedding field.
	VectorSearch(ctx context.Context, index string, vector []float32, filter map[string]any, size int, includeEmbedding bool) ([]SearchHit, error)
}

// VectorEncoder defines the interface for generating embeddings.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}

// TextExtractor extracts plain text from binary file content.
type TextExtractor interface {
	ExtractBytes(content []byte, ext string) (string, error)
}
