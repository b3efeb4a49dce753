package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"elasticrag/internal/domain"
	"elasticrag/internal/usecase/retrieval"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// chunkWriteConcurrency bounds the fan-out of per-chunk index writes.
const chunkWriteConcurrency = 4

// EncoderFactory builds a query-time encoder for a registered model.
type EncoderFactory func(cfg domain.ModelConfig) (domain.VectorEncoder, error)

// CollectionManager opens collections, provisioning their backing index on
// first use.
type CollectionManager struct {
	models    ModelRegistry
	indices   domain.IndexAdmin
	chunks    domain.ChunkRepository
	searcher  domain.Searcher
	extractor domain.TextExtractor
	chunker   domain.Chunker
	encoders  EncoderFactory
}

func NewCollectionManager(
	models ModelRegistry,
	indices domain.IndexAdmin,
	chunks domain.ChunkRepository,
	searcher domain.Searcher,
	extractor domain.TextExtractor,
	chunker domain.Chunker,
	encoders EncoderFactory,
) *CollectionManager {
	return &CollectionManager{
		models:    models,
		indices:   indices,
		chunks:    chunks,
		searcher:  searcher,
		extractor: extractor,
		chunker:   chunker,
		encoders:  encoders,
	}
}

// Open returns a handle on a collection, creating its backing index when
// absent. A collection created under one model cannot be reopened under
// another: forceRecreate tears the old index down, otherwise the call fails
// with ErrCollectionModelMismatch.
func (m *CollectionManager) Open(ctx context.Context, username, collection, modelID string, forceRecreate bool) (*Collection, error) {
	indexName, err := domain.IndexName(username, collection, modelID)
	if err != nil {
		return nil, err
	}

	var model *domain.ModelConfig
	if modelID != "" {
		model, err = m.models.Get(ctx, modelID)
		if err != nil {
			return nil, err
		}
	}

	// Any index for this (user, collection) pair under a different name
	// means the pair is already bound to a different model.
	existing, err := m.indices.ListIndices(ctx, []string{
		"*__" + username + "__" + collection,
		username + "__" + collection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collection indices: %w", err)
	}
	for _, info := range existing {
		if info.Name == indexName {
			continue
		}
		if !forceRecreate {
			return nil, fmt.Errorf("collection %q of %q is bound to index %q: %w",
				collection, username, info.Name, domain.ErrCollectionModelMismatch)
		}
		if err := m.indices.DeleteIndex(ctx, info.Name); err != nil {
			return nil, fmt.Errorf("failed to delete index %q: %w", info.Name, err)
		}
		slog.InfoContext(ctx, "collection_rebound",
			slog.String("old_index", info.Name),
			slog.String("new_index", indexName),
		)
	}

	exists, err := m.indices.IndexExists(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to check index: %w", err)
	}
	if !exists {
		if model != nil {
			// Mapping and default pipeline come from the model template.
			err = m.indices.CreateVectorIndex(ctx, indexName)
		} else {
			err = m.indices.CreateLexicalIndex(ctx, indexName)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create index %q: %w", indexName, err)
		}
	}

	var encoder domain.VectorEncoder
	if model != nil {
		encoder, err = m.encoders(*model)
		if err != nil {
			return nil, fmt.Errorf("failed to build encoder for %q: %w", model.ModelID, err)
		}
	}

	var pipeline string
	if model != nil {
		pipeline = model.PipelineID()
	}

	return &Collection{
		Username: username,
		Name:     collection,
		Index:    indexName,
		model:    model,
		pipeline: pipeline,
		indices:  m.indices,
		chunks:   m.chunks,
		chunker:  m.chunker,
		ext:      m.extractor,
		engine:   retrieval.NewEngine(indexName, m.searcher, encoder),
	}, nil
}

// Collection is a handle on one user collection and its backing index.
type Collection struct {
	Username string
	Name     string
	Index    string

	model    *domain.ModelConfig
	pipeline string
	indices  domain.IndexAdmin
	chunks   domain.ChunkRepository
	chunker  domain.Chunker
	ext      domain.TextExtractor
	engine   *retrieval.Engine
}

// ModelID returns the bound model id, or "" for lexical-only collections.
func (c *Collection) ModelID() string {
	if c.model == nil {
		return ""
	}
	return c.model.ModelID
}

// ContentSource is one content variant of a document. Exactly one variant
// goes into every Add; a nil source is ErrInvalidInput. Carrying the variant
// explicitly keeps "text given but empty" distinct from "no text given".
type ContentSource interface {
	contentSource()
}

// TextContent ingests raw text. Empty text is a named ErrEmptyDocument.
type TextContent struct {
	Text string
}

// FileContent ingests file bytes; Name's extension picks the extractor.
type FileContent struct {
	Data []byte
	Name string
}

// ChunkContent ingests caller-chunked (optionally pre-embedded) content.
type ChunkContent struct {
	Chunks []domain.Chunk
}

func (TextContent) contentSource()  {}
func (FileContent) contentSource()  {}
func (ChunkContent) contentSource() {}

// AddDocumentInput names a document and its content source.
type AddDocumentInput struct {
	// DocumentID defaults to a random uuid when empty.
	DocumentID string
	Name       string
	Source     ContentSource

	// Metadata is inherited by every chunk; chunk-level keys win.
	Metadata map[string]any
}

// AddResult reports one ingestion.
type AddResult struct {
	DocumentID string
	ChunkCount int
	// StaleDeleted counts chunks of an earlier version removed by
	// reconciliation.
	StaleDeleted int
}

// Add ingests one document version: chunk, write every chunk under its
// stable id, then delete stale ordinals from the previous version. Writes
// fan out concurrently; reconciliation runs only after every write is
// acknowledged, so a failed run never deletes surviving chunks.
func (c *Collection) Add(ctx context.Context, input AddDocumentInput) (*AddResult, error) {
	chunks, err := c.buildChunks(input)
	if err != nil {
		return nil, err
	}
	docID := chunks[0].DocumentID

	name := input.Name
	if name == "" {
		name = docID
	}
	addedAt := time.Now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkWriteConcurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			if err := c.chunks.PutChunk(gctx, c.Index, c.pipeline, chunk, name, addedAt); err != nil {
				return fmt.Errorf("failed to put chunk %q: %w", chunk.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stale, err := c.chunks.DeleteStale(ctx, c.Index, docID, len(chunks))
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile stale chunks: %w", err)
	}

	slog.InfoContext(ctx, "document_added",
		slog.String("index", c.Index),
		slog.String("document_id", docID),
		slog.Int("chunk_count", len(chunks)),
		slog.Int("stale_deleted", stale),
	)
	return &AddResult{
		DocumentID:   docID,
		ChunkCount:   len(chunks),
		StaleDeleted: stale,
	}, nil
}

// buildChunks resolves the tagged content union into the chunk list to
// write.
func (c *Collection) buildChunks(input AddDocumentInput) ([]domain.Chunk, error) {
	if input.Source == nil {
		return nil, fmt.Errorf("a content source must be set: %w", domain.ErrInvalidInput)
	}

	docID := input.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}

	var text string
	switch src := input.Source.(type) {
	case TextContent:
		text = src.Text
	case FileContent:
		ext := strings.ToLower(filepath.Ext(src.Name))
		extracted, err := c.ext.ExtractBytes(src.Data, ext)
		if err != nil {
			return nil, fmt.Errorf("failed to extract %q: %w", src.Name, err)
		}
		text = extracted
	case ChunkContent:
		return c.adoptChunks(docID, src.Chunks, input.Metadata)
	default:
		return nil, fmt.Errorf("unsupported content source %T: %w", src, domain.ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %q has no content: %w", docID, domain.ErrEmptyDocument)
	}

	chunks := c.chunker.Chunk(docID, text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %q produced no chunks: %w", docID, domain.ErrEmptyDocument)
	}
	for i := range chunks {
		chunks[i].Metadata = mergeMetadata(input.Metadata, chunks[i].Metadata)
	}
	return chunks, nil
}

// adoptChunks validates caller-supplied chunks and assigns their ordinals
// and ids.
func (c *Collection) adoptChunks(docID string, supplied []domain.Chunk, metadata map[string]any) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, len(supplied))
	empty := true
	for i, chunk := range supplied {
		if chunk.Embedding != nil {
			if c.model == nil {
				return nil, fmt.Errorf("chunk %d carries an embedding but the collection has no model: %w", i, domain.ErrInvalidConfig)
			}
			if len(chunk.Embedding) != c.model.Dimensions {
				return nil, fmt.Errorf("chunk %d embedding has %d dimensions, model %q wants %d: %w",
					i, len(chunk.Embedding), c.model.ModelID, c.model.Dimensions, domain.ErrInvalidConfig)
			}
		}
		if strings.TrimSpace(chunk.Content) != "" {
			empty = false
		}
		chunk.DocumentID = docID
		chunk.Ordinal = i
		chunk.ID = domain.ChunkID(docID, i)
		chunk.Metadata = mergeMetadata(metadata, chunk.Metadata)
		chunks[i] = chunk
	}
	if empty {
		return nil, fmt.Errorf("document %q has no content: %w", docID, domain.ErrEmptyDocument)
	}
	return chunks, nil
}

// GetDocument returns a document's chunks ordered by ordinal.
func (c *Collection) GetDocument(ctx context.Context, documentID string) ([]domain.StoredChunk, error) {
	chunks, err := c.chunks.GetDocumentChunks(ctx, c.Index, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %q: %w", documentID, domain.ErrDocumentNotFound)
	}
	return chunks, nil
}

// DeleteDocument removes every chunk of a document. Deleting an absent
// document is a no-op reporting zero.
func (c *Collection) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	deleted, err := c.chunks.DeleteDocument(ctx, c.Index, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}
	return deleted, nil
}

// ListDocuments aggregates distinct documents newest first.
func (c *Collection) ListDocuments(ctx context.Context, offset, limit int) ([]domain.Document, int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, total, err := c.chunks.ListDocuments(ctx, c.Index, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

// Search answers a hybrid query over the collection.
func (c *Collection) Search(ctx context.Context, req retrieval.Request) (*retrieval.Response, error) {
	return c.engine.Search(ctx, req)
}

// Drop deletes the backing index and everything in it.
func (c *Collection) Drop(ctx context.Context) error {
	if err := c.indices.DeleteIndex(ctx, c.Index); err != nil {
		return fmt.Errorf("failed to drop collection index: %w", err)
	}
	return nil
}

func mergeMetadata(base, override map[string]any) map[string]any {
	if len(base) == 0 {
		return override
	}
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
