package usecase

import (
	"context"
	"strings"
	"testing"

	"elasticrag/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	models map[string]domain.ModelConfig
}

func (f *fakeRegistry) Register(ctx context.Context, cfg domain.ModelConfig, force bool) error {
	f.models[cfg.ModelID] = cfg
	return nil
}

func (f *fakeRegistry) Get(ctx context.Context, modelID string) (*domain.ModelConfig, error) {
	cfg, ok := f.models[modelID]
	if !ok {
		return nil, domain.ErrModelNotFound
	}
	return &cfg, nil
}

func (f *fakeRegistry) List(ctx context.Context) ([]domain.ModelConfig, error) {
	return nil, nil
}

func (f *fakeRegistry) Delete(ctx context.Context, modelID string, force bool) error {
	delete(f.models, modelID)
	return nil
}

type managerFixture struct {
	manager *CollectionManager
	admin   *fakeIndexAdmin
	chunks  *fakeChunkRepo
}

func newTestManager(t *testing.T, indices ...string) *managerFixture {
	t.Helper()
	registry := &fakeRegistry{models: map[string]domain.ModelConfig{
		"bge-small": {
			ModelID:         "bge-small",
			Service:         domain.ServiceHuggingFace,
			ServiceSettings: map[string]any{"url": "http://embeddings:8080"},
			Dimensions:      4,
		},
	}}
	admin := newFakeIndexAdmin(indices...)
	chunks := newFakeChunkRepo()
	chunker, err := domain.NewWindowChunker(10, 2)
	require.NoError(t, err)

	manager := NewCollectionManager(
		registry,
		admin,
		chunks,
		&fakeSearcher{},
		fakeExtractor{},
		chunker,
		func(cfg domain.ModelConfig) (domain.VectorEncoder, error) {
			return &fakeEncoder{vector: []float32{1, 0, 0, 0}}, nil
		},
	)
	return &managerFixture{manager: manager, admin: admin, chunks: chunks}
}

func TestOpen_CreatesBackingIndex(t *testing.T) {
	fix := newTestManager(t)

	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)

	assert.Equal(t, "bge-small__alice__docs", coll.Index)
	exists, _ := fix.admin.IndexExists(context.Background(), "bge-small__alice__docs")
	assert.True(t, exists)
}

func TestOpen_UnknownModel(t *testing.T) {
	fix := newTestManager(t)

	_, err := fix.manager.Open(context.Background(), "alice", "docs", "missing", false)

	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}

func TestOpen_BindingIsImmutable(t *testing.T) {
	fix := newTestManager(t, "bge-small__alice__docs")

	// Reopening under no model must not shadow the bound index.
	_, err := fix.manager.Open(context.Background(), "alice", "docs", "", false)
	assert.ErrorIs(t, err, domain.ErrCollectionModelMismatch)
}

func TestOpen_ForceRecreateRebinds(t *testing.T) {
	fix := newTestManager(t, "alice__docs")

	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", true)
	require.NoError(t, err)

	assert.Equal(t, "bge-small__alice__docs", coll.Index)
	assert.Contains(t, fix.admin.deleted, "alice__docs")
}

func TestAdd_MissingSource(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)

	_, err = coll.Add(context.Background(), AddDocumentInput{DocumentID: "doc1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAdd_EmptyDocument(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)

	t.Run("empty text", func(t *testing.T) {
		_, err := coll.Add(context.Background(), AddDocumentInput{
			DocumentID: "doc1",
			Source:     TextContent{Text: ""},
		})
		assert.ErrorIs(t, err, domain.ErrEmptyDocument)
	})

	t.Run("whitespace text", func(t *testing.T) {
		_, err := coll.Add(context.Background(), AddDocumentInput{Source: TextContent{Text: "   \n\t  "}})
		assert.ErrorIs(t, err, domain.ErrEmptyDocument)
	})

	t.Run("blank chunks", func(t *testing.T) {
		_, err := coll.Add(context.Background(), AddDocumentInput{
			Source: ChunkContent{Chunks: []domain.Chunk{{Content: "  "}, {Content: ""}}},
		})
		assert.ErrorIs(t, err, domain.ErrEmptyDocument)
	})
}

func TestAdd_WritesChunksWithStableIDs(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)

	result, err := coll.Add(context.Background(), AddDocumentInput{
		DocumentID: "doc1",
		Name:       "notes",
		Source:     TextContent{Text: strings.Repeat("a", 40)},
		Metadata:   map[string]any{"lang": "en"},
	})
	require.NoError(t, err)

	assert.Equal(t, "doc1", result.DocumentID)
	assert.Equal(t, 5, result.ChunkCount)
	assert.Zero(t, result.StaleDeleted)

	stored, err := coll.GetDocument(context.Background(), "doc1")
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for i, chunk := range stored {
		assert.Equal(t, domain.ChunkID("doc1", i), chunk.ID)
		assert.Equal(t, i, chunk.Ordinal)
		assert.Equal(t, "notes", chunk.DocumentName)
		assert.Equal(t, map[string]any{"lang": "en"}, chunk.Metadata)
	}
}

func TestAdd_WritesThroughModelPipeline(t *testing.T) {
	fix := newTestManager(t)
	ctx := context.Background()

	coll, err := fix.manager.Open(ctx, "alice", "docs", "bge-small", false)
	require.NoError(t, err)
	_, err = coll.Add(ctx, AddDocumentInput{DocumentID: "doc1", Source: TextContent{Text: "hello world"}})
	require.NoError(t, err)
	assert.Equal(t, "bge-small__pipeline", fix.chunks.lastPipeline)

	lexical, err := fix.manager.Open(ctx, "alice", "plain", "", false)
	require.NoError(t, err)
	_, err = lexical.Add(ctx, AddDocumentInput{DocumentID: "doc2", Source: TextContent{Text: "hello world"}})
	require.NoError(t, err)
	assert.Empty(t, fix.chunks.lastPipeline, "lexical collections have no ingest pipeline")
}

func TestAdd_ReingestionReconcilesStaleChunks(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = coll.Add(ctx, AddDocumentInput{DocumentID: "doc1", Source: TextContent{Text: strings.Repeat("a", 40)}})
	require.NoError(t, err)
	require.Equal(t, 5, fix.chunks.documentChunkCount(coll.Index, "doc1"))

	result, err := coll.Add(ctx, AddDocumentInput{DocumentID: "doc1", Source: TextContent{Text: strings.Repeat("b", 20)}})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, 2, result.StaleDeleted, "ordinals 3 and 4 from the first version must go")
	assert.Equal(t, 3, fix.chunks.documentChunkCount(coll.Index, "doc1"))
}

func TestAdd_PrebuiltChunks(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := coll.Add(ctx, AddDocumentInput{
			Source: ChunkContent{Chunks: []domain.Chunk{{Content: "hello", Embedding: []float32{1, 2}}}},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	})

	t.Run("chunk metadata wins over document metadata", func(t *testing.T) {
		result, err := coll.Add(ctx, AddDocumentInput{
			DocumentID: "doc2",
			Source: ChunkContent{Chunks: []domain.Chunk{
				{Content: "first"},
				{Content: "second", Metadata: map[string]any{"lang": "ja"}},
			}},
			Metadata: map[string]any{"lang": "en", "source": "test"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.ChunkCount)

		stored, err := coll.GetDocument(ctx, "doc2")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"lang": "en", "source": "test"}, stored[0].Metadata)
		assert.Equal(t, map[string]any{"lang": "ja", "source": "test"}, stored[1].Metadata)
	})

	t.Run("embedding without model", func(t *testing.T) {
		lexical, err := fix.manager.Open(ctx, "alice", "plain", "", false)
		require.NoError(t, err)
		_, err = lexical.Add(ctx, AddDocumentInput{
			Source: ChunkContent{Chunks: []domain.Chunk{{Content: "hello", Embedding: []float32{1, 2, 3, 4}}}},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	})
}

func TestGetDocument_NotFound(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)

	_, err = coll.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDeleteDocument_AbsentIsNoop(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)

	deleted, err := coll.DeleteDocument(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestListDocuments_NewestFirst(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = coll.Add(ctx, AddDocumentInput{DocumentID: "older", Source: TextContent{Text: "first document"}})
	require.NoError(t, err)
	_, err = coll.Add(ctx, AddDocumentInput{DocumentID: "newer", Source: TextContent{Text: "second document"}})
	require.NoError(t, err)

	docs, total, err := coll.ListDocuments(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, docs, 2)
	assert.Equal(t, "newer", docs[0].ID)
	assert.Equal(t, "older", docs[1].ID)
}

func TestDrop_DeletesBackingIndex(t *testing.T) {
	fix := newTestManager(t)
	coll, err := fix.manager.Open(context.Background(), "alice", "docs", "bge-small", false)
	require.NoError(t, err)

	require.NoError(t, coll.Drop(context.Background()))
	assert.Contains(t, fix.admin.deleted, "bge-small__alice__docs")
}
