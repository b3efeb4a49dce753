package esstore

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"elasticrag/internal/domain"
)

// ChunkRepository stores chunk records inside collection indices.
type ChunkRepository struct {
	client *Client
}

func NewChunkRepository(client *Client) *ChunkRepository {
	return &ChunkRepository{client: client}
}

// chunkDoc is the wire form of a stored chunk.
type chunkDoc struct {
	DocumentID   string         `json:"document_id"`
	DocumentName string         `json:"document_name"`
	Ordinal      int            `json:"ordinal"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	AddedAt      time.Time      `json:"added_at"`
	Embedding    []float32      `json:"embedding,omitempty"`
}

func (r *ChunkRepository) PutChunk(ctx context.Context, index, pipeline string, chunk domain.Chunk, documentName string, addedAt time.Time) error {
	doc := chunkDoc{
		DocumentID:   chunk.DocumentID,
		DocumentName: documentName,
		Ordinal:      chunk.Ordinal,
		Content:      chunk.Content,
		Metadata:     chunk.Metadata,
		AddedAt:      addedAt,
		Embedding:    chunk.Embedding,
	}

	path := "/" + pathEscape(index) + "/_doc/" + pathEscape(chunk.ID) + "?refresh=wait_for"
	switch {
	case chunk.Embedding != nil:
		// The chunk carries its own vector; skip the index default pipeline.
		path += "&pipeline=_none"
	case pipeline != "":
		path += "&pipeline=" + pathEscape(pipeline)
	}

	status, data, err := r.client.send(ctx, "put_chunk", http.MethodPut, path, doc)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return unexpectedStatus("put_chunk", status, data)
	}
	return nil
}

func (r *ChunkRepository) DeleteStale(ctx context.Context, index, documentID string, fromOrdinal int) (int, error) {
	query := map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{"term": map[string]any{"document_id": documentID}},
				{"range": map[string]any{"ordinal": map[string]any{"gte": fromOrdinal}}},
			},
		},
	}
	return r.deleteByQuery(ctx, "delete_stale_chunks", index, query)
}

func (r *ChunkRepository) DeleteDocument(ctx context.Context, index, documentID string) (int, error) {
	query := map[string]any{
		"term": map[string]any{"document_id": documentID},
	}
	deleted, err := r.deleteByQuery(ctx, "delete_document", index, query)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		slog.InfoContext(ctx, "document_chunks_deleted",
			slog.String("index", index),
			slog.String("document_id", documentID),
			slog.Int("deleted", deleted),
		)
	}
	return deleted, nil
}

func (r *ChunkRepository) deleteByQuery(ctx context.Context, op, index string, query map[string]any) (int, error) {
	body := map[string]any{"query": query}
	path := "/" + pathEscape(index) + "/_delete_by_query?refresh=true"
	status, data, err := r.client.send(ctx, op, http.MethodPost, path, body)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, nil
	}
	if status != http.StatusOK {
		return 0, unexpectedStatus(op, status, data)
	}

	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := decode(op, data, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

type searchHit struct {
	ID     string   `json:"_id"`
	Score  *float64 `json:"_score"`
	Source chunkDoc `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

func (r *ChunkRepository) GetDocumentChunks(ctx context.Context, index, documentID string) ([]domain.StoredChunk, error) {
	body := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"document_id": documentID},
		},
		"sort": []map[string]any{
			{"ordinal": map[string]any{"order": "asc"}},
		},
		"size": 10000,
	}
	path := "/" + pathEscape(index) + "/_search"
	status, data, err := r.client.send(ctx, "get_document_chunks", http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, unexpectedStatus("get_document_chunks", status, data)
	}

	var resp searchResponse
	if err := decode("get_document_chunks", data, &resp); err != nil {
		return nil, err
	}

	chunks := make([]domain.StoredChunk, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		chunks = append(chunks, domain.StoredChunk{
			Chunk: domain.Chunk{
				ID:         hit.ID,
				DocumentID: hit.Source.DocumentID,
				Ordinal:    hit.Source.Ordinal,
				Content:    hit.Source.Content,
				Embedding:  hit.Source.Embedding,
				Metadata:   hit.Source.Metadata,
			},
			DocumentName: hit.Source.DocumentName,
			AddedAt:      hit.Source.AddedAt,
		})
	}
	return chunks, nil
}

func (r *ChunkRepository) ListDocuments(ctx context.Context, index string, offset, limit int) ([]domain.Document, int, error) {
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"total_documents": map[string]any{
				"cardinality": map[string]any{"field": "document_id"},
			},
			"documents": map[string]any{
				"terms": map[string]any{
					"field": "document_id",
					"size":  offset + limit,
					"order": map[string]any{"newest": "desc"},
				},
				"aggs": map[string]any{
					"newest": map[string]any{
						"max": map[string]any{"field": "added_at"},
					},
					"sample": map[string]any{
						"top_hits": map[string]any{
							"size":    1,
							"_source": []string{"document_name", "metadata", "added_at"},
						},
					},
				},
			},
		},
	}
	path := "/" + pathEscape(index) + "/_search"
	status, data, err := r.client.send(ctx, "list_documents", http.MethodPost, path, body)
	if err != nil {
		return nil, 0, err
	}
	if status == http.StatusNotFound {
		return nil, 0, nil
	}
	if status != http.StatusOK {
		return nil, 0, unexpectedStatus("list_documents", status, data)
	}

	var resp struct {
		Aggregations struct {
			TotalDocuments struct {
				Value int `json:"value"`
			} `json:"total_documents"`
			Documents struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int    `json:"doc_count"`
					Newest   struct {
						ValueAsString string `json:"value_as_string"`
					} `json:"newest"`
					Sample struct {
						Hits struct {
							Hits []searchHit `json:"hits"`
						} `json:"hits"`
					} `json:"sample"`
				} `json:"buckets"`
			} `json:"documents"`
		} `json:"aggregations"`
	}
	if err := decode("list_documents", data, &resp); err != nil {
		return nil, 0, err
	}

	buckets := resp.Aggregations.Documents.Buckets
	if offset >= len(buckets) {
		return nil, resp.Aggregations.TotalDocuments.Value, nil
	}
	buckets = buckets[offset:]

	docs := make([]domain.Document, 0, len(buckets))
	for _, bucket := range buckets {
		doc := domain.Document{
			ID:         bucket.Key,
			ChunkCount: bucket.DocCount,
		}
		if t, err := time.Parse(time.RFC3339, bucket.Newest.ValueAsString); err == nil {
			doc.AddedAt = t
		}
		if hits := bucket.Sample.Hits.Hits; len(hits) > 0 {
			doc.Name = hits[0].Source.DocumentName
			doc.Metadata = hits[0].Source.Metadata
		}
		docs = append(docs, doc)
	}
	return docs, resp.Aggregations.TotalDocuments.Value, nil
}

var _ domain.ChunkRepository = (*ChunkRepository)(nil)
