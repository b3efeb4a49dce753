package esstore

import (
	"context"
	"net/http"

	"elasticrag/internal/domain"
)

// Searcher runs the lexical and vector legs of a retrieval query.
type Searcher struct {
	client *Client
}

func NewSearcher(client *Client) *Searcher {
	return &Searcher{client: client}
}

func (s *Searcher) LexicalSearch(ctx context.Context, index, query string, filter map[string]any, size int, includeEmbedding bool) ([]domain.SearchHit, error) {
	must := []map[string]any{
		{"match": map[string]any{"content": query}},
	}
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   must,
				"filter": filterClauses(filter),
			},
		},
		"size": size,
	}
	if !includeEmbedding {
		body["_source"] = map[string]any{"excludes": []string{"embedding"}}
	}
	return s.search(ctx, "lexical_search", index, body)
}

func (s *Searcher) VectorSearch(ctx context.Context, index string, vector []float32, filter map[string]any, size int, includeEmbedding bool) ([]domain.SearchHit, error) {
	candidates := size * 4
	if candidates < 100 {
		candidates = 100
	}
	knn := map[string]any{
		"field":          "embedding",
		"query_vector":   vector,
		"k":              size,
		"num_candidates": candidates,
	}
	if clauses := filterClauses(filter); len(clauses) > 0 {
		knn["filter"] = map[string]any{
			"bool": map[string]any{"filter": clauses},
		}
	}
	body := map[string]any{
		"knn":  knn,
		"size": size,
	}
	if !includeEmbedding {
		body["_source"] = map[string]any{"excludes": []string{"embedding"}}
	}
	return s.search(ctx, "vector_search", index, body)
}

func (s *Searcher) search(ctx context.Context, op, index string, body map[string]any) ([]domain.SearchHit, error) {
	path := "/" + pathEscape(index) + "/_search"
	status, data, err := s.client.send(ctx, op, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, unexpectedStatus(op, status, data)
	}

	var resp searchResponse
	if err := decode(op, data, &resp); err != nil {
		return nil, err
	}

	hits := make([]domain.SearchHit, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		score := 0.0
		if hit.Score != nil {
			score = *hit.Score
		}
		hits = append(hits, domain.SearchHit{
			ChunkID:      hit.ID,
			DocumentID:   hit.Source.DocumentID,
			DocumentName: hit.Source.DocumentName,
			Content:      hit.Source.Content,
			Metadata:     hit.Source.Metadata,
			Embedding:    hit.Source.Embedding,
			Score:        score,
		})
	}
	return hits, nil
}

// filterClauses turns a metadata filter into term clauses. A slice value
// matches any of its elements; scalars match exactly.
func filterClauses(filter map[string]any) []map[string]any {
	clauses := make([]map[string]any, 0, len(filter))
	for key, value := range filter {
		field := "metadata." + key
		switch v := value.(type) {
		case []any:
			clauses = append(clauses, map[string]any{"terms": map[string]any{field: v}})
		case []string:
			clauses = append(clauses, map[string]any{"terms": map[string]any{field: v}})
		default:
			clauses = append(clauses, map[string]any{"term": map[string]any{field: v}})
		}
	}
	return clauses
}

var _ domain.Searcher = (*Searcher)(nil)
