// Package retrieval runs hybrid lexical+vector queries over a collection
// index and fuses the two result lists.
package retrieval

import "elasticrag/internal/domain"

// Request is one retrieval query against a collection.
type Request struct {
	Query string
	// Filter restricts hits by chunk metadata. Scalar values match
	// exactly; slice values match any element.
	Filter map[string]any
	Size   int
	// IncludeEmbedding returns each hit's stored vector.
	IncludeEmbedding bool
}

// Result is one fused hit.
type Result struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	Content      string
	Metadata     map[string]any
	Embedding    []float32
	Score        float64
}

// Response carries the fused hits. Degraded marks a partial answer: one
// retrieval leg failed or the query could not be embedded, and the
// surviving leg answered alone.
type Response struct {
	Results  []Result
	Degraded bool
}

func resultFromHit(hit domain.SearchHit) Result {
	return Result{
		ChunkID:      hit.ChunkID,
		DocumentID:   hit.DocumentID,
		DocumentName: hit.DocumentName,
		Content:      hit.Content,
		Metadata:     hit.Metadata,
		Embedding:    hit.Embedding,
		Score:        hit.Score,
	}
}
