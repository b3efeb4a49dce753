package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"elasticrag/internal/domain"
)

const defaultSize = 10

// Engine answers hybrid queries for one collection index. encoder is nil for
// lexical-only collections.
type Engine struct {
	index    string
	searcher domain.Searcher
	encoder  domain.VectorEncoder
}

func NewEngine(index string, searcher domain.Searcher, encoder domain.VectorEncoder) *Engine {
	return &Engine{
		index:    index,
		searcher: searcher,
		encoder:  encoder,
	}
}

// Search runs the lexical and vector legs concurrently and fuses the lists.
// One leg failing degrades the answer to the surviving leg; both failing is
// a transient error.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is empty: %w", domain.ErrInvalidInput)
	}
	size := req.Size
	if size <= 0 {
		size = defaultSize
	}
	// Each leg over-fetches so fusion has candidates beyond the cut.
	candidates := size * 2
	start := time.Now()

	degraded := false
	var vector []float32
	if e.encoder != nil {
		vectors, err := e.encoder.Encode(ctx, []string{req.Query})
		if err != nil || len(vectors) != 1 {
			// Embedder down: answer from the lexical leg alone.
			slog.WarnContext(ctx, "query_embedding_failed",
				slog.String("index", e.index),
				slog.Any("error", err),
			)
			degraded = true
		} else {
			vector = vectors[0]
		}
	}

	var (
		wg              sync.WaitGroup
		lexHits         []domain.SearchHit
		lexErr          error
		vecHits         []domain.SearchHit
		vecErr          error
		vectorAttempted = vector != nil
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		lexHits, lexErr = e.searcher.LexicalSearch(ctx, e.index, req.Query, req.Filter, candidates, req.IncludeEmbedding)
	}()
	if vectorAttempted {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecHits, vecErr = e.searcher.VectorSearch(ctx, e.index, vector, req.Filter, candidates, req.IncludeEmbedding)
		}()
	}
	wg.Wait()

	if lexErr != nil && (!vectorAttempted || vecErr != nil) {
		return nil, &domain.TransientError{Op: "hybrid_search", Err: lexErr}
	}
	if lexErr != nil || (vectorAttempted && vecErr != nil) {
		failed := lexErr
		if failed == nil {
			failed = vecErr
		}
		slog.WarnContext(ctx, "search_leg_failed",
			slog.String("index", e.index),
			slog.String("error", failed.Error()),
		)
		degraded = true
	}

	var results []Result
	switch {
	case lexErr == nil && vectorAttempted && vecErr == nil:
		results = fuseRRF(lexHits, vecHits, size)
	case lexErr == nil:
		results = singleList(lexHits, size)
	default:
		results = singleList(vecHits, size)
	}

	slog.DebugContext(ctx, "search_completed",
		slog.String("index", e.index),
		slog.Int("result_count", len(results)),
		slog.Bool("degraded", degraded),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return &Response{Results: results, Degraded: degraded}, nil
}
