package retrieval

import (
	"math"
	"sort"

	"elasticrag/internal/domain"
)

// rrfK is the reciprocal rank fusion constant: a hit at rank r in one list
// contributes 1/(rrfK+r) to its fused score.
const rrfK = 60

type fusedEntry struct {
	result      Result
	score       float64
	lexicalRank int
}

// fuseRRF fuses the two ranked lists, deduplicating by chunk id. Output is
// ordered by fused score descending; ties break on lexical rank ascending
// (chunks absent from the lexical list last), then chunk id ascending.
func fuseRRF(lexical, vector []domain.SearchHit, size int) []Result {
	entries := make(map[string]*fusedEntry, len(lexical)+len(vector))

	merge := func(hits []domain.SearchHit, isLexical bool) {
		for i, hit := range hits {
			rank := i + 1
			entry, ok := entries[hit.ChunkID]
			if !ok {
				entry = &fusedEntry{result: resultFromHit(hit), lexicalRank: math.MaxInt}
				entries[hit.ChunkID] = entry
			}
			entry.score += 1.0 / float64(rrfK+rank)
			if isLexical {
				entry.lexicalRank = rank
			}
		}
	}
	merge(lexical, true)
	merge(vector, false)

	fused := make([]*fusedEntry, 0, len(entries))
	for _, entry := range entries {
		fused = append(fused, entry)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		if fused[i].lexicalRank != fused[j].lexicalRank {
			return fused[i].lexicalRank < fused[j].lexicalRank
		}
		return fused[i].result.ChunkID < fused[j].result.ChunkID
	})

	if len(fused) > size {
		fused = fused[:size]
	}
	results := make([]Result, 0, len(fused))
	for _, entry := range fused {
		r := entry.result
		r.Score = entry.score
		results = append(results, r)
	}
	return results
}

// singleList returns one leg's hits with their raw store scores, truncated.
func singleList(hits []domain.SearchHit, size int) []Result {
	if len(hits) > size {
		hits = hits[:size]
	}
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, resultFromHit(hit))
	}
	return results
}
