package service

import (
	"sort"

	"github.com/persistorai/recall/internal/models"
)

// DefaultRRFK is the reciprocal rank fusion constant.
const DefaultRRFK = 60

// Fused is one candidate after reciprocal rank fusion.
type Fused struct {
	Chunk models.Chunk
	// Score is the raw RRF sum. Use NormalizeRRF before comparing it
	// with other stages.
	Score float64
	// Ranks holds the 1-based rank in each input list, 0 where absent.
	Ranks []int
}

// FuseRRF merges ranked lists with score(d) = Σ 1/(k + rank_i(d)). Only list
// positions are used; per-list raw scores are ignored. Ties are broken by
// chunk id so the output is deterministic.
func FuseRRF(k int, lists ...[]models.ScoredChunk) []Fused {
	if k <= 0 {
		k = DefaultRRFK
	}

	index := make(map[string]int)
	out := make([]Fused, 0, 64)

	for li, list := range lists {
		for pos, sc := range list {
			i, ok := index[sc.ID]
			if !ok {
				i = len(out)
				index[sc.ID] = i
				out = append(out, Fused{Chunk: sc.Chunk, Ranks: make([]int, len(lists))})
			}

			if out[i].Ranks[li] != 0 {
				continue
			}

			rank := pos + 1
			out[i].Ranks[li] = rank
			out[i].Score += 1 / float64(k+rank)
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}

		return out[a].Chunk.ID < out[b].Chunk.ID
	})

	return out
}

// NormalizeRRF maps a raw RRF score over n lists into [0,1]: a document
// ranked first in every list scores 1.
func NormalizeRRF(score float64, k, n int) float64 {
	if n <= 0 {
		return 0
	}

	if k <= 0 {
		k = DefaultRRFK
	}

	return clamp01(score * float64(k+1) / float64(n))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}

	return v
}
