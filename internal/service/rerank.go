package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/models"
)

const defaultRerankTimeout = 5 * time.Second

var errRerankShape = errors.New("reranker score count does not match candidates")

// RerankAdapter reorders fused candidates with an external reranker and keeps
// the top results. Every score it returns lies in [0,1].
type RerankAdapter struct {
	reranker Reranker
	timeout  time.Duration
	log      *logrus.Logger
}

// NewRerankAdapter creates a RerankAdapter. A nil reranker always falls back
// to fused order.
func NewRerankAdapter(reranker Reranker, timeout time.Duration, log *logrus.Logger) *RerankAdapter {
	if timeout <= 0 {
		timeout = defaultRerankTimeout
	}

	return &RerankAdapter{reranker: reranker, timeout: timeout, log: log}
}

// Enabled reports whether an external reranker is configured.
func (a *RerankAdapter) Enabled() bool {
	return a.reranker != nil
}

// Rerank scores the fused pool and returns the best keep results. When the
// reranker is missing, fails or times out, the fused order is kept with
// normalized RRF scores and reranked is false.
func (a *RerankAdapter) Rerank(
	ctx context.Context,
	query string,
	fused *HybridResult,
	k, keep int,
) (results []models.RankedResult, reranked bool) {
	pool := fused.Candidates

	if len(pool) == 0 {
		return []models.RankedResult{}, a.reranker != nil && query != ""
	}

	if a.reranker == nil || query == "" {
		return fusedOrder(fused, k, keep), false
	}

	docs := make([]string, len(pool))
	for i := range pool {
		docs[i] = rerankText(&pool[i].Chunk)
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	raw, err := a.reranker.Rerank(rctx, query, docs)
	if err == nil && len(raw) != len(pool) {
		err = errRerankShape
	}

	if err != nil {
		a.log.WithError(err).WithField("candidates", len(pool)).Warn("rerank unavailable, keeping fused order")

		return fusedOrder(fused, k, keep), false
	}

	scores := normalizeRerankScores(raw)
	results = make([]models.RankedResult, len(pool))

	for i := range pool {
		results[i] = newRanked(fused, i, k)
		results[i].Score = scores[i]
		results[i].Debug.RerankScore = raw[i]
	}

	sortRanked(results)

	if keep > 0 && len(results) > keep {
		results = results[:keep]
	}

	return results, true
}

func fusedOrder(fused *HybridResult, k, keep int) []models.RankedResult {
	n := len(fused.Candidates)
	if keep > 0 && n > keep {
		n = keep
	}

	out := make([]models.RankedResult, n)
	for i := range n {
		out[i] = newRanked(fused, i, k)
	}

	return out
}

func newRanked(fused *HybridResult, i, k int) models.RankedResult {
	f := fused.Candidates[i]
	dbg := &models.RankDebug{FusedScore: f.Score}

	for li, src := range fused.Sources {
		if li >= len(f.Ranks) {
			break
		}

		switch src {
		case sourceDense:
			dbg.DenseRank = f.Ranks[li]
		case sourceLexical:
			dbg.LexicalRank = f.Ranks[li]
		}
	}

	return models.RankedResult{
		Chunk:  f.Chunk,
		Score:  NormalizeRRF(f.Score, k, len(fused.Sources)),
		Origin: models.OriginRetrieved,
		Debug:  dbg,
	}
}

// normalizeRerankScores passes scores through when they already lie in
// [0,1]; otherwise they are treated as logits and squashed with a sigmoid.
func normalizeRerankScores(raw []float64) []float64 {
	inRange := true

	for _, s := range raw {
		if s < 0 || s > 1 || math.IsNaN(s) {
			inRange = false

			break
		}
	}

	out := make([]float64, len(raw))

	for i, s := range raw {
		switch {
		case math.IsNaN(s):
			out[i] = 0
		case inRange:
			out[i] = s
		default:
			out[i] = clamp01(1 / (1 + math.Exp(-s)))
		}
	}

	return out
}

// rerankText is the passage a reranker sees for a chunk.
func rerankText(c *models.Chunk) string {
	var b strings.Builder

	if title := c.Meta.Title(); title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}

	if c.Sender != "" {
		b.WriteString(c.Sender)
		b.WriteString(": ")
	}

	b.WriteString(c.Text)

	return b.String()
}

var originRank = map[models.Origin]int{
	models.OriginRetrieved: 0,
	models.OriginSibling:   1,
	models.OriginTemporal:  2,
	models.OriginGraph:     3,
	models.OriginRecency:   4,
}

// sortRanked orders by score descending. Equal scores put retrieved results
// ahead of expansion, then order by chunk id.
func sortRanked(rs []models.RankedResult) {
	sort.SliceStable(rs, func(a, b int) bool {
		if rs[a].Score != rs[b].Score {
			return rs[a].Score > rs[b].Score
		}

		if oa, ob := originRank[rs[a].Origin], originRank[rs[b].Origin]; oa != ob {
			return oa < ob
		}

		return rs[a].Chunk.ID < rs[b].Chunk.ID
	})
}
