package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/recall/internal/models"
)

// SearchIndex defines the dense and lexical search methods HybridRetriever depends on.
type SearchIndex interface {
	DenseSearch(ctx context.Context, embedding []float32, filters models.Filters, limit int) ([]models.ScoredChunk, error)
	LexicalSearch(ctx context.Context, q models.LexicalQuery, filters models.Filters, limit int) ([]models.ScoredChunk, error)
}

// Ranked list names.
const (
	sourceDense   = "dense"
	sourceLexical = "lexical"
)

// HybridQuery is one fused search request.
type HybridQuery struct {
	// Text is embedded for the dense list. Empty text skips dense search.
	Text    string
	Lexical models.LexicalQuery
	Filters models.Filters
	Limit   int
}

// HybridResult holds fused candidates and any degradation flags.
type HybridResult struct {
	Candidates []Fused
	// Sources names each contributing list in Fused.Ranks order.
	Sources []string
	Flags   []models.Flag
}

// HybridRetriever runs dense and lexical search under identical filters and
// fuses them with reciprocal rank fusion.
type HybridRetriever struct {
	index        SearchIndex
	embedder     Embedder
	k            int
	embedTimeout time.Duration
	log          *logrus.Logger
}

// NewHybridRetriever creates a HybridRetriever. A nil embedder disables dense search.
func NewHybridRetriever(index SearchIndex, embedder Embedder, k int, log *logrus.Logger) *HybridRetriever {
	if k <= 0 {
		k = DefaultRRFK
	}

	return &HybridRetriever{index: index, embedder: embedder, k: k, embedTimeout: embeddingTimeout, log: log}
}

// K returns the fusion constant.
func (r *HybridRetriever) K() int { return r.k }

// Search returns fused candidates. Failure of one list degrades to the other
// with a flag; an error is returned only when every list searched failed. A
// query whose text leaves no lexical terms (only stopwords) skips the lexical
// list, so filter-only recency never stands in for term relevance.
func (r *HybridRetriever) Search(ctx context.Context, q HybridQuery) (*HybridResult, error) {
	var (
		dense, lexical       []models.ScoredChunk
		denseErr, lexicalErr error
		g                    errgroup.Group
	)

	wantDense := q.Text != ""
	wantLexical := q.Text == "" || !q.Lexical.IsEmpty()

	if wantDense {
		g.Go(func() error {
			dense, denseErr = r.denseSearch(ctx, q)

			return nil
		})
	}

	if wantLexical {
		g.Go(func() error {
			lexical, lexicalErr = r.index.LexicalSearch(ctx, q.Lexical, q.Filters, q.Limit)

			return nil
		})
	}

	_ = g.Wait()

	res := &HybridResult{}
	lists := make([][]models.ScoredChunk, 0, 2)

	if wantDense {
		if denseErr != nil {
			r.log.WithError(denseErr).Warn("dense search unavailable, continuing lexical-only")
			res.Flags = append(res.Flags, models.FlagDenseUnavailable)
		} else {
			lists = append(lists, dense)
			res.Sources = append(res.Sources, sourceDense)
		}
	}

	switch {
	case !wantLexical:
	case lexicalErr != nil:
		r.log.WithError(lexicalErr).Warn("lexical search unavailable")
		res.Flags = append(res.Flags, models.FlagLexicalUnavailable)
	default:
		lists = append(lists, lexical)
		res.Sources = append(res.Sources, sourceLexical)
	}

	if len(lists) == 0 {
		return nil, fmt.Errorf("hybrid search: %w", errors.Join(models.ErrServiceUnavailable, denseErr, lexicalErr))
	}

	res.Candidates = FuseRRF(r.k, lists...)

	if q.Limit > 0 && len(res.Candidates) > q.Limit {
		res.Candidates = res.Candidates[:q.Limit]
	}

	return res, nil
}

func (r *HybridRetriever) denseSearch(ctx context.Context, q HybridQuery) ([]models.ScoredChunk, error) {
	if r.embedder == nil {
		return nil, errors.New("no embedder configured")
	}

	ectx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	emb, err := r.embedder.Generate(ectx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return r.index.DenseSearch(ctx, emb, q.Filters, q.Limit)
}
