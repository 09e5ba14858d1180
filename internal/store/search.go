package store

import (
	"context"
	"fmt"

	"github.com/persistorai/recall/internal/models"
)

// SearchStore runs the dense and lexical candidate searches. Both are scoped
// by the same structural filter clause.
type SearchStore struct {
	Base
}

// NewSearchStore creates a new SearchStore.
func NewSearchStore(base Base) *SearchStore {
	return &SearchStore{Base: base}
}

// DenseSearch returns chunks nearest to embedding by cosine distance. Score is
// the cosine similarity and is only meaningful within this list.
func (s *SearchStore) DenseSearch(
	ctx context.Context,
	embedding []float32,
	filters models.Filters,
	limit int,
) ([]models.ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("dense search: empty embedding")
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	fb := &filterBuilder{}
	vec := fb.arg(vectorParam(embedding))
	fb.where("embedding IS NOT NULL")
	fb.applyFilters(filters)

	sql := `SELECT ` + chunkColumns + `, 1 - (embedding <=> ` + vec + `::vector) AS similarity
		FROM chunks
		WHERE ` + fb.clause() + `
		ORDER BY embedding <=> ` + vec + `::vector, id
		LIMIT ` + fb.arg(clampLimit(limit, 60))

	rows, err := s.Pool.Query(ctx, sql, fb.args...)
	if err != nil {
		return nil, fmt.Errorf("executing dense search: %w", err)
	}
	defer rows.Close()

	return collectScored(rows)
}

// LexicalSearch returns chunks matching any query term (prefix match on the
// 'simple' text search configuration) or linked to any query person. With an
// empty query it returns the newest chunks matching the filters.
func (s *SearchStore) LexicalSearch(
	ctx context.Context,
	q models.LexicalQuery,
	filters models.Filters,
	limit int,
) ([]models.ScoredChunk, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	fb := &filterBuilder{}

	tsq := "NULL::tsquery"
	if terms := tsQuery(q.Terms); terms != "" {
		tsq = "to_tsquery('simple', " + fb.arg(terms) + ")"
	}

	persons := fb.arg(nonNil(q.PersonIDs))
	personHit := "(person_ids && " + persons + " OR mentioned_person_ids && " + persons + ")"

	if !q.IsEmpty() {
		fb.where("(text_tsv @@ " + tsq + " OR " + personHit + ")")
	}

	fb.applyFilters(filters)

	// Term relevance plus a fixed bonus for person links; only the resulting
	// order leaves this function.
	score := "coalesce(ts_rank_cd(text_tsv, " + tsq + "), 0) + CASE WHEN " + personHit + " THEN 1 ELSE 0 END"

	sql := `SELECT ` + chunkColumns + `, ` + score + ` AS rank
		FROM chunks
		WHERE ` + fb.clause() + `
		ORDER BY rank DESC, ts DESC, id
		LIMIT ` + fb.arg(clampLimit(limit, 60))

	rows, err := s.Pool.Query(ctx, sql, fb.args...)
	if err != nil {
		return nil, fmt.Errorf("executing lexical search: %w", err)
	}
	defer rows.Close()

	return collectScored(rows)
}
