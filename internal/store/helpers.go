package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/persistorai/recall/internal/models"
)

// maxListLimit is a defense-in-depth cap on limit values for list queries.
const maxListLimit = 1000

// clampLimit bounds limit to (0, maxListLimit], using def when unset.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}

	if limit > maxListLimit {
		return maxListLimit
	}

	return limit
}

// vectorParam converts an embedding into a query parameter; nil stores NULL.
func vectorParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}

	v := pgvector.NewVector(embedding)

	return &v
}

// validUUIDs drops entries that are not UUIDs so they never reach a uuid column.
func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}

	return out
}

// kindStrings converts chunk kinds to a text[] parameter.
func kindStrings(kinds []models.ChunkKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}

	return out
}

// filterBuilder accumulates WHERE conditions and their positional arguments.
type filterBuilder struct {
	conds []string
	args  []any
}

// arg appends v and returns its placeholder.
func (f *filterBuilder) arg(v any) string {
	f.args = append(f.args, v)

	return fmt.Sprintf("$%d", len(f.args))
}

func (f *filterBuilder) where(cond string) {
	f.conds = append(f.conds, cond)
}

// applyFilters adds the structural filters every search list is scoped by.
func (f *filterBuilder) applyFilters(filters models.Filters) {
	if len(filters.PersonIDs) > 0 {
		p := f.arg(filters.PersonIDs)
		f.where("(person_ids && " + p + " OR mentioned_person_ids && " + p + ")")
	}

	if filters.ThreadID != "" {
		f.where("thread_id = " + f.arg(filters.ThreadID))
	}

	if len(filters.ContentTypes) > 0 {
		types := make([]string, len(filters.ContentTypes))
		for i, ct := range filters.ContentTypes {
			types[i] = string(ct)
		}

		f.where("content_type = ANY(" + f.arg(types) + ")")
	}

	if filters.From != nil {
		f.where("ts >= " + f.arg(*filters.From))
	}

	if filters.To != nil {
		f.where("ts <= " + f.arg(*filters.To))
	}

	if len(filters.ExcludeKinds) > 0 {
		f.where("NOT (kind = ANY(" + f.arg(kindStrings(filters.ExcludeKinds)) + "))")
	}
}

// clause renders the accumulated conditions, or TRUE when there are none.
func (f *filterBuilder) clause() string {
	if len(f.conds) == 0 {
		return "TRUE"
	}

	return strings.Join(f.conds, " AND ")
}

// tsQuery renders normalized terms as an OR of prefix matches for to_tsquery.
// Terms come from the tokenizer and contain only letters and digits.
func tsQuery(terms []string) string {
	parts := make([]string, 0, len(terms))

	for _, t := range terms {
		t = strings.ReplaceAll(t, "'", "")
		if t == "" {
			continue
		}

		parts = append(parts, "'"+t+"':*")
	}

	return strings.Join(parts, " | ")
}
