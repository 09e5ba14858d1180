package models

import (
	"strings"
	"time"
)

// Filters are structural constraints applied identically to every search list.
type Filters struct {
	PersonIDs    []string      `json:"person_ids,omitempty"`
	ThreadID     string        `json:"thread_id,omitempty"`
	ContentTypes []ContentType `json:"content_types,omitempty"`
	From         *time.Time    `json:"from,omitempty"`
	To           *time.Time    `json:"to,omitempty"`
	ExcludeKinds []ChunkKind   `json:"exclude_kinds,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (f Filters) IsEmpty() bool {
	return len(f.PersonIDs) == 0 && f.ThreadID == "" && len(f.ContentTypes) == 0 &&
		f.From == nil && f.To == nil
}

// Validate checks filter consistency.
func (f Filters) Validate() error {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Malformed("filter 'to' is before 'from'")
	}

	for _, ct := range f.ContentTypes {
		if !ct.Valid() {
			return Malformed("content_type %q is not supported", ct)
		}
	}

	if len(f.PersonIDs) > maxPersonRefs {
		return Malformed("at most %d person_ids per filter", maxPersonRefs)
	}

	return nil
}

// LexicalQuery is the sparse side of a hybrid search: normalized terms plus
// persons whose linked chunks count as lexical hits.
type LexicalQuery struct {
	Terms     []string
	PersonIDs []string
}

// IsEmpty reports whether the query would match nothing by content.
func (q LexicalQuery) IsEmpty() bool {
	return len(q.Terms) == 0 && len(q.PersonIDs) == 0
}

// RetrieveRequest is the payload for retrieve and context requests.
type RetrieveRequest struct {
	Query       string  `json:"query"`
	Filters     Filters `json:"filters"`
	Limit       int     `json:"limit,omitempty"`
	MinScore    float64 `json:"min_score,omitempty"`
	Debug       bool    `json:"debug,omitempty"`
	TokenBudget int     `json:"token_budget,omitempty"`
}

// maxQueryLength caps query text.
const maxQueryLength = 2000

// Validate rejects clearly invalid retrievals: no text and no filters.
func (r *RetrieveRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)

	if r.Query == "" && r.Filters.IsEmpty() {
		return ErrEmptyQuery
	}

	if len(r.Query) > maxQueryLength {
		return ErrFieldTooLong("query", maxQueryLength)
	}

	if r.MinScore < 0 || r.MinScore > 1 {
		return Malformed("min_score must be between 0 and 1")
	}

	if r.Limit < 0 || r.TokenBudget < 0 {
		return Malformed("limit and token_budget must not be negative")
	}

	return r.Filters.Validate()
}
