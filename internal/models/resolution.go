package models

// ResolutionStatus is the outcome of resolving a name to persons.
type ResolutionStatus string

// Resolution outcomes.
const (
	ResolutionNone      ResolutionStatus = "none"
	ResolutionResolved  ResolutionStatus = "resolved"
	ResolutionAmbiguous ResolutionStatus = "ambiguous"
)

// AliasMatch is one alias row matching a normalized lookup key.
type AliasMatch struct {
	PersonID      string    `json:"person_id"`
	CanonicalName string    `json:"canonical_name"`
	Alias         string    `json:"alias"`
	Norm          string    `json:"norm"`
	Kind          AliasKind `json:"kind"`
}

// Resolution is the typed result of resolving free text to persons.
// Ambiguous results carry every candidate; callers decide how to proceed.
type Resolution struct {
	Query      string           `json:"query"`
	Status     ResolutionStatus `json:"status"`
	Candidates []AliasMatch     `json:"candidates"`
}

// NewResolution builds a Resolution from alias matches, collapsing
// multiple aliases of the same person into one candidate.
func NewResolution(query string, matches []AliasMatch) Resolution {
	seen := make(map[string]struct{}, len(matches))
	candidates := make([]AliasMatch, 0, len(matches))

	for _, m := range matches {
		if _, ok := seen[m.PersonID]; ok {
			continue
		}

		seen[m.PersonID] = struct{}{}
		candidates = append(candidates, m)
	}

	res := Resolution{Query: query, Candidates: candidates}

	switch len(candidates) {
	case 0:
		res.Status = ResolutionNone
	case 1:
		res.Status = ResolutionResolved
	default:
		res.Status = ResolutionAmbiguous
	}

	return res
}

// Resolved returns the single resolved person id, if any.
func (r Resolution) Resolved() (string, bool) {
	if r.Status != ResolutionResolved {
		return "", false
	}

	return r.Candidates[0].PersonID, true
}
