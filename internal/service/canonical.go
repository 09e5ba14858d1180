package service

import (
	"context"
	"fmt"
)

// PersonCanonicalizer maps person ids to their live ids after merges.
type PersonCanonicalizer interface {
	CanonicalIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// canonicalPersons rewrites ids to their live ids, keeping first-seen order
// and dropping duplicates a merge introduces. Ids the directory does not
// know are kept as given. On error ids come back unchanged.
func canonicalPersons(ctx context.Context, c PersonCanonicalizer, ids []string) ([]string, error) {
	if c == nil || len(ids) == 0 {
		return ids, nil
	}

	live, err := c.CanonicalIDs(ctx, ids)
	if err != nil {
		return ids, fmt.Errorf("resolving merged persons: %w", err)
	}

	return mapPersons(live, ids), nil
}

// mapPersons applies a canonical id map to ids.
func mapPersons(live map[string]string, ids []string) []string {
	if len(ids) == 0 {
		return ids
	}

	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if to, ok := live[id]; ok {
			id = to
		}

		out = appendUnique(out, id)
	}

	return out
}
