package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// Traversal safety limits.
const (
	traverseNodeLimit = 500  // max ids returned from a traversal
	bfsNeighborLimit  = 1000 // max edges per direction per hop
	maxTraverseHops   = 3    // caps BFS depth
)

// bfs runs an application-level breadth-first search from seeds. neighborSQL
// takes the frontier as $1 and returns (a, b) pairs; edges are followed in
// both directions. extra arguments start at $2. The result contains the seeds.
func bfs(
	ctx context.Context,
	tx pgx.Tx,
	seeds []string,
	maxHops int,
	neighborSQL string,
	extra ...any,
) (map[string]int, error) {
	if maxHops <= 0 {
		maxHops = 1
	}

	if maxHops > maxTraverseHops {
		maxHops = maxTraverseHops
	}

	depth := make(map[string]int, len(seeds))
	frontier := make([]string, 0, len(seeds))

	for _, s := range seeds {
		if _, ok := depth[s]; ok {
			continue
		}

		depth[s] = 0
		frontier = append(frontier, s)
	}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		rows, err := tx.Query(ctx, neighborSQL, append([]any{frontier}, extra...)...)
		if err != nil {
			return nil, fmt.Errorf("querying neighbors at hop %d: %w", hop, err)
		}

		var next []string

		for rows.Next() {
			var a, b string
			if err := rows.Scan(&a, &b); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning neighbor edge: %w", err)
			}

			for _, pair := range [2][2]string{{a, b}, {b, a}} {
				from, to := pair[0], pair[1]

				fromDepth, seen := depth[from]
				if !seen || fromDepth != hop-1 {
					continue
				}

				if _, done := depth[to]; done {
					continue
				}

				depth[to] = hop
				next = append(next, to)
			}
		}

		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating neighbor edges: %w", err)
		}

		rows.Close()

		if len(depth) >= traverseNodeLimit {
			break
		}

		frontier = next
	}

	return depth, nil
}

// ExpandRelationships returns the seeds plus persons connected to them by the
// allowed relation types (all types when relationTypes is empty), within
// maxHops. The map value is each person's hop distance from the seeds.
func (s *PersonStore) ExpandRelationships(
	ctx context.Context,
	seeds []string,
	relationTypes []string,
	maxHops int,
) (map[string]int, error) {
	seeds = validUUIDs(seeds)
	if len(seeds) == 0 {
		return map[string]int{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("expanding relationships: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	limit := strconv.Itoa(bfsNeighborLimit)
	neighborSQL := `(SELECT person_id::text, related_id::text FROM person_relationships
			WHERE person_id = ANY($1::text[]::uuid[]) AND (cardinality($2::text[]) = 0 OR relation_type = ANY($2))
			ORDER BY person_id, related_id LIMIT ` + limit + `)
		UNION
		(SELECT person_id::text, related_id::text FROM person_relationships
			WHERE related_id = ANY($1::text[]::uuid[]) AND (cardinality($2::text[]) = 0 OR relation_type = ANY($2))
			ORDER BY person_id, related_id LIMIT ` + limit + `)`

	depth, err := bfs(ctx, tx, seeds, maxHops, neighborSQL, nonNil(relationTypes))
	if err != nil {
		return nil, fmt.Errorf("expanding relationships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing relationship expansion: %w", err)
	}

	return depth, nil
}
