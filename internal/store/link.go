package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/persistorai/recall/internal/models"
)

// LinkStore handles person-asset links and asset-asset edges.
type LinkStore struct {
	Base
}

// NewLinkStore creates a new LinkStore.
func NewLinkStore(base Base) *LinkStore {
	return &LinkStore{Base: base}
}

// LinkPersonAsset upserts a (person, asset, role) link. Repeating it keeps one
// row with the higher confidence.
func (s *LinkStore) LinkPersonAsset(ctx context.Context, link models.PersonAssetLink) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	live, err := canonicalID(ctx, s.Pool, link.PersonID)
	if err != nil {
		return err
	}

	_, err = s.Pool.Exec(ctx, `INSERT INTO person_asset_links (person_id, asset_ref, role, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (person_id, asset_ref, role) DO UPDATE SET
			confidence = GREATEST(person_asset_links.confidence, EXCLUDED.confidence)`,
		live, link.AssetRef, link.Role, link.Confidence)
	if err != nil {
		return fmt.Errorf("linking person to asset: %w", err)
	}

	s.notify("person_asset_links", "upsert", 1)

	return nil
}

// LinkAssetAsset upserts a (src, dst, relation) edge.
func (s *LinkStore) LinkAssetAsset(ctx context.Context, edge models.AssetEdge) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx, `INSERT INTO asset_edges (src_ref, dst_ref, relation_type, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (src_ref, dst_ref, relation_type) DO UPDATE SET
			confidence = GREATEST(asset_edges.confidence, EXCLUDED.confidence)`,
		edge.SrcRef, edge.DstRef, edge.RelationType, edge.Confidence)
	if err != nil {
		return fmt.Errorf("linking assets: %w", err)
	}

	s.notify("asset_edges", "upsert", 1)

	return nil
}

// AssetNeighbors walks asset edges of the allowed relation types (all when
// empty) from seeds, in both directions, up to maxHops. The map value is the
// hop distance; seeds are included at 0.
func (s *LinkStore) AssetNeighbors(
	ctx context.Context,
	seeds []string,
	relationTypes []string,
	maxHops int,
) (map[string]int, error) {
	if len(seeds) == 0 {
		return map[string]int{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("walking asset edges: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	limit := strconv.Itoa(bfsNeighborLimit)
	neighborSQL := `(SELECT src_ref, dst_ref FROM asset_edges
			WHERE src_ref = ANY($1) AND (cardinality($2::text[]) = 0 OR relation_type = ANY($2))
			ORDER BY src_ref, dst_ref LIMIT ` + limit + `)
		UNION
		(SELECT src_ref, dst_ref FROM asset_edges
			WHERE dst_ref = ANY($1) AND (cardinality($2::text[]) = 0 OR relation_type = ANY($2))
			ORDER BY src_ref, dst_ref LIMIT ` + limit + `)`

	depth, err := bfs(ctx, tx, seeds, maxHops, neighborSQL, nonNil(relationTypes))
	if err != nil {
		return nil, fmt.Errorf("walking asset edges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing asset walk: %w", err)
	}

	return depth, nil
}

// PersonAssets returns asset refs linked to any of the persons, optionally
// restricted to roles, highest confidence first.
func (s *LinkStore) PersonAssets(ctx context.Context, personIDs, roles []string, limit int) ([]string, error) {
	ids := validUUIDs(personIDs)
	if len(ids) == 0 {
		return []string{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `SELECT asset_ref FROM (
			SELECT asset_ref, max(confidence) AS c, max(created_at) AS t FROM person_asset_links
			WHERE person_id = ANY($1::text[]::uuid[]) AND (cardinality($2::text[]) = 0 OR role = ANY($2))
			GROUP BY asset_ref
		) x ORDER BY c DESC, t DESC, asset_ref LIMIT $3`,
		ids, nonNil(roles), clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("querying person assets: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}
