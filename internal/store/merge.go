package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/recall/internal/models"
)

// MergePersons moves everything attached to source onto target in one
// transaction and leaves source as a forwarding pointer. Both ids may be
// stale; they are resolved through existing forwards first.
func (s *PersonStore) MergePersons(ctx context.Context, sourceID, targetID string) (*models.MergeResult, error) { //nolint:funlen // one statement per moved relation.
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("merging persons: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	src, err := canonicalID(ctx, tx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("merge source: %w", err)
	}

	dst, err := canonicalID(ctx, tx, targetID)
	if err != nil {
		return nil, fmt.Errorf("merge target: %w", err)
	}

	if src == dst {
		return nil, models.ErrMergeSelf
	}

	// Lock in id order so concurrent merges of the same pair cannot deadlock.
	var srcName string

	rows, err := tx.Query(ctx,
		`SELECT id::text, canonical_name FROM persons WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`, src, dst)
	if err != nil {
		return nil, fmt.Errorf("locking persons: %w", err)
	}

	locked := 0

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning locked person: %w", err)
		}

		if id == src {
			srcName = name
		}

		locked++
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("locking persons: %w", err)
	}

	if locked != 2 {
		return nil, models.ErrPersonNotFound
	}

	res := &models.MergeResult{SourceID: src, TargetID: dst}

	steps := []struct {
		what  string
		count *int
		moves []string
		drop  string
	}{
		{"aliases", &res.Aliases, []string{
			`INSERT INTO person_aliases (person_id, alias, alias_norm, kind, created_at)
				SELECT $2, alias, alias_norm, kind, created_at FROM person_aliases WHERE person_id = $1
				ON CONFLICT (person_id, alias_norm) DO NOTHING`,
		}, `DELETE FROM person_aliases WHERE person_id = $1`},
		{"facts", &res.Facts, []string{
			`INSERT INTO person_facts (person_id, key, value, confidence, source, provenance, updated_at)
				SELECT $2, key, value, confidence, source, provenance, updated_at FROM person_facts WHERE person_id = $1
				ON CONFLICT (person_id, key) DO UPDATE SET
					value = EXCLUDED.value, confidence = EXCLUDED.confidence,
					source = EXCLUDED.source, provenance = EXCLUDED.provenance, updated_at = EXCLUDED.updated_at
				WHERE EXCLUDED.confidence > person_facts.confidence`,
		}, `DELETE FROM person_facts WHERE person_id = $1`},
		{"relationships", &res.Relationships, []string{
			`INSERT INTO person_relationships (person_id, related_id, relation_type, confidence)
				SELECT $2, related_id, relation_type, confidence FROM person_relationships
				WHERE person_id = $1 AND related_id <> $2
				ON CONFLICT (person_id, related_id, relation_type) DO UPDATE SET
					confidence = GREATEST(person_relationships.confidence, EXCLUDED.confidence)`,
			`INSERT INTO person_relationships (person_id, related_id, relation_type, confidence)
				SELECT person_id, $2, relation_type, confidence FROM person_relationships
				WHERE related_id = $1 AND person_id <> $2
				ON CONFLICT (person_id, related_id, relation_type) DO UPDATE SET
					confidence = GREATEST(person_relationships.confidence, EXCLUDED.confidence)`,
		}, `DELETE FROM person_relationships WHERE person_id = $1 OR related_id = $1`},
		{"links", &res.Links, []string{
			`INSERT INTO person_asset_links (person_id, asset_ref, role, confidence, created_at)
				SELECT $2, asset_ref, role, confidence, created_at FROM person_asset_links WHERE person_id = $1
				ON CONFLICT (person_id, asset_ref, role) DO UPDATE SET
					confidence = GREATEST(person_asset_links.confidence, EXCLUDED.confidence)`,
		}, `DELETE FROM person_asset_links WHERE person_id = $1`},
	}

	for _, step := range steps {
		n, err := moveRows(ctx, tx, step.moves, step.drop, src, dst)
		if err != nil {
			return nil, fmt.Errorf("moving %s: %w", step.what, err)
		}

		*step.count = n
	}

	tag, err := tx.Exec(ctx, `UPDATE chunks SET
			person_ids = ARRAY(SELECT DISTINCT unnest(array_replace(person_ids, $1::text, $2::text))),
			mentioned_person_ids = ARRAY(SELECT DISTINCT unnest(array_replace(mentioned_person_ids, $1::text, $2::text))),
			updated_at = now()
		WHERE person_ids @> ARRAY[$1::text] OR mentioned_person_ids @> ARRAY[$1::text]`, src, dst)
	if err != nil {
		return nil, fmt.Errorf("rewriting chunk person ids: %w", err)
	}

	res.Chunks = int(tag.RowsAffected())

	// The source's name keeps resolving after the merge.
	if _, err := tx.Exec(ctx, insertAliasSQL, dst, srcName, models.NormalizeAlias(models.AliasName, srcName), string(models.AliasName)); err != nil {
		return nil, fmt.Errorf("adding source name as alias: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE persons SET merged_into = $2, updated_at = now() WHERE id = $1 OR merged_into = $1`, src, dst); err != nil {
		return nil, fmt.Errorf("forwarding merged person: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE persons SET updated_at = now() WHERE id = $1`, dst); err != nil {
		return nil, fmt.Errorf("touching merge target: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing merge: %w", err)
	}

	s.notify("persons", "merge", 1)

	return res, nil
}

// moveRows runs the copy statements, then deletes the source rows and
// returns how many were removed.
func moveRows(ctx context.Context, tx pgx.Tx, copyStmts []string, drop, src, dst string) (int, error) {
	for _, sql := range copyStmts {
		if _, err := tx.Exec(ctx, sql, src, dst); err != nil {
			return 0, err
		}
	}

	tag, err := tx.Exec(ctx, drop, src)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}
