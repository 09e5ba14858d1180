package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/recall/internal/models"
)

// maxForwardDepth bounds how many merge forwards a lookup follows.
const maxForwardDepth = 16

// PersonStore handles persons, aliases, facts and relationships.
type PersonStore struct {
	Base
}

// NewPersonStore creates a new PersonStore.
func NewPersonStore(base Base) *PersonStore {
	return &PersonStore{Base: base}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// canonicalID follows merged_into pointers to the live person.
func canonicalID(ctx context.Context, q querier, id string) (string, error) {
	if len(validUUIDs([]string{id})) == 0 {
		return "", models.ErrPersonNotFound
	}

	var live string

	err := q.QueryRow(ctx, `WITH RECURSIVE fwd(id, merged_into, depth) AS (
			SELECT id, merged_into, 0 FROM persons WHERE id = $1
			UNION ALL
			SELECT p.id, p.merged_into, f.depth + 1
			FROM persons p JOIN fwd f ON p.id = f.merged_into
			WHERE f.depth < $2
		)
		SELECT id::text FROM fwd WHERE merged_into IS NULL LIMIT 1`, id, maxForwardDepth).Scan(&live)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrPersonNotFound
		}

		return "", fmt.Errorf("following person forward: %w", err)
	}

	return live, nil
}

// CanonicalIDs maps each known person id to its live id, following merge
// forwards in one query. Unknown or malformed ids are absent from the map.
func (s *PersonStore) CanonicalIDs(ctx context.Context, ids []string) (map[string]string, error) {
	valid := validUUIDs(ids)
	out := make(map[string]string, len(valid))

	if len(valid) == 0 {
		return out, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		WITH RECURSIVE fwd AS (
			SELECT id AS origin, id, merged_into, 0 AS depth FROM persons WHERE id = ANY($1::uuid[])
			UNION ALL
			SELECT f.origin, p.id, p.merged_into, f.depth + 1
			FROM persons p JOIN fwd f ON p.id = f.merged_into
			WHERE f.depth < $2
		)
		SELECT origin::text, id::text FROM fwd WHERE merged_into IS NULL`, valid, maxForwardDepth)
	if err != nil {
		return nil, fmt.Errorf("following person forwards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var origin, live string
		if err := rows.Scan(&origin, &live); err != nil {
			return nil, fmt.Errorf("scanning person forward: %w", err)
		}

		out[origin] = live
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating person forwards: %w", err)
	}

	return out, nil
}

// CreatePerson inserts a person with its aliases.
func (s *PersonStore) CreatePerson(ctx context.Context, name string, aliases []models.Alias) (*models.Person, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating person: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	p := &models.Person{CanonicalName: name}

	err = tx.QueryRow(ctx,
		`INSERT INTO persons (canonical_name) VALUES ($1) RETURNING id::text, created_at, updated_at`, name,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting person: %w", err)
	}

	for _, a := range aliases {
		if _, err := tx.Exec(ctx, insertAliasSQL, p.ID, a.Alias, a.Norm, string(a.Kind)); err != nil {
			return nil, fmt.Errorf("inserting alias %q: %w", a.Alias, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing create person: %w", err)
	}

	s.notify("persons", "insert", 1)

	p.Aliases = dedupeAliases(aliases)
	p.Facts = []models.Fact{}
	p.Relationships = []models.Relationship{}

	return p, nil
}

const insertAliasSQL = `INSERT INTO person_aliases (person_id, alias, alias_norm, kind)
	VALUES ($1, $2, $3, $4) ON CONFLICT (person_id, alias_norm) DO NOTHING`

// GetPerson returns a person with aliases, facts and relationships. Ids of
// merged persons resolve to the merge target.
func (s *PersonStore) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting person: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	live, err := canonicalID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	p := &models.Person{ID: live}

	err = tx.QueryRow(ctx,
		`SELECT canonical_name, created_at, updated_at FROM persons WHERE id = $1`, live,
	).Scan(&p.CanonicalName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading person: %w", err)
	}

	if p.Aliases, err = readAliases(ctx, tx, live); err != nil {
		return nil, err
	}

	if p.Facts, err = readFacts(ctx, tx, []string{live}); err != nil {
		return nil, err
	}

	if p.Relationships, err = readRelationships(ctx, tx, live); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing get person: %w", err)
	}

	return p, nil
}

func readAliases(ctx context.Context, tx pgx.Tx, id string) ([]models.Alias, error) {
	rows, err := tx.Query(ctx,
		`SELECT alias, alias_norm, kind FROM person_aliases WHERE person_id = $1 ORDER BY created_at, alias_norm`, id)
	if err != nil {
		return nil, fmt.Errorf("querying aliases: %w", err)
	}
	defer rows.Close()

	aliases := make([]models.Alias, 0, 4)

	for rows.Next() {
		var a models.Alias
		if err := rows.Scan(&a.Alias, &a.Norm, &a.Kind); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}

		aliases = append(aliases, a)
	}

	return aliases, rows.Err()
}

func readFacts(ctx context.Context, tx pgx.Tx, ids []string) ([]models.Fact, error) {
	rows, err := tx.Query(ctx,
		`SELECT person_id::text, key, value, confidence, source, provenance, updated_at
		FROM person_facts WHERE person_id = ANY($1::text[]::uuid[]) ORDER BY person_id, confidence DESC, key`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	defer rows.Close()

	facts := make([]models.Fact, 0, 8)

	for rows.Next() {
		var f models.Fact
		if err := rows.Scan(&f.PersonID, &f.Key, &f.Value, &f.Confidence, &f.Source, &f.Provenance, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}

		facts = append(facts, f)
	}

	return facts, rows.Err()
}

func readRelationships(ctx context.Context, tx pgx.Tx, id string) ([]models.Relationship, error) {
	rows, err := tx.Query(ctx,
		`SELECT person_id::text, related_id::text, relation_type, confidence FROM person_relationships
		WHERE person_id = $1 ORDER BY relation_type, related_id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]models.Relationship, 0, 4)

	for rows.Next() {
		var r models.Relationship
		if err := rows.Scan(&r.PersonID, &r.RelatedID, &r.RelationType, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}

		rels = append(rels, r)
	}

	return rels, rows.Err()
}

// AddAlias attaches an alias to a person. Adding an existing alias is a no-op.
// It reports whether a row was inserted.
func (s *PersonStore) AddAlias(ctx context.Context, personID string, a models.Alias) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	live, err := canonicalID(ctx, s.Pool, personID)
	if err != nil {
		return false, err
	}

	tag, err := s.Pool.Exec(ctx, insertAliasSQL, live, a.Alias, a.Norm, string(a.Kind))
	if err != nil {
		return false, fmt.Errorf("adding alias: %w", err)
	}

	if tag.RowsAffected() > 0 {
		s.notify("person_aliases", "insert", 1)
	}

	return tag.RowsAffected() > 0, nil
}

// UpsertFact sets a fact. An existing value for the key is only replaced by a
// fact of equal or higher confidence. The stored fact is returned.
func (s *PersonStore) UpsertFact(ctx context.Context, personID string, req models.UpsertFactRequest) (*models.Fact, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	live, err := canonicalID(ctx, s.Pool, personID)
	if err != nil {
		return nil, err
	}

	_, err = s.Pool.Exec(ctx, `INSERT INTO person_facts (person_id, key, value, confidence, source, provenance)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (person_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			confidence = EXCLUDED.confidence,
			source = EXCLUDED.source,
			provenance = EXCLUDED.provenance,
			updated_at = now()
		WHERE EXCLUDED.confidence >= person_facts.confidence`,
		live, req.Key, req.Value, req.Confidence, req.Source, req.Provenance)
	if err != nil {
		return nil, fmt.Errorf("upserting fact: %w", err)
	}

	f := &models.Fact{PersonID: live}

	err = s.Pool.QueryRow(ctx,
		`SELECT key, value, confidence, source, provenance, updated_at FROM person_facts WHERE person_id = $1 AND key = $2`,
		live, req.Key,
	).Scan(&f.Key, &f.Value, &f.Confidence, &f.Source, &f.Provenance, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading fact: %w", err)
	}

	s.notify("person_facts", "upsert", 1)

	return f, nil
}

// UpsertRelationship relates two persons. Repeating it keeps one row with the
// higher confidence.
func (s *PersonStore) UpsertRelationship(ctx context.Context, personID string, req models.UpsertRelationshipRequest) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	live, err := canonicalID(ctx, s.Pool, personID)
	if err != nil {
		return err
	}

	related, err := canonicalID(ctx, s.Pool, req.RelatedID)
	if err != nil {
		return fmt.Errorf("related person: %w", err)
	}

	if live == related {
		return models.Malformed("a person cannot be related to itself")
	}

	_, err = s.Pool.Exec(ctx, `INSERT INTO person_relationships (person_id, related_id, relation_type, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (person_id, related_id, relation_type) DO UPDATE SET
			confidence = GREATEST(person_relationships.confidence, EXCLUDED.confidence)`,
		live, related, req.RelationType, req.Confidence)
	if err != nil {
		return fmt.Errorf("upserting relationship: %w", err)
	}

	s.notify("person_relationships", "upsert", 1)

	return nil
}

// FactsFor returns the facts of the given persons with their canonical names.
func (s *PersonStore) FactsFor(ctx context.Context, personIDs []string) ([]models.GraphFact, error) {
	ids := validUUIDs(personIDs)
	if len(ids) == 0 {
		return []models.GraphFact{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT f.person_id::text, p.canonical_name, f.key, f.value, f.confidence
		FROM person_facts f JOIN persons p ON p.id = f.person_id
		WHERE f.person_id = ANY($1::text[]::uuid[])
		ORDER BY f.confidence DESC, f.person_id, f.key
		LIMIT $2`, ids, maxListLimit)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	defer rows.Close()

	facts := make([]models.GraphFact, 0, 8)

	for rows.Next() {
		var f models.GraphFact
		if err := rows.Scan(&f.PersonID, &f.PersonName, &f.Key, &f.Value, &f.Confidence); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}

		facts = append(facts, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating facts: %w", err)
	}

	return facts, nil
}

// ResolveAliases returns every live person alias whose normalized form is in norms.
func (s *PersonStore) ResolveAliases(ctx context.Context, norms []string) ([]models.AliasMatch, error) {
	if len(norms) == 0 {
		return []models.AliasMatch{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT a.person_id::text, p.canonical_name, a.alias, a.alias_norm, a.kind
		FROM person_aliases a JOIN persons p ON p.id = a.person_id
		WHERE a.alias_norm = ANY($1) AND p.merged_into IS NULL
		ORDER BY a.alias_norm, a.person_id
		LIMIT $2`, norms, maxListLimit)
	if err != nil {
		return nil, fmt.Errorf("resolving aliases: %w", err)
	}
	defer rows.Close()

	matches := make([]models.AliasMatch, 0, 4)

	for rows.Next() {
		var m models.AliasMatch
		if err := rows.Scan(&m.PersonID, &m.CanonicalName, &m.Alias, &m.Norm, &m.Kind); err != nil {
			return nil, fmt.Errorf("scanning alias match: %w", err)
		}

		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alias matches: %w", err)
	}

	return matches, nil
}

// AliasesOf returns the aliases of the given persons, used for lexical
// expansion of resolved names.
func (s *PersonStore) AliasesOf(ctx context.Context, personIDs []string) ([]models.AliasMatch, error) {
	ids := validUUIDs(personIDs)
	if len(ids) == 0 {
		return []models.AliasMatch{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT a.person_id::text, p.canonical_name, a.alias, a.alias_norm, a.kind
		FROM person_aliases a JOIN persons p ON p.id = a.person_id
		WHERE a.person_id = ANY($1::text[]::uuid[]) AND a.kind = 'name'
		ORDER BY a.person_id, a.alias_norm
		LIMIT $2`, ids, maxListLimit)
	if err != nil {
		return nil, fmt.Errorf("querying aliases of persons: %w", err)
	}
	defer rows.Close()

	matches := make([]models.AliasMatch, 0, 8)

	for rows.Next() {
		var m models.AliasMatch
		if err := rows.Scan(&m.PersonID, &m.CanonicalName, &m.Alias, &m.Norm, &m.Kind); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}

		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating aliases: %w", err)
	}

	return matches, nil
}

func dedupeAliases(in []models.Alias) []models.Alias {
	seen := make(map[string]struct{}, len(in))
	out := make([]models.Alias, 0, len(in))

	for _, a := range in {
		if _, ok := seen[a.Norm]; ok {
			continue
		}

		seen[a.Norm] = struct{}{}
		out = append(out, a)
	}

	return out
}
