// Package db provides database migration and maintenance utilities.
package db

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/dbpool"
)

// EnsureVectorDimensions checks that chunks.embedding matches the configured
// dimensions and alters it (with index rebuild) if not. Chunks whose stored
// vectors no longer fit are set to NULL and picked up by the embedding backfill;
// the number of such chunks is returned.
func EnsureVectorDimensions(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, dimensions int) (int64, error) {
	if dimensions < 1 || dimensions > 4096 {
		return 0, fmt.Errorf("embedding dimensions must be between 1 and 4096, got %d", dimensions)
	}

	var currentType string
	err := pool.QueryRow(ctx,
		`SELECT format_type(a.atttypid, a.atttypmod)
		 FROM pg_attribute a
		 JOIN pg_class c ON c.oid = a.attrelid
		 WHERE c.relname = 'chunks' AND a.attname = 'embedding' AND NOT a.attisdropped`,
	).Scan(&currentType)
	if err != nil {
		return 0, fmt.Errorf("querying embedding column type: %w", err)
	}

	expectedType := fmt.Sprintf("vector(%d)", dimensions)
	if currentType == expectedType {
		log.WithField("dimensions", dimensions).Debug("embedding column dimensions match config")
		return 0, nil
	}

	log.WithFields(logrus.Fields{
		"current":  currentType,
		"expected": expectedType,
	}).Info("embedding column dimensions changed, altering schema")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning dimension alter tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	if _, err := tx.Exec(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding`); err != nil {
		return 0, fmt.Errorf("dropping embedding index: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE chunks SET embedding = NULL WHERE embedding IS NOT NULL AND vector_dims(embedding) != $1`,
		dimensions,
	)
	if err != nil {
		return 0, fmt.Errorf("nulling mismatched embeddings: %w", err)
	}

	alterSQL := fmt.Sprintf(`ALTER TABLE chunks ALTER COLUMN embedding TYPE vector(%d)`, dimensions)
	if _, err := tx.Exec(ctx, alterSQL); err != nil {
		return 0, fmt.Errorf("altering embedding column: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops)
		 WITH (m = 32, ef_construction = 200) WHERE embedding IS NOT NULL`,
	); err != nil {
		return 0, fmt.Errorf("recreating embedding index: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing dimension alter: %w", err)
	}

	log.WithFields(logrus.Fields{
		"dimensions": dimensions,
		"reset":      tag.RowsAffected(),
	}).Info("embedding column dimensions updated")

	return tag.RowsAffected(), nil
}
