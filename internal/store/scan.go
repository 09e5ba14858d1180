package store

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/recall/internal/models"
)

// chunkColumns lists the columns selected for chunk queries (excluding the
// embedding itself).
const chunkColumns = `id::text, kind, content_type, source, source_id, chunk_index, text,
	sender, thread_id, asset_id, parent_asset_id, chunk_group_id, chunk_total,
	person_ids, mentioned_person_ids, ts, metadata, embedding IS NOT NULL,
	created_at, updated_at`

// scanChunk scans a single row into a models.Chunk.
func scanChunk(scan func(dest ...any) error) (*models.Chunk, error) {
	var c models.Chunk
	var meta []byte

	err := scan(
		&c.ID,
		&c.Kind,
		&c.ContentType,
		&c.Source,
		&c.SourceID,
		&c.ChunkIndex,
		&c.Text,
		&c.Sender,
		&c.ThreadID,
		&c.AssetID,
		&c.ParentAssetID,
		&c.ChunkGroupID,
		&c.ChunkTotal,
		&c.PersonIDs,
		&c.MentionedPersonIDs,
		&c.Timestamp,
		&meta,
		&c.HasEmbedding,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Meta); err != nil {
			return nil, fmt.Errorf("unmarshalling chunk metadata: %w", err)
		}
	}

	return &c, nil
}

// collectChunks scans all rows into a chunk slice.
func collectChunks(rows pgx.Rows) ([]models.Chunk, error) {
	chunks := make([]models.Chunk, 0, 16)

	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}

		chunks = append(chunks, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	return chunks, nil
}

// collectScored scans rows whose last column is a score.
func collectScored(rows pgx.Rows) ([]models.ScoredChunk, error) {
	scored := make([]models.ScoredChunk, 0, 16)

	for rows.Next() {
		var score float64

		c, err := scanChunk(func(dest ...any) error {
			return rows.Scan(append(dest, &score)...) //nolint:gocritic // append to extend scan targets
		})
		if err != nil {
			return nil, fmt.Errorf("scanning scored chunk: %w", err)
		}

		scored = append(scored, models.ScoredChunk{Chunk: *c, Score: score})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scored rows: %w", err)
	}

	return scored, nil
}

// collectStrings scans single text columns.
func collectStrings(rows pgx.Rows) ([]string, error) {
	out := make([]string, 0, 16)

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning value: %w", err)
		}

		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return out, nil
}
