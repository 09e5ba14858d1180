package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/recall/internal/models"
)

// ChunkStore handles chunk writes and structural chunk reads.
type ChunkStore struct {
	Base
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(base Base) *ChunkStore {
	return &ChunkStore{Base: base}
}

// upsertChunkSQL replaces a chunk whole. A re-ingest that arrives without an
// embedding keeps the stored vector only if the embedded text is unchanged.
const upsertChunkSQL = `INSERT INTO chunks (
		id, source, source_id, chunk_index, content_type, kind, text, embed_text,
		sender, thread_id, asset_id, parent_asset_id, chunk_group_id, chunk_total,
		person_ids, mentioned_person_ids, ts, metadata, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (id) DO UPDATE SET
		content_type = EXCLUDED.content_type,
		kind = EXCLUDED.kind,
		text = EXCLUDED.text,
		sender = EXCLUDED.sender,
		thread_id = EXCLUDED.thread_id,
		asset_id = EXCLUDED.asset_id,
		parent_asset_id = EXCLUDED.parent_asset_id,
		chunk_group_id = EXCLUDED.chunk_group_id,
		chunk_total = EXCLUDED.chunk_total,
		person_ids = EXCLUDED.person_ids,
		mentioned_person_ids = EXCLUDED.mentioned_person_ids,
		ts = EXCLUDED.ts,
		metadata = EXCLUDED.metadata,
		embedding = CASE
			WHEN EXCLUDED.embedding IS NULL AND chunks.embed_text = EXCLUDED.embed_text THEN chunks.embedding
			ELSE EXCLUDED.embedding END,
		embed_text = EXCLUDED.embed_text,
		updated_at = now()
	RETURNING embedding IS NOT NULL`

// UpsertChunks writes chunks in one transaction. It returns, per chunk,
// whether a stored embedding exists after the write.
func (s *ChunkStore) UpsertChunks(ctx context.Context, chunks []models.Chunk) ([]bool, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	batch := &pgx.Batch{}

	for i := range chunks {
		c := &chunks[i]

		meta, err := json.Marshal(c.Meta)
		if err != nil {
			return nil, fmt.Errorf("marshalling chunk %s metadata: %w", c.ID, err)
		}

		batch.Queue(upsertChunkSQL,
			c.ID, c.Source, c.SourceID, c.ChunkIndex, string(c.ContentType), string(c.Kind), c.Text, c.EmbedText,
			c.Sender, c.ThreadID, c.AssetID, c.ParentAssetID, c.ChunkGroupID, c.ChunkTotal,
			nonNil(c.PersonIDs), nonNil(c.MentionedPersonIDs), c.Timestamp, meta, vectorParam(c.Embedding),
		)
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("upserting chunks: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	embedded := make([]bool, len(chunks))

	br := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if err := br.QueryRow().Scan(&embedded[i]); err != nil {
			br.Close() //nolint:errcheck // already failing.

			return nil, fmt.Errorf("upserting chunk %s: %w", chunks[i].ID, err)
		}
	}

	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("closing chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing chunk upsert: %w", err)
	}

	s.notify("chunks", "upsert", len(chunks))

	return embedded, nil
}

// GetChunk returns one chunk by id.
func (s *ChunkStore) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	if len(validUUIDs([]string{id})) == 0 {
		return nil, models.ErrChunkNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = $1`, id)

	c, err := scanChunk(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrChunkNotFound
		}

		return nil, fmt.Errorf("getting chunk: %w", err)
	}

	return c, nil
}

// UpdateChunkEmbedding stores a vector computed after ingestion. The write is
// skipped if the chunk's embedded text changed since the vector was requested.
func (s *ChunkStore) UpdateChunkEmbedding(ctx context.Context, id, embedText string, embedding []float32) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		`UPDATE chunks SET embedding = $2, updated_at = now() WHERE id = $1 AND embed_text = $3`,
		id, vectorParam(embedding), embedText)
	if err != nil {
		return fmt.Errorf("updating chunk embedding: %w", err)
	}

	return nil
}

// ChunksMissingEmbedding lists chunks stored without a vector, oldest first.
func (s *ChunkStore) ChunksMissingEmbedding(ctx context.Context, limit int) ([]models.EmbedTarget, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT id::text, CASE WHEN embed_text = '' THEN text ELSE embed_text END
		FROM chunks WHERE embedding IS NULL ORDER BY created_at LIMIT $1`,
		clampLimit(limit, 100))
	if err != nil {
		return nil, fmt.Errorf("listing chunks missing embeddings: %w", err)
	}
	defer rows.Close()

	targets := make([]models.EmbedTarget, 0, 16)

	for rows.Next() {
		var t models.EmbedTarget
		if err := rows.Scan(&t.ID, &t.EmbedText); err != nil {
			return nil, fmt.Errorf("scanning embed target: %w", err)
		}

		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embed targets: %w", err)
	}

	return targets, nil
}

// CountChunks returns the total number of chunks and how many lack an embedding.
func (s *ChunkStore) CountChunks(ctx context.Context) (total, missing int64, err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err = s.Pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE embedding IS NULL) FROM chunks`,
	).Scan(&total, &missing)
	if err != nil {
		return 0, 0, fmt.Errorf("counting chunks: %w", err)
	}

	return total, missing, nil
}

// ThreadWindow returns chunks of a thread whose timestamps fall in [from, to],
// ordered by time. Chunks of the excluded kinds are skipped.
func (s *ChunkStore) ThreadWindow(
	ctx context.Context,
	threadID string,
	from, to time.Time,
	excludeKinds []models.ChunkKind,
	limit int,
) ([]models.Chunk, error) {
	return s.queryChunks(ctx, "thread window",
		`SELECT `+chunkColumns+` FROM chunks
		WHERE thread_id = $1 AND ts BETWEEN $2 AND $3 AND NOT (kind = ANY($4))
		ORDER BY ts, chunk_index LIMIT $5`,
		threadID, from, to, kindStrings(excludeKinds), clampLimit(limit, 50))
}

// GroupParts returns every part of a chunk group. The query is bounded by the
// group's declared total, not a fixed cap.
func (s *ChunkStore) GroupParts(ctx context.Context, groupID string, total int) ([]models.Chunk, error) {
	if total <= 0 {
		total = maxListLimit
	}

	return s.queryChunks(ctx, "group parts",
		`SELECT `+chunkColumns+` FROM chunks
		WHERE chunk_group_id = $1 ORDER BY chunk_index, source_id LIMIT $2`,
		groupID, total)
}

// RecentInThread returns the newest n chunks of a thread, newest first.
func (s *ChunkStore) RecentInThread(
	ctx context.Context,
	threadID string,
	n int,
	excludeKinds []models.ChunkKind,
) ([]models.Chunk, error) {
	return s.queryChunks(ctx, "recent in thread",
		`SELECT `+chunkColumns+` FROM chunks
		WHERE thread_id = $1 AND NOT (kind = ANY($2))
		ORDER BY ts DESC, chunk_index DESC LIMIT $3`,
		threadID, kindStrings(excludeKinds), clampLimit(n, 10))
}

// ChunksByAssets returns chunks belonging to the given assets, newest first.
func (s *ChunkStore) ChunksByAssets(ctx context.Context, assetIDs []string, limit int) ([]models.Chunk, error) {
	if len(assetIDs) == 0 {
		return []models.Chunk{}, nil
	}

	return s.queryChunks(ctx, "chunks by assets",
		`SELECT `+chunkColumns+` FROM chunks
		WHERE asset_id = ANY($1) AND kind <> 'summary'
		ORDER BY ts DESC, chunk_index LIMIT $2`,
		assetIDs, clampLimit(limit, 50))
}

func (s *ChunkStore) queryChunks(ctx context.Context, what, sql string, args ...any) ([]models.Chunk, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", what, err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}

	return chunks, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
