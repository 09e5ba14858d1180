// Package models defines data types for the archive index and identity graph.
package models

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c2a8e-4b7d-5e3a-9c10-2d8f4e6a1b35")

// ContentType is the kind of ingested item a chunk came from.
type ContentType string

// Content types known to the index.
const (
	ContentMessage    ContentType = "message"
	ContentEmail      ContentType = "email"
	ContentDocument   ContentType = "document"
	ContentTranscript ContentType = "transcript"
)

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentMessage, ContentEmail, ContentDocument, ContentTranscript:
		return true
	}

	return false
}

// Field limits for chunk ingestion.
const (
	maxChunkText   = 64 << 10
	maxRefLength   = 255
	maxPersonRefs  = 200
	maxChunkTotal  = 100000
	maxChunkIndex  = 100000
	maxSenderBytes = 512
)

// ChunkID derives the stable id of a chunk from its origin. Re-ingesting the
// same (source, source_id, chunk_index) always yields the same id.
func ChunkID(source, sourceID string, chunkIndex int) string {
	key := source + "\x1f" + sourceID + "\x1f" + strconv.Itoa(chunkIndex)

	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// ChunkRef is the projection of a chunk that ranking, expansion and
// assembly work on. It carries no content-type specific metadata.
type ChunkRef struct {
	ID                 string      `json:"id"`
	Kind               ChunkKind   `json:"kind"`
	ContentType        ContentType `json:"content_type"`
	Source             string      `json:"source"`
	SourceID           string      `json:"source_id"`
	ChunkIndex         int         `json:"chunk_index"`
	Text               string      `json:"text"`
	Sender             string      `json:"sender,omitempty"`
	ThreadID           string      `json:"thread_id,omitempty"`
	AssetID            string      `json:"asset_id"`
	ParentAssetID      string      `json:"parent_asset_id,omitempty"`
	ChunkGroupID       string      `json:"chunk_group_id,omitempty"`
	ChunkTotal         int         `json:"chunk_total,omitempty"`
	PersonIDs          []string    `json:"person_ids,omitempty"`
	MentionedPersonIDs []string    `json:"mentioned_person_ids,omitempty"`
	Timestamp          time.Time   `json:"timestamp"`
}

// Chunk is an indexed, embeddable unit of archived text.
type Chunk struct {
	ChunkRef
	Meta         ChunkMeta `json:"meta"`
	EmbedText    string    `json:"-"`
	Embedding    []float32 `json:"-"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ScoredChunk pairs a chunk with a raw per-source score. Raw scores are
// only meaningful within the list that produced them.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// UpsertChunkRequest is the normalized chunk-creation payload handed over by
// ingestion collaborators.
type UpsertChunkRequest struct {
	Source             string      `json:"source"`
	SourceID           string      `json:"source_id"`
	ChunkIndex         int         `json:"chunk_index"`
	Text               string      `json:"text"`
	EmbedText          string      `json:"embed_text,omitempty"`
	ContentType        ContentType `json:"content_type"`
	Sender             string      `json:"sender,omitempty"`
	SenderPersonID     string      `json:"sender_person_id,omitempty"`
	ThreadID           string      `json:"thread_id,omitempty"`
	AssetID            string      `json:"asset_id"`
	ParentAssetID      string      `json:"parent_asset_id,omitempty"`
	ChunkGroupID       string      `json:"chunk_group_id,omitempty"`
	ChunkTotal         int         `json:"chunk_total,omitempty"`
	PersonIDs          []string    `json:"person_ids,omitempty"`
	MentionedPersonIDs []string    `json:"mentioned_person_ids,omitempty"`
	Timestamp          time.Time   `json:"timestamp"`
	Meta               ChunkMeta   `json:"meta"`
}

// Validate checks required metadata and limits. Every failure wraps
// ErrMalformedInput with the offending field.
func (r *UpsertChunkRequest) Validate() error { //nolint:gocyclo,cyclop // one branch per field.
	r.Source = strings.TrimSpace(r.Source)
	r.SourceID = strings.TrimSpace(r.SourceID)

	switch {
	case r.Source == "":
		return ErrMissingField("source")
	case r.SourceID == "":
		return ErrMissingField("source_id")
	case r.AssetID == "":
		return ErrMissingField("asset_id")
	case strings.TrimSpace(r.Text) == "":
		return ErrMissingField("text")
	case r.Timestamp.IsZero():
		return ErrMissingField("timestamp")
	}

	if !r.ContentType.Valid() {
		return Malformed("content_type %q is not supported", r.ContentType)
	}

	for field, v := range map[string]string{
		"source": r.Source, "source_id": r.SourceID, "asset_id": r.AssetID,
		"parent_asset_id": r.ParentAssetID, "thread_id": r.ThreadID, "chunk_group_id": r.ChunkGroupID,
	} {
		if len(v) > maxRefLength {
			return ErrFieldTooLong(field, maxRefLength)
		}
	}

	if len(r.Sender) > maxSenderBytes {
		return ErrFieldTooLong("sender", maxSenderBytes)
	}

	if len(r.Text) > maxChunkText {
		return ErrFieldTooLong("text", maxChunkText)
	}

	if !utf8.ValidString(r.Text) {
		return Malformed("text is not valid UTF-8")
	}

	if r.ChunkIndex < 0 || r.ChunkIndex > maxChunkIndex {
		return Malformed("chunk_index must be between 0 and %d", maxChunkIndex)
	}

	if r.ChunkTotal < 0 || r.ChunkTotal > maxChunkTotal {
		return Malformed("chunk_total must be between 0 and %d", maxChunkTotal)
	}

	if r.ChunkGroupID != "" && r.ChunkTotal == 0 {
		return Malformed("chunk_total is required when chunk_group_id is set")
	}

	if r.ChunkTotal > 0 && r.ChunkIndex >= r.ChunkTotal {
		return Malformed("chunk_index %d out of range for chunk_total %d", r.ChunkIndex, r.ChunkTotal)
	}

	if len(r.PersonIDs) > maxPersonRefs || len(r.MentionedPersonIDs) > maxPersonRefs {
		return Malformed("at most %d person references per chunk", maxPersonRefs)
	}

	return r.Meta.Validate(r.ContentType)
}

// ToChunk builds the chunk this request describes. Validate must be called first.
func (r *UpsertChunkRequest) ToChunk() Chunk {
	embedText := r.EmbedText
	if strings.TrimSpace(embedText) == "" {
		embedText = r.Text
	}

	return Chunk{
		ChunkRef: ChunkRef{
			ID:                 ChunkID(r.Source, r.SourceID, r.ChunkIndex),
			Kind:               r.Meta.Kind,
			ContentType:        r.ContentType,
			Source:             r.Source,
			SourceID:           r.SourceID,
			ChunkIndex:         r.ChunkIndex,
			Text:               r.Text,
			Sender:             r.Sender,
			ThreadID:           r.ThreadID,
			AssetID:            r.AssetID,
			ParentAssetID:      r.ParentAssetID,
			ChunkGroupID:       r.ChunkGroupID,
			ChunkTotal:         r.ChunkTotal,
			PersonIDs:          dedupeStrings(r.PersonIDs),
			MentionedPersonIDs: dedupeStrings(r.MentionedPersonIDs),
			Timestamp:          r.Timestamp.UTC(),
		},
		Meta:      r.Meta,
		EmbedText: embedText,
	}
}

// EmbedTarget is a chunk awaiting an embedding.
type EmbedTarget struct {
	ID        string
	EmbedText string
}

// UpsertChunksResult summarizes a chunk ingestion batch.
type UpsertChunksResult struct {
	IDs            []string `json:"ids"`
	Upserted       int      `json:"upserted"`
	EmbeddingQueue int      `json:"embedding_queued"`
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))

	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

// ArchiveStats summarizes the index.
type ArchiveStats struct {
	Chunks                 int64 `json:"chunks"`
	ChunksMissingEmbedding int64 `json:"chunks_missing_embedding"`
	EmbedQueued            int   `json:"embed_queued,omitempty"`
}
