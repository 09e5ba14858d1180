package client

import "time"

// Filters restrict a retrieval. A request with filters and no query text
// lists matching chunks newest first.
type Filters struct {
	PersonIDs    []string   `json:"person_ids,omitempty"`
	ThreadID     string     `json:"thread_id,omitempty"`
	ContentTypes []string   `json:"content_types,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	ExcludeKinds []string   `json:"exclude_kinds,omitempty"`
}

// RetrieveRequest is the payload for retrieve and context calls.
type RetrieveRequest struct {
	Query       string  `json:"query"`
	Filters     Filters `json:"filters"`
	Limit       int     `json:"limit,omitempty"`
	MinScore    float64 `json:"min_score,omitempty"`
	Debug       bool    `json:"debug,omitempty"`
	TokenBudget int     `json:"token_budget,omitempty"`
}

// ChunkMeta carries the content-type specific metadata of a chunk. Kind
// selects which variant is set.
type ChunkMeta struct {
	Kind       string         `json:"kind"`
	Message    map[string]any `json:"message,omitempty"`
	Document   map[string]any `json:"document,omitempty"`
	Transcript map[string]any `json:"transcript,omitempty"`
	Summary    map[string]any `json:"summary,omitempty"`
}

// Chunk is an indexed unit of archived text.
type Chunk struct {
	ID                 string    `json:"id"`
	Kind               string    `json:"kind"`
	ContentType        string    `json:"content_type"`
	Source             string    `json:"source"`
	SourceID           string    `json:"source_id"`
	ChunkIndex         int       `json:"chunk_index"`
	Text               string    `json:"text"`
	Sender             string    `json:"sender,omitempty"`
	ThreadID           string    `json:"thread_id,omitempty"`
	AssetID            string    `json:"asset_id"`
	ParentAssetID      string    `json:"parent_asset_id,omitempty"`
	ChunkGroupID       string    `json:"chunk_group_id,omitempty"`
	ChunkTotal         int       `json:"chunk_total,omitempty"`
	PersonIDs          []string  `json:"person_ids,omitempty"`
	MentionedPersonIDs []string  `json:"mentioned_person_ids,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Meta               ChunkMeta `json:"meta"`
	HasEmbedding       bool      `json:"has_embedding"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RankDebug carries per-source ranks when debug output was requested.
type RankDebug struct {
	DenseRank   int     `json:"dense_rank,omitempty"`
	LexicalRank int     `json:"lexical_rank,omitempty"`
	FusedScore  float64 `json:"fused_score"`
	RerankScore float64 `json:"rerank_score,omitempty"`
}

// RankedResult is a chunk with a comparable score in [0,1].
type RankedResult struct {
	Chunk  Chunk      `json:"chunk"`
	Score  float64    `json:"score"`
	Origin string     `json:"origin"`
	Anchor string     `json:"anchor,omitempty"`
	Debug  *RankDebug `json:"debug,omitempty"`
}

// GraphFact is a person fact surfaced alongside results.
type GraphFact struct {
	PersonID   string  `json:"person_id"`
	PersonName string  `json:"person_name"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// AliasMatch is one person an alias resolved to.
type AliasMatch struct {
	PersonID      string `json:"person_id"`
	CanonicalName string `json:"canonical_name"`
	Alias         string `json:"alias"`
	Norm          string `json:"norm"`
	Kind          string `json:"kind"`
}

// Resolution is the outcome of resolving a name: none, resolved or ambiguous.
type Resolution struct {
	Query      string       `json:"query"`
	Status     string       `json:"status"`
	Candidates []AliasMatch `json:"candidates"`
}

// RetrieveResponse is the ranked output of a retrieval.
type RetrieveResponse struct {
	Results    []RankedResult `json:"results"`
	Facts      []GraphFact    `json:"facts,omitempty"`
	Intents    []string       `json:"intents"`
	Persons    []AliasMatch   `json:"persons,omitempty"`
	Ambiguous  []Resolution   `json:"ambiguous,omitempty"`
	Flags      []string       `json:"flags"`
	Reranked   bool           `json:"reranked"`
	TookMillis int64          `json:"took_ms"`
}

// HasFlag reports whether the response carries flag.
func (r *RetrieveResponse) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Citation maps a [N] marker in a context block back to its source.
type Citation struct {
	N         int       `json:"n"`
	ChunkID   string    `json:"chunk_id"`
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	AssetID   string    `json:"asset_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// ContextBlock is token-budgeted, cited text for answer generation.
type ContextBlock struct {
	Text           string     `json:"text"`
	Citations      []Citation `json:"citations"`
	FactsIncluded  int        `json:"facts_included"`
	Omitted        int        `json:"omitted"`
	TokensUsed     int        `json:"tokens_used"`
	TokenBudget    int        `json:"token_budget"`
	BudgetExceeded bool       `json:"budget_exceeded"`
}

// ContextResponse bundles a retrieval with its assembled block.
type ContextResponse struct {
	Context  ContextBlock      `json:"context"`
	Retrieve *RetrieveResponse `json:"retrieve"`
}

// AssembleRequest asks for a context block over caller-supplied results.
type AssembleRequest struct {
	Results     []RankedResult `json:"results"`
	Facts       []GraphFact    `json:"facts,omitempty"`
	TokenBudget int            `json:"token_budget"`
}

// UpsertChunkRequest is the chunk ingestion payload.
type UpsertChunkRequest struct {
	Source             string    `json:"source"`
	SourceID           string    `json:"source_id"`
	ChunkIndex         int       `json:"chunk_index"`
	Text               string    `json:"text"`
	EmbedText          string    `json:"embed_text,omitempty"`
	ContentType        string    `json:"content_type"`
	Sender             string    `json:"sender,omitempty"`
	SenderPersonID     string    `json:"sender_person_id,omitempty"`
	ThreadID           string    `json:"thread_id,omitempty"`
	AssetID            string    `json:"asset_id"`
	ParentAssetID      string    `json:"parent_asset_id,omitempty"`
	ChunkGroupID       string    `json:"chunk_group_id,omitempty"`
	ChunkTotal         int       `json:"chunk_total,omitempty"`
	PersonIDs          []string  `json:"person_ids,omitempty"`
	MentionedPersonIDs []string  `json:"mentioned_person_ids,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Meta               ChunkMeta `json:"meta"`
}

// UpsertChunksResult summarizes an ingestion batch.
type UpsertChunksResult struct {
	IDs            []string `json:"ids"`
	Upserted       int      `json:"upserted"`
	EmbeddingQueue int      `json:"embedding_queued"`
}

// Alias is one way of referring to a person.
type Alias struct {
	Alias string `json:"alias"`
	Norm  string `json:"norm"`
	Kind  string `json:"kind"`
}

// Fact is a keyed attribute of a person.
type Fact struct {
	PersonID   string    `json:"person_id,omitempty"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	Provenance string    `json:"provenance,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Relationship is a typed edge between two persons.
type Relationship struct {
	PersonID     string  `json:"person_id"`
	RelatedID    string  `json:"related_id"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
}

// Person is a resolved identity.
type Person struct {
	ID            string         `json:"id"`
	CanonicalName string         `json:"canonical_name"`
	MergedInto    *string        `json:"merged_into,omitempty"`
	Aliases       []Alias        `json:"aliases"`
	Facts         []Fact         `json:"facts"`
	Relationships []Relationship `json:"relationships"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CreatePersonRequest is the payload for creating a person.
type CreatePersonRequest struct {
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases,omitempty"`
	Phones        []string `json:"phones,omitempty"`
	Emails        []string `json:"emails,omitempty"`
}

// FactRequest sets a fact on a person.
type FactRequest struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
	Provenance string  `json:"provenance,omitempty"`
}

// RelationshipRequest relates a person to another person.
type RelationshipRequest struct {
	RelatedID    string  `json:"related_id"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// MergeResult reports what a merge moved.
type MergeResult struct {
	SourceID      string `json:"source_id"`
	TargetID      string `json:"target_id"`
	Aliases       int    `json:"aliases"`
	Facts         int    `json:"facts"`
	Relationships int    `json:"relationships"`
	Links         int    `json:"links"`
	Chunks        int    `json:"chunks"`
}

// PersonAssetLink relates a person to an asset in a role.
type PersonAssetLink struct {
	PersonID   string  `json:"person_id"`
	AssetRef   string  `json:"asset_ref"`
	Role       string  `json:"role"`
	Confidence float64 `json:"confidence,omitempty"`
}

// AssetEdge is a structural relation between two assets.
type AssetEdge struct {
	SrcRef       string  `json:"src_ref"`
	DstRef       string  `json:"dst_ref"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// Message is one conversation message for the buffer.
type Message struct {
	ThreadID       string    `json:"thread_id"`
	MessageID      string    `json:"message_id,omitempty"`
	Source         string    `json:"source,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	Sender         string    `json:"sender,omitempty"`
	SenderPersonID string    `json:"sender_person_id,omitempty"`
	PersonIDs      []string  `json:"person_ids,omitempty"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// AppendResult reports what appending a message did.
type AppendResult struct {
	ThreadID   string `json:"thread_id"`
	Buffered   int    `json:"buffered"`
	State      string `json:"state"`
	Flushed    int    `json:"flushed"`
	Trigger    string `json:"trigger,omitempty"`
	FlushError string `json:"flush_error,omitempty"`
}

// ArchiveStats summarizes the index.
type ArchiveStats struct {
	Chunks                 int64 `json:"chunks"`
	ChunksMissingEmbedding int64 `json:"chunks_missing_embedding"`
	EmbedQueued            int   `json:"embed_queued,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status              string  `json:"status"`
	Version             string  `json:"version"`
	Database            string  `json:"database"`
	Embeddings          string  `json:"embeddings"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	Reranker            string  `json:"reranker"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

// ReadyResponse is returned by the readiness endpoint.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
