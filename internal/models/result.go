package models

import "time"

// Flag marks a degraded or otherwise notable response.
type Flag string

// Response flags.
const (
	FlagDenseUnavailable   Flag = "dense_unavailable"
	FlagLexicalUnavailable Flag = "lexical_unavailable"
	FlagUnreranked         Flag = "unreranked"
	FlagExpansionDegraded  Flag = "expansion_degraded"
	FlagResolverDegraded   Flag = "resolver_unavailable"
	FlagBudgetExceeded     Flag = "budget_exceeded"
)

// Origin records which stage put a result in the set.
type Origin string

// Result origins.
const (
	OriginRetrieved Origin = "retrieved"
	OriginTemporal  Origin = "temporal"
	OriginSibling   Origin = "sibling"
	OriginGraph     Origin = "graph"
	OriginRecency   Origin = "recency"
)

// RankDebug carries per-source ranks for inspection. These values are never
// compared against scores from other stages.
type RankDebug struct {
	DenseRank   int     `json:"dense_rank,omitempty"`
	LexicalRank int     `json:"lexical_rank,omitempty"`
	FusedScore  float64 `json:"fused_score"`
	RerankScore float64 `json:"rerank_score,omitempty"`
}

// RankedResult is a chunk with its comparable score in [0,1].
type RankedResult struct {
	Chunk  Chunk      `json:"chunk"`
	Score  float64    `json:"score"`
	Origin Origin     `json:"origin"`
	Anchor string     `json:"anchor,omitempty"`
	Debug  *RankDebug `json:"debug,omitempty"`
}

// GraphFact is a person fact surfaced for context injection.
type GraphFact struct {
	PersonID   string  `json:"person_id"`
	PersonName string  `json:"person_name"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// RetrieveResponse is the output of the retrieve pipeline.
type RetrieveResponse struct {
	Results    []RankedResult `json:"results"`
	Facts      []GraphFact    `json:"facts,omitempty"`
	Intents    []string       `json:"intents"`
	Persons    []AliasMatch   `json:"persons,omitempty"`
	Ambiguous  []Resolution   `json:"ambiguous,omitempty"`
	Flags      []Flag         `json:"flags"`
	Reranked   bool           `json:"reranked"`
	TookMillis int64          `json:"took_ms"`
}

// HasFlag reports whether f is set on the response.
func (r *RetrieveResponse) HasFlag(f Flag) bool {
	for _, x := range r.Flags {
		if x == f {
			return true
		}
	}

	return false
}

// AddFlag sets f once.
func (r *RetrieveResponse) AddFlag(f Flag) {
	if !r.HasFlag(f) {
		r.Flags = append(r.Flags, f)
	}
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

// ContextBlock is the token-budgeted, cited text handed to answer generation.
type ContextBlock struct {
	Text           string     `json:"text"`
	Citations      []Citation `json:"citations"`
	FactsIncluded  int        `json:"facts_included"`
	Omitted        int        `json:"omitted"`
	TokensUsed     int        `json:"tokens_used"`
	TokenBudget    int        `json:"token_budget"`
	BudgetExceeded bool       `json:"budget_exceeded"`
}

// AssembleRequest asks for a context block over caller-supplied results.
type AssembleRequest struct {
	Results     []RankedResult `json:"results"`
	Facts       []GraphFact    `json:"facts,omitempty"`
	TokenBudget int            `json:"token_budget"`
}

// Validate checks AssembleRequest fields.
func (r *AssembleRequest) Validate() error {
	if r.TokenBudget < 0 {
		return Malformed("token_budget must not be negative")
	}

	for i := range r.Results {
		if r.Results[i].Chunk.ID == "" {
			return Malformed("results[%d] has no chunk id", i)
		}

		if r.Results[i].Score < 0 || r.Results[i].Score > 1 {
			return Malformed("results[%d] score must be between 0 and 1", i)
		}
	}

	return nil
}

// ContextResponse bundles a retrieval with its assembled block.
type ContextResponse struct {
	Context  ContextBlock      `json:"context"`
	Retrieve *RetrieveResponse `json:"retrieve"`
}
