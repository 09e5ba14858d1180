package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer creates a test server that routes to the given handler map.
// Keys are "METHOD /path", values are handler funcs.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithAPIKey("test-key"))
	return srv, c
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestHealth(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, HealthResponse{Status: "ok", Version: "0.1.0", Reranker: "disabled"})
		},
	})
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if resp.Status != "ok" || resp.Reranker != "disabled" {
		t.Errorf("got %+v", resp)
	}
}

func TestReady_NotReady(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/ready": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 503, map[string]string{"code": "service_unavailable", "message": "database unreachable"})
		},
	})
	_, err := c.Ready(context.Background())
	if !IsUnavailable(err) {
		t.Errorf("expected unavailable, got: %v", err)
	}
}

func TestRetrieve(t *testing.T) {
	var got RetrieveRequest
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/retrieve": func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got) //nolint:errcheck
			jsonResponse(w, 200, RetrieveResponse{
				Results: []RankedResult{{Chunk: Chunk{ID: "c1", Text: "friday at 8"}, Score: 0.9, Origin: "retrieved"}},
				Flags:   []string{"unreranked"},
			})
		},
	})

	resp, err := c.Retrieval.Retrieve(context.Background(), RetrieveRequest{
		Query:   "when is dinner",
		Filters: Filters{ThreadID: "T"},
		Limit:   5,
	})
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if got.Query != "when is dinner" || got.Filters.ThreadID != "T" || got.Limit != 5 {
		t.Errorf("request = %+v", got)
	}
	if len(resp.Results) != 1 || resp.Results[0].Chunk.ID != "c1" {
		t.Errorf("results = %+v", resp.Results)
	}
	if !resp.HasFlag("unreranked") || resp.HasFlag("budget_exceeded") {
		t.Errorf("flags = %v", resp.Flags)
	}
}

func TestContextAndAssemble(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/context": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, ContextResponse{
				Context:  ContextBlock{Text: "[1] Dana: yes", Citations: []Citation{{N: 1, ChunkID: "c1"}}, TokenBudget: 100},
				Retrieve: &RetrieveResponse{Flags: []string{}},
			})
		},
		"POST /api/v1/context/assemble": func(w http.ResponseWriter, r *http.Request) {
			var req AssembleRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 200, ContextBlock{TokenBudget: req.TokenBudget, Citations: []Citation{}})
		},
	})
	ctx := context.Background()

	resp, err := c.Retrieval.Context(ctx, RetrieveRequest{Query: "dinner", TokenBudget: 100})
	if err != nil {
		t.Fatalf("Context() error: %v", err)
	}
	if len(resp.Context.Citations) != 1 || resp.Retrieve == nil {
		t.Errorf("context = %+v", resp)
	}

	block, err := c.Retrieval.Assemble(ctx, AssembleRequest{TokenBudget: 42})
	if err != nil {
		t.Fatalf("Assemble() error: %v", err)
	}
	if block.TokenBudget != 42 {
		t.Errorf("budget = %d, want 42", block.TokenBudget)
	}
}

func TestChunks(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/chunks": func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Chunks []UpsertChunkRequest `json:"chunks"`
			}
			json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
			jsonResponse(w, 200, UpsertChunksResult{IDs: []string{"c1"}, Upserted: len(body.Chunks)})
		},
		"GET /api/v1/chunks/c1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, Chunk{ID: "c1", Source: "whatsapp"})
		},
		"GET /api/v1/chunks/missing": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 404, map[string]string{"code": "not_found", "message": "chunk not found"})
		},
	})
	ctx := context.Background()

	res, err := c.Chunks.Upsert(ctx, []UpsertChunkRequest{{Source: "whatsapp", SourceID: "1", Text: "hi", ContentType: "message", AssetID: "a1"}})
	if err != nil || res.Upserted != 1 {
		t.Fatalf("Upsert: err=%v res=%+v", err, res)
	}

	chunk, err := c.Chunks.Get(ctx, "c1")
	if err != nil || chunk.Source != "whatsapp" {
		t.Fatalf("Get: err=%v chunk=%+v", err, chunk)
	}

	if _, err := c.Chunks.Get(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("expected not found, got: %v", err)
	}
}

func TestPersons(t *testing.T) {
	var linked, related bool
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/persons": func(w http.ResponseWriter, r *http.Request) {
			var req CreatePersonRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 201, Person{ID: "p1", CanonicalName: req.CanonicalName})
		},
		"GET /api/v1/persons/p1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, Person{ID: "p1", Aliases: []Alias{{Alias: "Shiri", Norm: "shiri", Kind: "name"}}})
		},
		"GET /api/v1/persons/resolve": func(w http.ResponseWriter, r *http.Request) {
			jsonResponse(w, 200, Resolution{Query: r.URL.Query().Get("q"), Status: "ambiguous", Candidates: []AliasMatch{{PersonID: "p1"}, {PersonID: "p2"}}})
		},
		"POST /api/v1/persons/p1/aliases": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
			jsonResponse(w, 201, map[string]any{"person_id": "p1", "added": body["alias"] == "Shiri"})
		},
		"POST /api/v1/persons/p1/facts": func(w http.ResponseWriter, r *http.Request) {
			var req FactRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 200, Fact{PersonID: "p1", Key: req.Key, Value: req.Value, Confidence: 1})
		},
		"POST /api/v1/persons/p1/relationships": func(w http.ResponseWriter, _ *http.Request) {
			related = true
			w.WriteHeader(http.StatusNoContent)
		},
		"POST /api/v1/persons/merge": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
			jsonResponse(w, 200, MergeResult{SourceID: body["source_id"], TargetID: body["target_id"], Aliases: 2})
		},
		"POST /api/v1/links/person-asset": func(w http.ResponseWriter, _ *http.Request) {
			linked = true
			w.WriteHeader(http.StatusNoContent)
		},
	})
	ctx := context.Background()

	p, err := c.Persons.Create(ctx, CreatePersonRequest{CanonicalName: "Shiran Cohen"})
	if err != nil || p.CanonicalName != "Shiran Cohen" {
		t.Fatalf("Create: err=%v person=%+v", err, p)
	}

	p, err = c.Persons.Get(ctx, "p1")
	if err != nil || len(p.Aliases) != 1 {
		t.Fatalf("Get: err=%v person=%+v", err, p)
	}

	res, err := c.Persons.Resolve(ctx, "Dana")
	if err != nil || res.Status != "ambiguous" || res.Query != "Dana" {
		t.Fatalf("Resolve: err=%v res=%+v", err, res)
	}

	added, err := c.Persons.AddAlias(ctx, "p1", "Shiri", "")
	if err != nil || !added {
		t.Fatalf("AddAlias: err=%v added=%v", err, added)
	}

	fact, err := c.Persons.UpsertFact(ctx, "p1", FactRequest{Key: "city", Value: "Haifa"})
	if err != nil || fact.Value != "Haifa" {
		t.Fatalf("UpsertFact: err=%v fact=%+v", err, fact)
	}

	if err := c.Persons.UpsertRelationship(ctx, "p1", RelationshipRequest{RelatedID: "p2", RelationType: "sibling"}); err != nil || !related {
		t.Fatalf("UpsertRelationship: err=%v called=%v", err, related)
	}

	merged, err := c.Persons.Merge(ctx, "p2", "p1")
	if err != nil || merged.SourceID != "p2" || merged.TargetID != "p1" {
		t.Fatalf("Merge: err=%v res=%+v", err, merged)
	}

	if err := c.Persons.LinkPersonAsset(ctx, PersonAssetLink{PersonID: "p1", AssetRef: "a1", Role: "author"}); err != nil || !linked {
		t.Fatalf("LinkPersonAsset: err=%v called=%v", err, linked)
	}
}

func TestMessages(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/messages": func(w http.ResponseWriter, r *http.Request) {
			var msg Message
			json.NewDecoder(r.Body).Decode(&msg) //nolint:errcheck
			jsonResponse(w, 202, AppendResult{ThreadID: msg.ThreadID, Buffered: 1, State: "buffering"})
		},
		"POST /api/v1/messages/flush": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"thread_id": "T", "flushed": 3})
		},
		"GET /api/v1/messages/pending": func(w http.ResponseWriter, r *http.Request) {
			jsonResponse(w, 200, map[string]any{
				"thread_id": r.URL.Query().Get("thread_id"),
				"messages":  []Message{{ThreadID: "T", Text: "hi"}},
				"count":     1,
			})
		},
	})
	ctx := context.Background()

	res, err := c.Messages.Append(ctx, Message{ThreadID: "T", Text: "hi"})
	if err != nil || res.ThreadID != "T" || res.Buffered != 1 {
		t.Fatalf("Append: err=%v res=%+v", err, res)
	}

	n, err := c.Messages.Flush(ctx, "T")
	if err != nil || n != 3 {
		t.Fatalf("Flush: err=%v n=%d", err, n)
	}

	msgs, err := c.Messages.Pending(ctx, "T")
	if err != nil || len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("Pending: err=%v msgs=%+v", err, msgs)
	}
}

func TestAdmin(t *testing.T) {
	var gotLimit string
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/admin/backfill-embeddings": func(w http.ResponseWriter, r *http.Request) {
			gotLimit = r.URL.Query().Get("limit")
			jsonResponse(w, 200, ArchiveStats{Chunks: 10, ChunksMissingEmbedding: 4, EmbedQueued: 4})
		},
		"GET /api/v1/admin/stats": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, ArchiveStats{Chunks: 10})
		},
	})
	ctx := context.Background()

	stats, err := c.Admin.BackfillEmbeddings(ctx, 50)
	if err != nil || stats.EmbedQueued != 4 {
		t.Fatalf("BackfillEmbeddings: err=%v stats=%+v", err, stats)
	}
	if gotLimit != "50" {
		t.Errorf("limit = %q, want 50", gotLimit)
	}

	stats, err = c.Admin.Stats(ctx)
	if err != nil || stats.Chunks != 10 {
		t.Fatalf("Stats: err=%v stats=%+v", err, stats)
	}
}

func TestAPIError(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/persons/missing": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 404, map[string]string{"code": "not_found", "message": "person not found", "request_id": "r1"})
		},
		"POST /api/v1/retrieve": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 400, map[string]string{"code": "validation_error", "message": "empty query"})
		},
		"POST /api/v1/persons": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("slow down")) //nolint:errcheck
		},
	})
	ctx := context.Background()

	_, err := c.Persons.Get(ctx, "missing")
	if !IsNotFound(err) {
		t.Errorf("expected not found, got: %v", err)
	}
	if err != nil && err.Error() != "recall: 404 not_found: person not found (request_id=r1)" {
		t.Errorf("error text = %q", err.Error())
	}

	_, err = c.Retrieval.Retrieve(ctx, RetrieveRequest{})
	if !IsValidation(err) {
		t.Errorf("expected validation, got: %v", err)
	}

	_, err = c.Persons.Create(ctx, CreatePersonRequest{CanonicalName: "x"})
	if !IsRateLimited(err) {
		t.Errorf("expected rate limited, got: %v", err)
	}
	if IsConflict(err) {
		t.Error("rate limit must not read as conflict")
	}
}

func TestAuthHeader(t *testing.T) {
	var gotAuth string
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			jsonResponse(w, 200, HealthResponse{Status: "ok"})
		},
	})

	c.Health(context.Background()) //nolint:errcheck
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header: got %q, want %q", gotAuth, "Bearer test-key")
	}
}
