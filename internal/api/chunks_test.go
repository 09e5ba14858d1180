package api_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/persistorai/recall/internal/api"
	"github.com/persistorai/recall/internal/models"
)

func chunkRouter(ingest *mockIngestService, reader *mockChunkReader) http.Handler {
	r := newTestRouter()
	h := api.NewChunkHandler(ingest, reader, testLogger())
	r.POST("/chunks", h.Upsert)
	r.GET("/chunks/:id", h.Get)
	return r
}

func TestUpsertChunks_OK(t *testing.T) {
	t.Parallel()

	var got []models.UpsertChunkRequest
	ingest := &mockIngestService{
		upsertFn: func(_ context.Context, reqs []models.UpsertChunkRequest) (*models.UpsertChunksResult, error) {
			got = reqs
			return &models.UpsertChunksResult{IDs: []string{"id-1"}, Upserted: 1}, nil
		},
	}

	body := `{"chunks":[{"source":"whatsapp","source_id":"m1","text":"hi","content_type":"message","asset_id":"m1","timestamp":"2025-03-01T10:00:00Z"}]}`
	w := doRequest(chunkRouter(ingest, nil), http.MethodPost, "/chunks", body)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(got) != 1 || got[0].SourceID != "m1" || got[0].ContentType != models.ContentMessage {
		t.Errorf("decoded = %+v", got)
	}
	if decodeBody(t, w)["upserted"] != float64(1) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUpsertChunks_Rejected(t *testing.T) {
	t.Parallel()

	ingest := &mockIngestService{
		upsertFn: func(context.Context, []models.UpsertChunkRequest) (*models.UpsertChunksResult, error) {
			return nil, fmt.Errorf("chunk 0: %w", models.ErrMissingField("source_id"))
		},
	}

	w := doRequest(chunkRouter(ingest, nil), http.MethodPost, "/chunks", `{"chunks":[{"text":"x"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if msg, _ := decodeBody(t, w)["message"].(string); !strings.Contains(msg, "source_id") {
		t.Errorf("message = %q, want the offending field", msg)
	}
}

func TestUpsertChunks_BatchTooLarge(t *testing.T) {
	t.Parallel()

	items := make([]string, 501)
	for i := range items {
		items[i] = `{}`
	}

	w := doRequest(chunkRouter(&mockIngestService{}, nil), http.MethodPost, "/chunks", `{"chunks":[`+strings.Join(items, ",")+`]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetChunk(t *testing.T) {
	t.Parallel()

	reader := &mockChunkReader{
		getFn: func(_ context.Context, id string) (*models.Chunk, error) {
			if id == "missing" {
				return nil, models.ErrChunkNotFound
			}
			return &models.Chunk{ChunkRef: models.ChunkRef{ID: id, Text: "hello"}}, nil
		},
	}
	r := chunkRouter(nil, reader)

	w := doRequest(r, http.MethodGet, "/chunks/c1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["id"] != "c1" || body["text"] != "hello" {
		t.Errorf("body = %v", body)
	}

	w = doRequest(r, http.MethodGet, "/chunks/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
