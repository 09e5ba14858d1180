package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/persistorai/recall/internal/api"
)

// fakeRow implements pgx.Row.
type fakeRow struct{ err error }

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if b, ok := dest[0].(*bool); ok {
		*b = true
	}
	return nil
}

// fakeDB implements api.Database.
type fakeDB struct {
	pingErr   error
	schemaErr error
}

func (d *fakeDB) HealthCheck(context.Context) error { return d.pingErr }

func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: d.schemaErr}
}

func TestLiveness_ReturnsOK(t *testing.T) {
	t.Parallel()

	h := api.NewHealthHandler(nil, testLogger(), api.HealthConfig{
		Version:             "test-v1",
		EmbeddingModel:      "qwen3-embedding:0.6b",
		EmbeddingDimensions: 1024,
	})

	r := gin.New()
	r.GET("/health", h.Liveness)

	w := doRequest(r, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := decodeBody(t, w)

	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
	if body["version"] != "test-v1" {
		t.Errorf("expected version 'test-v1', got %v", body["version"])
	}
	if body["database"] != "not_configured" {
		t.Errorf("database = %v", body["database"])
	}
	if body["reranker"] != "disabled" {
		t.Errorf("reranker = %v, want disabled", body["reranker"])
	}
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ollama.Close()

	tests := []struct {
		name       string
		db         *fakeDB
		ollamaURL  string
		reranker   api.AvailabilityChecker
		wantCode   int
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			db:         &fakeDB{},
			ollamaURL:  ollama.URL,
			reranker:   staticAvailability(true),
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "schema": "ok", "embeddings": "ok", "reranker": "ok"},
		},
		{
			name:       "database down",
			db:         &fakeDB{pingErr: errors.New("connection refused")},
			ollamaURL:  ollama.URL,
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "error", "schema": "unknown", "reranker": "disabled"},
		},
		{
			name:       "schema missing",
			db:         &fakeDB{schemaErr: errors.New(`relation "chunks" does not exist`)},
			ollamaURL:  ollama.URL,
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "schema": "error"},
		},
		{
			name:       "embedding and reranker degraded",
			db:         &fakeDB{},
			ollamaURL:  ollama.URL + "/missing",
			reranker:   staticAvailability(false),
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"embeddings": "degraded", "reranker": "degraded"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := api.NewHealthHandler(tc.db, testLogger(), api.HealthConfig{
				EmbeddingProvider: "ollama",
				OllamaURL:         tc.ollamaURL,
				Reranker:          tc.reranker,
			})

			r := gin.New()
			r.GET("/ready", h.Readiness)

			w := doRequest(r, http.MethodGet, "/ready", "")
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, w.Code, w.Body.String())
			}

			checks, _ := decodeBody(t, w)["checks"].(map[string]any)
			for k, want := range tc.wantChecks {
				if checks[k] != want {
					t.Errorf("checks[%s] = %v, want %s", k, checks[k], want)
				}
			}
		})
	}
}
