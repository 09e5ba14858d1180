// Package api provides HTTP handlers for recall.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// Database is the subset of the connection pool the health checks use.
type Database interface {
	HealthCheck(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthConfig describes the external services reported by the health endpoints.
type HealthConfig struct {
	Version             string
	EmbeddingProvider   string
	OllamaURL           string
	EmbeddingModel      string
	EmbeddingDimensions int
	Reranker            AvailabilityChecker
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db         Database
	log        *logrus.Logger
	cfg        HealthConfig
	httpClient *http.Client
	startTime  time.Time
}

// NewHealthHandler creates a HealthHandler with the given dependencies.
func NewHealthHandler(db Database, log *logrus.Logger, cfg HealthConfig) *HealthHandler {
	return &HealthHandler{
		db:         db,
		log:        log,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		startTime:  time.Now(),
	}
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthResponse is the JSON payload returned by the health/liveness endpoint.
type healthResponse struct {
	Status              string  `json:"status"`
	Version             string  `json:"version"`
	Database            string  `json:"database"`
	Embeddings          string  `json:"embeddings"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	Reranker            string  `json:"reranker"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

// Liveness handles GET /api/v1/health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:              "ok",
		Version:             h.cfg.Version,
		Database:            "connected",
		Embeddings:          "unavailable",
		EmbeddingDimensions: h.cfg.EmbeddingDimensions,
		Reranker:            h.rerankerState(),
		UptimeSeconds:       time.Since(h.startTime).Seconds(),
	}

	// Best-effort database ping (non-fatal for liveness).
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.HealthCheck(ctx); err != nil {
			resp.Database = "disconnected"
		}
	} else {
		resp.Database = "not_configured"
	}

	if h.cfg.EmbeddingModel != "" {
		resp.Embeddings = h.cfg.EmbeddingModel
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /api/v1/ready. The database and schema gate
// readiness; the embedding service and reranker only degrade it, since
// retrieval keeps working lexically without them.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{
		"database":   "ok",
		"schema":     "ok",
		"embeddings": "ok",
		"reranker":   h.rerankerState(),
	}
	status := "ready"
	statusCode := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if h.db == nil {
		checks["database"] = "not_configured"
		checks["schema"] = "unknown"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	} else if err := h.db.HealthCheck(ctx); err != nil {
		h.log.WithError(err).Error("readiness: database health check failed")
		checks["database"] = "error"
		checks["schema"] = "unknown"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	} else if err := h.checkSchema(ctx); err != nil {
		h.log.WithError(err).Error("readiness: schema check failed")
		checks["schema"] = "error"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	if err := h.checkOllama(ctx); err != nil {
		h.log.WithError(err).Warn("readiness: embedding service check failed")
		checks["embeddings"] = "degraded"
	}

	c.JSON(statusCode, readinessResponse{
		Status: status,
		Checks: checks,
	})
}

func (h *HealthHandler) rerankerState() string {
	switch {
	case h.cfg.Reranker == nil:
		return "disabled"
	case h.cfg.Reranker.Available():
		return "ok"
	default:
		return "degraded"
	}
}

// checkSchema verifies the migrated schema by querying the chunks table.
func (h *HealthHandler) checkSchema(ctx context.Context) error {
	var exists bool
	err := h.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM chunks LIMIT 1)").Scan(&exists)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}

	return nil
}

// checkOllama does a best-effort connectivity check to the Ollama API. Other
// providers are not probed.
func (h *HealthHandler) checkOllama(ctx context.Context) error {
	if h.cfg.EmbeddingProvider != "ollama" || h.cfg.OllamaURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.OllamaURL+"/api/version", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	return nil
}
