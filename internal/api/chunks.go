package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/models"
)

// maxUpsertBatch caps the number of chunks per upsert request.
const maxUpsertBatch = 500

// ChunkHandler serves chunk ingestion and lookup.
type ChunkHandler struct {
	ingest IngestService
	chunks ChunkReader
	log    *logrus.Logger
}

// NewChunkHandler creates a ChunkHandler.
func NewChunkHandler(ingest IngestService, chunks ChunkReader, log *logrus.Logger) *ChunkHandler {
	return &ChunkHandler{ingest: ingest, chunks: chunks, log: log}
}

type upsertChunksBody struct {
	Chunks []models.UpsertChunkRequest `json:"chunks"`
}

// Upsert handles POST /api/v1/chunks.
func (h *ChunkHandler) Upsert(c *gin.Context) {
	var body upsertChunksBody
	if !bindJSON(c, &body) {
		return
	}

	if len(body.Chunks) > maxUpsertBatch {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, fmt.Sprintf("at most %d chunks per request", maxUpsertBatch))
		return
	}

	res, err := h.ingest.UpsertChunks(c.Request.Context(), body.Chunks)
	if err != nil {
		respondServiceError(c, h.log, err, "upserting chunks")
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":           "chunk.upsert",
		"upserted":         res.Upserted,
		"embedding_queued": res.EmbeddingQueue,
	}).Info("audit")

	c.JSON(http.StatusOK, res)
}

// Get handles GET /api/v1/chunks/:id.
func (h *ChunkHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	chunk, err := h.chunks.GetChunk(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "getting chunk")
		return
	}

	c.JSON(http.StatusOK, chunk)
}
