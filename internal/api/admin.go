package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminHandler serves administrative endpoints.
type AdminHandler struct {
	svc AdminService
	log *logrus.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc AdminService, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, log: log}
}

// BackfillEmbeddings handles POST /api/v1/admin/backfill-embeddings. It
// queues chunks stored without an embedding.
func (h *AdminHandler) BackfillEmbeddings(c *gin.Context) {
	limit := parseInt(c.DefaultQuery("limit", "1000"), 1000)

	stats, err := h.svc.BackfillEmbeddings(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, h.log, err, "backfilling embeddings")
		return
	}

	h.log.WithFields(logrus.Fields{
		"action": "admin.backfill_embeddings",
		"queued": stats.EmbedQueued,
	}).Info("audit")

	c.JSON(http.StatusOK, stats)
}

// Stats handles GET /api/v1/admin/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.log, err, "archive stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}
