package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/models"
)

// RetrieveHandler serves the retrieval and context endpoints.
type RetrieveHandler struct {
	svc QueryService
	log *logrus.Logger
}

// NewRetrieveHandler creates a RetrieveHandler.
func NewRetrieveHandler(svc QueryService, log *logrus.Logger) *RetrieveHandler {
	return &RetrieveHandler{svc: svc, log: log}
}

// Retrieve handles POST /api/v1/retrieve.
func (h *RetrieveHandler) Retrieve(c *gin.Context) {
	var req models.RetrieveRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Retrieve(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "retrieve")
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":   "retrieve",
		"results":  len(resp.Results),
		"flags":    resp.Flags,
		"reranked": resp.Reranked,
	}).Info("audit")

	c.JSON(http.StatusOK, resp)
}

// Context handles POST /api/v1/context.
func (h *RetrieveHandler) Context(c *gin.Context) {
	var req models.RetrieveRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Context(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "context")
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":      "context",
		"citations":   len(resp.Context.Citations),
		"tokens_used": resp.Context.TokensUsed,
	}).Info("audit")

	c.JSON(http.StatusOK, resp)
}

// Assemble handles POST /api/v1/context/assemble.
func (h *RetrieveHandler) Assemble(c *gin.Context) {
	var req models.AssembleRequest
	if !bindJSON(c, &req) {
		return
	}

	block, err := h.svc.Assemble(req)
	if err != nil {
		respondServiceError(c, h.log, err, "assemble context")
		return
	}

	c.JSON(http.StatusOK, block)
}
