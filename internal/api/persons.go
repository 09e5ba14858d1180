package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/models"
)

// PersonHandler serves identity endpoints.
type PersonHandler struct {
	svc PersonService
	log *logrus.Logger
}

// NewPersonHandler creates a PersonHandler.
func NewPersonHandler(svc PersonService, log *logrus.Logger) *PersonHandler {
	return &PersonHandler{svc: svc, log: log}
}

// personID reads and validates the :id path parameter.
func personID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return "", false
	}

	return id, true
}

// Create handles POST /api/v1/persons.
func (h *PersonHandler) Create(c *gin.Context) {
	var req models.CreatePersonRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.CreatePerson(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "creating person")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "person.create", "person_id": p.ID, "aliases": len(p.Aliases)}).Info("audit")

	c.JSON(http.StatusCreated, p)
}

// Get handles GET /api/v1/persons/:id. Merged persons resolve to their target.
func (h *PersonHandler) Get(c *gin.Context) {
	id, ok := personID(c)
	if !ok {
		return
	}

	p, err := h.svc.GetPerson(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "getting person")
		return
	}

	c.JSON(http.StatusOK, p)
}

// Resolve handles GET /api/v1/persons/resolve?q=. An ambiguous name is a
// normal response, not an error.
func (h *PersonHandler) Resolve(c *gin.Context) {
	q := c.Query("q")
	if len(q) > maxAliasQueryLen {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "query parameter q exceeds maximum length")
		return
	}

	res, err := h.svc.Resolve(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, h.log, err, "resolving person")
		return
	}

	c.JSON(http.StatusOK, res)
}

// maxAliasQueryLen caps the resolve query string.
const maxAliasQueryLen = 500

// AddAlias handles POST /api/v1/persons/:id/aliases.
func (h *PersonHandler) AddAlias(c *gin.Context) {
	id, ok := personID(c)
	if !ok {
		return
	}

	var req models.AddAliasRequest
	if !bindJSON(c, &req) {
		return
	}

	added, err := h.svc.AddAlias(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, h.log, err, "adding alias")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "person.alias", "person_id": id, "added": added}).Info("audit")

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}

	c.JSON(status, gin.H{"person_id": id, "added": added})
}

// UpsertFact handles POST /api/v1/persons/:id/facts.
func (h *PersonHandler) UpsertFact(c *gin.Context) {
	id, ok := personID(c)
	if !ok {
		return
	}

	var req models.UpsertFactRequest
	if !bindJSON(c, &req) {
		return
	}

	fact, err := h.svc.UpsertFact(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, h.log, err, "upserting fact")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "person.fact", "person_id": id, "key": fact.Key}).Info("audit")

	c.JSON(http.StatusOK, fact)
}

// UpsertRelationship handles POST /api/v1/persons/:id/relationships.
func (h *PersonHandler) UpsertRelationship(c *gin.Context) {
	id, ok := personID(c)
	if !ok {
		return
	}

	var req models.UpsertRelationshipRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.UpsertRelationship(c.Request.Context(), id, req); err != nil {
		respondServiceError(c, h.log, err, "upserting relationship")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "person.relationship", "person_id": id, "related_id": req.RelatedID}).Info("audit")

	c.Status(http.StatusNoContent)
}

// Merge handles POST /api/v1/persons/merge.
func (h *PersonHandler) Merge(c *gin.Context) {
	var req models.MergePersonsRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.svc.MergePersons(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "merging persons")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "person.merge", "source_id": res.SourceID, "target_id": res.TargetID}).Info("audit")

	c.JSON(http.StatusOK, res)
}

// LinkPersonAsset handles POST /api/v1/links/person-asset.
func (h *PersonHandler) LinkPersonAsset(c *gin.Context) {
	var link models.PersonAssetLink
	if !bindJSON(c, &link) {
		return
	}

	if err := h.svc.LinkPersonAsset(c.Request.Context(), link); err != nil {
		respondServiceError(c, h.log, err, "linking person to asset")
		return
	}

	c.Status(http.StatusNoContent)
}

// LinkAssetAsset handles POST /api/v1/links/asset-asset.
func (h *PersonHandler) LinkAssetAsset(c *gin.Context) {
	var edge models.AssetEdge
	if !bindJSON(c, &edge) {
		return
	}

	if err := h.svc.LinkAssetAsset(c.Request.Context(), edge); err != nil {
		respondServiceError(c, h.log, err, "linking assets")
		return
	}

	c.Status(http.StatusNoContent)
}
