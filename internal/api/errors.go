package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/httputil"
	"github.com/persistorai/recall/internal/metrics"
	"github.com/persistorai/recall/internal/models"
	"github.com/persistorai/recall/internal/service"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeInternalError      = "internal_error"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeValidationError    = "validation_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondServiceError maps a service error onto a status code. Unexpected
// errors are logged with op and reported without detail.
func respondServiceError(c *gin.Context, log *logrus.Logger, err error, op string) {
	switch {
	case errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, models.ErrMalformedInput),
		errors.Is(err, models.ErrMergeSelf):
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
	case errors.Is(err, models.ErrPersonNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "person not found")
	case errors.Is(err, models.ErrChunkNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "chunk not found")
	case errors.Is(err, models.ErrDuplicateKey):
		respondError(c, http.StatusConflict, ErrCodeConflict, "already exists")
	case errors.Is(err, models.ErrServiceUnavailable),
		errors.Is(err, service.ErrCircuitOpen),
		errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Warn(op)
		respondError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "service temporarily unavailable")
	default:
		log.WithError(err).Error(op)
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}

// bindJSON decodes the request body into dst, responding 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return false
	}

	return true
}
