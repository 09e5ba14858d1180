package models

import (
	"errors"
	"fmt"
)

// ErrMalformedInput marks a request rejected at the ingestion boundary.
// It is always wrapped with the specific reason.
var ErrMalformedInput = errors.New("malformed input")

// ErrServiceUnavailable marks an external dependency (index, embedding,
// reranker) that could not serve a request.
var ErrServiceUnavailable = errors.New("external service unavailable")

// ErrEmptyQuery is returned when a retrieval has neither query text nor filters.
var ErrEmptyQuery = errors.New("query text or at least one filter is required")

// Sentinel errors for entity lookups.
var (
	ErrPersonNotFound = errors.New("person not found")
	ErrChunkNotFound  = errors.New("chunk not found")
)

// ErrMergeSelf is returned when both sides of a merge resolve to the same person.
var ErrMergeSelf = errors.New("cannot merge a person into itself")

// ErrDuplicateKey indicates a unique constraint violation (maps to HTTP 409 Conflict).
var ErrDuplicateKey = errors.New("duplicate key")

// Malformed wraps ErrMalformedInput with a formatted reason.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

// ErrFieldTooLong returns a malformed-input error for a field exceeding its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return Malformed("%s exceeds maximum length of %d", field, maxLen)
}

// ErrMissingField returns a malformed-input error for a required field.
func ErrMissingField(field string) error {
	return Malformed("%s is required", field)
}
