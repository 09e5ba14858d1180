package models

import (
	"strings"
	"time"
)

// AliasKind classifies how an alias identifies a person.
type AliasKind string

// Alias kinds.
const (
	AliasName  AliasKind = "name"
	AliasPhone AliasKind = "phone"
	AliasEmail AliasKind = "email"
)

// Person is a resolved real-world identity.
type Person struct {
	ID            string         `json:"id"`
	CanonicalName string         `json:"canonical_name"`
	MergedInto    *string        `json:"merged_into,omitempty"`
	Aliases       []Alias        `json:"aliases"`
	Facts         []Fact         `json:"facts"`
	Relationships []Relationship `json:"relationships"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Alias is one way of referring to a person (any script, phone, or email).
type Alias struct {
	Alias string    `json:"alias"`
	Norm  string    `json:"norm"`
	Kind  AliasKind `json:"kind"`
}

// Fact is a keyed attribute of a person with provenance.
type Fact struct {
	PersonID   string    `json:"person_id,omitempty"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	Provenance string    `json:"provenance,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Relationship is a typed edge from one person to another.
type Relationship struct {
	PersonID     string  `json:"person_id"`
	RelatedID    string  `json:"related_id"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
}

// CreatePersonRequest is the payload for creating a person.
type CreatePersonRequest struct {
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases,omitempty"`
	Phones        []string `json:"phones,omitempty"`
	Emails        []string `json:"emails,omitempty"`
}

// Validate checks CreatePersonRequest fields.
func (r *CreatePersonRequest) Validate() error {
	r.CanonicalName = strings.TrimSpace(r.CanonicalName)
	if r.CanonicalName == "" {
		return ErrMissingField("canonical_name")
	}

	if len(r.CanonicalName) > maxRefLength {
		return ErrFieldTooLong("canonical_name", maxRefLength)
	}

	if len(r.Aliases)+len(r.Phones)+len(r.Emails) > maxPersonRefs {
		return Malformed("at most %d aliases per person", maxPersonRefs)
	}

	return nil
}

// AddAliasRequest adds one alias to a person.
type AddAliasRequest struct {
	Alias string    `json:"alias"`
	Kind  AliasKind `json:"kind,omitempty"`
}

// Validate checks AddAliasRequest fields, defaulting Kind to name.
func (r *AddAliasRequest) Validate() error {
	r.Alias = strings.TrimSpace(r.Alias)
	if r.Alias == "" {
		return ErrMissingField("alias")
	}

	if len(r.Alias) > maxRefLength {
		return ErrFieldTooLong("alias", maxRefLength)
	}

	switch r.Kind {
	case "":
		r.Kind = AliasName
	case AliasName, AliasPhone, AliasEmail:
	default:
		return Malformed("alias kind %q is not supported", r.Kind)
	}

	return nil
}

// UpsertFactRequest sets a fact on a person. A fact only replaces an existing
// value for the same key when its confidence is at least as high.
type UpsertFactRequest struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
	Provenance string  `json:"provenance,omitempty"`
}

// Validate checks UpsertFactRequest fields.
func (r *UpsertFactRequest) Validate() error {
	r.Key = strings.TrimSpace(r.Key)
	if r.Key == "" {
		return ErrMissingField("key")
	}

	if len(r.Key) > 100 {
		return ErrFieldTooLong("key", 100)
	}

	if r.Value == "" {
		return ErrMissingField("value")
	}

	if len(r.Value) > 4096 {
		return ErrFieldTooLong("value", 4096)
	}

	return validateConfidence(&r.Confidence)
}

// UpsertRelationshipRequest relates a person to another person.
type UpsertRelationshipRequest struct {
	RelatedID    string  `json:"related_id"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
}

// Validate checks UpsertRelationshipRequest fields.
func (r *UpsertRelationshipRequest) Validate() error {
	if r.RelatedID == "" {
		return ErrMissingField("related_id")
	}

	r.RelationType = strings.TrimSpace(strings.ToLower(r.RelationType))
	if r.RelationType == "" {
		return ErrMissingField("relation_type")
	}

	if len(r.RelationType) > 100 {
		return ErrFieldTooLong("relation_type", 100)
	}

	return validateConfidence(&r.Confidence)
}

// MergePersonsRequest merges Source into Target.
type MergePersonsRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// Validate checks MergePersonsRequest fields.
func (r *MergePersonsRequest) Validate() error {
	if r.SourceID == "" {
		return ErrMissingField("source_id")
	}

	if r.TargetID == "" {
		return ErrMissingField("target_id")
	}

	if r.SourceID == r.TargetID {
		return ErrMergeSelf
	}

	return nil
}

// MergeResult reports what a merge moved.
type MergeResult struct {
	SourceID      string `json:"source_id"`
	TargetID      string `json:"target_id"`
	Aliases       int    `json:"aliases"`
	Facts         int    `json:"facts"`
	Relationships int    `json:"relationships"`
	Links         int    `json:"links"`
	Chunks        int    `json:"chunks"`
}

// validateConfidence defaults a zero confidence to 1 and bounds it to (0,1].
func validateConfidence(c *float64) error {
	if *c == 0 {
		*c = 1
	}

	if *c < 0 || *c > 1 {
		return Malformed("confidence must be between 0 and 1")
	}

	return nil
}
