package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/models"
)

// PersonStore defines the identity graph methods PersonService depends on.
type PersonStore interface {
	CreatePerson(ctx context.Context, name string, aliases []models.Alias) (*models.Person, error)
	GetPerson(ctx context.Context, id string) (*models.Person, error)
	AddAlias(ctx context.Context, personID string, alias models.Alias) (bool, error)
	UpsertFact(ctx context.Context, personID string, req models.UpsertFactRequest) (*models.Fact, error)
	UpsertRelationship(ctx context.Context, personID string, req models.UpsertRelationshipRequest) error
	MergePersons(ctx context.Context, sourceID, targetID string) (*models.MergeResult, error)
}

// NameResolver resolves one name to persons.
type NameResolver interface {
	ResolveName(ctx context.Context, name string) (models.Resolution, error)
	Invalidate()
}

// PersonService wraps PersonStore and keeps the resolver cache coherent.
type PersonService struct {
	store    PersonStore
	links    LinkWriter
	resolver NameResolver
	log      *logrus.Logger
}

// NewPersonService creates a PersonService.
func NewPersonService(store PersonStore, links LinkWriter, resolver NameResolver, log *logrus.Logger) *PersonService {
	return &PersonService{store: store, links: links, resolver: resolver, log: log}
}

// CreatePerson creates a person with every alias in the request.
func (s *PersonService) CreatePerson(ctx context.Context, req models.CreatePersonRequest) (*models.Person, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.store.CreatePerson(ctx, req.CanonicalName, req.AliasList())
	if err != nil {
		return nil, err
	}

	s.resolver.Invalidate()

	return p, nil
}

// GetPerson returns a person, following merge forwards.
func (s *PersonService) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	return s.store.GetPerson(ctx, id)
}

// Resolve maps free text to zero, one or many persons. Ambiguity is a
// result, not an error.
func (s *PersonService) Resolve(ctx context.Context, q string) (models.Resolution, error) {
	if q == "" {
		return models.Resolution{}, models.ErrMissingField("q")
	}

	return s.resolver.ResolveName(ctx, q)
}

// AddAlias attaches an alias, classifying its kind when not given.
func (s *PersonService) AddAlias(ctx context.Context, personID string, req models.AddAliasRequest) (bool, error) {
	kindGiven := req.Kind != ""

	if err := req.Validate(); err != nil {
		return false, err
	}

	kind := req.Kind
	if !kindGiven {
		kind = models.ClassifyAlias(req.Alias)
	}

	alias := models.NewAlias(kind, req.Alias)
	if alias.Norm == "" {
		return false, models.Malformed("alias %q has no searchable characters", req.Alias)
	}

	added, err := s.store.AddAlias(ctx, personID, alias)
	if err != nil {
		return false, err
	}

	if added {
		s.resolver.Invalidate()
	}

	return added, nil
}

// UpsertFact sets a fact on a person.
func (s *PersonService) UpsertFact(ctx context.Context, personID string, req models.UpsertFactRequest) (*models.Fact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.store.UpsertFact(ctx, personID, req)
}

// UpsertRelationship relates a person to another.
func (s *PersonService) UpsertRelationship(ctx context.Context, personID string, req models.UpsertRelationshipRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if req.RelatedID == personID {
		return models.Malformed("a person cannot be related to itself")
	}

	return s.store.UpsertRelationship(ctx, personID, req)
}

// MergePersons merges source into target atomically.
func (s *PersonService) MergePersons(ctx context.Context, req models.MergePersonsRequest) (*models.MergeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res, err := s.store.MergePersons(ctx, req.SourceID, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("merging persons: %w", err)
	}

	s.resolver.Invalidate()

	s.log.WithFields(logrus.Fields{
		"source_id": res.SourceID,
		"target_id": res.TargetID,
		"aliases":   res.Aliases,
		"chunks":    res.Chunks,
	}).Info("persons merged")

	return res, nil
}

// LinkPersonAsset upserts a person-asset link.
func (s *PersonService) LinkPersonAsset(ctx context.Context, link models.PersonAssetLink) error {
	if err := link.Validate(); err != nil {
		return err
	}

	return s.links.LinkPersonAsset(ctx, link)
}

// LinkAssetAsset upserts an asset-asset edge.
func (s *PersonService) LinkAssetAsset(ctx context.Context, edge models.AssetEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}

	return s.links.LinkAssetAsset(ctx, edge)
}
