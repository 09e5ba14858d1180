package client

import (
	"context"
	"net/url"
)

// PersonService handles persons, aliases, facts and graph links.
type PersonService struct {
	c *Client
}

func personPath(id string) string {
	return "/api/v1/persons/" + url.PathEscape(id)
}

// Create creates a person with optional aliases, phones and emails.
func (s *PersonService) Create(ctx context.Context, req CreatePersonRequest) (*Person, error) {
	var p Person
	if err := s.c.post(ctx, "/api/v1/persons", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns a person with aliases, facts and relationships.
func (s *PersonService) Get(ctx context.Context, id string) (*Person, error) {
	var p Person
	if err := s.c.get(ctx, personPath(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Resolve maps a name, phone or email to persons. An ambiguous name is a
// successful response with Status "ambiguous".
func (s *PersonService) Resolve(ctx context.Context, q string) (*Resolution, error) {
	var res Resolution
	if err := s.c.get(ctx, "/api/v1/persons/resolve", url.Values{"q": {q}}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AddAlias attaches an alias. kind may be empty to let the server classify
// it. The result reports whether the alias was new.
func (s *PersonService) AddAlias(ctx context.Context, personID, alias, kind string) (bool, error) {
	body := map[string]string{"alias": alias}
	if kind != "" {
		body["kind"] = kind
	}

	var resp struct {
		Added bool `json:"added"`
	}
	if err := s.c.post(ctx, personPath(personID)+"/aliases", body, &resp); err != nil {
		return false, err
	}
	return resp.Added, nil
}

// UpsertFact sets a keyed fact on a person.
func (s *PersonService) UpsertFact(ctx context.Context, personID string, req FactRequest) (*Fact, error) {
	var f Fact
	if err := s.c.post(ctx, personPath(personID)+"/facts", req, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// UpsertRelationship relates two persons.
func (s *PersonService) UpsertRelationship(ctx context.Context, personID string, req RelationshipRequest) error {
	return s.c.post(ctx, personPath(personID)+"/relationships", req, nil)
}

// Merge folds source into target. The source id keeps resolving to target.
func (s *PersonService) Merge(ctx context.Context, sourceID, targetID string) (*MergeResult, error) {
	body := map[string]string{"source_id": sourceID, "target_id": targetID}

	var res MergeResult
	if err := s.c.post(ctx, "/api/v1/persons/merge", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LinkPersonAsset records a person's role on an asset.
func (s *PersonService) LinkPersonAsset(ctx context.Context, link PersonAssetLink) error {
	return s.c.post(ctx, "/api/v1/links/person-asset", link, nil)
}

// LinkAssetAsset records a structural edge between assets.
func (s *PersonService) LinkAssetAsset(ctx context.Context, edge AssetEdge) error {
	return s.c.post(ctx, "/api/v1/links/asset-asset", edge, nil)
}
