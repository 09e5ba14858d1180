package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/persistorai/recall/internal/api"
	"github.com/persistorai/recall/internal/models"
)

func personRouter(svc *mockPersonService) http.Handler {
	r := newTestRouter()
	h := api.NewPersonHandler(svc, testLogger())
	r.POST("/persons", h.Create)
	r.POST("/persons/merge", h.Merge)
	r.GET("/persons/resolve", h.Resolve)
	r.GET("/persons/:id", h.Get)
	r.POST("/persons/:id/aliases", h.AddAlias)
	r.POST("/persons/:id/facts", h.UpsertFact)
	r.POST("/persons/:id/relationships", h.UpsertRelationship)
	r.POST("/links/person-asset", h.LinkPersonAsset)
	r.POST("/links/asset-asset", h.LinkAssetAsset)
	return r
}

func TestCreatePerson(t *testing.T) {
	t.Parallel()

	svc := &mockPersonService{
		createFn: func(_ context.Context, req models.CreatePersonRequest) (*models.Person, error) {
			if err := req.Validate(); err != nil {
				return nil, err
			}
			return &models.Person{ID: "p1", CanonicalName: req.CanonicalName}, nil
		},
	}
	r := personRouter(svc)

	w := doRequest(r, http.MethodPost, "/persons", `{"canonical_name":"Shiran Cohen","aliases":["שירן"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["id"] != "p1" {
		t.Errorf("id = %v", body["id"])
	}

	w = doRequest(r, http.MethodPost, "/persons", `{"canonical_name":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing name: expected 400, got %d", w.Code)
	}
}

func TestGetPerson_NotFound(t *testing.T) {
	t.Parallel()

	svc := &mockPersonService{
		getFn: func(context.Context, string) (*models.Person, error) {
			return nil, models.ErrPersonNotFound
		},
	}

	w := doRequest(personRouter(svc), http.MethodGet, "/persons/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestResolvePerson_AmbiguousIsNotAnError(t *testing.T) {
	t.Parallel()

	var gotQ string
	svc := &mockPersonService{
		resolveFn: func(_ context.Context, q string) (models.Resolution, error) {
			gotQ = q
			return models.NewResolution(q, []models.AliasMatch{{PersonID: "p1"}, {PersonID: "p2"}}), nil
		},
	}

	w := doRequest(personRouter(svc), http.MethodGet, "/persons/resolve?q=Dana", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotQ != "Dana" {
		t.Errorf("q = %q, want Dana (resolve must not be routed as an id)", gotQ)
	}
	if status := decodeBody(t, w)["status"]; status != string(models.ResolutionAmbiguous) {
		t.Errorf("status = %v", status)
	}
}

func TestAddAlias(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		added    bool
		wantCode int
	}{
		{"new alias", true, http.StatusCreated},
		{"existing alias", false, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockPersonService{
				addAliasFn: func(_ context.Context, id string, req models.AddAliasRequest) (bool, error) {
					if id != "p1" || req.Alias != "Shiri" {
						t.Errorf("got %s %+v", id, req)
					}
					return tc.added, nil
				},
			}

			w := doRequest(personRouter(svc), http.MethodPost, "/persons/p1/aliases", `{"alias":"Shiri"}`)
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, w.Code)
			}
			if decodeBody(t, w)["added"] != tc.added {
				t.Errorf("added = %v", w.Body.String())
			}
		})
	}
}

func TestFactsAndRelationships(t *testing.T) {
	t.Parallel()

	svc := &mockPersonService{
		upsertFactFn: func(_ context.Context, id string, req models.UpsertFactRequest) (*models.Fact, error) {
			return &models.Fact{PersonID: id, Key: req.Key, Value: req.Value, Confidence: 1}, nil
		},
		relationshipFn: func(_ context.Context, id string, req models.UpsertRelationshipRequest) error {
			if id == req.RelatedID {
				return models.Malformed("a person cannot relate to themselves")
			}
			return nil
		},
	}
	r := personRouter(svc)

	w := doRequest(r, http.MethodPost, "/persons/p1/facts", `{"key":"city","value":"Haifa"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("fact: expected 200, got %d", w.Code)
	}
	if decodeBody(t, w)["value"] != "Haifa" {
		t.Errorf("fact body = %s", w.Body.String())
	}

	w = doRequest(r, http.MethodPost, "/persons/p1/relationships", `{"related_id":"p2","relation_type":"sibling"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("relationship: expected 204, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPost, "/persons/p1/relationships", `{"related_id":"p1","relation_type":"sibling"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("self relationship: expected 400, got %d", w.Code)
	}
}

func TestMergePersons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"merged", nil, http.StatusOK},
		{"self", models.ErrMergeSelf, http.StatusBadRequest},
		{"missing", models.ErrPersonNotFound, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockPersonService{
				mergeFn: func(_ context.Context, req models.MergePersonsRequest) (*models.MergeResult, error) {
					if tc.err != nil {
						return nil, tc.err
					}
					return &models.MergeResult{SourceID: req.SourceID, TargetID: req.TargetID, Aliases: 2}, nil
				},
			}

			w := doRequest(personRouter(svc), http.MethodPost, "/persons/merge", `{"source_id":"a","target_id":"b"}`)
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestLinks(t *testing.T) {
	t.Parallel()

	var link models.PersonAssetLink
	var edge models.AssetEdge
	svc := &mockPersonService{
		linkFn: func(_ context.Context, l models.PersonAssetLink) error { link = l; return nil },
		edgeFn: func(_ context.Context, e models.AssetEdge) error { edge = e; return nil },
	}
	r := personRouter(svc)

	w := doRequest(r, http.MethodPost, "/links/person-asset", `{"person_id":"p1","asset_ref":"mail-1","role":"author"}`)
	if w.Code != http.StatusNoContent || link.AssetRef != "mail-1" {
		t.Fatalf("person-asset: %d %+v", w.Code, link)
	}

	w = doRequest(r, http.MethodPost, "/links/asset-asset", `{"src_ref":"mail-1","dst_ref":"att-1","relation_type":"contains"}`)
	if w.Code != http.StatusNoContent || edge.DstRef != "att-1" {
		t.Fatalf("asset-asset: %d %+v", w.Code, edge)
	}
}
