package api_test

import (
	"context"

	"github.com/persistorai/recall/internal/buffer"
	"github.com/persistorai/recall/internal/models"
)

// mockQueryService implements api.QueryService for testing.
type mockQueryService struct {
	retrieveFn func(ctx context.Context, req models.RetrieveRequest) (*models.RetrieveResponse, error)
	contextFn  func(ctx context.Context, req models.RetrieveRequest) (*models.ContextResponse, error)
	assembleFn func(req models.AssembleRequest) (models.ContextBlock, error)
}

func (m *mockQueryService) Retrieve(ctx context.Context, req models.RetrieveRequest) (*models.RetrieveResponse, error) {
	return m.retrieveFn(ctx, req)
}

func (m *mockQueryService) Context(ctx context.Context, req models.RetrieveRequest) (*models.ContextResponse, error) {
	return m.contextFn(ctx, req)
}

func (m *mockQueryService) Assemble(req models.AssembleRequest) (models.ContextBlock, error) {
	return m.assembleFn(req)
}

// mockIngestService implements api.IngestService for testing.
type mockIngestService struct {
	upsertFn func(ctx context.Context, reqs []models.UpsertChunkRequest) (*models.UpsertChunksResult, error)
}

func (m *mockIngestService) UpsertChunks(ctx context.Context, reqs []models.UpsertChunkRequest) (*models.UpsertChunksResult, error) {
	return m.upsertFn(ctx, reqs)
}

// mockChunkReader implements api.ChunkReader for testing.
type mockChunkReader struct {
	getFn func(ctx context.Context, id string) (*models.Chunk, error)
}

func (m *mockChunkReader) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	return m.getFn(ctx, id)
}

// mockPersonService implements api.PersonService for testing.
type mockPersonService struct {
	createFn       func(ctx context.Context, req models.CreatePersonRequest) (*models.Person, error)
	getFn          func(ctx context.Context, id string) (*models.Person, error)
	resolveFn      func(ctx context.Context, q string) (models.Resolution, error)
	addAliasFn     func(ctx context.Context, personID string, req models.AddAliasRequest) (bool, error)
	upsertFactFn   func(ctx context.Context, personID string, req models.UpsertFactRequest) (*models.Fact, error)
	relationshipFn func(ctx context.Context, personID string, req models.UpsertRelationshipRequest) error
	mergeFn        func(ctx context.Context, req models.MergePersonsRequest) (*models.MergeResult, error)
	linkFn         func(ctx context.Context, link models.PersonAssetLink) error
	edgeFn         func(ctx context.Context, edge models.AssetEdge) error
}

func (m *mockPersonService) CreatePerson(ctx context.Context, req models.CreatePersonRequest) (*models.Person, error) {
	return m.createFn(ctx, req)
}

func (m *mockPersonService) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	return m.getFn(ctx, id)
}

func (m *mockPersonService) Resolve(ctx context.Context, q string) (models.Resolution, error) {
	return m.resolveFn(ctx, q)
}

func (m *mockPersonService) AddAlias(ctx context.Context, personID string, req models.AddAliasRequest) (bool, error) {
	return m.addAliasFn(ctx, personID, req)
}

func (m *mockPersonService) UpsertFact(ctx context.Context, personID string, req models.UpsertFactRequest) (*models.Fact, error) {
	return m.upsertFactFn(ctx, personID, req)
}

func (m *mockPersonService) UpsertRelationship(ctx context.Context, personID string, req models.UpsertRelationshipRequest) error {
	return m.relationshipFn(ctx, personID, req)
}

func (m *mockPersonService) MergePersons(ctx context.Context, req models.MergePersonsRequest) (*models.MergeResult, error) {
	return m.mergeFn(ctx, req)
}

func (m *mockPersonService) LinkPersonAsset(ctx context.Context, link models.PersonAssetLink) error {
	return m.linkFn(ctx, link)
}

func (m *mockPersonService) LinkAssetAsset(ctx context.Context, edge models.AssetEdge) error {
	return m.edgeFn(ctx, edge)
}

// mockBuffer implements api.MessageBuffer for testing.
type mockBuffer struct {
	appendFn  func(ctx context.Context, msg buffer.Message) (buffer.AppendResult, error)
	flushFn   func(ctx context.Context, threadID string) (int, error)
	pendingFn func(threadID string) []buffer.Message
}

func (m *mockBuffer) Append(ctx context.Context, msg buffer.Message) (buffer.AppendResult, error) {
	return m.appendFn(ctx, msg)
}

func (m *mockBuffer) FlushThread(ctx context.Context, threadID string) (int, error) {
	return m.flushFn(ctx, threadID)
}

func (m *mockBuffer) Pending(threadID string) []buffer.Message {
	return m.pendingFn(threadID)
}

// mockAdminService implements api.AdminService for testing.
type mockAdminService struct {
	statsFn    func(ctx context.Context) (*models.ArchiveStats, error)
	backfillFn func(ctx context.Context, limit int) (*models.ArchiveStats, error)
}

func (m *mockAdminService) Stats(ctx context.Context) (*models.ArchiveStats, error) {
	return m.statsFn(ctx)
}

func (m *mockAdminService) BackfillEmbeddings(ctx context.Context, limit int) (*models.ArchiveStats, error) {
	return m.backfillFn(ctx, limit)
}

// staticAvailability implements api.AvailabilityChecker.
type staticAvailability bool

func (s staticAvailability) Available() bool { return bool(s) }
