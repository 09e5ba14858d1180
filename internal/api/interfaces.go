package api

import (
	"context"

	"github.com/persistorai/recall/internal/buffer"
	"github.com/persistorai/recall/internal/models"
)

// QueryService runs the retrieval pipeline and context assembly.
type QueryService interface {
	Retrieve(ctx context.Context, req models.RetrieveRequest) (*models.RetrieveResponse, error)
	Context(ctx context.Context, req models.RetrieveRequest) (*models.ContextResponse, error)
	Assemble(req models.AssembleRequest) (models.ContextBlock, error)
}

// IngestService indexes chunk batches.
type IngestService interface {
	UpsertChunks(ctx context.Context, reqs []models.UpsertChunkRequest) (*models.UpsertChunksResult, error)
}

// ChunkReader reads stored chunks.
type ChunkReader interface {
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
}

// PersonService manages identities and their graph links.
type PersonService interface {
	CreatePerson(ctx context.Context, req models.CreatePersonRequest) (*models.Person, error)
	GetPerson(ctx context.Context, id string) (*models.Person, error)
	Resolve(ctx context.Context, q string) (models.Resolution, error)
	AddAlias(ctx context.Context, personID string, req models.AddAliasRequest) (bool, error)
	UpsertFact(ctx context.Context, personID string, req models.UpsertFactRequest) (*models.Fact, error)
	UpsertRelationship(ctx context.Context, personID string, req models.UpsertRelationshipRequest) error
	MergePersons(ctx context.Context, req models.MergePersonsRequest) (*models.MergeResult, error)
	LinkPersonAsset(ctx context.Context, link models.PersonAssetLink) error
	LinkAssetAsset(ctx context.Context, edge models.AssetEdge) error
}

// MessageBuffer windows conversation messages before indexing.
type MessageBuffer interface {
	Append(ctx context.Context, msg buffer.Message) (buffer.AppendResult, error)
	FlushThread(ctx context.Context, threadID string) (int, error)
	Pending(threadID string) []buffer.Message
}

// AdminService exposes index maintenance.
type AdminService interface {
	Stats(ctx context.Context) (*models.ArchiveStats, error)
	BackfillEmbeddings(ctx context.Context, limit int) (*models.ArchiveStats, error)
}

// AvailabilityChecker reports whether an external dependency is reachable.
type AvailabilityChecker interface {
	Available() bool
}
