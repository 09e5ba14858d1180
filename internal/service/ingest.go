package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/recall/internal/models"
)

const (
	maxIngestBatch  = 500
	ingestEmbedders = 4
)

// ChunkWriter upserts chunks and reports which ones carry an embedding.
type ChunkWriter interface {
	UpsertChunks(ctx context.Context, chunks []models.Chunk) ([]bool, error)
}

// LinkWriter upserts graph links.
type LinkWriter interface {
	LinkPersonAsset(ctx context.Context, link models.PersonAssetLink) error
	LinkAssetAsset(ctx context.Context, edge models.AssetEdge) error
}

// PersonWriter records person aliases, reporting whether one was new, and
// maps merged person ids to their live ids.
type PersonWriter interface {
	PersonCanonicalizer
	AddAlias(ctx context.Context, personID string, alias models.Alias) (bool, error)
}

// EmbedQueue accepts chunks whose embedding must be computed later.
type EmbedQueue interface {
	Enqueue(job EmbedJob) bool
}

// Invalidator drops cached person resolutions.
type Invalidator interface {
	Invalidate()
}

// IngestService validates, embeds and stores chunks, then records the graph
// links they imply.
type IngestService struct {
	chunks      ChunkWriter
	links       LinkWriter
	persons     PersonWriter
	embedder    Embedder
	queue       EmbedQueue
	invalidator Invalidator
	log         *logrus.Logger
}

// NewIngestService creates an IngestService. embedder and queue may be nil,
// in which case chunks are stored lexical-only.
func NewIngestService(
	chunks ChunkWriter,
	links LinkWriter,
	persons PersonWriter,
	embedder Embedder,
	queue EmbedQueue,
	invalidator Invalidator,
	log *logrus.Logger,
) *IngestService {
	return &IngestService{
		chunks:      chunks,
		links:       links,
		persons:     persons,
		embedder:    embedder,
		queue:       queue,
		invalidator: invalidator,
		log:         log,
	}
}

// UpsertChunks ingests a batch. Any invalid item rejects the whole batch
// before anything is written. Embedding failures never fail the write: such
// chunks are stored lexical-only and queued for a later embedding.
func (s *IngestService) UpsertChunks(ctx context.Context, reqs []models.UpsertChunkRequest) (*models.UpsertChunksResult, error) {
	if len(reqs) == 0 {
		return nil, models.Malformed("at least one chunk is required")
	}

	if len(reqs) > maxIngestBatch {
		return nil, models.Malformed("at most %d chunks per request", maxIngestBatch)
	}

	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, fmt.Errorf("chunks[%d]: %w", i, err)
		}
	}

	s.canonicalizePersons(ctx, reqs)

	chunks := make([]models.Chunk, len(reqs))

	for i := range reqs {
		chunks[i] = reqs[i].ToChunk()

		if id := reqs[i].SenderPersonID; id != "" {
			chunks[i].PersonIDs = appendUnique(chunks[i].PersonIDs, id)
		}
	}

	s.embedAll(ctx, chunks)

	hasEmbedding, err := s.chunks.UpsertChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("upserting chunks: %w", err)
	}

	res := &models.UpsertChunksResult{IDs: make([]string, len(chunks)), Upserted: len(chunks)}

	for i, c := range chunks {
		res.IDs[i] = c.ID

		if i < len(hasEmbedding) && !hasEmbedding[i] && s.queue != nil {
			if s.queue.Enqueue(EmbedJob{ChunkID: c.ID, Text: c.EmbedText}) {
				res.EmbeddingQueue++
			}
		}
	}

	s.linkAll(ctx, reqs)

	return res, nil
}

// canonicalizePersons rewrites the batch's person ids to live ids so chunks
// tagged with a merged person stay reachable through the merge target. On
// failure the ids are stored as given.
func (s *IngestService) canonicalizePersons(ctx context.Context, reqs []models.UpsertChunkRequest) {
	if s.persons == nil {
		return
	}

	var ids []string

	for i := range reqs {
		if reqs[i].SenderPersonID != "" {
			ids = append(ids, reqs[i].SenderPersonID)
		}

		ids = append(ids, reqs[i].PersonIDs...)
		ids = append(ids, reqs[i].MentionedPersonIDs...)
	}

	if len(ids) == 0 {
		return
	}

	live, err := s.persons.CanonicalIDs(ctx, ids)
	if err != nil {
		s.log.WithError(err).Warn("resolving merged persons at ingest failed, storing ids as given")

		return
	}

	for i := range reqs {
		r := &reqs[i]

		if to, ok := live[r.SenderPersonID]; ok {
			r.SenderPersonID = to
		}

		r.PersonIDs = mapPersons(live, r.PersonIDs)
		r.MentionedPersonIDs = mapPersons(live, r.MentionedPersonIDs)
	}
}

// embedAll computes embeddings in parallel. Failures leave the chunk without one.
func (s *IngestService) embedAll(ctx context.Context, chunks []models.Chunk) {
	if s.embedder == nil {
		return
	}

	var g errgroup.Group
	g.SetLimit(ingestEmbedders)

	for i := range chunks {
		g.Go(func() error {
			emb, err := s.embedder.Generate(ctx, chunks[i].EmbedText)
			if err != nil {
				s.log.WithError(err).WithField("chunk_id", chunks[i].ID).Warn("embedding at ingest failed, storing lexical-only")

				return nil
			}

			chunks[i].Embedding = emb

			return nil
		})
	}

	_ = g.Wait()
}

// linkAll records the secondary graph writes a batch implies. Failures are
// logged and never undo the chunk write.
func (s *IngestService) linkAll(ctx context.Context, reqs []models.UpsertChunkRequest) {
	done := make(map[string]struct{})
	once := func(key string) bool {
		if _, ok := done[key]; ok {
			return false
		}

		done[key] = struct{}{}

		return true
	}

	warn := func(err error, what string, fields logrus.Fields) {
		s.log.WithError(err).WithFields(fields).Warn("secondary write failed: " + what)
	}

	aliasAdded := false

	for i := range reqs {
		r := &reqs[i]

		if r.SenderPersonID != "" {
			if once("author\x1f" + r.SenderPersonID + "\x1f" + r.AssetID) {
				link := models.PersonAssetLink{PersonID: r.SenderPersonID, AssetRef: r.AssetID, Role: models.RoleAuthor, Confidence: 1}
				if err := s.links.LinkPersonAsset(ctx, link); err != nil {
					warn(err, "author link", logrus.Fields{"person_id": r.SenderPersonID, "asset_id": r.AssetID})
				}
			}

			if r.Sender != "" && once("alias\x1f"+r.SenderPersonID+"\x1f"+r.Sender) {
				added, err := s.persons.AddAlias(ctx, r.SenderPersonID, models.NewAlias(models.ClassifyAlias(r.Sender), r.Sender))
				if err != nil {
					warn(err, "sender alias", logrus.Fields{"person_id": r.SenderPersonID})
				}

				aliasAdded = aliasAdded || added
			}
		}

		for _, pid := range r.PersonIDs {
			if pid == r.SenderPersonID || !once("recipient\x1f"+pid+"\x1f"+r.AssetID) {
				continue
			}

			link := models.PersonAssetLink{PersonID: pid, AssetRef: r.AssetID, Role: models.RoleRecipient, Confidence: 1}
			if err := s.links.LinkPersonAsset(ctx, link); err != nil {
				warn(err, "participant link", logrus.Fields{"person_id": pid, "asset_id": r.AssetID})
			}
		}

		for _, pid := range r.MentionedPersonIDs {
			if !once("mentioned\x1f" + pid + "\x1f" + r.AssetID) {
				continue
			}

			link := models.PersonAssetLink{PersonID: pid, AssetRef: r.AssetID, Role: models.RoleMentioned, Confidence: 1}
			if err := s.links.LinkPersonAsset(ctx, link); err != nil {
				warn(err, "mention link", logrus.Fields{"person_id": pid, "asset_id": r.AssetID})
			}
		}

		if r.ParentAssetID != "" && r.ParentAssetID != r.AssetID && once("contains\x1f"+r.ParentAssetID+"\x1f"+r.AssetID) {
			edge := models.AssetEdge{SrcRef: r.ParentAssetID, DstRef: r.AssetID, RelationType: models.RelationContains, Confidence: 1}
			if err := s.links.LinkAssetAsset(ctx, edge); err != nil {
				warn(err, "contains edge", logrus.Fields{"asset_id": r.AssetID})
			}
		}

		if r.ThreadID != "" && once("thread\x1f"+r.ThreadID+"\x1f"+r.AssetID) {
			edge := models.AssetEdge{SrcRef: models.ThreadRef(r.ThreadID), DstRef: r.AssetID, RelationType: models.RelationThreadMember, Confidence: 1}
			if err := s.links.LinkAssetAsset(ctx, edge); err != nil {
				warn(err, "thread edge", logrus.Fields{"asset_id": r.AssetID})
			}
		}
	}

	if aliasAdded && s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}

	return append(list, v)
}
