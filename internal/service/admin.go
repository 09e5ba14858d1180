package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/metrics"
	"github.com/persistorai/recall/internal/models"
)

// AdminStore is the data-access interface AdminService depends on.
type AdminStore interface {
	CountChunks(ctx context.Context) (total, missing int64, err error)
}

// Backfiller queues chunks stored without an embedding.
type Backfiller interface {
	Backfill(ctx context.Context, limit int) (int, error)
}

// AdminService exposes index maintenance operations.
type AdminService struct {
	store  AdminStore
	worker Backfiller
	log    *logrus.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(store AdminStore, worker Backfiller, log *logrus.Logger) *AdminService {
	return &AdminService{store: store, worker: worker, log: log}
}

// Stats counts chunks and refreshes the index gauges.
func (s *AdminService) Stats(ctx context.Context) (*models.ArchiveStats, error) {
	total, missing, err := s.store.CountChunks(ctx)
	if err != nil {
		return nil, err
	}

	metrics.ChunkCount.Set(float64(total))
	metrics.ChunksMissingEmbedding.Set(float64(missing))

	return &models.ArchiveStats{Chunks: total, ChunksMissingEmbedding: missing}, nil
}

// BackfillEmbeddings queues up to limit chunks lacking an embedding.
func (s *AdminService) BackfillEmbeddings(ctx context.Context, limit int) (*models.ArchiveStats, error) {
	if s.worker == nil {
		return nil, models.ErrServiceUnavailable
	}

	if limit <= 0 || limit > 10000 {
		limit = 1000
	}

	queued, err := s.worker.Backfill(ctx, limit)
	if err != nil {
		return nil, err
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats.EmbedQueued = queued

	s.log.WithFields(logrus.Fields{
		"limit":   limit,
		"queued":  queued,
		"missing": stats.ChunksMissingEmbedding,
	}).Debug("admin.backfill_embeddings")

	return stats, nil
}
