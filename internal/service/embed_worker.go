package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/recall/internal/metrics"
	"github.com/persistorai/recall/internal/models"
)

// EmbedJob asks for the embedding of one chunk.
type EmbedJob struct {
	ChunkID string
	// Text is the chunk's embed text. The result is only stored if the chunk
	// still carries the same text.
	Text string
}

// EmbeddingUpdater stores generated embeddings and lists chunks lacking one.
type EmbeddingUpdater interface {
	UpdateChunkEmbedding(ctx context.Context, id, embedText string, embedding []float32) error
	ChunksMissingEmbedding(ctx context.Context, limit int) ([]models.EmbedTarget, error)
}

// EmbedWorker processes embedding jobs asynchronously with retry.
type EmbedWorker struct {
	embed       Embedder
	repo        EmbeddingUpdater
	log         *logrus.Logger
	jobs        chan EmbedJob
	concurrency int
	retryDelay  time.Duration
}

// NewEmbedWorker creates a worker with the given queue capacity and concurrency.
func NewEmbedWorker(embed Embedder, repo EmbeddingUpdater, log *logrus.Logger, queueSize, concurrency int) *EmbedWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}

	if concurrency <= 0 {
		concurrency = 4
	}

	return &EmbedWorker{
		embed:       embed,
		repo:        repo,
		log:         log,
		jobs:        make(chan EmbedJob, queueSize),
		concurrency: concurrency,
		retryDelay:  baseRetryDelay,
	}
}

// Enqueue adds an embedding job. Non-blocking; drops the job if the queue is
// full and reports whether it was queued. Dropped chunks are picked up again
// by Backfill.
func (w *EmbedWorker) Enqueue(job EmbedJob) bool {
	select {
	case w.jobs <- job:
		metrics.EmbedQueueDepth.Set(float64(len(w.jobs)))

		return true
	default:
		w.log.WithField("chunk_id", job.ChunkID).Warn("embedding queue full, dropping job")

		return false
	}
}

// Backfill queues chunks stored without an embedding, up to limit.
func (w *EmbedWorker) Backfill(ctx context.Context, limit int) (int, error) {
	targets, err := w.repo.ChunksMissingEmbedding(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing chunks missing embeddings: %w", err)
	}

	queued := 0

	for _, t := range targets {
		if !w.Enqueue(EmbedJob{ChunkID: t.ID, Text: t.EmbedText}) {
			break
		}

		queued++
	}

	w.log.WithFields(logrus.Fields{"found": len(targets), "queued": queued}).Info("embedding backfill queued")

	return queued, nil
}

// Run spawns N worker goroutines and blocks until the context is cancelled
// and all workers have drained. Call in a goroutine.
func (w *EmbedWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	w.log.WithField("concurrency", w.concurrency).Info("starting embed workers")

	for i := range w.concurrency {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()
			w.runWorker(ctx, id)
		}(i)
	}

	wg.Wait()
	w.log.Info("all embed workers stopped")
}

func (w *EmbedWorker) runWorker(ctx context.Context, id int) {
	w.log.WithField("worker_id", id).Debug("embed worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			metrics.EmbedQueueDepth.Set(float64(len(w.jobs)))
			w.processWithRetry(ctx, job)
		}
	}
}

const (
	maxRetries     = 3
	baseRetryDelay = 2 * time.Second
)

func (w *EmbedWorker) processWithRetry(ctx context.Context, job EmbedJob) {
	for attempt := range maxRetries {
		if ctx.Err() != nil {
			return
		}

		embedding, err := w.embed.Generate(ctx, job.Text)
		if err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"chunk_id": job.ChunkID,
				"attempt":  attempt + 1,
			}).Warn("embedding generation failed")

			if attempt < maxRetries-1 {
				delay := w.retryDelay * (1 << attempt) // exponential backoff
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			continue
		}

		if err := w.repo.UpdateChunkEmbedding(ctx, job.ChunkID, job.Text, embedding); err != nil {
			w.log.WithError(err).WithField("chunk_id", job.ChunkID).Error("storing embedding")
		} else {
			w.log.WithField("chunk_id", job.ChunkID).Debug("embedding stored")
		}

		return
	}

	w.log.WithField("chunk_id", job.ChunkID).Error("embedding failed after all retries")
}
