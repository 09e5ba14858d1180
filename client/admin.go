package client

import (
	"context"
	"net/url"
	"strconv"
)

// AdminService handles administrative operations.
type AdminService struct {
	c *Client
}

// Stats returns archive counters.
func (s *AdminService) Stats(ctx context.Context) (*ArchiveStats, error) {
	var stats ArchiveStats
	if err := s.c.get(ctx, "/api/v1/admin/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// BackfillEmbeddings queues up to limit chunks that have no embedding.
// A limit of zero uses the server default.
func (s *AdminService) BackfillEmbeddings(ctx context.Context, limit int) (*ArchiveStats, error) {
	path := "/api/v1/admin/backfill-embeddings"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	var stats ArchiveStats
	if err := s.c.post(ctx, path, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
