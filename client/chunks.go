package client

import (
	"context"
	"net/url"
)

// ChunkService handles chunk ingestion and lookup.
type ChunkService struct {
	c *Client
}

// Upsert writes a batch of chunks. Chunk ids are derived from source,
// source id and chunk index, so re-sending a batch is idempotent.
func (s *ChunkService) Upsert(ctx context.Context, chunks []UpsertChunkRequest) (*UpsertChunksResult, error) {
	body := struct {
		Chunks []UpsertChunkRequest `json:"chunks"`
	}{Chunks: chunks}

	var res UpsertChunksResult
	if err := s.c.post(ctx, "/api/v1/chunks", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Get returns a chunk by id.
func (s *ChunkService) Get(ctx context.Context, id string) (*Chunk, error) {
	var chunk Chunk
	if err := s.c.get(ctx, "/api/v1/chunks/"+url.PathEscape(id), nil, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}
