package client

import "context"

// RetrievalService handles ranked retrieval and context assembly.
type RetrievalService struct {
	c *Client
}

// Retrieve runs a hybrid retrieval. A response may carry degradation flags
// such as "unreranked" while still succeeding.
func (s *RetrievalService) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	var resp RetrieveResponse
	if err := s.c.post(ctx, "/api/v1/retrieve", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Context runs a retrieval and assembles a cited block within the token budget.
func (s *RetrievalService) Context(ctx context.Context, req RetrieveRequest) (*ContextResponse, error) {
	var resp ContextResponse
	if err := s.c.post(ctx, "/api/v1/context", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Assemble builds a context block from results the caller already holds.
func (s *RetrievalService) Assemble(ctx context.Context, req AssembleRequest) (*ContextBlock, error) {
	var block ContextBlock
	if err := s.c.post(ctx, "/api/v1/context/assemble", req, &block); err != nil {
		return nil, err
	}
	return &block, nil
}
