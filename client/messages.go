package client

import (
	"context"
	"net/url"
)

// MessageService feeds the conversation buffer.
type MessageService struct {
	c *Client
}

// Append buffers a message. A flush triggered by the append is reported in
// the result; a failed flush does not fail the append.
func (s *MessageService) Append(ctx context.Context, msg Message) (*AppendResult, error) {
	var res AppendResult
	if err := s.c.post(ctx, "/api/v1/messages", msg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Flush forces the thread's pending window into the archive and returns the
// number of messages written.
func (s *MessageService) Flush(ctx context.Context, threadID string) (int, error) {
	var resp struct {
		Flushed int `json:"flushed"`
	}
	if err := s.c.post(ctx, "/api/v1/messages/flush", map[string]string{"thread_id": threadID}, &resp); err != nil {
		return 0, err
	}
	return resp.Flushed, nil
}

// Pending returns the thread's buffered, not yet flushed messages.
func (s *MessageService) Pending(ctx context.Context, threadID string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := s.c.get(ctx, "/api/v1/messages/pending", url.Values{"thread_id": {threadID}}, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
