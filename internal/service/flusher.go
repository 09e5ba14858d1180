package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/persistorai/recall/internal/buffer"
	"github.com/persistorai/recall/internal/models"
)

const (
	conversationSource = "conversation"
	maxWindowBytes     = 60 << 10
	maxSenderList      = 512
)

// ChunkIngester upserts a batch of chunks.
type ChunkIngester interface {
	UpsertChunks(ctx context.Context, reqs []models.UpsertChunkRequest) (*models.UpsertChunksResult, error)
}

// ConversationFlusher indexes a buffered conversation window as message chunks.
type ConversationFlusher struct {
	ingest ChunkIngester
}

// NewConversationFlusher creates a ConversationFlusher.
func NewConversationFlusher(ingest ChunkIngester) *ConversationFlusher {
	return &ConversationFlusher{ingest: ingest}
}

// Flush writes the window. The window is identified by its thread and first
// message, so a retried flush overwrites rather than duplicates. A window
// larger than one chunk is split into a chunk group.
func (f *ConversationFlusher) Flush(ctx context.Context, threadID string, msgs []buffer.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	reqs := windowChunks(threadID, msgs)

	if _, err := f.ingest.UpsertChunks(ctx, reqs); err != nil {
		return fmt.Errorf("indexing conversation window: %w", err)
	}

	return nil
}

func windowChunks(threadID string, msgs []buffer.Message) []models.UpsertChunkRequest {
	first := msgs[0]

	source := first.Source
	if source == "" {
		source = conversationSource
	}

	sourceID := threadID + ":" + first.MessageID

	parts := splitWindow(msgs)
	reqs := make([]models.UpsertChunkRequest, len(parts))

	for i, part := range parts {
		var (
			text      strings.Builder
			ids       []string
			senders   []string
			personIDs []string
		)

		for _, m := range part {
			if m.Sender != "" {
				text.WriteString(m.Sender)
				text.WriteString(": ")
			}

			text.WriteString(strings.TrimSpace(m.Text))
			text.WriteByte('\n')

			ids = append(ids, m.MessageID)

			if m.Sender != "" {
				senders = appendUnique(senders, m.Sender)
			}

			if m.SenderPersonID != "" {
				personIDs = appendUnique(personIDs, m.SenderPersonID)
			}

			for _, id := range m.PersonIDs {
				personIDs = appendUnique(personIDs, id)
			}
		}

		req := models.UpsertChunkRequest{
			Source:      source,
			SourceID:    sourceID,
			ChunkIndex:  i,
			Text:        strings.TrimRight(text.String(), "\n"),
			ContentType: models.ContentMessage,
			Sender:      senderList(senders),
			ThreadID:    threadID,
			AssetID:     sourceID,
			PersonIDs:   personIDs,
			Timestamp:   part[0].Timestamp,
			Meta: models.ChunkMeta{
				Kind: models.KindMessage,
				Message: &models.MessageMeta{
					Channel:      first.Channel,
					MessageIDs:   ids,
					Participants: senders,
				},
			},
		}

		if len(parts) > 1 {
			req.ChunkGroupID = sourceID
			req.ChunkTotal = len(parts)
		}

		if len(senders) == 1 && len(part) > 0 {
			req.SenderPersonID = part[0].SenderPersonID
		}

		reqs[i] = req
	}

	return reqs
}

// splitWindow cuts msgs into runs whose rendered text stays under one chunk.
func splitWindow(msgs []buffer.Message) [][]buffer.Message {
	var (
		parts [][]buffer.Message
		cur   []buffer.Message
		size  int
	)

	for _, m := range msgs {
		n := len(m.Sender) + len(m.Text) + 3
		if len(cur) > 0 && size+n > maxWindowBytes {
			parts = append(parts, cur)
			cur, size = nil, 0
		}

		cur = append(cur, m)
		size += n
	}

	return append(parts, cur)
}

// senderList joins distinct senders, cut to fit the sender field.
func senderList(senders []string) string {
	out := ""

	for _, s := range senders {
		next := s
		if out != "" {
			next = out + ", " + s
		}

		if len(next) > maxSenderList {
			break
		}

		out = next
	}

	return out
}
