package ws

import (
	"encoding/json"
	"strings"
	"time"
)

// Event is the structured message sent to WebSocket clients.
type Event struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data"`
	Time time.Time       `json:"time"`
}

// Topic returns the table part of the event type, e.g. "chunks" for
// "chunks.upsert".
func (e *Event) Topic() string {
	topic, _, _ := strings.Cut(e.Type, ".")

	return topic
}

// SubscribeMsg is sent by the client on connect to request event replay.
// An empty Topics list receives every event.
type SubscribeMsg struct {
	Type        string   `json:"type"`
	LastEventID uint64   `json:"last_event_id"`
	Topics      []string `json:"topics,omitempty"`
}

// ResetMsg tells the client to do a full refresh (requested events too old).
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
