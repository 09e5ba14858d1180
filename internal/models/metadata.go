package models

import "time"

// ChunkKind tags which metadata variant a chunk carries.
type ChunkKind string

// Chunk kinds.
const (
	KindMessage        ChunkKind = "message"
	KindDocumentPart   ChunkKind = "document_part"
	KindTranscriptPart ChunkKind = "transcript_part"
	KindSummary        ChunkKind = "summary"
)

// ChunkMeta is a tagged union: Kind selects exactly one non-nil variant.
type ChunkMeta struct {
	Kind       ChunkKind           `json:"kind"`
	Message    *MessageMeta        `json:"message,omitempty"`
	Document   *DocumentPartMeta   `json:"document,omitempty"`
	Transcript *TranscriptPartMeta `json:"transcript,omitempty"`
	Summary    *SummaryMeta        `json:"summary,omitempty"`
}

// MessageMeta describes a chat message or a flushed conversation window.
type MessageMeta struct {
	Channel      string   `json:"channel,omitempty"`
	MessageIDs   []string `json:"message_ids,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Subject      string   `json:"subject,omitempty"`
}

// DocumentPartMeta describes one part of a split document or attachment.
type DocumentPartMeta struct {
	Title    string `json:"title,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Page     int    `json:"page,omitempty"`
}

// TranscriptPartMeta describes a slice of a call or meeting transcript.
type TranscriptPartMeta struct {
	Title       string   `json:"title,omitempty"`
	Speakers    []string `json:"speakers,omitempty"`
	StartSecond float64  `json:"start_second"`
	EndSecond   float64  `json:"end_second"`
}

// SummaryMeta describes a synthetic conversation summary.
type SummaryMeta struct {
	CoversFrom   time.Time `json:"covers_from"`
	CoversTo     time.Time `json:"covers_to"`
	MessageCount int       `json:"message_count"`
}

// Validate checks that the variant matching Kind, and only that one, is set,
// and that the kind is compatible with the content type.
func (m *ChunkMeta) Validate(ct ContentType) error {
	if m.Kind == "" {
		m.Kind = defaultKind(ct)
	}

	set := 0
	for _, present := range []bool{m.Message != nil, m.Document != nil, m.Transcript != nil, m.Summary != nil} {
		if present {
			set++
		}
	}

	if set > 1 {
		return Malformed("meta must carry exactly one variant, got %d", set)
	}

	switch m.Kind {
	case KindMessage:
		if m.Document != nil || m.Transcript != nil || m.Summary != nil {
			return Malformed("meta variant does not match kind %q", m.Kind)
		}

		if m.Message == nil {
			m.Message = &MessageMeta{}
		}
	case KindDocumentPart:
		if m.Message != nil || m.Transcript != nil || m.Summary != nil {
			return Malformed("meta variant does not match kind %q", m.Kind)
		}

		if m.Document == nil {
			m.Document = &DocumentPartMeta{}
		}
	case KindTranscriptPart:
		if ct != ContentTranscript {
			return Malformed("kind %q requires content_type %q", m.Kind, ContentTranscript)
		}

		if m.Message != nil || m.Document != nil || m.Summary != nil {
			return Malformed("meta variant does not match kind %q", m.Kind)
		}

		if m.Transcript == nil {
			m.Transcript = &TranscriptPartMeta{}
		}
	case KindSummary:
		if m.Summary == nil {
			return Malformed("summary chunks require summary metadata")
		}

		if m.Message != nil || m.Document != nil || m.Transcript != nil {
			return Malformed("meta variant does not match kind %q", m.Kind)
		}
	default:
		return Malformed("meta kind %q is not supported", m.Kind)
	}

	return nil
}

// Title returns a human-readable label for citations, if the variant has one.
func (m ChunkMeta) Title() string {
	switch {
	case m.Document != nil:
		if m.Document.Title != "" {
			return m.Document.Title
		}

		return m.Document.Filename
	case m.Transcript != nil:
		return m.Transcript.Title
	case m.Message != nil:
		return m.Message.Subject
	}

	return ""
}

func defaultKind(ct ContentType) ChunkKind {
	switch ct {
	case ContentDocument:
		return KindDocumentPart
	case ContentTranscript:
		return KindTranscriptPart
	default:
		return KindMessage
	}
}
