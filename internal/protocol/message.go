package protocol

import (
	"encoding/json"
	"strings"

	"deckpilot/internal/deck"
	"deckpilot/internal/selection"
)

// Attachment references an uploaded file.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// MessageContext tells the agent where the user is in the deck.
type MessageContext struct {
	PreferredInsertAfterSlideID string     `json:"preferredInsertAfterSlideId,omitempty"`
	SlideID                     string     `json:"slide_id,omitempty"`
	CurrentSlideIndex           *int       `json:"current_slide_index,omitempty"`
	DeckData                    *deck.Deck `json:"deck_data,omitempty"`
}

// MessageRequest is the outbound user turn. Selections and attachments
// travel as structured fields, never folded into Text.
type MessageRequest struct {
	Role        string                 `json:"role"`
	Text        string                 `json:"text"`
	Stream      bool                   `json:"stream"`
	Selections  []selection.Descriptor `json:"selections"`
	Attachments []Attachment           `json:"attachments"`
	Context     MessageContext         `json:"context"`

	// ClientMessageID is stamped by the session client when empty.
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// NewMessageRequest fills the fixed envelope fields.
func NewMessageRequest(text string, sels []selection.Descriptor, atts []Attachment, ctx MessageContext) MessageRequest {
	if sels == nil {
		sels = []selection.Descriptor{}
	}
	if atts == nil {
		atts = []Attachment{}
	}
	return MessageRequest{
		Role:        "user",
		Text:        text,
		Stream:      true,
		Selections:  selection.Normalize(sels),
		Attachments: atts,
		Context:     ctx,
	}
}

// HistoryMessage is one prior turn sent to the legacy endpoint.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LegacyRequest is the body of the request/response chat endpoint used when
// no session backend is configured.
type LegacyRequest struct {
	Message           string                 `json:"message"`
	SlideID           string                 `json:"slide_id"`
	CurrentSlideIndex int                    `json:"current_slide_index"`
	DeckData          deck.Deck              `json:"deck_data"`
	ChatHistory       []HistoryMessage       `json:"chat_history"`
	Selections        []selection.Descriptor `json:"selections,omitempty"`
	Attachments       []Attachment           `json:"attachments,omitempty"`
}

type LegacyResponse struct {
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	DeckDiff  json.RawMessage `json:"deck_diff,omitempty"`
}

// Diff decodes the optional deck_diff. ok is false when none was sent.
func (r LegacyResponse) Diff() (diff deck.Diff, ok bool, err error) {
	raw := strings.TrimSpace(string(r.DeckDiff))
	if raw == "" || raw == "null" || raw == "{}" {
		return deck.Diff{}, false, nil
	}
	diff, err = deck.DecodeDiff(r.DeckDiff)
	if err != nil {
		return deck.Diff{}, false, err
	}
	return diff, !diff.IsEmpty(), nil
}
