package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"deckpilot/internal/deck"
	"deckpilot/internal/selection"
)

var (
	// ErrUnknownEvent is returned for type tags outside the vocabulary.
	ErrUnknownEvent = errors.New("unknown agent event type")
	// ErrMalformedEvent is returned when an envelope cannot be parsed.
	ErrMalformedEvent = errors.New("malformed agent event")
)

// Envelope is the outer shape of every inbound event. Payload fields live
// in Data; older services put them at the top level instead.
type Envelope struct {
	Type      EventType       `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Decode parses one event.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(string(env.Type)) == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	payload := env.Data
	if len(bytes.TrimSpace(payload)) == 0 || string(bytes.TrimSpace(payload)) == "null" {
		payload = raw
	}
	return decodePayload(env, payload)
}

func decodePayload(env Envelope, payload json.RawMessage) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Type, err)
	}
	h := Header{Type: env.Type, MessageID: env.MessageID, SessionID: env.SessionID}
	if h.MessageID == "" {
		h.MessageID = str(fields["messageId"])
	}

	switch {
	case env.Type == TypeMessageDelta:
		delta := str(fields["delta"])
		if delta == "" {
			delta = str(fields["text"])
		}
		return MessageDelta{Header: h, Delta: delta}, nil

	case env.Type == TypeMessageComplete:
		return MessageComplete{Header: h, Text: str(fields["text"])}, nil

	case env.Type == TypePlanUpdate:
		ev := PlanUpdate{Header: h}
		raw := fields["plan"]
		if raw == nil {
			raw = fields["steps"]
		}
		steps, err := decodePlan(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: plan: %v", ErrMalformedEvent, err)
		}
		ev.Plan = steps
		return ev, nil

	case env.Type.IsTool():
		phase := strings.TrimPrefix(string(env.Type), ToolTypePrefix)
		ev := ToolEvent{
			Header:  h,
			Phase:   phase,
			Tool:    str(fields["tool"]),
			Status:  str(fields["status"]),
			Message: str(fields["message"]),
		}
		if ev.Tool == "" {
			ev.Tool = str(fields["name"])
		}
		if ev.Status == "" {
			ev.Status = phase
		}
		return ev, nil

	case env.Type == TypeSelectionUsing || env.Type == TypeSelection:
		return decodeSelection(h, fields), nil

	case env.Type == TypeEditProposed:
		var edit struct {
			ID      string          `json:"id"`
			Diff    json.RawMessage `json:"diff"`
			Summary string          `json:"summary"`
		}
		if raw := fields["edit"]; raw != nil {
			if err := json.Unmarshal(raw, &edit); err != nil {
				return nil, fmt.Errorf("%w: edit: %v", ErrMalformedEvent, err)
			}
		}
		if edit.ID == "" {
			edit.ID = str(fields["editId"])
		}
		diff, err := deck.DecodeDiff(edit.Diff)
		if err != nil {
			return nil, err
		}
		return EditProposed{Header: h, Edit: Edit{ID: edit.ID, Diff: diff, Summary: edit.Summary}}, nil

	case env.Type == TypePreviewDiff:
		ev := PreviewDiff{Header: h, EditID: str(fields["editId"])}
		if raw := fields["diff"]; len(raw) > 0 && string(raw) != "null" {
			diff, err := deck.DecodeDiff(raw)
			if err != nil {
				return nil, err
			}
			ev.Diff = &diff
		}
		slides, err := decodeSlides(fields["slides"])
		if err != nil {
			return nil, err
		}
		ev.Slides = slides
		return ev, nil

	case env.Type == TypeEditApplied:
		slides, err := decodeSlides(fields["slides"])
		if err != nil {
			return nil, err
		}
		return EditApplied{
			Header:       h,
			EditID:       str(fields["editId"]),
			Slides:       slides,
			DeckRevision: str(fields["deckRevision"]),
			Summary:      str(fields["summary"]),
		}, nil

	case env.Type == TypeProgressUpdate:
		ev := ProgressUpdate{Header: h, Phase: str(fields["phase"]), Message: str(fields["message"])}
		if ev.Message == "" {
			ev.Message = str(fields["text"])
		}
		if p, ok := num(fields["percent"]); ok {
			ev.Percent, ev.HasPercent = p, true
		} else if p, ok := num(fields["progress"]); ok {
			ev.Percent, ev.HasPercent = p, true
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Type)
}

func decodePlan(raw json.RawMessage) ([]PlanStep, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	steps := make([]PlanStep, 0, len(items))
	for _, item := range items {
		// steps arrive either as {"title": ...} objects or bare strings
		if s := str(item); s != "" {
			steps = append(steps, PlanStep{Title: s})
			continue
		}
		var step PlanStep
		if err := json.Unmarshal(item, &step); err != nil {
			return nil, err
		}
		if strings.TrimSpace(step.Title) == "" {
			continue
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func decodeSelection(h Header, fields map[string]json.RawMessage) SelectionUsing {
	ev := SelectionUsing{Header: h, Label: str(fields["label"]), ElementID: str(fields["elementId"])}
	raw := fields["selection"]
	if len(raw) == 0 || string(raw) == "null" {
		return ev
	}
	if id := str(raw); id != "" {
		if ev.ElementID == "" {
			ev.ElementID = id
		}
		return ev
	}
	var desc selection.Descriptor
	if err := json.Unmarshal(raw, &desc); err == nil && desc.ElementID != "" {
		ev.Selection = &desc
	}
	return ev
}

func decodeSlides(raw json.RawMessage) ([]deck.Slide, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var slides []deck.Slide
	if err := json.Unmarshal(raw, &slides); err != nil {
		return nil, fmt.Errorf("%w: slides: %v", ErrMalformedEvent, err)
	}
	out := slides[:0]
	for _, s := range slides {
		if s.ID != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func str(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func num(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	if s := strings.TrimSuffix(strings.TrimSpace(str(raw)), "%"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
