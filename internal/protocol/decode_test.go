package protocol

import (
	"context"
	"encoding/json"
	"testing"

	"deckpilot/internal/deck"
	"deckpilot/internal/selection"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	got []string
}

func (r *recorder) OnMessageDelta(_ context.Context, ev MessageDelta) {
	r.got = append(r.got, "delta:"+ev.Delta)
}
func (r *recorder) OnMessageComplete(_ context.Context, ev MessageComplete) {
	r.got = append(r.got, "complete:"+ev.MessageID)
}
func (r *recorder) OnPlanUpdate(_ context.Context, ev PlanUpdate) {
	r.got = append(r.got, "plan")
}
func (r *recorder) OnTool(_ context.Context, ev ToolEvent) {
	r.got = append(r.got, "tool:"+ev.Tool+":"+ev.Status)
}
func (r *recorder) OnSelectionUsing(_ context.Context, ev SelectionUsing) {
	r.got = append(r.got, "selection")
}
func (r *recorder) OnEditProposed(_ context.Context, ev EditProposed) {
	r.got = append(r.got, "proposed:"+ev.Edit.ID)
}
func (r *recorder) OnPreviewDiff(_ context.Context, ev PreviewDiff) {
	r.got = append(r.got, "preview")
}
func (r *recorder) OnEditApplied(_ context.Context, ev EditApplied) {
	r.got = append(r.got, "applied:"+ev.EditID)
}
func (r *recorder) OnProgress(_ context.Context, ev ProgressUpdate) {
	r.got = append(r.got, "progress:"+ev.Phase)
}

func mustDecode(t *testing.T, raw string) Event {
	t.Helper()
	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	return ev
}

func TestDecodeAndDispatch(t *testing.T) {
	lines := []string{
		`{"type":"assistant.message.delta","messageId":"m1","data":{"delta":"Hel"}}`,
		`{"type":"assistant.message.complete","messageId":"m1"}`,
		`{"type":"agent.plan.update","data":{"plan":[{"title":"Outline"},"Draft"]}}`,
		`{"type":"agent.tool.started","data":{"tool":"restyle"}}`,
		`{"type":"agent.selection.using","data":{"label":"Slide 1 title"}}`,
		`{"type":"deck.edit.proposed","messageId":"m2","data":{"edit":{"id":"e1","summary":"Shorter title","diff":{"slides_to_update":[{"slide_id":"s1","components_to_update":[{"id":"c1","props":{"text":"X"}}]}]}}}}`,
		`{"type":"deck.preview.diff","data":{"editId":"e1","slides":[{"id":"s1","components":[]}]}}`,
		`{"type":"deck.edit.applied","data":{"editId":"e1","messageId":"m2","deckRevision":"r9"}}`,
		`{"type":"progress.update","data":{"phase":"layout","percent":40}}`,
	}
	rec := &recorder{}
	for _, line := range lines {
		Dispatch(context.Background(), mustDecode(t, line), rec)
	}
	assert.Equal(t, []string{
		"delta:Hel",
		"complete:m1",
		"plan",
		"tool:restyle:started",
		"selection",
		"proposed:e1",
		"preview",
		"applied:e1",
		"progress:layout",
	}, rec.got)
}

func TestDecodeTopLevelPayload(t *testing.T) {
	ev := mustDecode(t, `{"type":"progress.update","phase":"render","percent":"85%"}`)
	p, ok := ev.(ProgressUpdate)
	require.True(t, ok)
	assert.True(t, p.HasPercent)
	assert.Equal(t, 85.0, p.Percent)
	assert.Equal(t, "render", p.Phase)

	missing := mustDecode(t, `{"type":"progress.update","phase":"thinking"}`).(ProgressUpdate)
	assert.False(t, missing.HasPercent)
}

func TestDecodeEditDetails(t *testing.T) {
	ev := mustDecode(t, `{"type":"deck.edit.proposed","messageId":"m2","data":{"edit":{"id":"e1","diff":{"slides_to_remove":["s3"]}}}}`)
	p := ev.(EditProposed)
	assert.Equal(t, "m2", p.MessageID)
	assert.Equal(t, []string{"s3"}, p.Edit.Diff.SlidesToRemove)

	applied := mustDecode(t, `{"type":"deck.edit.applied","data":{"editId":"e1","messageId":"m2","slides":[{"id":"s1","status":"completed","components":[]},{"components":[]}]}}`).(EditApplied)
	assert.Equal(t, "m2", applied.MessageID)
	require.Len(t, applied.Slides, 1, "slides without ids are dropped")
	assert.Equal(t, deck.StatusCompleted, applied.Slides[0].Status)

	preview := mustDecode(t, `{"type":"deck.preview.diff","data":{"diff":{"deck_properties":{"theme":"dark"}}}}`).(PreviewDiff)
	require.NotNil(t, preview.Diff)
	assert.Equal(t, "dark", preview.Diff.DeckProperties["theme"])
}

func TestDecodeSelectionVariants(t *testing.T) {
	byID := mustDecode(t, `{"type":"agent.selection","data":{"selection":"c1"}}`).(SelectionUsing)
	assert.Equal(t, "c1", byID.ElementID)

	byDesc := mustDecode(t, `{"type":"agent.selection","data":{"selection":{"elementId":"c2","slideId":"s1","elementType":"text"}}}`).(SelectionUsing)
	require.NotNil(t, byDesc.Selection)
	assert.Equal(t, selection.Descriptor{ElementID: "c2", SlideID: "s1", ElementType: "text"}, *byDesc.Selection)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = Decode([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = Decode([]byte(`{"type":"deck.exploded"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode([]byte(`{"type":"deck.edit.proposed","data":{"edit":{"id":"e1","diff":{"slides_to_update":[{"components_to_add":[]}]}}}}`))
	assert.ErrorIs(t, err, deck.ErrInvalidDiff)
}

func TestNewMessageRequestShape(t *testing.T) {
	idx := 2
	req := NewMessageRequest("make it pop", nil, nil, MessageContext{SlideID: "s3", CurrentSlideIndex: &idx})
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "user", m["role"])
	assert.Equal(t, true, m["stream"])
	assert.Equal(t, []any{}, m["selections"])
	assert.Equal(t, []any{}, m["attachments"])
	ctx := m["context"].(map[string]any)
	assert.Equal(t, "s3", ctx["slide_id"])
	assert.Equal(t, 2.0, ctx["current_slide_index"])
	assert.NotContains(t, ctx, "deck_data")
}

func TestLegacyResponseDiff(t *testing.T) {
	_, ok, err := LegacyResponse{Message: "hi"}.Diff()
	require.NoError(t, err)
	assert.False(t, ok)

	diff, ok, err := LegacyResponse{DeckDiff: json.RawMessage(`{"slides_to_remove":["s1"]}`)}.Diff()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"s1"}, diff.SlidesToRemove)
}
