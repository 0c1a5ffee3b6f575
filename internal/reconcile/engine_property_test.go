package reconcile

import (
	"context"
	"testing"

	"deckpilot/internal/deck"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// diffFrom turns arbitrary strings into a mix of component instructions
// spread over both slides of liveDeck.
func diffFrom(words []string) deck.Diff {
	var diff deck.Diff
	for _, w := range words {
		slideID, compID := "s1", "c1"
		if len(w)%2 == 1 {
			slideID, compID = "s2", "c3"
		}
		sd := deck.SlideDiff{SlideID: slideID}
		switch len(w) % 3 {
		case 0:
			sd.ComponentsToUpdate = []deck.ComponentPatch{{ID: compID, Props: deck.Props{"text": w}}}
		case 1:
			sd.ComponentsToAdd = []deck.Component{{ID: "n-" + w, Type: deck.ComponentShape, Props: deck.Props{"label": w}}}
		default:
			sd.ComponentsToRemove = []string{compID}
		}
		diff.SlidesToUpdate = append(diff.SlidesToUpdate, sd)
	}
	return diff
}

func TestGuardProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("completed decks are never modified", prop.ForAll(
		func(words []string, editing bool) bool {
			f := newFixture(t, completedDeck())
			f.mode.SetEditing(editing)
			f.mode.SetGenerating(true)
			before := f.store.Snapshot()

			r1 := f.engine.ApplyDiff(context.Background(), diffFrom(words))
			r2 := f.engine.ApplySlides(context.Background(), liveDeck().Slides)

			return r1.Outcome == OutcomeDroppedCompleted &&
				r2.Outcome == OutcomeDroppedCompleted &&
				deck.SlidesEqual(before.Slides[0], f.store.Snapshot().Slides[0]) &&
				f.store.Version() == before.Version &&
				!f.mode.Generating() &&
				len(f.drafts.Slides()) == 0
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Bool(),
	))

	properties.Property("drafts with local changes are left alone", prop.ForAll(
		func(words []string) bool {
			f := newFixture(t, liveDeck())
			f.mode.SetEditing(true)
			s1, _ := f.store.Snapshot().FindSlide("s1")
			f.drafts.Begin(s1)
			if err := f.drafts.EditComponent("s1", deck.ComponentPatch{ID: "c1", Props: deck.Props{"text": "local"}}); err != nil {
				return false
			}
			before, _ := f.drafts.GetDraftComponents("s1")

			f.engine.ApplyDiff(context.Background(), diffFrom(words))

			after, _ := f.drafts.GetDraftComponents("s1")
			if len(before) != len(after) {
				return false
			}
			for i := range before {
				if !deck.ComponentsEqual(before[i], after[i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
