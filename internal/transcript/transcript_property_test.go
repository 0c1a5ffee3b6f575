package transcript

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// feed interprets each op as one incoming event.
func feed(h *harness, ops []int) (lastText string) {
	for i, op := range ops {
		switch op % 5 {
		case 0, 1:
			pct := float64(op % 100)
			h.ctrl.UpsertProgress(fmt.Sprintf("phase-%d", op%3), pct, true, "")
			lastText = progressText(fmt.Sprintf("phase-%d", op%3), "", pct, true)
		case 2:
			h.ctrl.AddTool(fmt.Sprintf("tool-%d", op%4), "started", "")
		case 3:
			h.ctrl.AppendDelta(fmt.Sprintf("m%d", i), "token")
		case 4:
			h.clock.add(time.Duration(op%4) * time.Second)
		}
	}
	return lastText
}

func TestTranscriptProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("at most one progress row carrying the latest update", prop.ForAll(
		func(ops []int) bool {
			h := newHarness()
			last := feed(h, ops)
			rows := h.ctrl.Rows()
			n := countRole(rows, RoleProgress)
			if last == "" {
				return n == 0
			}
			if n != 1 {
				return false
			}
			for _, r := range rows {
				if r.Role == RoleProgress {
					return r.Text == last
				}
			}
			return false
		},
		gen.SliceOf(gen.IntRange(0, 199)),
	))

	properties.Property("repeated completion signals yield one completion and one follow-up", prop.ForAll(
		func(ops []int, signals int) bool {
			h := newHarness()
			feed(h, ops)
			for i := 0; i < signals; i++ {
				h.ctrl.UpsertProgress("", 100, true, "")
				h.ctrl.CompleteGeneration()
			}
			feed(h, ops)
			rows := h.ctrl.Rows()
			return countRole(rows, RoleCompletion) == 1 &&
				countRole(rows, RoleFollowUp) == 1 &&
				countRole(rows, RoleProgress) == 0
		},
		gen.SliceOf(gen.IntRange(0, 199)),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
