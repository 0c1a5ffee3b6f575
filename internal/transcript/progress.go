package transcript

import (
	"fmt"
	"strings"
)

var completionPhases = map[string]bool{
	"complete":  true,
	"completed": true,
	"done":      true,
	"finished":  true,
	"ready":     true,
}

var readyPhrases = []string{
	"presentation is ready",
	"deck is ready",
	"slides are ready",
	"generation complete",
	"all slides generated",
}

// IsCompletionSignal reports whether a progress update means generation
// finished: percent at or above 100, a completion phase, or a known ready
// phrase in the message.
func IsCompletionSignal(percent float64, hasPercent bool, phase, text string) bool {
	if hasPercent && percent >= 100 {
		return true
	}
	if completionPhases[strings.ToLower(strings.TrimSpace(phase))] {
		return true
	}
	lower := strings.ToLower(text)
	for _, p := range readyPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func progressText(phase, message string, percent float64, hasPercent bool) string {
	text := strings.TrimSpace(message)
	if text == "" {
		text = strings.TrimSpace(phase)
	}
	if text == "" {
		text = "Generating"
	}
	if hasPercent {
		return fmt.Sprintf("%s (%.0f%%)", text, percent)
	}
	return text
}

// UpsertProgress folds a progress update into the single progress row,
// keeping the row's original timestamp. A completion signal turns into
// CompleteGeneration. Updates are ignored during the applied-edit lockout
// and after the current generation completed.
func (c *Controller) UpsertProgress(phase string, percent float64, hasPercent bool, message string) bool {
	if IsCompletionSignal(percent, hasPercent, phase, message) {
		return c.CompleteGeneration()
	}
	return c.update(func() bool {
		if c.lockedOut() || c.completionIndex() >= 0 {
			return false
		}
		text := progressText(phase, message, percent, hasPercent)
		if i := c.indexOf(c.progressID); i >= 0 {
			row := &c.rows[i]
			if row.Text == text && row.Phase == phase {
				return false
			}
			row.Text, row.Phase = text, phase
			row.Percent, row.HasPercent = percent, hasPercent
			return true
		}
		row := c.newRow(RoleProgress, text)
		row.Phase, row.Percent, row.HasPercent = phase, percent, hasPercent
		row.Generation = c.generation
		c.rows = append(c.rows, row)
		c.progressID = row.ID
		return true
	})
}

func (c *Controller) completionIndex() int {
	for i := range c.rows {
		if c.rows[i].Role == RoleCompletion && c.rows[i].Generation == c.generation {
			return i
		}
	}
	return -1
}

// CompleteGeneration swaps the progress row for a completion row and one
// follow-up row. Repeated signals for the same generation do nothing.
func (c *Controller) CompleteGeneration() bool {
	return c.update(func() bool {
		if c.completionIndex() >= 0 {
			return false
		}
		done := c.newRow(RoleCompletion, "Generation complete")
		done.Generation = c.generation
		done.Percent, done.HasPercent = 100, true
		follow := c.newRow(RoleFollowUp, FollowUpText)
		follow.Generation = c.generation

		if i := c.indexOf(c.progressID); i >= 0 {
			done.Time = c.rows[i].Time
			rest := append([]Row{done, follow}, c.rows[i+1:]...)
			c.rows = append(c.rows[:i], rest...)
		} else {
			c.rows = append(c.rows, done, follow)
		}
		c.progressID = ""
		return true
	})
}

// ResetGeneration starts a new generation run: a later progress update
// opens a fresh progress row and completion may fire again.
func (c *Controller) ResetGeneration() {
	c.update(func() bool {
		c.generation++
		if i := c.indexOf(c.progressID); i >= 0 {
			c.rows[i].Generation = c.generation
		}
		return false
	})
}

// GenerationComplete reports whether the current run has completed.
func (c *Controller) GenerationComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completionIndex() >= 0
}
