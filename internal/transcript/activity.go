package transcript

import (
	"fmt"
	"strings"

	"deckpilot/internal/deck"
	"deckpilot/internal/selection"
)

var styleTools = []string{"style", "theme", "font", "palette", "color"}

func isStyleTool(tool string) bool {
	lower := strings.ToLower(tool)
	for _, s := range styleTools {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func isTerminalStatus(status string) bool {
	switch strings.ToLower(status) {
	case "completed", "complete", "done", "finished", "failed", "error":
		return true
	}
	return false
}

func toolText(tool, status, message string) string {
	if message = strings.TrimSpace(message); message != "" {
		return message
	}
	if tool == "" {
		tool = "tool"
	}
	return fmt.Sprintf("%s: %s", tool, status)
}

// lockedOut must be called with the lock held.
func (c *Controller) lockedOut() bool {
	return c.clock.Now().Before(c.lockoutUntil)
}

// LockedOut reports whether the applied-edit lockout is active.
func (c *Controller) LockedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockedOut()
}

// AddTool records a tool lifecycle event. The same (tool, status) pair seen
// again within the dedup window collapses into the first row, and tool rows
// are suppressed during the applied-edit lockout. Style tools open or close
// the style window either way.
func (c *Controller) AddTool(tool, status, message string) bool {
	return c.update(func() bool {
		now := c.clock.Now()
		if isStyleTool(tool) {
			if isTerminalStatus(status) {
				c.styleUntil = now
			} else {
				c.styleUntil = now.Add(c.styleWindow)
			}
		}

		key := tool + "\x00" + status
		if last, ok := c.toolSeen[key]; ok && now.Sub(last) < c.toolDedup {
			return false
		}
		c.toolSeen[key] = now
		if c.lockedOut() {
			return false
		}
		row := c.newRow(RoleTool, toolText(tool, status, message))
		row.Tool, row.Status = tool, status
		c.rows = append(c.rows, row)
		return true
	})
}

// StyleToolActive reports whether a style tool ran within the style window.
func (c *Controller) StyleToolActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Now().Before(c.styleUntil)
}

// AddSelection records that the agent is working on a selection. Either a
// ready label, a descriptor or a bare element id is kept; the text shown is
// resolved on read.
func (c *Controller) AddSelection(label string, desc *selection.Descriptor, elementID string) bool {
	if strings.TrimSpace(label) == "" && desc == nil && strings.TrimSpace(elementID) == "" {
		return false
	}
	return c.update(func() bool {
		if n := len(c.rows); n > 0 {
			last := c.rows[n-1]
			if last.Role == RoleSelection && last.Label == label && last.ElementID == elementID && sameDescriptor(last.Selection, desc) {
				return false
			}
		}
		row := c.newRow(RoleSelection, "")
		row.Label = strings.TrimSpace(label)
		row.ElementID = strings.TrimSpace(elementID)
		if desc != nil {
			d := *desc
			row.Selection = &d
		}
		c.rows = append(c.rows, row)
		return true
	})
}

func sameDescriptor(a, b *selection.Descriptor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ElementID == b.ElementID && a.SlideID == b.SlideID
}

func selectionText(d deck.Deck, r Row) string {
	var label string
	switch {
	case r.Label != "":
		label = r.Label
	case r.Selection != nil:
		label = selection.Label(d, *r.Selection)
	case r.ElementID != "":
		if desc, ok := locate(d, r.ElementID); ok {
			label = selection.Label(d, desc)
		} else {
			label = "element " + r.ElementID
		}
	}
	return "Using selection: " + label
}

// locate finds the slide owning a component id.
func locate(d deck.Deck, elementID string) (selection.Descriptor, bool) {
	for _, s := range d.Slides {
		if comp, ok := s.Component(elementID); ok {
			return selection.FromComponent(s, comp), true
		}
	}
	return selection.Descriptor{}, false
}

// AddProposal shows a proposed edit. A repeated proposal for the same edit
// updates its row.
func (c *Controller) AddProposal(editID, messageID, summary string, changes []deck.TextChange) string {
	var id string
	c.update(func() bool {
		text := strings.TrimSpace(summary)
		if text == "" {
			text = "Proposed changes"
		}
		if editID != "" {
			for i := range c.rows {
				if c.rows[i].Role == RoleProposal && c.rows[i].EditID == editID {
					c.rows[i].Text = text
					c.rows[i].Changes = append([]deck.TextChange(nil), changes...)
					id = c.rows[i].ID
					return true
				}
			}
		}
		row := c.newRow(RoleProposal, text)
		row.EditID, row.MessageID = editID, messageID
		row.Changes = append([]deck.TextChange(nil), changes...)
		c.rows = append(c.rows, row)
		id = row.ID
		return true
	})
	return id
}

// MarkApplied adds the applied confirmation once per edit and starts the
// lockout window.
func (c *Controller) MarkApplied(editID, messageID, summary string) bool {
	return c.update(func() bool {
		if editID != "" {
			for _, r := range c.rows {
				if r.Role == RoleApplied && r.EditID == editID {
					return false
				}
			}
		}
		for i := range c.rows {
			r := &c.rows[i]
			if r.Role != RoleProposal {
				continue
			}
			if (editID != "" && r.EditID == editID) || (messageID != "" && r.MessageID == messageID) {
				r.Applied = true
			}
		}
		text := strings.TrimSpace(summary)
		if text == "" {
			text = "Changes applied"
		}
		row := c.newRow(RoleApplied, text)
		row.EditID, row.MessageID = editID, messageID
		c.rows = append(c.rows, row)
		c.lockoutUntil = c.clock.Now().Add(c.lockout)
		return true
	})
}
