package transcript

import (
	"strconv"
	"strings"
)

// isNumeric reports whether s is a bare number. The upstream stream
// sometimes leads a turn with one, e.g. a slide count.
func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func blankOrNumeric(s string) bool {
	return strings.TrimSpace(s) == "" || isNumeric(s)
}

// AppendDelta adds a streamed token to the current assistant turn. The first
// token that is neither blank nor purely numeric opens the row; later tokens
// append in place. It returns the row id, or "" while the token is
// suppressed.
func (c *Controller) AppendDelta(messageID, delta string) string {
	var id string
	c.update(func() bool {
		if i := c.indexOf(c.streamID); i >= 0 {
			row := &c.rows[i]
			if messageID == "" || row.MessageID == "" || row.MessageID == messageID {
				if row.MessageID == "" {
					row.MessageID = messageID
				}
				row.Text += delta
				id = row.ID
				return delta != ""
			}
			// a new turn started without a completion for the previous one
			c.finishStream(i)
		}
		if blankOrNumeric(delta) {
			return false
		}
		row := c.newRow(RoleMessage, strings.TrimLeft(delta, " \t\r\n"))
		row.MessageID = messageID
		row.Streaming = true
		c.rows = append(c.rows, row)
		c.streamID = row.ID
		id = row.ID
		return true
	})
	return id
}

// CompleteMessage finalizes the streaming row. A row that ended up empty or
// numeric-only is dropped. When nothing streamed, text (if any) becomes the
// message.
func (c *Controller) CompleteMessage(messageID, text string) string {
	var id string
	c.update(func() bool {
		i := c.indexOf(c.streamID)
		if i < 0 && messageID != "" {
			// the turn may already be final; completion is idempotent
			for j := range c.rows {
				if c.rows[j].Role == RoleMessage && c.rows[j].MessageID == messageID {
					id = c.rows[j].ID
					return false
				}
			}
		}
		if i < 0 {
			if blankOrNumeric(text) {
				return false
			}
			row := c.newRow(RoleMessage, strings.TrimSpace(text))
			row.MessageID = messageID
			c.rows = append(c.rows, row)
			id = row.ID
			return true
		}
		if strings.TrimSpace(c.rows[i].Text) == "" && !blankOrNumeric(text) {
			c.rows[i].Text = text
		}
		if c.rows[i].MessageID == "" {
			c.rows[i].MessageID = messageID
		}
		if c.finishStream(i) {
			id = c.streamIDOf(i)
		}
		return true
	})
	return id
}

func (c *Controller) streamIDOf(i int) string {
	if i >= 0 && i < len(c.rows) {
		return c.rows[i].ID
	}
	return ""
}

// finishStream closes row i; it reports false when the row was dropped.
func (c *Controller) finishStream(i int) bool {
	c.streamID = ""
	if blankOrNumeric(c.rows[i].Text) {
		c.remove(i)
		return false
	}
	c.rows[i].Text = strings.TrimRight(c.rows[i].Text, " \t\r\n")
	c.rows[i].Streaming = false
	return true
}

// Streaming reports whether an assistant turn is open.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexOf(c.streamID) >= 0
}
