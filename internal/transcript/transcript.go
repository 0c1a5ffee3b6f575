// Package transcript keeps the ordered, deduplicated list of chat rows built
// from user turns and the agent event stream.
package transcript

import (
	"fmt"
	"sync"
	"time"

	"deckpilot/internal/deck"
	"deckpilot/internal/logger"
	"deckpilot/internal/protocol"
	"deckpilot/internal/selection"

	"github.com/google/uuid"
)

// Role is the kind of a row. Each role has its own upsert rules.
type Role int

const (
	RoleWelcome Role = iota
	RoleUser
	RoleMessage
	RoleProgress
	RoleCompletion
	RoleFollowUp
	RolePlan
	RoleTool
	RoleSelection
	RoleProposal
	RoleApplied
	RoleSystem
)

var roleNames = [...]string{
	RoleWelcome:    "welcome",
	RoleUser:       "user",
	RoleMessage:    "message",
	RoleProgress:   "progress",
	RoleCompletion: "completion",
	RoleFollowUp:   "follow_up",
	RolePlan:       "plan",
	RoleTool:       "tool",
	RoleSelection:  "selection",
	RoleProposal:   "proposal",
	RoleApplied:    "applied",
	RoleSystem:     "system",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	for i, name := range roleNames {
		if name == string(b) {
			*r = Role(i)
			return nil
		}
	}
	return fmt.Errorf("unknown transcript role %q", b)
}

type Row struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	MessageID string    `json:"messageId,omitempty"`
	Time      time.Time `json:"time"`

	// Streaming is true while assistant deltas still append to the row.
	Streaming bool `json:"streaming,omitempty"`

	Phase      string  `json:"phase,omitempty"`
	Percent    float64 `json:"percent,omitempty"`
	HasPercent bool    `json:"hasPercent,omitempty"`
	// Generation ties progress and completion rows to one generation run.
	Generation int `json:"generation,omitempty"`

	Steps []protocol.PlanStep `json:"steps,omitempty"`

	Tool   string `json:"tool,omitempty"`
	Status string `json:"status,omitempty"`

	// Selection rows keep what the agent sent; the display label is
	// resolved against the current deck on every read.
	Label     string                 `json:"label,omitempty"`
	Selection *selection.Descriptor  `json:"selection,omitempty"`
	ElementID string                 `json:"elementId,omitempty"`
	Targets   []selection.Descriptor `json:"targets,omitempty"`

	EditID  string            `json:"editId,omitempty"`
	Changes []deck.TextChange `json:"changes,omitempty"`
	Applied bool              `json:"applied,omitempty"`
}

func (r Row) clone() Row {
	r.Steps = append([]protocol.PlanStep(nil), r.Steps...)
	r.Targets = append([]selection.Descriptor(nil), r.Targets...)
	r.Changes = append([]deck.TextChange(nil), r.Changes...)
	if r.Selection != nil {
		sel := *r.Selection
		r.Selection = &sel
	}
	return r
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Timer is a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

const (
	DefaultToolDedup   = 2500 * time.Millisecond
	DefaultLockout     = 3 * time.Second
	DefaultPlanStep    = 600 * time.Millisecond
	DefaultPlanIdle    = 10 * time.Second
	DefaultStyleWindow = 8 * time.Second
)

// FollowUpText is shown once after a generation completes.
const FollowUpText = "Your deck is ready. Select any element and tell me what to change, or ask for a new slide."

type Options struct {
	Clock     Clock
	Scheduler Scheduler
	// Deck returns the current deck; selection labels are resolved with it.
	Deck func() deck.Deck
	// OnChange runs after every mutation, outside the controller lock.
	OnChange func()

	ToolDedup   time.Duration
	Lockout     time.Duration
	PlanStep    time.Duration
	PlanIdle    time.Duration
	StyleWindow time.Duration

	Log *logger.LogEntry
}

type Controller struct {
	clock    Clock
	sched    Scheduler
	deckView func() deck.Deck
	onChange func()
	log      *logger.LogEntry

	toolDedup   time.Duration
	lockout     time.Duration
	planStep    time.Duration
	planIdle    time.Duration
	styleWindow time.Duration

	mu   sync.Mutex
	rows []Row

	streamID   string
	generation int
	progressID string

	toolSeen     map[string]time.Time
	lockoutUntil time.Time
	styleUntil   time.Time

	planID      string
	planLastAt  time.Time
	planQueue   []protocol.PlanStep
	planTimer   Timer
	planVersion int
}

func New(opts Options) *Controller {
	c := &Controller{
		clock:       opts.Clock,
		sched:       opts.Scheduler,
		deckView:    opts.Deck,
		onChange:    opts.OnChange,
		log:         opts.Log,
		toolDedup:   orDefault(opts.ToolDedup, DefaultToolDedup),
		lockout:     orDefault(opts.Lockout, DefaultLockout),
		planStep:    orDefault(opts.PlanStep, DefaultPlanStep),
		planIdle:    orDefault(opts.PlanIdle, DefaultPlanIdle),
		styleWindow: orDefault(opts.StyleWindow, DefaultStyleWindow),
		toolSeen:    map[string]time.Time{},
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.sched == nil {
		c.sched = systemScheduler{}
	}
	if c.log == nil {
		c.log = logger.Named("transcript")
	}
	return c
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// SetOnChange replaces the change hook.
func (c *Controller) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// update runs fn under the lock and fires the change hook when fn reports a
// mutation.
func (c *Controller) update(fn func() bool) bool {
	c.mu.Lock()
	changed := fn()
	hook := c.onChange
	c.mu.Unlock()
	if changed && hook != nil {
		hook()
	}
	return changed
}

func (c *Controller) newRow(role Role, text string) Row {
	return Row{ID: uuid.NewString(), Role: role, Text: text, Time: c.clock.Now()}
}

func (c *Controller) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.rows {
		if c.rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) firstOf(role Role) int {
	for i := range c.rows {
		if c.rows[i].Role == role {
			return i
		}
	}
	return -1
}

func (c *Controller) remove(i int) {
	c.rows = append(c.rows[:i], c.rows[i+1:]...)
}

// AddWelcome shows the greeting row; a second call updates it in place.
func (c *Controller) AddWelcome(text string) {
	c.update(func() bool {
		if i := c.firstOf(RoleWelcome); i >= 0 {
			if c.rows[i].Text == text {
				return false
			}
			c.rows[i].Text = text
			return true
		}
		c.rows = append([]Row{c.newRow(RoleWelcome, text)}, c.rows...)
		return true
	})
}

// AppendUser records a user turn and returns its row id.
func (c *Controller) AppendUser(text string, targets []selection.Descriptor) string {
	row := c.newRow(RoleUser, text)
	row.Targets = append([]selection.Descriptor(nil), targets...)
	c.update(func() bool {
		c.rows = append(c.rows, row)
		return true
	})
	return row.ID
}

// AddSystem appends a system notice, e.g. a failed send or upload.
func (c *Controller) AddSystem(text string) string {
	row := c.newRow(RoleSystem, text)
	c.update(func() bool {
		c.rows = append(c.rows, row)
		return true
	})
	return row.ID
}

// Rows returns a copy of the transcript with selection labels resolved
// against the current deck.
func (c *Controller) Rows() []Row {
	c.mu.Lock()
	out := make([]Row, len(c.rows))
	for i, r := range c.rows {
		out[i] = r.clone()
	}
	view := c.deckView
	c.mu.Unlock()

	var d deck.Deck
	if view != nil {
		d = view()
	}
	for i := range out {
		if out[i].Role == RoleSelection {
			out[i].Text = selectionText(d, out[i])
		}
	}
	return out
}

// Len reports the number of rows.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

// History returns the user and assistant turns, oldest first, at most limit
// entries (all when limit <= 0).
func (c *Controller) History(limit int) []protocol.HistoryMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.HistoryMessage
	for _, r := range c.rows {
		switch r.Role {
		case RoleUser:
			out = append(out, protocol.HistoryMessage{Role: "user", Content: r.Text})
		case RoleMessage:
			if !r.Streaming {
				out = append(out, protocol.HistoryMessage{Role: "assistant", Content: r.Text})
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// LastAssistant returns the text of the most recent assistant message.
func (c *Controller) LastAssistant() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.rows) - 1; i >= 0; i-- {
		if c.rows[i].Role == RoleMessage {
			return c.rows[i].Text, true
		}
	}
	return "", false
}

// Restore replaces the transcript, e.g. from a saved session. Streaming
// state is not restored.
func (c *Controller) Restore(rows []Row) {
	c.update(func() bool {
		c.stopPlan()
		c.rows = make([]Row, 0, len(rows))
		for _, r := range rows {
			r = r.clone()
			r.Streaming = false
			c.rows = append(c.rows, r)
			if r.Generation > c.generation {
				c.generation = r.Generation
			}
		}
		c.streamID, c.progressID, c.planID = "", "", ""
		if i := c.firstOf(RoleProgress); i >= 0 {
			c.progressID = c.rows[i].ID
		}
		return true
	})
}

// Clear drops every row but the welcome row.
func (c *Controller) Clear() {
	c.update(func() bool {
		c.stopPlan()
		kept := c.rows[:0]
		for _, r := range c.rows {
			if r.Role == RoleWelcome {
				kept = append(kept, r)
			}
		}
		c.rows = kept
		c.streamID, c.progressID, c.planID = "", "", ""
		c.toolSeen = map[string]time.Time{}
		return true
	})
}
