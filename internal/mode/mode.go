// Package mode holds the shared application mode flags checked by the
// reconciliation guards.
package mode

import "sync/atomic"

// Mode is passed by pointer to everything that reads or flips the flags.
// The zero value is ready to use.
type Mode struct {
	interacting atomic.Bool
	editing     atomic.Bool
	unmounting  atomic.Bool
	generating  atomic.Bool
}

func New() *Mode {
	return &Mode{}
}

// Interacting is true while the user drags, resizes or otherwise holds a
// component.
func (m *Mode) Interacting() bool     { return m.interacting.Load() }
func (m *Mode) SetInteracting(v bool) { m.interacting.Store(v) }

// Editing is true while component edit mode is on.
func (m *Mode) Editing() bool     { return m.editing.Load() }
func (m *Mode) SetEditing(v bool) { m.editing.Store(v) }

// Unmounting is set once on teardown; nothing may mutate state afterwards.
func (m *Mode) Unmounting() bool { return m.unmounting.Load() }
func (m *Mode) Unmount()         { m.unmounting.Store(true) }

// Generating is true while the agent is still producing slides.
func (m *Mode) Generating() bool     { return m.generating.Load() }
func (m *Mode) SetGenerating(v bool) { m.generating.Store(v) }

// Snapshot is a plain copy of the flags for logging.
type Snapshot struct {
	Interacting bool `json:"interacting"`
	Editing     bool `json:"editing"`
	Unmounting  bool `json:"unmounting"`
	Generating  bool `json:"generating"`
}

func (m *Mode) Snapshot() Snapshot {
	return Snapshot{
		Interacting: m.Interacting(),
		Editing:     m.Editing(),
		Unmounting:  m.Unmounting(),
		Generating:  m.Generating(),
	}
}
