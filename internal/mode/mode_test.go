package mode

import "testing"

func TestModeFlags(t *testing.T) {
	m := New()
	if m.Interacting() || m.Editing() || m.Unmounting() || m.Generating() {
		t.Fatalf("zero mode should have every flag off: %+v", m.Snapshot())
	}
	m.SetEditing(true)
	m.SetGenerating(true)
	m.Unmount()
	got := m.Snapshot()
	want := Snapshot{Editing: true, Unmounting: true, Generating: true}
	if got != want {
		t.Fatalf("Snapshot() = %+v, want %+v", got, want)
	}
	m.SetEditing(false)
	if m.Editing() {
		t.Fatalf("editing should be off")
	}
}
