package engine

import "time"

// Action pairs an already-applied forward mutation with its inverse. Both
// closures must be idempotent and self-contained: they capture the values
// they replay at creation time and never read live UI state, so they stay
// correct after the originating component is gone. Closures targeting a
// since-deleted card must no-op rather than fail.
type Action struct {
	Timestamp   time.Time
	Description string
	Do          func()
	Undo        func()
}

// History is a linear undo/redo stack: an append-only action list plus a
// cursor. Recording while the cursor is below the top truncates the stack
// above it.
type History struct {
	stack  []Action
	cursor int
	limit  int
}

// NewHistory constructs a history retaining at most limit actions; a
// non-positive limit keeps everything.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Record registers an action whose forward mutation has already run. It does
// not execute Do.
func (h *History) Record(a Action) {
	if a.Do == nil || a.Undo == nil {
		return
	}
	h.stack = append(h.stack[:h.cursor], a)
	h.cursor = len(h.stack)
	if h.limit > 0 && len(h.stack) > h.limit {
		drop := len(h.stack) - h.limit
		h.stack = append([]Action(nil), h.stack[drop:]...)
		h.cursor -= drop
	}
}

// Undo replays the inverse of the action below the cursor.
func (h *History) Undo() bool {
	if h.cursor == 0 {
		return false
	}
	h.cursor--
	h.stack[h.cursor].Undo()
	return true
}

// Redo replays the forward mutation of the action at the cursor.
func (h *History) Redo() bool {
	if h.cursor >= len(h.stack) {
		return false
	}
	h.stack[h.cursor].Do()
	h.cursor++
	return true
}

// CanUndo reports whether an action is available below the cursor.
func (h *History) CanUndo() bool {
	return h.cursor > 0
}

// CanRedo reports whether an action is available at the cursor.
func (h *History) CanRedo() bool {
	return h.cursor < len(h.stack)
}

// Len returns the number of recorded actions.
func (h *History) Len() int {
	return len(h.stack)
}
