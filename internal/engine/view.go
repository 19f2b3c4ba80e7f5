package engine

import (
	"sort"

	"github.com/hylla/tavla/internal/domain"
)

// CardView is the render-ready state of one card: effective geometry with
// overlays applied, stacking rank, and interaction flags.
type CardView struct {
	ID          string
	Kind        domain.CardKind
	Box         CardBox
	Rank        int
	OrderKey    string
	Selected    bool
	Editing     bool
	Locked      bool
	InColumn    string
	Constrained bool
	Payload     domain.Payload
	Path        *Path
}

// BoardView is a consistent snapshot of everything a renderer needs for one
// frame.
type BoardView struct {
	BoardID     string
	Viewport    Viewport
	Cards       []CardView
	DropColumn  string
	DropIndex   int
	PendingConn *PendingConnection
	SnapTarget  *SnapTarget
	CanUndo     bool
	CanRedo     bool
	Notice      string
}

// Snapshot captures the current board state for rendering. Cards are ordered
// back to front; line cards carry their routed display path.
func (e *Engine) Snapshot() BoardView {
	e.mu.Lock()
	defer e.mu.Unlock()

	ranks := StackRanks(e.cardSlice())
	views := make([]CardView, 0, len(e.cards))
	for _, c := range e.cards {
		v := CardView{
			ID:          c.ID,
			Kind:        c.Kind,
			Box:         e.effectiveBox(c),
			Rank:        ranks[c.ID],
			OrderKey:    c.OrderKey,
			Selected:    e.selection.IsSelected(c.ID),
			Editing:     e.selection.Editing() == c.ID,
			Locked:      c.PositionLocked,
			InColumn:    e.columnOf[c.ID],
			Constrained: e.constrained[c.ID],
			Payload:     c.Payload,
		}
		if c.Kind == domain.KindLine {
			if path, ok := e.linePath(c); ok {
				v.Path = &path
			}
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Rank < views[j].Rank })

	view := BoardView{
		BoardID:  e.boardID,
		Viewport: e.viewport,
		Cards:    views,
		CanUndo:  e.history.CanUndo(),
		CanRedo:  e.history.CanRedo(),
	}
	if e.drag != nil {
		view.DropColumn = e.drag.dropColumnID
		view.DropIndex = e.drag.dropIndex
	}
	if e.lineDrag != nil && e.lineDrag.snap != nil {
		snap := *e.lineDrag.snap
		view.SnapTarget = &snap
	}
	if e.pendingConn != nil {
		pc := *e.pendingConn
		view.PendingConn = &pc
	}
	view.Notice = e.TakeNotice()
	return view
}
