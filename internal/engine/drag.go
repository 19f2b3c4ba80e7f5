package engine

import (
	"context"
	"math"

	"github.com/hylla/tavla/internal/domain"
)

// dragState tracks one drag gesture from pointer-down to release.
type dragState struct {
	phase          gesturePhase
	startScreen    Point
	primary        string
	cardIDs        []string
	startPositions map[string]Point
	sourceColumn   map[string]string
	dropColumnID   string
	dropIndex      int
}

// PointerDownCard begins the selection/drag state machine for a card. With
// additive set, membership is toggled and no drag starts. Otherwise the drag
// set is the clicked card, or the full multi-selection when the clicked card
// is already part of it. Locked cards, and line cards attached to a locked or
// column-member card, refuse drag initiation.
func (e *Engine) PointerDownCard(cardID string, screen Point, additive bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.card(cardID)
	if !ok {
		return ErrNotFound
	}
	if additive {
		e.selection.Toggle(cardID)
		return nil
	}

	var moveIDs []string
	if e.selection.IsSelected(cardID) && e.selection.Count() > 1 {
		moveIDs = e.selection.IDs()
	} else {
		e.selection.Select(cardID, false)
		moveIDs = []string{cardID}
	}

	if err := e.dragRefusal(c); err != nil {
		return err
	}
	movable := moveIDs[:0]
	for _, id := range moveIDs {
		mc, ok := e.card(id)
		if !ok || e.dragRefusal(mc) != nil {
			continue
		}
		movable = append(movable, id)
	}
	if len(movable) == 0 {
		return ErrCardLocked
	}

	claimed := make([]string, 0, len(movable))
	for _, id := range movable {
		if err := e.own(id, gestureDrag); err != nil {
			for _, prev := range claimed {
				e.release(prev)
			}
			return err
		}
		claimed = append(claimed, id)
	}

	start := make(map[string]Point, len(movable))
	source := map[string]string{}
	for _, id := range movable {
		mc, _ := e.card(id)
		box := e.effectiveBox(mc)
		start[id] = Point{X: box.X, Y: box.Y}
		if mc.Kind == domain.KindLine {
			// Line drags move the stored anchor, not the endpoint bounds.
			start[id] = Point{X: mc.X, Y: mc.Y}
		}
		if colID, member := e.columnOf[id]; member {
			source[id] = colID
		}
	}

	e.drag = &dragState{
		phase:          phasePending,
		startScreen:    screen,
		primary:        cardID,
		cardIDs:        movable,
		startPositions: start,
		sourceColumn:   source,
	}
	return nil
}

// dragRefusal reports why a card cannot start a drag, or nil.
func (e *Engine) dragRefusal(c domain.Card) error {
	if c.PositionLocked {
		return ErrCardLocked
	}
	if lp, ok := c.Line(); ok {
		for _, ep := range []domain.Endpoint{lp.Start, lp.End} {
			if !ep.Attached() {
				continue
			}
			target, exists := e.cards[ep.AttachedCardID]
			if !exists {
				continue
			}
			if target.PositionLocked {
				return ErrCardLocked
			}
			if _, member := e.columnOf[target.ID]; member {
				return ErrCardLocked
			}
		}
	}
	return nil
}

// dragMove advances the drag state machine for a pointer move. Caller holds
// the lock.
func (e *Engine) dragMove(screen Point) {
	d := e.drag
	if d.phase == phasePending {
		if screen.Dist(d.startScreen) < e.cfg.DragThreshold {
			return
		}
		d.phase = phaseDragging
	}

	delta := e.viewport.ScreenToCanvas(screen).Sub(e.viewport.ScreenToCanvas(d.startScreen))
	delta = e.snapDelta(delta)
	for _, id := range d.cardIDs {
		start, ok := d.startPositions[id]
		if !ok {
			continue
		}
		e.dragPositions[id] = Point{
			X: domain.SanitizeCoord(start.X + delta.X),
			Y: domain.SanitizeCoord(start.Y + delta.Y),
		}
	}

	e.updateDropTarget(e.viewport.ScreenToCanvas(screen))
}

// snapDelta rounds the drag delta, not the absolute position, to the grid so
// relative offsets between multi-selected cards are preserved.
func (e *Engine) snapDelta(delta Point) Point {
	if !e.cfg.SnapToGrid || e.cfg.GridSize <= 0 {
		return delta
	}
	g := e.cfg.GridSize
	return Point{X: math.Round(delta.X/g) * g, Y: math.Round(delta.Y/g) * g}
}

// updateDropTarget marks the column under the pointer as a potential drop
// target when a single columnable card is being held over it. Caller holds
// the lock.
func (e *Engine) updateDropTarget(pointer Point) {
	d := e.drag
	d.dropColumnID = ""
	d.dropIndex = 0
	if len(d.cardIDs) != 1 {
		return
	}
	dragged, ok := e.card(d.cardIDs[0])
	if !ok || !domain.CapabilityFor(dragged.Kind).Columnable {
		return
	}

	for _, c := range e.cards {
		payload, isCol := c.Column()
		if !isCol || c.ID == dragged.ID {
			continue
		}
		colBox := e.effectiveBoxNoLayout(c)
		colBox.H = columnContentHeight(e.childBoxes(colBox, payload))
		if !containsPoint(colBox, pointer) {
			continue
		}
		// Clone before mutating: the payload's item slice aliases the stored
		// card's backing array.
		working := cloneColumn(payload)
		working.Remove(dragged.ID)
		children := e.childBoxes(colBox, working)
		d.dropColumnID = c.ID
		d.dropIndex = InsertionIndex(children, pointer.Y)
		return
	}
}

// dragUp completes a drag: a pending drag was just a click, a dragging one
// commits final positions and column membership and records one batched undo
// action. Caller holds the lock.
func (e *Engine) dragUp(screen Point) {
	d := e.drag
	defer e.endDrag()

	if d.phase != phaseDragging {
		return
	}
	e.dragMove(screen)

	before := snapshotDrag{positions: d.startPositions, columns: map[string]domain.ColumnPayload{}}
	after := snapshotDrag{positions: map[string]Point{}, columns: map[string]domain.ColumnPayload{}}

	for _, id := range d.cardIDs {
		final, ok := e.dragPositions[id]
		if !ok {
			continue
		}
		after.positions[id] = final
	}

	// Column membership changes: capture before-state of every touched column,
	// then apply splices.
	touched := map[string]struct{}{}
	for _, colID := range d.sourceColumn {
		touched[colID] = struct{}{}
	}
	if d.dropColumnID != "" {
		touched[d.dropColumnID] = struct{}{}
	}
	for colID := range touched {
		if col, ok := e.card(colID); ok {
			if payload, isCol := col.Column(); isCol {
				before.columns[colID] = cloneColumn(payload)
			}
		}
	}

	moved := d.cardIDs[0]
	if d.dropColumnID != "" {
		if col, ok := e.card(d.dropColumnID); ok {
			if payload, isCol := col.Column(); isCol {
				if src := d.sourceColumn[moved]; src != "" && src != d.dropColumnID {
					e.spliceColumnLocal(src, moved, -1)
				}
				payload, _ = e.cards[d.dropColumnID].Column()
				payload = cloneColumn(payload)
				payload.Insert(moved, d.dropIndex)
				col = e.cards[d.dropColumnID]
				col.Payload = payload
				e.cards[d.dropColumnID] = col
			}
		}
	} else {
		// Released on open canvas: extract from any source column.
		for id, src := range d.sourceColumn {
			e.spliceColumnLocal(src, id, -1)
		}
	}
	e.recomputeMembership()

	for colID := range touched {
		if col, ok := e.card(colID); ok {
			if payload, isCol := col.Column(); isCol {
				after.columns[colID] = cloneColumn(payload)
			}
		}
	}

	// Apply final positions to the card set and persist.
	for id, final := range after.positions {
		e.commitCardPosition(id, final)
	}
	for colID := range touched {
		e.commitColumnPayload(colID)
	}

	e.recordDragAction(before, after, touched)
}

// snapshotDrag captures the card positions and column item lists on one side
// of a drag.
type snapshotDrag struct {
	positions map[string]Point
	columns   map[string]domain.ColumnPayload
}

// recordDragAction pushes one batched undo action restoring every moved
// card's position and every touched column's item list. Caller holds the lock.
func (e *Engine) recordDragAction(before, after snapshotDrag, touched map[string]struct{}) {
	if len(after.positions) == 0 && len(touched) == 0 {
		return
	}
	// Action closures run with the engine lock held by Undo/Redo.
	apply := func(s snapshotDrag) func() {
		return func() {
			for id, p := range s.positions {
				e.commitCardPosition(id, p)
			}
			for colID, payload := range s.columns {
				e.restoreColumnLocal(colID, cloneColumn(payload))
				e.commitColumnPayload(colID)
			}
			e.recomputeMembership()
		}
	}
	e.history.Record(Action{
		Timestamp:   e.clock(),
		Description: "move cards",
		Do:          apply(after),
		Undo:        apply(before),
	})
}

// dragCancel reverts the dragged cards to their pre-drag positions and
// discards the gesture. Caller holds the lock.
func (e *Engine) dragCancel() {
	e.endDrag()
}

// endDrag clears drag overlays and ownership. Caller holds the lock.
func (e *Engine) endDrag() {
	d := e.drag
	if d == nil {
		return
	}
	for _, id := range d.cardIDs {
		delete(e.dragPositions, id)
		e.release(id)
	}
	e.drag = nil
}

// commitCardPosition moves a card locally and schedules its debounced
// persistence write. Missing cards no-op. Caller holds the lock.
func (e *Engine) commitCardPosition(id string, p Point) {
	c, ok := e.cards[id]
	if !ok {
		return
	}
	deltaX := p.X - c.X
	deltaY := p.Y - c.Y
	c.MoveTo(p.X, p.Y, e.clock())

	payloadChanged := false
	if lp, isLine := c.Line(); isLine {
		if !lp.Start.Attached() {
			lp.Start.X += deltaX
			lp.Start.Y += deltaY
		}
		if !lp.End.Attached() {
			lp.End.X += deltaX
			lp.End.Y += deltaY
		}
		c.Payload = lp
		payloadChanged = true
	}
	e.cards[id] = c

	x, y := c.X, c.Y
	boardID, kind, payload := c.BoardID, c.Kind, c.Payload
	e.saver.Schedule(id, func(ctx context.Context) error {
		if err := e.repo.UpdateCardTransform(ctx, boardID, id, TransformPatch{X: &x, Y: &y}); err != nil {
			return err
		}
		if payloadChanged {
			return e.repo.UpdateCardPayload(ctx, boardID, id, kind, payload)
		}
		return nil
	})
}

// spliceColumnLocal removes (index < 0) or inserts a card in a column's item
// list in local state. Caller holds the lock.
func (e *Engine) spliceColumnLocal(colID, cardID string, index int) {
	col, ok := e.cards[colID]
	if !ok {
		return
	}
	payload, isCol := col.Column()
	if !isCol {
		return
	}
	payload = cloneColumn(payload)
	if index < 0 {
		payload.Remove(cardID)
	} else {
		payload.Insert(cardID, index)
	}
	col.Payload = payload
	e.cards[colID] = col
}

// restoreColumnLocal replaces a column's payload in local state. Caller holds
// the lock.
func (e *Engine) restoreColumnLocal(colID string, payload domain.ColumnPayload) {
	col, ok := e.cards[colID]
	if !ok {
		return
	}
	col.Payload = payload
	e.cards[colID] = col
}

// commitColumnPayload persists a column's current item list. Caller holds the
// lock.
func (e *Engine) commitColumnPayload(colID string) {
	col, ok := e.cards[colID]
	if !ok {
		return
	}
	payload, isCol := col.Column()
	if !isCol {
		return
	}
	boardID := col.BoardID
	snapshot := cloneColumn(payload)
	e.saver.Schedule(colID, func(ctx context.Context) error {
		return e.repo.UpdateCardPayload(ctx, boardID, colID, domain.KindColumn, snapshot)
	})
}

// cloneColumn deep-copies a column payload so undo closures stay
// self-contained.
func cloneColumn(p domain.ColumnPayload) domain.ColumnPayload {
	out := p
	out.Items = make([]domain.ColumnItem, len(p.Items))
	copy(out.Items, p.Items)
	return out
}
