package engine

import (
	"context"

	"github.com/hylla/tavla/internal/domain"
)

// LineEnd selects which endpoint of a line a gesture operates on.
type LineEnd int

// LineEnd values.
const (
	EndStart LineEnd = iota
	EndEnd
)

// endpointDragState tracks one endpoint drag from pointer-down to release.
type endpointDragState struct {
	lineID string
	end    LineEnd
	before domain.LinePayload
	snap   *SnapTarget
	moved  bool
}

// PendingConnection is an in-progress connection started from a card anchor
// and not yet completed.
type PendingConnection struct {
	FromCardID string
	FromSide   domain.Side
	From       Point
	Cursor     Point
}

// PointerDownEndpoint begins dragging one endpoint of a line card.
func (e *Engine) PointerDownEndpoint(lineID string, end LineEnd, screen Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.card(lineID)
	if !ok {
		return ErrNotFound
	}
	lp, isLine := c.Line()
	if !isLine {
		return ErrNotLine
	}
	if err := e.own(lineID, gestureEndpoint); err != nil {
		return err
	}
	e.lineDrag = &endpointDragState{lineID: lineID, end: end, before: cloneLine(lp)}
	e.lineOverlay[lineID] = cloneLine(lp)
	return nil
}

// endpointMove updates the dragged endpoint, snapping to the nearest card
// anchor within the snap radius. Caller holds the lock.
func (e *Engine) endpointMove(screen Point) {
	d := e.lineDrag
	if _, ok := e.card(d.lineID); !ok {
		e.endEndpointDrag()
		return
	}
	pointer := e.viewport.ScreenToCanvas(screen)
	d.moved = true

	lp := e.lineOverlay[d.lineID]
	ep := endpointOf(&lp, d.end)

	if target, snapped := SnapEndpoint(pointer, e.boxes(), d.lineID, e.cfg.SnapRadius); snapped {
		d.snap = &target
		ep.X, ep.Y = target.Point.X, target.Point.Y
	} else {
		d.snap = nil
		ep.X = domain.SanitizeCoord(pointer.X)
		ep.Y = domain.SanitizeCoord(pointer.Y)
	}
	// The overlay endpoint stays detached while dragging; display follows
	// the literal coordinate which tracks the snap point.
	ep.Detach()
	e.lineOverlay[d.lineID] = lp
}

// endpointUp records the attachment when released snapped, or the literal
// coordinate when released free, persists the payload, and records the undo
// action. Caller holds the lock.
func (e *Engine) endpointUp(screen Point) {
	d := e.lineDrag
	defer e.endEndpointDrag()

	if !d.moved {
		return
	}
	e.endpointMove(screen)

	if _, ok := e.card(d.lineID); !ok {
		return
	}
	lp := e.lineOverlay[d.lineID]
	ep := endpointOf(&lp, d.end)
	if d.snap != nil {
		if err := ep.AttachTo(d.snap.CardID, d.snap.Side, 0.5); err != nil {
			e.logger.Error("endpoint attach rejected", "line_id", d.lineID, "err", err)
			ep.Detach()
		}
	} else {
		ep.Detach()
	}

	before := cloneLine(d.before)
	after := cloneLine(lp)
	lineID := d.lineID
	e.commitLinePayload(lineID, after)
	e.history.Record(Action{
		Timestamp:   e.clock(),
		Description: "reconnect line",
		Do:          func() { e.commitLinePayload(lineID, cloneLine(after)) },
		Undo:        func() { e.commitLinePayload(lineID, cloneLine(before)) },
	})
}

// endpointCancel reverts the endpoint to its pre-drag state. Caller holds the
// lock.
func (e *Engine) endpointCancel() {
	e.endEndpointDrag()
}

// endEndpointDrag clears the line overlay and ownership. Caller holds the lock.
func (e *Engine) endEndpointDrag() {
	d := e.lineDrag
	if d == nil {
		return
	}
	delete(e.lineOverlay, d.lineID)
	e.release(d.lineID)
	e.lineDrag = nil
}

// endpointOf returns a pointer to the selected endpoint of lp.
func endpointOf(lp *domain.LinePayload, end LineEnd) *domain.Endpoint {
	if end == EndStart {
		return &lp.Start
	}
	return &lp.End
}

// cloneLine deep-copies a line payload so undo closures stay self-contained.
func cloneLine(p domain.LinePayload) domain.LinePayload {
	out := p
	out.Waypoints = make([]domain.Waypoint, len(p.Waypoints))
	copy(out.Waypoints, p.Waypoints)
	return out
}

// commitLinePayload installs a line payload locally and schedules the
// debounced persistence write. Missing cards no-op. Caller holds the lock.
func (e *Engine) commitLinePayload(id string, lp domain.LinePayload) {
	c, ok := e.cards[id]
	if !ok {
		return
	}
	if _, isLine := c.Line(); !isLine {
		return
	}
	c.Payload = lp
	c.UpdatedAt = e.clock().UTC()
	e.cards[id] = c

	boardID := c.BoardID
	snapshot := cloneLine(lp)
	e.saver.Schedule(id, func(ctx context.Context) error {
		return e.repo.UpdateCardPayload(ctx, boardID, id, domain.KindLine, snapshot)
	})
}

// LinePath computes the display path of a line card: resolved endpoints
// joined through the sorted waypoints, or the straight/curved segment when
// there are none. Stale attachments to deleted cards resolve to their literal
// fallback and are cleared on the next save of the line.
func (e *Engine) LinePath(lineID string) (Path, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.card(lineID)
	if !ok {
		return Path{}, false
	}
	return e.linePath(c)
}

// linePath is the lock-held implementation of LinePath.
func (e *Engine) linePath(c domain.Card) (Path, bool) {
	lp, isLine := e.linePayloadOf(c)
	if !isLine {
		return Path{}, false
	}
	start := e.resolveEndpoint(c, lp.Start)
	end := e.resolveEndpoint(c, lp.End)
	origin := Point{X: c.X, Y: c.Y}
	sorted := SortWaypoints(start, origin, lp.Waypoints)
	points := make([]Point, 0, len(sorted))
	for _, wp := range sorted {
		points = append(points, Point{X: origin.X + wp.X, Y: origin.Y + wp.Y})
	}
	return RoutePath(start, end, points, lp.Curvature), true
}

// AddWaypoint inserts a reroute node on a line at a canvas point (double
// click on the line's hit path). The waypoint list is kept sorted by distance
// from the start endpoint, not by click order.
func (e *Engine) AddWaypoint(lineID string, canvas Point) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.card(lineID)
	if !ok {
		return "", ErrNotFound
	}
	lp, isLine := c.Line()
	if !isLine {
		return "", ErrNotLine
	}

	wp := domain.Waypoint{
		ID: e.idGen(),
		X:  domain.SanitizeCoord(canvas.X - c.X),
		Y:  domain.SanitizeCoord(canvas.Y - c.Y),
	}
	before := cloneLine(lp)
	after := cloneLine(lp)
	after.Waypoints = append(after.Waypoints, wp)
	start := e.resolveEndpoint(c, after.Start)
	after.Waypoints = SortWaypoints(start, Point{X: c.X, Y: c.Y}, after.Waypoints)
	// A waypoint replaces the single-curve bend.
	after.Curvature = 0

	lineID = c.ID
	e.commitLinePayload(lineID, after)
	e.history.Record(Action{
		Timestamp:   e.clock(),
		Description: "add reroute node",
		Do:          func() { e.commitLinePayload(lineID, cloneLine(after)) },
		Undo:        func() { e.commitLinePayload(lineID, cloneLine(before)) },
	})
	return wp.ID, nil
}

// RemoveWaypoint deletes one reroute node from a line.
func (e *Engine) RemoveWaypoint(lineID, waypointID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.card(lineID)
	if !ok {
		return ErrNotFound
	}
	lp, isLine := c.Line()
	if !isLine {
		return ErrNotLine
	}
	idx := -1
	for i, wp := range lp.Waypoints {
		if wp.ID == waypointID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	before := cloneLine(lp)
	after := cloneLine(lp)
	after.Waypoints = append(after.Waypoints[:idx], after.Waypoints[idx+1:]...)

	e.commitLinePayload(lineID, after)
	e.history.Record(Action{
		Timestamp:   e.clock(),
		Description: "remove reroute node",
		Do:          func() { e.commitLinePayload(lineID, cloneLine(after)) },
		Undo:        func() { e.commitLinePayload(lineID, cloneLine(before)) },
	})
	return nil
}

// MoveWaypoint drags one reroute node to a new canvas point, re-sorting the
// list to keep spatial order.
func (e *Engine) MoveWaypoint(lineID, waypointID string, canvas Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.card(lineID)
	if !ok {
		return ErrNotFound
	}
	lp, isLine := c.Line()
	if !isLine {
		return ErrNotLine
	}
	before := cloneLine(lp)
	after := cloneLine(lp)
	found := false
	for i := range after.Waypoints {
		if after.Waypoints[i].ID == waypointID {
			after.Waypoints[i].X = domain.SanitizeCoord(canvas.X - c.X)
			after.Waypoints[i].Y = domain.SanitizeCoord(canvas.Y - c.Y)
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}
	start := e.resolveEndpoint(c, after.Start)
	after.Waypoints = SortWaypoints(start, Point{X: c.X, Y: c.Y}, after.Waypoints)

	e.commitLinePayload(lineID, after)
	e.history.Record(Action{
		Timestamp:   e.clock(),
		Description: "move reroute node",
		Do:          func() { e.commitLinePayload(lineID, cloneLine(after)) },
		Undo:        func() { e.commitLinePayload(lineID, cloneLine(before)) },
	})
	return nil
}

// StartConnection begins a new connection from a card anchor. The pending
// connection follows the cursor until completed or abandoned.
func (e *Engine) StartConnection(fromCardID string, side domain.Side) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.card(fromCardID)
	if !ok {
		return ErrNotFound
	}
	if !domain.CapabilityFor(c.Kind).Connectable {
		return ErrEndpointTarget
	}
	if !domain.ValidSide(side) {
		return domain.ErrInvalidSide
	}
	from := Anchor(e.effectiveBox(c), side, 0.5)
	e.pendingConn = &PendingConnection{
		FromCardID: fromCardID,
		FromSide:   side,
		From:       from,
		Cursor:     from,
	}
	return nil
}

// MoveConnection updates the pending connection's cursor endpoint.
func (e *Engine) MoveConnection(screen Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingConn == nil {
		return
	}
	e.pendingConn.Cursor = e.viewport.ScreenToCanvas(screen)
}

// CompleteConnection materializes the pending connection as a new line card.
// The far endpoint snaps to the nearest card anchor within the snap radius,
// otherwise it stays free at the cursor position.
func (e *Engine) CompleteConnection(ctx context.Context, screen Point) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pc := e.pendingConn
	if pc == nil {
		return "", ErrNoGesture
	}
	e.pendingConn = nil

	cursor := e.viewport.ScreenToCanvas(screen)
	lp := domain.LinePayload{
		Start: domain.Endpoint{X: pc.From.X, Y: pc.From.Y},
		End:   domain.Endpoint{X: cursor.X, Y: cursor.Y},
	}
	if err := lp.Start.AttachTo(pc.FromCardID, pc.FromSide, 0.5); err != nil {
		return "", err
	}
	if target, snapped := SnapEndpoint(cursor, e.boxes(), pc.FromCardID, e.cfg.SnapRadius); snapped {
		lp.End.X, lp.End.Y = target.Point.X, target.Point.Y
		if err := lp.End.AttachTo(target.CardID, target.Side, 0.5); err != nil {
			return "", err
		}
	}

	return e.createCardLocked(ctx, domain.KindLine, pc.From, 0, lp)
}

// AbortConnection drops the pending connection without creating a line.
func (e *Engine) AbortConnection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingConn = nil
}
