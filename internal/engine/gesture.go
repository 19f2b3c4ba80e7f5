package engine

// Pointer-event dispatch shared by the drag, resize, and endpoint
// controllers. At most one pointer gesture is in flight at a time; per-card
// exclusivity is enforced separately through the ownership map so overlays
// of different cards never fight.

// PointerMove feeds the current pointer screen position into the active
// gesture, if any.
func (e *Engine) PointerMove(screen Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.drag != nil:
		e.dragMove(screen)
	case e.resize != nil:
		e.resizeMove(screen)
	case e.lineDrag != nil:
		e.endpointMove(screen)
	}
}

// PointerUp completes the active gesture at the given screen position.
func (e *Engine) PointerUp(screen Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.drag != nil:
		e.dragUp(screen)
	case e.resize != nil:
		e.resizeUp(screen)
	case e.lineDrag != nil:
		e.endpointUp(screen)
	}
}

// CancelGesture aborts the active gesture, reverting the dragged or resized
// cards to their pre-gesture state and discarding any pending write.
func (e *Engine) CancelGesture() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.drag != nil:
		e.dragCancel()
	case e.resize != nil:
		e.resizeCancel()
	case e.lineDrag != nil:
		e.endpointCancel()
	}
}
