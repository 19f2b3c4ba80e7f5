package engine

import (
	"context"

	"github.com/hylla/tavla/internal/domain"
)

// ResizeHandle identifies which edge or corner a resize gesture grabs.
type ResizeHandle string

// ResizeHandle values.
const (
	HandleRight  ResizeHandle = "right"
	HandleBottom ResizeHandle = "bottom"
	HandleCorner ResizeHandle = "corner"
)

// resizeState tracks one resize gesture from pointer-down to release.
type resizeState struct {
	cardID      string
	handle      ResizeHandle
	startScreen Point
	startW      float64
	startH      float64
	hadHeight   bool
	moved       bool
}

// PointerDownResize begins a resize gesture on a card's handle. Width-only
// kinds accept only the right handle; non-resizable kinds refuse entirely.
func (e *Engine) PointerDownResize(cardID string, handle ResizeHandle, screen Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.card(cardID)
	if !ok {
		return ErrNotFound
	}
	capability := domain.CapabilityFor(c.Kind)
	switch capability.Resize {
	case domain.ResizeNone:
		return ErrNotResizable
	case domain.ResizeWidthOnly:
		if handle != HandleRight {
			return ErrNotResizable
		}
	}
	if err := e.own(cardID, gestureResize); err != nil {
		return err
	}

	box := e.effectiveBox(c)
	e.resize = &resizeState{
		cardID:      cardID,
		handle:      handle,
		startScreen: screen,
		startW:      box.W,
		startH:      box.H,
		hadHeight:   c.Height != nil,
	}
	return nil
}

// resizeMove applies the pointer delta to the tracked dimensions and updates
// the size overlay. Caller holds the lock.
func (e *Engine) resizeMove(screen Point) {
	r := e.resize
	c, ok := e.card(r.cardID)
	if !ok {
		e.endResize()
		return
	}
	capability := domain.CapabilityFor(c.Kind)

	delta := e.viewport.ScreenToCanvas(screen).Sub(e.viewport.ScreenToCanvas(r.startScreen))
	w := r.startW
	h := r.startH
	switch r.handle {
	case HandleRight:
		w = r.startW + delta.X
	case HandleBottom:
		h = r.startH + delta.Y
	case HandleCorner:
		w = r.startW + delta.X
		h = r.startH + delta.Y
	}
	w = domain.ClampWidth(c.Kind, w)
	if capability.FixedAspect && r.startW > 0 && r.startH > 0 {
		h = w * (r.startH / r.startW)
	}
	h = domain.ClampHeight(c.Kind, h)

	if capability.Resize == domain.ResizeWidthOnly {
		h = r.startH
	}
	r.moved = true
	e.sizeOverlay[r.cardID] = size{W: w, H: h}
}

// resizeUp commits the final dimensions, resolves the hybrid-height
// constrained state, and records the undo action. Caller holds the lock.
func (e *Engine) resizeUp(screen Point) {
	r := e.resize
	defer e.endResize()

	if !r.moved {
		return
	}
	e.resizeMove(screen)

	c, ok := e.card(r.cardID)
	if !ok {
		return
	}
	final, ok := e.sizeOverlay[r.cardID]
	if !ok {
		return
	}
	capability := domain.CapabilityFor(c.Kind)

	// Hybrid kinds compare the released height against the last measured
	// content height: dragging below it pins the card to the manual height,
	// resizing back up to it releases the pin.
	if capability.Height == domain.HeightHybrid {
		if measured := e.measured[r.cardID]; measured > 0 {
			if final.H < measured-e.cfg.ResizeTolerance {
				e.constrained[r.cardID] = true
			} else {
				delete(e.constrained, r.cardID)
			}
		}
	}

	beforeW, beforeH, beforeHad := r.startW, r.startH, r.hadHeight
	afterW, afterH := final.W, final.H
	cardID := r.cardID
	widthOnly := capability.Resize == domain.ResizeWidthOnly

	apply := func(w, h float64, setHeight bool) func() {
		return func() {
			e.commitCardSize(cardID, w, h, setHeight)
		}
	}
	e.commitCardSize(cardID, afterW, afterH, !widthOnly)
	e.history.Record(Action{
		Timestamp:   e.clock(),
		Description: "resize card",
		Do:          apply(afterW, afterH, !widthOnly),
		Undo:        apply(beforeW, beforeH, beforeHad),
	})
}

// resizeCancel reverts the card to its pre-resize dimensions. Caller holds
// the lock.
func (e *Engine) resizeCancel() {
	e.endResize()
}

// endResize clears the size overlay and ownership. Caller holds the lock.
func (e *Engine) endResize() {
	r := e.resize
	if r == nil {
		return
	}
	delete(e.sizeOverlay, r.cardID)
	e.release(r.cardID)
	e.resize = nil
}

// commitCardSize sets a card's dimensions locally and schedules the debounced
// persistence write. setHeight false keeps the height content-driven.
// Missing cards no-op. Caller holds the lock.
func (e *Engine) commitCardSize(id string, w, h float64, setHeight bool) {
	c, ok := e.cards[id]
	if !ok {
		return
	}
	if setHeight {
		c.ResizeTo(w, &h, e.clock())
	} else {
		c.ResizeTo(w, nil, e.clock())
	}
	e.cards[id] = c

	width := c.Width
	boardID := c.BoardID
	patch := TransformPatch{Width: &width}
	if c.Height != nil {
		height := *c.Height
		patch.Height = &height
	} else {
		patch.ClearHeight = true
	}
	e.saver.Schedule(id, func(ctx context.Context) error {
		return e.repo.UpdateCardTransform(ctx, boardID, id, patch)
	})
}

// ReportContentHeight feeds a measured content height for a card from the
// rendering surface. Hybrid cards that are not manually constrained
// auto-expand to fit; content-height kinds just record the measurement for
// layout.
func (e *Engine) ReportContentHeight(cardID string, measured float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.card(cardID)
	if !ok || measured <= 0 {
		return
	}
	e.measured[cardID] = measured

	capability := domain.CapabilityFor(c.Kind)
	if capability.Height != domain.HeightHybrid || e.constrained[cardID] {
		return
	}
	if _, resizing := e.sizeOverlay[cardID]; resizing {
		return
	}
	if c.Height != nil && measured > *c.Height+e.cfg.ResizeTolerance {
		e.commitCardSize(cardID, c.Width, measured, true)
	}
}

// HeightConstrained reports whether a hybrid card is pinned to its manual
// height.
func (e *Engine) HeightConstrained(cardID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.constrained[cardID]
}
