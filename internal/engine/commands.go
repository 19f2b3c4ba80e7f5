package engine

import (
	"context"

	"github.com/hylla/tavla/internal/domain"
)

// SelectCard selects a card, additively when additive is set.
func (e *Engine) SelectCard(cardID string, additive bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.card(cardID); !ok {
		return
	}
	e.selection.Select(cardID, additive)
}

// ClearSelection empties the selection and leaves edit mode.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection.Clear()
}

// SelectAll selects every card on the board.
func (e *Engine) SelectAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.cards))
	for id := range e.cards {
		ids = append(ids, id)
	}
	e.selection.Replace(ids)
}

// SetEditingCard enters edit mode for a card, which collapses the selection
// to it. An empty id leaves edit mode.
func (e *Engine) SetEditingCard(cardID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cardID != "" {
		if _, ok := e.card(cardID); !ok {
			return
		}
	}
	e.selection.SetEditing(cardID)
}

// SelectedIDs returns the current selection in stable order.
func (e *Engine) SelectedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.IDs()
}

// Pan translates the viewport offset.
func (e *Engine) Pan(dx, dy float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport = e.viewport.Pan(dx, dy)
}

// ZoomAt zooms toward a focal screen point, keeping it fixed.
func (e *Engine) ZoomAt(focal Point, newZoom float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewport = e.viewport.ZoomAt(focal, newZoom, e.cfg.ZoomMin, e.cfg.ZoomMax)
}

// Viewport returns the current viewport.
func (e *Engine) Viewport() Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewport
}

// CreateCard places a new card of kind at a canvas point with the given
// width (zero uses the kind minimum) and optional payload, stacked above
// everything. The repository write is synchronous: creation is a commit
// point, not a debounced geometry tweak.
func (e *Engine) CreateCard(ctx context.Context, kind domain.CardKind, at Point, width float64, payload domain.Payload) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createCardLocked(ctx, kind, at, width, payload)
}

// createCardLocked is CreateCard with the lock already held.
func (e *Engine) createCardLocked(ctx context.Context, kind domain.CardKind, at Point, width float64, payload domain.Payload) (string, error) {
	_, maxKey := orderKeyBounds(e.cardSlice(), "")
	key := e.mustKeyBetween(maxKey, "")

	card, err := domain.NewCard(e.idGen(), e.boardID, kind, at.X, at.Y, width, key, payload, e.clock())
	if err != nil {
		return "", err
	}
	if err := e.repo.CreateCard(ctx, card); err != nil {
		return "", &PersistenceError{Op: "create", CardID: card.ID, Err: err}
	}
	e.cards[card.ID] = card
	e.recomputeMembership()
	e.selection.Select(card.ID, false)

	created := card
	e.history.Record(Action{
		Timestamp:   e.clock(),
		Description: "create card",
		Do: func() {
			if _, exists := e.cards[created.ID]; exists {
				return
			}
			if err := e.repo.CreateCard(context.Background(), created); err != nil {
				e.logger.Error("redo create failed", "card_id", created.ID, "err", err)
				return
			}
			e.cards[created.ID] = created
			e.recomputeMembership()
		},
		Undo: func() {
			e.deleteCardLocked(context.Background(), created.ID, false)
		},
	})
	return card.ID, nil
}

// DeleteCard removes a card, any column references to it, and any line
// attachments pointing at it.
func (e *Engine) DeleteCard(ctx context.Context, cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteCardLocked(ctx, cardID, true)
}

// deleteCardLocked deletes with the lock held, optionally recording undo.
func (e *Engine) deleteCardLocked(ctx context.Context, cardID string, record bool) error {
	c, ok := e.card(cardID)
	if !ok {
		return nil
	}

	// Detach line endpoints referencing the card, keeping their literal
	// fallback coordinates.
	for _, other := range e.cardSlice() {
		lp, isLine := other.Line()
		if !isLine {
			continue
		}
		changed := false
		for _, ep := range []*domain.Endpoint{&lp.Start, &lp.End} {
			if ep.AttachedCardID != cardID {
				continue
			}
			resolved := e.resolveEndpoint(other, *ep)
			ep.X, ep.Y = resolved.X, resolved.Y
			ep.Detach()
			changed = true
		}
		if changed {
			e.commitLinePayload(other.ID, lp)
		}
	}

	// Remove from any column item list.
	if colID, member := e.columnOf[cardID]; member {
		e.spliceColumnLocal(colID, cardID, -1)
		e.commitColumnPayload(colID)
		if err := e.repo.RemoveCardFromColumn(ctx, e.boardID, colID, cardID); err != nil {
			e.logger.Error("remove column reference failed", "column_id", colID, "card_id", cardID, "err", err)
		}
	}

	e.saver.Cancel(cardID)
	if err := e.repo.DeleteCard(ctx, e.boardID, cardID); err != nil {
		return &PersistenceError{Op: "delete", CardID: cardID, Err: err}
	}
	delete(e.cards, cardID)
	e.selection.Remove(cardID)
	delete(e.dragPositions, cardID)
	delete(e.sizeOverlay, cardID)
	delete(e.lineOverlay, cardID)
	delete(e.measured, cardID)
	delete(e.constrained, cardID)
	e.recomputeMembership()

	if record {
		removed := c
		e.history.Record(Action{
			Timestamp:   e.clock(),
			Description: "delete card",
			Do: func() {
				e.deleteCardLocked(context.Background(), removed.ID, false)
			},
			Undo: func() {
				if _, exists := e.cards[removed.ID]; exists {
					return
				}
				if err := e.repo.CreateCard(context.Background(), removed); err != nil {
					e.logger.Error("undo delete failed", "card_id", removed.ID, "err", err)
					return
				}
				e.cards[removed.ID] = removed
				e.recomputeMembership()
			},
		})
	}
	return nil
}

// BringToFront restacks a card above every other card.
func (e *Engine) BringToFront(cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.card(cardID)
	if !ok {
		return ErrNotFound
	}
	_, maxKey := orderKeyBounds(e.cardSlice(), cardID)
	if maxKey == "" || c.OrderKey > maxKey {
		return nil
	}
	return e.commitOrderKey(cardID, e.mustKeyBetween(maxKey, ""))
}

// SendToBack restacks a card below every other card.
func (e *Engine) SendToBack(cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.card(cardID)
	if !ok {
		return ErrNotFound
	}
	minKey, _ := orderKeyBounds(e.cardSlice(), cardID)
	if minKey == "" || c.OrderKey < minKey {
		return nil
	}
	return e.commitOrderKey(cardID, e.mustKeyBetween("", minKey))
}

// ReorderBetween restacks a card strictly between two neighbors, identified
// by id. Empty ids mean the far ends of the stack.
func (e *Engine) ReorderBetween(cardID, belowID, aboveID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.card(cardID); !ok {
		return ErrNotFound
	}
	var lower, upper string
	if belowID != "" {
		c, ok := e.card(belowID)
		if !ok {
			return ErrNotFound
		}
		lower = c.OrderKey
	}
	if aboveID != "" {
		c, ok := e.card(aboveID)
		if !ok {
			return ErrNotFound
		}
		upper = c.OrderKey
	}
	return e.commitOrderKey(cardID, e.mustKeyBetween(lower, upper))
}

// commitOrderKey installs a new order key locally, persists it, and records
// the undo action. Caller holds the lock.
func (e *Engine) commitOrderKey(cardID, key string) error {
	c, ok := e.cards[cardID]
	if !ok {
		return ErrNotFound
	}
	before := c.OrderKey
	e.applyOrderKey(cardID, key)
	e.history.Record(Action{
		Timestamp:   e.clock(),
		Description: "restack card",
		Do:          func() { e.applyOrderKey(cardID, key) },
		Undo:        func() { e.applyOrderKey(cardID, before) },
	})
	return nil
}

// applyOrderKey sets a card's order key and schedules the debounced
// persistence write. Missing cards no-op. Caller holds the lock.
func (e *Engine) applyOrderKey(cardID, key string) {
	c, ok := e.cards[cardID]
	if !ok {
		return
	}
	c.OrderKey = key
	c.UpdatedAt = e.clock().UTC()
	e.cards[cardID] = c

	boardID := c.BoardID
	k := key
	e.saver.Schedule(cardID, func(ctx context.Context) error {
		return e.repo.UpdateCardTransform(ctx, boardID, cardID, TransformPatch{OrderKey: &k})
	})
}

// mustKeyBetween wraps KeyBetween with the production fallback: generator
// misuse is logged and degrades to a safe append-after key instead of
// corrupting the sort order. Caller holds the lock.
func (e *Engine) mustKeyBetween(a, b string) string {
	key, err := KeyBetween(a, b)
	if err == nil {
		return key
	}
	e.logger.Error("order key generation failed", "lower", a, "upper", b, "err", err)
	upper := a
	if b > upper {
		upper = b
	}
	if upper == "" {
		return FirstOrderKey()
	}
	fallback, ferr := KeyBetween(upper, "")
	if ferr != nil {
		return upper + FirstOrderKey()
	}
	return fallback
}

// Undo replays the inverse of the most recent action.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Undo()
}

// Redo replays the most recently undone action.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Redo()
}

// LockPosition sets or clears a card's position lock.
func (e *Engine) LockPosition(cardID string, locked bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cards[cardID]
	if !ok {
		return ErrNotFound
	}
	c.PositionLocked = locked
	c.UpdatedAt = e.clock().UTC()
	e.cards[cardID] = c

	boardID := c.BoardID
	e.saver.Schedule(cardID, func(ctx context.Context) error {
		return e.repo.UpdateCardTransform(ctx, boardID, cardID, TransformPatch{PositionLocked: &locked})
	})
	return nil
}

// UpdatePayload replaces a card's payload and schedules a debounced save, so
// rapid edits to the same card coalesce into one write.
func (e *Engine) UpdatePayload(cardID string, payload domain.Payload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cards[cardID]
	if !ok {
		return ErrNotFound
	}
	if payload == nil || payload.PayloadKind() != c.Kind {
		return domain.ErrPayloadMismatch
	}
	c.Payload = payload
	c.UpdatedAt = e.clock().UTC()
	e.cards[cardID] = c

	boardID := c.BoardID
	kind := c.Kind
	e.saver.Schedule(cardID, func(ctx context.Context) error {
		return e.repo.UpdateCardPayload(ctx, boardID, cardID, kind, payload)
	})
	return nil
}

// cardSlice returns all cards as a slice. Caller holds the lock.
func (e *Engine) cardSlice() []domain.Card {
	out := make([]domain.Card, 0, len(e.cards))
	for _, c := range e.cards {
		out = append(out, c)
	}
	return out
}
