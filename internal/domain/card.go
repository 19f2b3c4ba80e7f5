package domain

import (
	"math"
	"strings"
	"time"
)

// Card represents one positioned, typed visual entity on a board canvas.
// Geometry is canvas-space; Height nil means the height is content-driven.
type Card struct {
	ID             string
	BoardID        string
	Kind           CardKind
	X              float64
	Y              float64
	Width          float64
	Height         *float64
	OrderKey       string
	PositionLocked bool
	Payload        Payload
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewCard constructs a validated card with default payload when none is given.
func NewCard(id, boardID string, kind CardKind, x, y, width float64, orderKey string, payload Payload, now time.Time) (Card, error) {
	id = strings.TrimSpace(id)
	boardID = strings.TrimSpace(boardID)
	orderKey = strings.TrimSpace(orderKey)
	if id == "" {
		return Card{}, ErrInvalidID
	}
	if boardID == "" {
		return Card{}, ErrInvalidBoardID
	}
	if !ValidKind(kind) {
		return Card{}, ErrInvalidKind
	}
	if orderKey == "" {
		return Card{}, ErrInvalidOrderKey
	}
	if payload == nil {
		p, err := DefaultPayload(kind)
		if err != nil {
			return Card{}, err
		}
		payload = p
	} else if payload.PayloadKind() != kind {
		return Card{}, ErrPayloadMismatch
	}

	c := Card{
		ID:        id,
		BoardID:   boardID,
		Kind:      kind,
		X:         SanitizeCoord(x),
		Y:         SanitizeCoord(y),
		OrderKey:  orderKey,
		Payload:   payload,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	c.Width = ClampWidth(kind, width)
	return c, nil
}

// EffectiveHeight resolves the card's height, falling back to the measured
// content height when the stored height is content-driven.
func (c Card) EffectiveHeight(measured float64) float64 {
	if c.Height != nil {
		return *c.Height
	}
	if measured > 0 {
		return measured
	}
	return CapabilityFor(c.Kind).MinHeight
}

// MoveTo sets the card position, sanitizing degenerate values.
func (c *Card) MoveTo(x, y float64, now time.Time) {
	c.X = SanitizeCoord(x)
	c.Y = SanitizeCoord(y)
	c.UpdatedAt = now.UTC()
}

// ResizeTo sets width (and height when given), clamped to the kind's bounds.
func (c *Card) ResizeTo(width float64, height *float64, now time.Time) {
	c.Width = ClampWidth(c.Kind, width)
	if height != nil {
		h := ClampHeight(c.Kind, *height)
		c.Height = &h
	} else {
		c.Height = nil
	}
	c.UpdatedAt = now.UTC()
}

// Line returns the line payload when the card is a line card.
func (c Card) Line() (LinePayload, bool) {
	p, ok := c.Payload.(LinePayload)
	return p, ok
}

// Column returns the column payload when the card is a column card.
func (c Card) Column() (ColumnPayload, bool) {
	p, ok := c.Payload.(ColumnPayload)
	return p, ok
}

// SanitizeCoord replaces NaN and infinite coordinates with zero. Mid-gesture
// pointer math can transiently produce degenerate deltas; those are clamped
// rather than rejected.
func SanitizeCoord(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ClampWidth clamps width to the kind's allowed range.
func ClampWidth(kind CardKind, w float64) float64 {
	w = SanitizeCoord(w)
	c := CapabilityFor(kind)
	if c.MinWidth > 0 && w < c.MinWidth {
		return c.MinWidth
	}
	if c.MaxWidth > 0 && w > c.MaxWidth {
		return c.MaxWidth
	}
	if w < 0 {
		return 0
	}
	return w
}

// ClampHeight clamps height to the kind's allowed range.
func ClampHeight(kind CardKind, h float64) float64 {
	h = SanitizeCoord(h)
	c := CapabilityFor(kind)
	if c.MinHeight > 0 && h < c.MinHeight {
		return c.MinHeight
	}
	if c.MaxHeight > 0 && h > c.MaxHeight {
		return c.MaxHeight
	}
	if h < 0 {
		return 0
	}
	return h
}
