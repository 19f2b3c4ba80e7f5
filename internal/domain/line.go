package domain

import "strings"

// Side identifies one edge of a card usable as a line anchor.
type Side string

// Side values.
const (
	SideTop    Side = "top"
	SideRight  Side = "right"
	SideBottom Side = "bottom"
	SideLeft   Side = "left"
)

// Sides returns all four anchor sides.
func Sides() []Side {
	return []Side{SideTop, SideRight, SideBottom, SideLeft}
}

// ValidSide reports whether s is a supported anchor side.
func ValidSide(s Side) bool {
	switch s {
	case SideTop, SideRight, SideBottom, SideLeft:
		return true
	}
	return false
}

// Endpoint is one end of a line card: either a literal canvas coordinate or an
// attachment to a side of another card at a relative offset along that side.
// The literal coordinate is kept even while attached so the endpoint can fall
// back to it when the attached card disappears.
type Endpoint struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	AttachedCardID string  `json:"attached_card_id,omitempty"`
	AttachedSide   Side    `json:"attached_side,omitempty"`
	Offset         float64 `json:"offset,omitempty"`
}

// Attached reports whether the endpoint references a card edge.
func (e Endpoint) Attached() bool {
	return strings.TrimSpace(e.AttachedCardID) != ""
}

// Detach clears the attachment reference, keeping the literal coordinate.
func (e *Endpoint) Detach() {
	e.AttachedCardID = ""
	e.AttachedSide = ""
	e.Offset = 0
}

// AttachTo points the endpoint at side of cardID with offset t along the side.
func (e *Endpoint) AttachTo(cardID string, side Side, t float64) error {
	if strings.TrimSpace(cardID) == "" {
		return ErrInvalidID
	}
	if !ValidSide(side) {
		return ErrInvalidSide
	}
	if t < 0 || t > 1 {
		return ErrInvalidOffset
	}
	e.AttachedCardID = cardID
	e.AttachedSide = side
	e.Offset = t
	return nil
}

// Waypoint is a user-placed reroute node a line is routed through. Coordinates
// are relative to the owning line card's anchor position.
type Waypoint struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}
