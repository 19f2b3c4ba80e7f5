package engine

import "github.com/hylla/tavla/internal/domain"

// Column layout constants in canvas units. Children stack vertically inside
// the column body below the header.
const (
	columnHeaderHeight = 36.0
	columnPadding      = 8.0
	columnGap          = 8.0
)

// InsertionIndex determines where a dragged card lands in a column: the index
// of the first child whose vertical midpoint lies below the pointer, or the
// end of the list when the pointer is below every midpoint. children must be
// in stored column order, top to bottom.
func InsertionIndex(children []CardBox, pointerY float64) int {
	for i, child := range children {
		if pointerY < child.Y+child.H/2 {
			return i
		}
	}
	return len(children)
}

// columnBodyTop returns the canvas Y where a column's first child starts.
func columnBodyTop(col CardBox) float64 {
	return col.Y + columnHeaderHeight + columnPadding
}

// columnChildBoxes lays out the column's children as stacked boxes inside the
// column body, in stored order. Heights come from resolve, which must return
// each child's effective display height.
func columnChildBoxes(col CardBox, payload domain.ColumnPayload, resolve func(cardID string) (w, h float64, ok bool)) []CardBox {
	y := columnBodyTop(col)
	x := col.X + columnPadding
	width := col.W - 2*columnPadding
	out := make([]CardBox, 0, len(payload.Items))
	for _, id := range payload.OrderedIDs() {
		_, h, ok := resolve(id)
		if !ok {
			continue
		}
		out = append(out, CardBox{ID: id, X: x, Y: y, W: width, H: h})
		y += h + columnGap
	}
	return out
}

// columnContentHeight returns the column's derived display height for the
// given laid-out children.
func columnContentHeight(children []CardBox) float64 {
	h := columnHeaderHeight + 2*columnPadding
	for _, c := range children {
		h += c.H + columnGap
	}
	if len(children) > 0 {
		h -= columnGap
	}
	return h
}

// containsPoint reports whether p lies inside box.
func containsPoint(box CardBox, p Point) bool {
	return p.X >= box.X && p.X <= box.X+box.W && p.Y >= box.Y && p.Y <= box.Y+box.H
}
