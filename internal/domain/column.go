package domain

import "slices"

// IndexOf returns the position of cardID in the column's item list, or -1.
func (p ColumnPayload) IndexOf(cardID string) int {
	for i, item := range p.Items {
		if item.CardID == cardID {
			return i
		}
	}
	return -1
}

// Contains reports whether cardID is a member of the column's item list.
func (p ColumnPayload) Contains(cardID string) bool {
	return p.IndexOf(cardID) >= 0
}

// OrderedIDs returns the child card ids sorted by stored position.
func (p ColumnPayload) OrderedIDs() []string {
	items := slices.Clone(p.Items)
	slices.SortStableFunc(items, func(a, b ColumnItem) int {
		return a.Position - b.Position
	})
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.CardID)
	}
	return out
}

// Insert splices cardID into the item list at index and renumbers positions
// contiguously from 0. An existing entry for cardID is removed first, so the
// operation is also a reorder. Out-of-range indexes append.
func (p *ColumnPayload) Insert(cardID string, index int) {
	p.Remove(cardID)
	if index < 0 || index > len(p.Items) {
		index = len(p.Items)
	}
	p.Items = slices.Insert(p.Items, index, ColumnItem{CardID: cardID})
	p.renumber()
}

// Remove deletes cardID from the item list and renumbers the remainder.
func (p *ColumnPayload) Remove(cardID string) bool {
	i := p.IndexOf(cardID)
	if i < 0 {
		return false
	}
	p.Items = slices.Delete(p.Items, i, i+1)
	p.renumber()
	return true
}

// renumber rewrites positions contiguously from 0 in list order.
func (p *ColumnPayload) renumber() {
	for i := range p.Items {
		p.Items[i].Position = i
	}
}
