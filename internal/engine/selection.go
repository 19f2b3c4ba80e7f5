package engine

import "sort"

// Selection is the set of selected card ids plus the single editing card id.
// An editing card implies an effective single-selection view.
type Selection struct {
	ids     map[string]struct{}
	editing string
}

// NewSelection constructs an empty selection.
func NewSelection() *Selection {
	return &Selection{ids: map[string]struct{}{}}
}

// Select makes id the sole selection, or adds it when additive is set.
// Selecting always leaves edit mode for other cards.
func (s *Selection) Select(id string, additive bool) {
	if id == "" {
		return
	}
	if !additive {
		s.ids = map[string]struct{}{}
	}
	s.ids[id] = struct{}{}
	if s.editing != "" && s.editing != id {
		s.editing = ""
	}
}

// Toggle flips membership of id in the selection set.
func (s *Selection) Toggle(id string) {
	if id == "" {
		return
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
	} else {
		s.ids[id] = struct{}{}
	}
	if s.editing == id {
		s.editing = ""
	}
}

// Replace sets the selection to exactly ids.
func (s *Selection) Replace(ids []string) {
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	if _, ok := s.ids[s.editing]; !ok {
		s.editing = ""
	}
}

// Clear empties the selection and leaves edit mode.
func (s *Selection) Clear() {
	s.ids = map[string]struct{}{}
	s.editing = ""
}

// Remove drops id from the selection, used when the card is deleted.
func (s *Selection) Remove(id string) {
	delete(s.ids, id)
	if s.editing == id {
		s.editing = ""
	}
}

// IsSelected reports membership of id.
func (s *Selection) IsSelected(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// IDs returns the selected ids in stable sorted order.
func (s *Selection) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the selection size.
func (s *Selection) Count() int {
	return len(s.ids)
}

// SetEditing enters edit mode for id, collapsing the selection to it. An
// empty id leaves edit mode without touching the selection.
func (s *Selection) SetEditing(id string) {
	if id == "" {
		s.editing = ""
		return
	}
	s.ids = map[string]struct{}{id: {}}
	s.editing = id
}

// Editing returns the editing card id, or empty.
func (s *Selection) Editing() string {
	return s.editing
}
