package search

// Selection tracks at most one chosen repository ID.
type Selection struct {
	id int64
}

// Toggle selects id, or deselects it when it is already selected.
func (s *Selection) Toggle(id int64) {
	if s.id == id {
		s.id = 0
		return
	}
	s.id = id
}

// ID returns the selected repository ID, 0 if none.
func (s *Selection) ID() int64 {
	return s.id
}

// Clear drops the selection.
func (s *Selection) Clear() {
	s.id = 0
}
