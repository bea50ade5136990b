package session

import "sync"

// Selection is the ordered set of dataset ids the user picked. Order is
// selection order; the first id decides the effective owner.
type Selection struct {
	mu  sync.RWMutex
	ids []string
}

// NewSelection returns a selection holding ids, duplicates removed.
func NewSelection(ids ...string) *Selection {
	s := &Selection{}
	s.Replace(ids)
	return s
}

// Select appends id unless it is already selected.
func (s *Selection) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || indexOf(s.ids, id) >= 0 {
		return
	}
	s.ids = append(s.ids, id)
}

// Deselect removes id.
func (s *Selection) Deselect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.ids, id); i >= 0 {
		s.ids = append(s.ids[:i:i], s.ids[i+1:]...)
	}
}

// Toggle selects id if absent, deselects it otherwise. It reports whether id
// ends up selected.
func (s *Selection) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.ids, id); i >= 0 {
		s.ids = append(s.ids[:i:i], s.ids[i+1:]...)
		return false
	}
	if id == "" {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

// Replace sets the selection to ids, keeping the first occurrence of each.
func (s *Selection) Replace(ids []string) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && indexOf(out, id) < 0 {
			out = append(out, id)
		}
	}
	s.mu.Lock()
	s.ids = out
	s.mu.Unlock()
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = nil
	s.mu.Unlock()
}

// IDs returns a copy of the selected ids in selection order.
func (s *Selection) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
