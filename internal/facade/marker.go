package facade

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/deuce/internal/position"
)

// Marker classes used by the facade.
const (
	ClassError = "deuce-error"
	ClassRef   = "deuce-ref"
)

// Marker highlights a range of the presentation document.
type Marker struct {
	ID    uuid.UUID
	Range position.Range
	Class string
}

// MarkerSet holds markers by id.
type MarkerSet struct {
	mu      sync.RWMutex
	markers map[uuid.UUID]*Marker
	seq     map[uuid.UUID]int
	next    int
}

// NewMarkerSet creates an empty set.
func NewMarkerSet() *MarkerSet {
	return &MarkerSet{
		markers: make(map[uuid.UUID]*Marker),
		seq:     make(map[uuid.UUID]int),
	}
}

// Add creates a marker and returns its id.
func (s *MarkerSet) Add(r position.Range, class string) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.markers[id] = &Marker{ID: id, Range: r, Class: class}
	s.seq[id] = s.next
	s.next++
	s.mu.Unlock()
	return id
}

// Remove deletes a marker. It reports whether the marker existed.
func (s *MarkerSet) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.markers[id]
	delete(s.markers, id)
	delete(s.seq, id)
	return ok
}

// RemoveClass deletes every marker of class and returns how many were removed.
func (s *MarkerSet) RemoveClass(class string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, m := range s.markers {
		if m.Class == class {
			delete(s.markers, id)
			delete(s.seq, id)
			n++
		}
	}
	return n
}

// Get returns a copy of a marker.
func (s *MarkerSet) Get(id uuid.UUID) (Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markers[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// All returns copies of every marker in creation order.
func (s *MarkerSet) All() []Marker {
	return s.collect(func(*Marker) bool { return true })
}

// ByClass returns copies of the markers of class in creation order.
func (s *MarkerSet) ByClass(class string) []Marker {
	return s.collect(func(m *Marker) bool { return m.Class == class })
}

func (s *MarkerSet) collect(keep func(*Marker) bool) []Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Marker, 0, len(s.markers))
	for _, m := range s.markers {
		if keep(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out
}

// Len returns the number of markers.
func (s *MarkerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

// Shift moves markers after a change of delta lines at editRow. Markers
// starting below editRow move; with inclusive set, so do markers starting
// on editRow. Rows never move above editRow.
func (s *MarkerSet) Shift(editRow, delta int, inclusive bool) int {
	if delta == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for _, m := range s.markers {
		row := m.Range.Start.Row
		if row < editRow || row == editRow && !inclusive {
			continue
		}
		m.Range.Start.Row = max(row+delta, editRow)
		m.Range.End.Row = max(m.Range.End.Row+delta, editRow)
		moved++
	}
	return moved
}
