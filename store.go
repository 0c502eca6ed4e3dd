package xlgrid

import (
	"iter"
	"maps"
	"slices"
)

// sizeKey addresses a row height or column width override.
type sizeKey struct {
	Index int
	Table int
}

// cellStore exclusively owns cell sources, attribute entries, size overrides
// and the macro text. It has no notion of caching or undo; the Grid funnels
// every mutation through it together with invalidation and undo recording.
type cellStore struct {
	shape      Shape
	cells      map[Coord]string
	attrs      []AttrEntry
	rowHeights map[sizeKey]float64
	colWidths  map[sizeKey]float64
	macros     string
}

func newCellStore(shape Shape) *cellStore {
	s := &cellStore{}
	s.clear(shape)
	return s
}

func (s *cellStore) clear(shape Shape) {
	s.shape = shape
	s.cells = make(map[Coord]string)
	s.attrs = nil
	s.rowHeights = make(map[sizeKey]float64)
	s.colWidths = make(map[sizeKey]float64)
	s.macros = ""
}

func (s *cellStore) source(c Coord) (string, bool) {
	src, ok := s.cells[c]
	return src, ok
}

// put stores text at c, or removes the entry when text is empty.
// It returns the previous source and whether one existed.
func (s *cellStore) put(c Coord, text string) (string, bool) {
	old, had := s.cells[c]
	if text == "" {
		delete(s.cells, c)
	} else {
		s.cells[c] = text
	}
	return old, had
}

func (s *cellStore) len() int {
	return len(s.cells)
}

// sortedCoords returns the stored coordinates in table, row, column order.
func (s *cellStore) sortedCoords() []Coord {
	keys := slices.Collect(maps.Keys(s.cells))
	slices.SortFunc(keys, func(a, b Coord) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return keys
}

// each yields stored cells in a stable order over a snapshot of the keys.
func (s *cellStore) each() iter.Seq2[Coord, string] {
	return func(yield func(Coord, string) bool) {
		for _, c := range s.sortedCoords() {
			src, ok := s.cells[c]
			if !ok {
				continue
			}
			if !yield(c, src) {
				return
			}
		}
	}
}

func (s *cellStore) sizes(axis Axis) map[sizeKey]float64 {
	if axis == AxisRow {
		return s.rowHeights
	}
	return s.colWidths
}

// setSize stores a size override, or removes it when size is zero.
func (s *cellStore) setSize(axis Axis, key sizeKey, size float64) (float64, bool) {
	m := s.sizes(axis)
	old, had := m[key]
	if size == 0 {
		delete(m, key)
	} else {
		m[key] = size
	}
	return old, had
}

func (s *cellStore) size(axis Axis, key sizeKey) (float64, bool) {
	v, ok := s.sizes(axis)[key]
	return v, ok
}

func sortedSizeKeys(m map[sizeKey]float64) []sizeKey {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b sizeKey) int {
		if a.Table != b.Table {
			return a.Table - b.Table
		}
		return a.Index - b.Index
	})
	return keys
}
