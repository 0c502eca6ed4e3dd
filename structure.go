package xlgrid

import (
	"maps"
)

// remapState is what a structural edit destroyed or rewrote, kept so the
// edit can be rolled back exactly.
type remapState struct {
	shape      Shape
	cells      map[Coord]string // dropped cells at their old coordinates
	attrs      []AttrEntry      // attribute list before the edit
	rowHeights map[sizeKey]float64
	colWidths  map[sizeKey]float64
	edges      []edge // dropped dependency edges, old coordinates
}

// Insert adds count empty rows, columns or tables before index. index may
// equal the extent of axis to append.
func (g *Grid) Insert(index, count int, axis Axis) error {
	g.lock()
	defer g.unlock()
	extent := g.store.shape.Extent(axis)
	if count <= 0 || index < 0 || index > extent {
		return &RangeError{Op: "insert", Axis: axis, Index: index, Count: count, Extent: extent}
	}
	before := g.structural(axis, index, count, true)
	g.undo.Push(Operation{
		Name:  "insert " + axis.String(),
		Apply: func() { g.structural(axis, index, count, true) },
		Rollback: func() {
			g.structural(axis, index, count, false)
			g.restoreLayout(before)
		},
	})
	g.logger.Debug("inserted", "axis", axis.String(), "index", index, "count", count)
	return nil
}

// Delete removes count rows, columns or tables starting at index. Cells in
// the deleted range are dropped; everything behind it moves up.
func (g *Grid) Delete(index, count int, axis Axis) error {
	g.lock()
	defer g.unlock()
	extent := g.store.shape.Extent(axis)
	if count <= 0 || index < 0 || index+count > extent {
		return &RangeError{Op: "delete", Axis: axis, Index: index, Count: count, Extent: extent}
	}
	st := g.structural(axis, index, count, false)
	g.undo.Push(Operation{
		Name:  "delete " + axis.String(),
		Apply: func() { st = g.structural(axis, index, count, false) },
		Rollback: func() {
			g.structural(axis, index, count, true)
			g.restore(st)
		},
	})
	g.logger.Debug("deleted", "axis", axis.String(), "index", index, "count", count, "dropped", len(st.cells))
	return nil
}

// structural shifts every coordinate-keyed structure for an insertion or
// deletion along axis and updates the shape last.
func (g *Grid) structural(axis Axis, index, count int, insert bool) remapState {
	fn := func(c Coord) (Coord, bool) {
		v, ok := remapIndex(c.Get(axis), index, count, insert)
		return c.With(axis, v), ok
	}
	sizeFn := func(sizeAxis Axis, k sizeKey) (sizeKey, bool) {
		switch {
		case axis == AxisTable:
			t, ok := remapIndex(k.Table, index, count, insert)
			return sizeKey{Index: k.Index, Table: t}, ok
		case axis == sizeAxis:
			i, ok := remapIndex(k.Index, index, count, insert)
			return sizeKey{Index: i, Table: k.Table}, ok
		}
		return k, true
	}
	extent := g.store.shape.Extent(axis)
	if insert {
		extent += count
	} else {
		extent -= count
	}
	return g.remapAll(fn, sizeFn, func(entries []AttrEntry) []AttrEntry {
		return remapAttrEntries(entries, axis, index, count, insert)
	}, g.store.shape.WithExtent(axis, extent))
}

// remapAll rewrites cells, attributes, sizes and dependency edges through
// the given functions, invalidates everything that moved or lost an edge,
// and sets the new shape. All four structures change under the one lock.
func (g *Grid) remapAll(
	fn func(Coord) (Coord, bool),
	sizeFn func(Axis, sizeKey) (sizeKey, bool),
	attrFn func([]AttrEntry) []AttrEntry,
	shape Shape,
) remapState {
	st := remapState{
		shape:      g.store.shape,
		cells:      make(map[Coord]string),
		attrs:      cloneAttrEntries(g.store.attrs),
		rowHeights: maps.Clone(g.store.rowHeights),
		colWidths:  maps.Clone(g.store.colWidths),
	}

	var moved []Coord
	cells := make(map[Coord]string, len(g.store.cells))
	for c, src := range g.store.cells {
		nc, ok := fn(c)
		if !ok {
			st.cells[c] = src
			continue
		}
		if nc != c {
			moved = append(moved, nc)
		}
		cells[nc] = src
	}
	g.store.cells = cells

	g.store.attrs = attrFn(g.store.attrs)
	g.store.rowHeights = remapSizes(g.store.rowHeights, AxisRow, sizeFn)
	g.store.colWidths = remapSizes(g.store.colWidths, AxisCol, sizeFn)

	dropped, affected := g.cache.remap(fn)
	st.edges = dropped
	for _, c := range affected {
		g.cache.invalidate(c)
	}
	for _, c := range moved {
		g.cache.invalidate(c)
	}

	g.store.shape = shape
	g.modified = true
	g.notify(Change{Kind: ChangeShape, Shape: shape})
	return st
}

func remapSizes(m map[sizeKey]float64, axis Axis, fn func(Axis, sizeKey) (sizeKey, bool)) map[sizeKey]float64 {
	out := make(map[sizeKey]float64, len(m))
	for k, v := range m {
		if nk, ok := fn(axis, k); ok {
			out[nk] = v
		}
	}
	return out
}

// restoreLayout puts back the attribute list and sizes recorded in st.
func (g *Grid) restoreLayout(st remapState) {
	g.store.attrs = cloneAttrEntries(st.attrs)
	g.store.rowHeights = maps.Clone(st.rowHeights)
	g.store.colWidths = maps.Clone(st.colWidths)
	g.notify(Change{Kind: ChangeAttributes})
}

// restore reverts a destructive edit after the inverse remap: dropped cells,
// attributes, sizes, shape and dependency edges come back as they were.
func (g *Grid) restore(st remapState) {
	g.store.shape = st.shape
	for c, src := range st.cells {
		g.store.put(c, src)
		g.cache.invalidate(c)
		g.notify(Change{Kind: ChangeCell, Coord: c})
	}
	g.restoreLayout(st)
	for _, e := range st.edges {
		g.cache.addEdge(e.From, e.To)
		g.cache.invalidate(e.From)
	}
	g.notify(Change{Kind: ChangeShape, Shape: st.shape})
}

// SetShape resizes the grid. Cells, sizes and attribute entries outside the
// new shape are dropped; cells that read them become dirty.
func (g *Grid) SetShape(shape Shape) error {
	g.lock()
	defer g.unlock()
	if !shape.Valid() {
		return &RangeError{Op: "set shape", Message: "shape " + shape.String() + " has a negative dimension"}
	}
	if shape == g.store.shape {
		return nil
	}
	st := g.reshape(shape)
	g.undo.Push(Operation{
		Name:  "set shape",
		Apply: func() { st = g.reshape(shape) },
		Rollback: func() {
			g.restore(st)
		},
	})
	g.logger.Debug("shape changed", "from", st.shape.String(), "to", shape.String())
	return nil
}

func (g *Grid) reshape(shape Shape) remapState {
	fn := func(c Coord) (Coord, bool) {
		return c, shape.Contains(c)
	}
	sizeFn := func(axis Axis, k sizeKey) (sizeKey, bool) {
		return k, k.Table < shape.Tables && k.Index < shape.Extent(axis)
	}
	attrFn := func(entries []AttrEntry) []AttrEntry {
		out := make([]AttrEntry, 0, len(entries))
		for _, e := range entries {
			if e.Table < shape.Tables {
				out = append(out, e)
			}
		}
		return out
	}
	return g.remapAll(fn, sizeFn, attrFn, shape)
}
