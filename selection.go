package xlgrid

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Open marks an open-ended Bottom or Right bound of a Rect. Open bounds are
// resolved against the grid shape at query time, so a whole-row selection
// stays whole-row after the grid is resized.
const Open = -1

// Rect is an inclusive rectangle of (row, col) positions within a table.
type Rect struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Bottom int `json:"bottom"`
	Right  int `json:"right"`
}

// NewRect creates a Rect from its inclusive corners.
func NewRect(top, left, bottom, right int) Rect {
	return Rect{Top: top, Left: left, Bottom: bottom, Right: right}
}

func (r Rect) contains(row, col int) bool {
	return row >= r.Top && (r.Bottom == Open || row <= r.Bottom) &&
		col >= r.Left && (r.Right == Open || col <= r.Right)
}

// resolve replaces open bounds with the last index of the shape.
func (r Rect) resolve(shape Shape) Rect {
	if r.Bottom == Open {
		r.Bottom = shape.Rows - 1
	}
	if r.Right == Open {
		r.Right = shape.Cols - 1
	}
	return r
}

// Empty reports whether the rectangle covers no position.
func (r Rect) Empty() bool {
	return r.Bottom < r.Top || r.Right < r.Left
}

// String formats the rectangle as "A1:C5" with open bounds written as "*".
func (r Rect) String() string {
	bottom, right := "*", "*"
	if r.Bottom != Open {
		bottom = fmt.Sprint(r.Bottom + 1)
	}
	if r.Right != Open {
		right = ColToName(r.Right)
	}
	return fmt.Sprintf("%s%d:%s%s", ColToName(r.Left), r.Top+1, right, bottom)
}

// Point is a (row, col) position within a table.
type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Selection is a composite predicate over (row, col) positions: the union of
// rectangles, whole rows, whole columns and single cells.
type Selection struct {
	Blocks []Rect  `json:"blocks,omitempty"`
	Rows   []int   `json:"rows,omitempty"`
	Cols   []int   `json:"cols,omitempty"`
	Cells  []Point `json:"cells,omitempty"`
}

// SelectAll returns a selection of the whole table, whatever its shape.
func SelectAll() Selection {
	return Selection{Blocks: []Rect{{Top: 0, Left: 0, Bottom: Open, Right: Open}}}
}

// SelectBlock returns a selection of one rectangle.
func SelectBlock(top, left, bottom, right int) Selection {
	return Selection{Blocks: []Rect{NewRect(top, left, bottom, right)}}
}

// SelectRows returns a selection of whole rows.
func SelectRows(rows ...int) Selection {
	return Selection{Rows: slices.Clone(rows)}
}

// SelectCols returns a selection of whole columns.
func SelectCols(cols ...int) Selection {
	return Selection{Cols: slices.Clone(cols)}
}

// SelectCells returns a selection of individual cells.
func SelectCells(cells ...Point) Selection {
	return Selection{Cells: slices.Clone(cells)}
}

// Union returns a selection matching everything either selection matches.
func (s Selection) Union(o Selection) Selection {
	return Selection{
		Blocks: append(slices.Clone(s.Blocks), o.Blocks...),
		Rows:   append(slices.Clone(s.Rows), o.Rows...),
		Cols:   append(slices.Clone(s.Cols), o.Cols...),
		Cells:  append(slices.Clone(s.Cells), o.Cells...),
	}
}

// IsEmpty reports whether the selection has no constituents.
func (s Selection) IsEmpty() bool {
	return len(s.Blocks) == 0 && len(s.Rows) == 0 && len(s.Cols) == 0 && len(s.Cells) == 0
}

// Contains reports whether (row, col) matches any constituent.
func (s Selection) Contains(row, col int) bool {
	for _, b := range s.Blocks {
		if b.contains(row, col) {
			return true
		}
	}
	if slices.Contains(s.Rows, row) || slices.Contains(s.Cols, col) {
		return true
	}
	return slices.Contains(s.Cells, Point{Row: row, Col: col})
}

// BoundingBox returns the smallest rectangle enclosing the selection, with
// open bounds resolved against shape. The second result is false for an
// empty selection.
func (s Selection) BoundingBox(shape Shape) (Rect, bool) {
	var box Rect
	found := false
	add := func(r Rect) {
		if r.Empty() {
			return
		}
		if !found {
			box = r
			found = true
			return
		}
		box.Top = min(box.Top, r.Top)
		box.Left = min(box.Left, r.Left)
		box.Bottom = max(box.Bottom, r.Bottom)
		box.Right = max(box.Right, r.Right)
	}
	for _, b := range s.Blocks {
		add(b.resolve(shape))
	}
	for _, row := range s.Rows {
		add(Rect{Top: row, Left: 0, Bottom: row, Right: shape.Cols - 1})
	}
	for _, col := range s.Cols {
		add(Rect{Top: 0, Left: col, Bottom: shape.Rows - 1, Right: col})
	}
	for _, p := range s.Cells {
		add(Rect{Top: p.Row, Left: p.Col, Bottom: p.Row, Right: p.Col})
	}
	return box, found
}

// Cells lazily yields every (row, col) of the selection that lies within
// shape, row-major. The sequence may be ranged over any number of times.
func (s Selection) Cells(shape Shape) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		box, ok := s.BoundingBox(shape)
		if !ok {
			return
		}
		top, left := max(box.Top, 0), max(box.Left, 0)
		bottom, right := min(box.Bottom, shape.Rows-1), min(box.Right, shape.Cols-1)
		for row := top; row <= bottom; row++ {
			for col := left; col <= right; col++ {
				if s.Contains(row, col) && !yield(row, col) {
					return
				}
			}
		}
	}
}

// remap applies a row or column insertion/deletion to the selection. Table
// remaps do not touch selections.
func (s Selection) remap(axis Axis, index, count int, insert bool) Selection {
	if axis == AxisTable {
		return s.clone()
	}
	out := Selection{}
	for _, b := range s.Blocks {
		lo, hi := b.Top, b.Bottom
		if axis == AxisCol {
			lo, hi = b.Left, b.Right
		}
		lo, hi, ok := remapSpan(lo, hi, index, count, insert)
		if !ok {
			continue
		}
		if axis == AxisRow {
			b.Top, b.Bottom = lo, hi
		} else {
			b.Left, b.Right = lo, hi
		}
		out.Blocks = append(out.Blocks, b)
	}
	if axis == AxisRow {
		out.Rows = remapList(s.Rows, index, count, insert)
		out.Cols = slices.Clone(s.Cols)
	} else {
		out.Rows = slices.Clone(s.Rows)
		out.Cols = remapList(s.Cols, index, count, insert)
	}
	for _, p := range s.Cells {
		v := p.Row
		if axis == AxisCol {
			v = p.Col
		}
		nv, ok := remapIndex(v, index, count, insert)
		if !ok {
			continue
		}
		if axis == AxisRow {
			p.Row = nv
		} else {
			p.Col = nv
		}
		out.Cells = append(out.Cells, p)
	}
	return out
}

func (s Selection) clone() Selection {
	return Selection{
		Blocks: slices.Clone(s.Blocks),
		Rows:   slices.Clone(s.Rows),
		Cols:   slices.Clone(s.Cols),
		Cells:  slices.Clone(s.Cells),
	}
}

// remapSpan remaps an inclusive span [lo, hi]; hi may be Open. The span
// shrinks when part of it is deleted and vanishes when all of it is.
func remapSpan(lo, hi, index, count int, insert bool) (int, int, bool) {
	if insert {
		if lo >= index {
			lo += count
		}
		if hi != Open && hi >= index {
			hi += count
		}
		return lo, hi, true
	}
	end := index + count
	switch {
	case lo >= end:
		lo -= count
	case lo >= index:
		lo = index
	}
	if hi != Open {
		switch {
		case hi >= end:
			hi -= count
		case hi >= index:
			hi = index - 1
		}
		if hi < lo {
			return 0, 0, false
		}
	}
	return lo, hi, true
}

func remapList(values []int, index, count int, insert bool) []int {
	var out []int
	for _, v := range values {
		if nv, ok := remapIndex(v, index, count, insert); ok {
			out = append(out, nv)
		}
	}
	return out
}

// String formats the selection for humans, e.g. "A1:B2 rows[3] cols[C] cells[D4]".
func (s Selection) String() string {
	var parts []string
	for _, b := range s.Blocks {
		parts = append(parts, b.String())
	}
	if len(s.Rows) > 0 {
		parts = append(parts, fmt.Sprintf("rows%v", s.Rows))
	}
	if len(s.Cols) > 0 {
		names := make([]string, len(s.Cols))
		for i, c := range s.Cols {
			names[i] = ColToName(c)
		}
		parts = append(parts, "cols["+strings.Join(names, " ")+"]")
	}
	if len(s.Cells) > 0 {
		names := make([]string, len(s.Cells))
		for i, p := range s.Cells {
			names[i] = C(p.Row, p.Col, 0).CellName()
		}
		parts = append(parts, "cells["+strings.Join(names, " ")+"]")
	}
	if len(parts) == 0 {
		return "<empty>"
	}
	return strings.Join(parts, " ")
}

// MarshalText encodes the selection as compact JSON, the form used in save files.
func (s Selection) MarshalText() ([]byte, error) {
	type plain Selection
	return json.Marshal(plain(s))
}

// UnmarshalText decodes the form produced by MarshalText.
func (s *Selection) UnmarshalText(b []byte) error {
	type plain Selection
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("parse selection: %w", err)
	}
	*s = Selection(p)
	return nil
}
