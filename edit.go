package xlgrid

import (
	"context"
	"slices"
	"strings"
)

// PasteReport describes what a paste wrote.
type PasteReport struct {
	Cells         int  // cells written, including cleared ones
	RowsTruncated bool // rows below the grid were skipped
	ColsTruncated bool // cells right of the grid were skipped
}

// Paste writes a block of sources with its top-left corner at topLeft.
// Cells that do not fit are skipped one by one; the fitting part of a row is
// still written. The whole paste is one undo step. If ctx is cancelled the
// paste is rolled back completely and ErrAborted is returned.
func (g *Grid) Paste(ctx context.Context, topLeft Coord, rows [][]string) (PasteReport, error) {
	g.lock()
	defer g.unlock()
	var report PasteReport
	if err := g.checkBounds(topLeft); err != nil {
		return report, err
	}

	var ops []Operation
	rollback := func() {
		for i := len(ops) - 1; i >= 0; i-- {
			ops[i].Rollback()
		}
	}
	interval := g.opts.abortInterval
	for i, line := range rows {
		if i%interval == 0 && ctx.Err() != nil {
			rollback()
			g.logger.Warn("paste aborted", "rows", i)
			return PasteReport{}, ErrAborted
		}
		row := topLeft.Row + i
		if row >= g.store.shape.Rows {
			report.RowsTruncated = true
			break
		}
		for j, src := range line {
			col := topLeft.Col + j
			if col >= g.store.shape.Cols {
				report.ColsTruncated = true
				break
			}
			if op, changed := g.setSource(C(row, col, topLeft.Table), src); changed {
				ops = append(ops, op)
			}
			report.Cells++
		}
	}
	if len(ops) > 0 {
		g.undo.Push(Group("paste", ops...))
	}
	if report.RowsTruncated || report.ColsTruncated {
		g.logger.Info("paste truncated", "cells", report.Cells, "rows_truncated", report.RowsTruncated, "cols_truncated", report.ColsTruncated)
	}
	return report, nil
}

// DeleteSelection removes every non-empty cell of table inside sel as one
// undo step. It returns the number of cells removed.
func (g *Grid) DeleteSelection(sel Selection, table int) (int, error) {
	g.lock()
	defer g.unlock()
	if table < 0 || table >= g.store.shape.Tables {
		return 0, &BoundsError{Coord: C(0, 0, table), Shape: g.store.shape}
	}
	var ops []Operation
	for _, c := range g.store.sortedCoords() {
		if c.Table != table || !sel.Contains(c.Row, c.Col) {
			continue
		}
		if op, changed := g.setSource(c, ""); changed {
			ops = append(ops, op)
		}
	}
	if len(ops) > 0 {
		g.undo.Push(Group("delete selection", ops...))
	}
	return len(ops), nil
}

// FindOptions controls FindNext.
type FindOptions struct {
	Backward  bool
	MatchCase bool
	// Results searches evaluated results instead of sources.
	Results bool
}

// FindNext returns the first non-empty cell after start (before it when
// searching backward) whose source or result contains text. The search runs
// in table, row, column order and wraps around once.
func (g *Grid) FindNext(start Coord, text string, opts FindOptions) (Coord, bool) {
	g.lock()
	defer g.unlock()
	if text == "" {
		return Coord{}, false
	}
	coords := g.store.sortedCoords()
	if opts.Backward {
		slices.Reverse(coords)
	}
	n := len(coords)
	first := n
	for i, c := range coords {
		if (!opts.Backward && start.Less(c)) || (opts.Backward && c.Less(start)) {
			first = i
			break
		}
	}
	needle := text
	if !opts.MatchCase {
		needle = strings.ToLower(needle)
	}
	for k := range n {
		c := coords[(first+k)%n]
		var hay string
		if opts.Results {
			hay = g.evaluate(c).String()
		} else {
			hay, _ = g.store.source(c)
		}
		if !opts.MatchCase {
			hay = strings.ToLower(hay)
		}
		if strings.Contains(hay, needle) {
			return c, true
		}
	}
	return Coord{}, false
}

// Replace replaces every occurrence of find in the source of c with repl.
// It reports whether the source changed.
func (g *Grid) Replace(c Coord, find, repl string) (bool, error) {
	g.lock()
	defer g.unlock()
	if err := g.checkBounds(c); err != nil {
		return false, err
	}
	src, ok := g.store.source(c)
	if !ok || find == "" {
		return false, nil
	}
	op, changed := g.setSource(c, strings.ReplaceAll(src, find, repl))
	if changed {
		g.undo.Push(op)
	}
	return changed, nil
}
