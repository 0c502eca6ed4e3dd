package xlgrid

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
)

// SaveFileVersion is the only save file version this package reads and writes.
const SaveFileVersion = "0.1"

// Save file section headers.
const (
	headerVersion     = "[Pyspread save file version]"
	sectionShape      = "[shape]"
	sectionGrid       = "[grid]"
	sectionAttributes = "[attributes]"
	sectionRowHeights = "[row_heights]"
	sectionColWidths  = "[col_widths]"
	sectionMacros     = "[macros]"
)

// LoadReport counts what a load applied. After an aborted load it describes
// the committed prefix.
type LoadReport struct {
	Lines      int
	Cells      int
	Attributes int
	RowHeights int
	ColWidths  int
	MacroLines int
	Aborted    bool
}

// Loader applies save file lines to a grid one at a time. It is created by
// Grid.NewLoader; Load drives one internally.
type Loader struct {
	g       *Grid
	section string
	shape   []int
	macros  []string
	report  LoadReport
}

// NewLoader returns a loader that applies lines to g.
func (g *Grid) NewLoader() *Loader {
	return &Loader{g: g}
}

// Report returns the counts so far.
func (l *Loader) Report() LoadReport {
	return l.report
}

// ParseToShape consumes one line of the [shape] section. The shape is either
// three lines (rows, cols, tables) or one tab-separated line. A complete
// shape clears the grid.
func (l *Loader) ParseToShape(line string) error {
	l.g.lock()
	defer l.g.unlock()
	return l.parseToShape(line)
}

func (l *Loader) parseToShape(line string) error {
	for _, field := range strings.Split(line, "\t") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 0 {
			return fmt.Errorf("invalid shape value %q", field)
		}
		l.shape = append(l.shape, n)
	}
	switch {
	case len(l.shape) < 3:
		return nil
	case len(l.shape) > 3:
		l.shape = nil
		return fmt.Errorf("shape has more than 3 values")
	}
	shape := Shape{Rows: l.shape[0], Cols: l.shape[1], Tables: l.shape[2]}
	l.shape = nil
	l.g.clear(shape)
	return nil
}

// ParseToGrid consumes one "row\tcol\ttable\tsource" line.
func (l *Loader) ParseToGrid(line string) error {
	l.g.lock()
	defer l.g.unlock()
	return l.parseToGrid(line)
}

func (l *Loader) parseToGrid(line string) error {
	fields := strings.SplitN(line, "\t", 4)
	if len(fields) != 4 {
		return fmt.Errorf("expected row, col, table and source, got %d fields", len(fields))
	}
	nums, err := atoiAll(fields[:3])
	if err != nil {
		return err
	}
	c := C(nums[0], nums[1], nums[2])
	if err := l.g.checkBounds(c); err != nil {
		return err
	}
	l.g.store.put(c, unescapeSource(fields[3]))
	l.g.cache.invalidate(c)
	l.report.Cells++
	return nil
}

// ParseToAttribute consumes one "selection\ttable\tattributes" line, both
// selection and attributes in JSON.
func (l *Loader) ParseToAttribute(line string) error {
	l.g.lock()
	defer l.g.unlock()
	return l.parseToAttribute(line)
}

func (l *Loader) parseToAttribute(line string) error {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) != 3 {
		return fmt.Errorf("expected selection, table and attributes, got %d fields", len(fields))
	}
	var sel Selection
	if err := sel.UnmarshalText([]byte(fields[0])); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	table, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("table: %w", err)
	}
	if table < 0 || table >= l.g.store.shape.Tables {
		return &BoundsError{Coord: C(0, 0, table), Shape: l.g.store.shape}
	}
	var attrs Attributes
	if err := json.Unmarshal([]byte(fields[2]), &attrs); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	l.g.store.attrs = append(l.g.store.attrs, AttrEntry{Selection: sel, Table: table, Attrs: attrs})
	l.report.Attributes++
	return nil
}

// ParseToHeight consumes one "row\ttable\theight" line.
func (l *Loader) ParseToHeight(line string) error {
	l.g.lock()
	defer l.g.unlock()
	return l.parseToSize(AxisRow, line)
}

// ParseToWidth consumes one "col\ttable\twidth" line.
func (l *Loader) ParseToWidth(line string) error {
	l.g.lock()
	defer l.g.unlock()
	return l.parseToSize(AxisCol, line)
}

func (l *Loader) parseToSize(axis Axis, line string) error {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return fmt.Errorf("expected index, table and size, got %d fields", len(fields))
	}
	nums, err := atoiAll(fields[:2])
	if err != nil {
		return err
	}
	size, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || size <= 0 {
		return fmt.Errorf("invalid size %q", fields[2])
	}
	if err := l.g.checkBounds(C(0, 0, nums[1]).With(axis, nums[0])); err != nil {
		return err
	}
	l.g.store.setSize(axis, sizeKey{Index: nums[0], Table: nums[1]}, size)
	if axis == AxisRow {
		l.report.RowHeights++
	} else {
		l.report.ColWidths++
	}
	return nil
}

// ParseToMacro consumes one raw line of the macro block. The block is
// stored when the load finishes.
func (l *Loader) ParseToMacro(line string) error {
	l.macros = append(l.macros, line)
	l.report.MacroLines++
	return nil
}

// feed dispatches one line of the body (after the version header) by the
// current section. Must be called with g.mu held.
func (l *Loader) feed(line string) error {
	// Inside the macro block only known headers end the section.
	header := isSectionHeader(line) ||
		l.section != sectionMacros && strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")
	if header {
		if !isSectionHeader(line) {
			return fmt.Errorf("%w: unknown section %s", ErrUnsupportedFormat, line)
		}
		if l.section == sectionShape && len(l.shape) > 0 {
			return fmt.Errorf("incomplete shape")
		}
		l.section = line
		return nil
	}
	if line == "" && l.section != sectionMacros {
		return nil
	}
	switch l.section {
	case sectionShape:
		return l.parseToShape(line)
	case sectionGrid:
		return l.parseToGrid(line)
	case sectionAttributes:
		return l.parseToAttribute(line)
	case sectionRowHeights:
		return l.parseToSize(AxisRow, line)
	case sectionColWidths:
		return l.parseToSize(AxisCol, line)
	case sectionMacros:
		return l.ParseToMacro(line)
	}
	return fmt.Errorf("content outside any section")
}

func isSectionHeader(line string) bool {
	switch line {
	case sectionShape, sectionGrid, sectionAttributes, sectionRowHeights, sectionColWidths, sectionMacros:
		return true
	}
	return false
}

// finish stores the collected macro block.
func (l *Loader) finish() {
	if l.macros == nil {
		return
	}
	l.g.store.macros = strings.Join(l.macros, "\n")
}

// Load replaces the document with the save file read from r. The loaded
// document is untrusted: the grid enters safe mode and no macro or cell
// code runs until LeaveSafeMode or Approve.
//
// A bad header or version leaves the current document untouched. A
// malformed line later on fails the load with a *FormatError naming the
// section, and the grid keeps what was loaded so far. If ctx is cancelled
// the prefix read so far is kept and ErrAborted is returned with the report.
func (g *Grid) Load(ctx context.Context, r io.Reader) (LoadReport, error) {
	ctx, span := startSpan(ctx, "Load", g.ID())
	defer span.End()

	g.lock()
	defer g.unlock()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	next := func() (string, bool) {
		for sc.Scan() {
			lineNo++
			line := strings.TrimSuffix(sc.Text(), "\r")
			if line != "" {
				return line, true
			}
		}
		return "", false
	}

	header, ok := next()
	if !ok || header != headerVersion {
		if err := sc.Err(); err != nil {
			return LoadReport{}, &IOFailure{Op: "read", Err: err}
		}
		return LoadReport{}, &FormatError{Line: lineNo, Err: ErrUnsupportedFormat}
	}
	version, _ := next()
	if version != SaveFileVersion {
		return LoadReport{}, &UnsupportedVersionError{Version: version}
	}

	undo := g.undo.Suspend()
	defer undo.Close()
	g.clear(g.store.shape)
	g.enterSafeMode()

	l := g.NewLoader()
	interval := g.opts.abortInterval
	var loadErr error
	for sc.Scan() {
		if l.report.Lines%interval == 0 && ctx.Err() != nil {
			l.report.Aborted = true
			loadErr = ErrAborted
			break
		}
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if err := l.feed(line); err != nil {
			loadErr = &FormatError{Section: l.section, Line: lineNo, Err: err}
			break
		}
		l.report.Lines++
	}
	if loadErr == nil {
		if err := sc.Err(); err != nil {
			loadErr = &IOFailure{Op: "read", Err: err}
		}
	}
	l.finish()

	g.cache.clearAll()
	g.undo.Reset()
	g.modified = false
	report := l.report
	g.notify(Change{Kind: ChangeDocument, Shape: g.store.shape, Detail: "loaded"})

	switch {
	case errors.Is(loadErr, ErrAborted):
		g.logger.Warn("load aborted", "lines", report.Lines, "cells", report.Cells)
	case loadErr != nil:
		span.RecordError(loadErr)
		g.logger.Warn("load failed", "error", loadErr, "lines", report.Lines)
	default:
		g.logger.Info("document loaded", "shape", g.store.shape.String(), "cells", report.Cells)
	}
	return report, loadErr
}

// Save writes the document to w in save file format. If ctx is cancelled the
// write stops and ErrAborted is returned.
func (g *Grid) Save(ctx context.Context, w io.Writer) error {
	ctx, span := startSpan(ctx, "Save", g.ID())
	defer span.End()

	g.lock()
	defer g.unlock()

	bw := bufio.NewWriter(w)
	interval := g.opts.abortInterval
	n := 0
	write := func(line string) error {
		n++
		if n%interval == 0 && ctx.Err() != nil {
			return ErrAborted
		}
		if _, err := bw.WriteString(line); err != nil {
			return &IOFailure{Op: "write", Err: err}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return &IOFailure{Op: "write", Err: err}
		}
		return nil
	}
	section := func(header string, lines iter.Seq[string]) error {
		if err := write(header); err != nil {
			return err
		}
		for line := range lines {
			if err := write(line); err != nil {
				return err
			}
		}
		return nil
	}

	shape := g.store.shape
	err := section(headerVersion, func(yield func(string) bool) { yield(SaveFileVersion) })
	if err == nil {
		err = section(sectionShape, func(yield func(string) bool) {
			_ = yield(strconv.Itoa(shape.Rows)) && yield(strconv.Itoa(shape.Cols)) && yield(strconv.Itoa(shape.Tables))
		})
	}
	for _, s := range []struct {
		header string
		lines  iter.Seq[string]
	}{
		{sectionGrid, g.gridLines()},
		{sectionAttributes, g.attributeLines()},
		{sectionRowHeights, g.sizeLines(AxisRow)},
		{sectionColWidths, g.sizeLines(AxisCol)},
		{sectionMacros, g.macroLines()},
	} {
		if err != nil {
			break
		}
		err = section(s.header, s.lines)
	}
	if err == nil {
		if ferr := bw.Flush(); ferr != nil {
			err = &IOFailure{Op: "write", Err: ferr}
		}
	}
	if err != nil {
		span.RecordError(err)
		g.logger.Warn("save failed", "error", err)
		return err
	}
	g.modified = false
	g.notify(Change{Kind: ChangeDocument, Shape: shape, Detail: "saved"})
	return nil
}

// GridLines yields one save line per non-empty cell.
func (g *Grid) GridLines() iter.Seq[string] { return g.snapshotLines(g.gridLines) }

// AttributeLines yields one save line per attribute entry, oldest first.
func (g *Grid) AttributeLines() iter.Seq[string] { return g.snapshotLines(g.attributeLines) }

// RowHeightLines yields one save line per row height override.
func (g *Grid) RowHeightLines() iter.Seq[string] {
	return g.snapshotLines(func() iter.Seq[string] { return g.sizeLines(AxisRow) })
}

// ColWidthLines yields one save line per column width override.
func (g *Grid) ColWidthLines() iter.Seq[string] {
	return g.snapshotLines(func() iter.Seq[string] { return g.sizeLines(AxisCol) })
}

// MacroLines yields the lines of the macro block.
func (g *Grid) MacroLines() iter.Seq[string] { return g.snapshotLines(g.macroLines) }

// snapshotLines collects the lines of gen under the lock each time the
// sequence starts, then yields them unlocked. Every range over the result
// starts from scratch.
func (g *Grid) snapshotLines(gen func() iter.Seq[string]) iter.Seq[string] {
	return func(yield func(string) bool) {
		var lines []string
		g.lock()
		for line := range gen() {
			lines = append(lines, line)
		}
		g.unlock()
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

func (g *Grid) gridLines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for c, src := range g.store.each() {
			line := fmt.Sprintf("%d\t%d\t%d\t%s", c.Row, c.Col, c.Table, escapeSource(src))
			if !yield(line) {
				return
			}
		}
	}
}

func (g *Grid) attributeLines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, e := range g.store.attrs {
			sel, err := e.Selection.MarshalText()
			if err != nil {
				continue
			}
			attrs, err := json.Marshal(e.Attrs)
			if err != nil {
				g.logger.Warn("attribute entry not saved", "error", err)
				continue
			}
			if !yield(fmt.Sprintf("%s\t%d\t%s", sel, e.Table, attrs)) {
				return
			}
		}
	}
}

func (g *Grid) sizeLines(axis Axis) iter.Seq[string] {
	return func(yield func(string) bool) {
		m := g.store.sizes(axis)
		for _, k := range sortedSizeKeys(m) {
			if !yield(fmt.Sprintf("%d\t%d\t%s", k.Index, k.Table, strconv.FormatFloat(m[k], 'g', -1, 64))) {
				return
			}
		}
	}
}

func (g *Grid) macroLines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if g.store.macros == "" {
			return
		}
		for _, line := range strings.Split(g.store.macros, "\n") {
			if !yield(line) {
				return
			}
		}
	}
}

var sourceEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func escapeSource(s string) string {
	return sourceEscaper.Replace(s)
}

func unescapeSource(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func atoiAll(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out[i] = n
	}
	return out, nil
}
