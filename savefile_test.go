package xlgrid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveString(t *testing.T, g *Grid) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, g.Save(context.Background(), &buf))
	return buf.String()
}

func TestGrid_SaveFormat(t *testing.T) {
	g := newTestGrid(t, WithShape(Shape{Rows: 10, Cols: 10, Tables: 2}))
	mustSet(t, g, C(0, 0, 0), "1")
	mustSet(t, g, C(3, 4, 1), `"hello"`)
	require.NoError(t, g.AddAttributes(SelectCells(Point{Row: 0, Col: 0}), 0, Attributes{"bold": true}))
	require.NoError(t, g.SetRowHeight(2, 0, 30))
	require.NoError(t, g.SetColWidth(1, 1, 120.5))
	require.NoError(t, g.SetMacros("k = 1"))

	want := strings.Join([]string{
		"[Pyspread save file version]",
		"0.1",
		"[shape]",
		"10",
		"10",
		"2",
		"[grid]",
		"0\t0\t0\t1",
		"3\t4\t1\t\"hello\"",
		"[attributes]",
		`{"cells":[{"row":0,"col":0}]}` + "\t0\t" + `{"bold":true}`,
		"[row_heights]",
		"2\t0\t30",
		"[col_widths]",
		"1\t1\t120.5",
		"[macros]",
		"k = 1",
	}, "\n") + "\n"
	assert.Equal(t, want, saveString(t, g))
	assert.False(t, g.Modified())
}

func TestGrid_SaveLoadRoundTrip(t *testing.T) {
	g := newTestGrid(t, WithShape(Shape{Rows: 10, Cols: 10, Tables: 2}))
	mustSet(t, g, C(0, 0, 0), "1")
	mustSet(t, g, C(3, 4, 1), `"hello"`)
	mustSet(t, g, C(5, 5, 0), "\"multi\\\\line\"\n+ \"tab\there\"")
	require.NoError(t, g.AddAttributes(SelectAll(), 1, Attributes{"bg": "red"}))
	require.NoError(t, g.SetRowHeight(9, 1, 44))
	require.NoError(t, g.SetMacros("a = 1\n\n# note\nb = a + 1\n"))
	saved := saveString(t, g)

	loaded := newTestGrid(t)
	report, err := loaded.Load(context.Background(), strings.NewReader(saved))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Cells)
	assert.Equal(t, 1, report.Attributes)
	assert.Equal(t, 1, report.RowHeights)
	assert.False(t, report.Aborted)

	assert.Equal(t, Shape{Rows: 10, Cols: 10, Tables: 2}, loaded.Shape())
	assert.Equal(t, cellMap(g), cellMap(loaded))
	assert.Equal(t, g.AttributeEntries(), loaded.AttributeEntries())
	assert.Equal(t, 44.0, loaded.RowHeight(9, 1))
	assert.Equal(t, g.Macros(), loaded.Macros())
	assert.True(t, loaded.SafeMode())
	assert.False(t, loaded.CanUndo())
	assert.False(t, loaded.Modified())

	assert.Equal(t, saved, saveString(t, loaded))
}

func TestGrid_LoadSingleLineShape(t *testing.T) {
	g := newTestGrid(t)
	in := "[Pyspread save file version]\n0.1\n[shape]\n4\t5\t6\n[grid]\n3\t4\t5\tX\n"
	_, err := g.Load(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, Shape{Rows: 4, Cols: 5, Tables: 6}, g.Shape())
	assert.Equal(t, map[Coord]string{C(3, 4, 5): "X"}, cellMap(g))
}

func TestGrid_LoadBadHeaderLeavesDocument(t *testing.T) {
	for name, in := range map[string]string{
		"empty":      "",
		"bad header": "[something else]\n0.1\n",
		"no version": "[Pyspread save file version]\n",
	} {
		t.Run(name, func(t *testing.T) {
			g := newTestGrid(t)
			mustSet(t, g, C(0, 0, 0), "1")
			id := g.ID()
			_, err := g.Load(context.Background(), strings.NewReader(in))
			require.Error(t, err)
			assert.Equal(t, map[Coord]string{C(0, 0, 0): "1"}, cellMap(g))
			assert.Equal(t, id, g.ID())
			assert.False(t, g.SafeMode())
		})
	}
}

func TestGrid_LoadUnsupportedVersion(t *testing.T) {
	g := newTestGrid(t)
	_, err := g.Load(context.Background(), strings.NewReader("[Pyspread save file version]\n2.0\n[shape]\n1\n1\n1\n"))
	var ve *UnsupportedVersionError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "2.0", ve.Version)
}

func TestGrid_LoadUnknownSection(t *testing.T) {
	g := newTestGrid(t)
	in := "[Pyspread save file version]\n0.1\n[shape]\n5\n5\n1\n[grid]\n0\t0\t0\t1\n[charts]\nwhatever\n"
	report, err := g.Load(context.Background(), strings.NewReader(in))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 9, fe.Line)
	assert.Equal(t, 1, report.Cells)
	assert.Equal(t, map[Coord]string{C(0, 0, 0): "1"}, cellMap(g))
}

func TestGrid_LoadMalformedLines(t *testing.T) {
	tests := map[string]string{
		"grid fields":    "[grid]\n0\t0\n",
		"grid number":    "[grid]\na\t0\t0\tx\n",
		"grid bounds":    "[grid]\n9\t0\t0\tx\n",
		"attribute json": "[attributes]\n{\"rows\":[0]}\t0\t{bad\n",
		"attribute tab":  "[attributes]\n{}\t7\t{}\n",
		"height size":    "[row_heights]\n0\t0\t-3\n",
		"width fields":   "[col_widths]\n0\t0\n",
		"no section":     "0\t0\t0\tx\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			g := newTestGrid(t)
			in := "[Pyspread save file version]\n0.1\n[shape]\n5\n5\n1\n" + body
			if strings.HasPrefix(body, "0\t") {
				in = "[Pyspread save file version]\n0.1\n" + body
			}
			_, err := g.Load(context.Background(), strings.NewReader(in))
			var fe *FormatError
			require.ErrorAs(t, err, &fe)
		})
	}
}

func TestGrid_MacroSectionKeepsBracketLines(t *testing.T) {
	g := newTestGrid(t)
	macros := "xs = [1, 2]\n[not a header]\nys = xs"
	in := "[Pyspread save file version]\n0.1\n[shape]\n5\n5\n1\n[macros]\n" + macros + "\n"
	report, err := g.Load(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 3, report.MacroLines)
	assert.Equal(t, macros, g.Macros())
}

func TestGrid_LoadAbortKeepsPrefix(t *testing.T) {
	var b strings.Builder
	b.WriteString("[Pyspread save file version]\n0.1\n[shape]\n100\n1\n1\n[grid]\n")
	for row := range 100 {
		fmt.Fprintf(&b, "%d\t0\t0\t%d\n", row, row)
	}

	g := newTestGrid(t, WithAbortInterval(10))
	// Err is checked before lines 0, 10, 20 and 30; the fourth check cancels.
	ctx := newCountdownCtx(3)
	report, err := g.Load(ctx, strings.NewReader(b.String()))
	require.ErrorIs(t, err, ErrAborted)
	assert.True(t, report.Aborted)
	assert.Equal(t, 30, report.Lines)
	// Shape header and three shape lines plus the grid header precede the cells.
	assert.Equal(t, 25, report.Cells)
	assert.Equal(t, 25, g.Len())
	assert.Equal(t, 100, g.Shape().Rows)
	assert.True(t, g.SafeMode())
}

func TestGrid_SaveAbort(t *testing.T) {
	g := newTestGrid(t, WithAbortInterval(1))
	mustSet(t, g, C(0, 0, 0), "1")
	var buf bytes.Buffer
	err := g.Save(newCountdownCtx(2), &buf)
	require.ErrorIs(t, err, ErrAborted)
	assert.True(t, g.Modified())
}

func TestGrid_LoaderDirect(t *testing.T) {
	g := newTestGrid(t)
	l := g.NewLoader()
	require.NoError(t, l.ParseToShape("3\t3\t1"))
	require.NoError(t, l.ParseToGrid("1\t1\t0\t40 + 2"))
	require.NoError(t, l.ParseToAttribute(`{"rows":[1]}` + "\t0\t" + `{"k":"v"}`))
	require.NoError(t, l.ParseToHeight("1\t0\t25"))
	require.NoError(t, l.ParseToWidth("2\t0\t60"))
	require.Error(t, l.ParseToGrid("5\t5\t0\tx"))

	assert.Equal(t, Shape{Rows: 3, Cols: 3, Tables: 1}, g.Shape())
	assert.Equal(t, 42, mustValue(t, g, C(1, 1, 0)))
	attrs, err := g.Attributes(C(1, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, "v", attrs["k"])
	assert.Equal(t, 25.0, g.RowHeight(1, 0))
	assert.Equal(t, 60.0, g.ColWidth(2, 0))
	assert.Equal(t, LoadReport{Cells: 1, Attributes: 1, RowHeights: 1, ColWidths: 1}, l.Report())
}

func TestGrid_LineGenerators(t *testing.T) {
	g := newTestGrid(t)
	mustSet(t, g, C(1, 0, 0), "b")
	mustSet(t, g, C(0, 0, 0), "a")
	require.NoError(t, g.SetMacros("x = 1\ny = 2"))

	assert.Equal(t, []string{"0\t0\t0\ta", "1\t0\t0\tb"}, slices.Collect(g.GridLines()))
	assert.Equal(t, []string{"x = 1", "y = 2"}, slices.Collect(g.MacroLines()))
	assert.Empty(t, slices.Collect(g.AttributeLines()))
	assert.Empty(t, slices.Collect(g.RowHeightLines()))
	assert.Empty(t, slices.Collect(g.ColWidthLines()))

	// Each range starts over.
	first := slices.Collect(g.GridLines())
	assert.Equal(t, first, slices.Collect(g.GridLines()))
}

func TestEscapeSource(t *testing.T) {
	for _, s := range []string{"plain", "a\nb", `back\slash`, "cr\r\nlf", `\n literal`, "trailing\\"} {
		esc := escapeSource(s)
		assert.NotContains(t, esc, "\n")
		assert.Equal(t, s, unescapeSource(esc), s)
	}
	assert.Equal(t, "a\tb", unescapeSource(`a\tb`))
}

func TestGrid_SaveFileCompression(t *testing.T) {
	dir := t.TempDir()
	g := newTestGrid(t)
	mustSet(t, g, C(0, 0, 0), "1")

	compressed := filepath.Join(dir, "doc.xlg")
	plain := filepath.Join(dir, "doc.xlgu")
	require.NoError(t, g.SaveFile(context.Background(), compressed))
	require.NoError(t, g.SaveFile(context.Background(), plain))

	data, err := os.ReadFile(compressed)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, zstdMagic))

	data, err = os.ReadFile(plain)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("[Pyspread save file version]\n")))

	for _, path := range []string{compressed, plain} {
		loaded := newTestGrid(t)
		_, err := loaded.Open(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, cellMap(g), cellMap(loaded))
	}
}

func TestGrid_SaveFileAbortRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.xlg")
	g := newTestGrid(t, WithAbortInterval(1))
	mustSet(t, g, C(0, 0, 0), "1")
	err := g.SaveFile(newCountdownCtx(2), path)
	require.ErrorIs(t, err, ErrAborted)
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestGrid_OpenMissingFile(t *testing.T) {
	g := newTestGrid(t)
	path := filepath.Join(t.TempDir(), "missing.xlg")
	_, err := g.Open(context.Background(), path)
	var ioErr *IOFailure
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, path, ioErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
