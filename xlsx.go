package xlgrid

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetName returns the worksheet name used for table t.
func SheetName(t int) string {
	return "Table " + strconv.Itoa(t)
}

// ExportXLSX evaluates every non-empty cell and writes the values to an
// xlsx workbook with one worksheet per table. Error results are written as
// their "#ERR" text, hyperlinks as clickable links. Row height and column
// width overrides are carried over.
func (g *Grid) ExportXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	g.lock()
	err := g.exportTo(f)
	g.unlock()
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := f.SaveAs(path); err != nil {
		return &IOFailure{Path: path, Op: "write", Err: err}
	}
	return nil
}

func (g *Grid) exportTo(f *excelize.File) error {
	tables := max(g.store.shape.Tables, 1)
	for t := range tables {
		name := SheetName(t)
		if t == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return err
			}
			continue
		}
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	for c := range g.store.each() {
		cell, err := excelize.CoordinatesToCellName(c.Col+1, c.Row+1)
		if err != nil {
			return err
		}
		sheet := SheetName(c.Table)
		r := g.evaluate(c)
		switch v := r.Value.(type) {
		case nil:
			if r.Err != nil {
				err = f.SetCellValue(sheet, cell, r.String())
			}
		case HyperlinkValue:
			if err = f.SetCellValue(sheet, cell, v.String()); err == nil {
				err = f.SetCellHyperLink(sheet, cell, v.URL, "External")
			}
		case string, bool, int, int64, float64, float32:
			err = f.SetCellValue(sheet, cell, v)
		default:
			err = f.SetCellValue(sheet, cell, formatValue(v))
		}
		if err != nil {
			return fmt.Errorf("cell %s: %w", c, err)
		}
	}

	for _, k := range sortedSizeKeys(g.store.rowHeights) {
		if err := f.SetRowHeight(SheetName(k.Table), k.Index+1, pixelsToPoints(g.store.rowHeights[k])); err != nil {
			return err
		}
	}
	for _, k := range sortedSizeKeys(g.store.colWidths) {
		col := ColToName(k.Index)
		if err := f.SetColWidth(SheetName(k.Table), col, col, pixelsToChars(g.store.colWidths[k])); err != nil {
			return err
		}
	}
	return nil
}

// Excel row heights are points, column widths characters of the default font.
func pixelsToPoints(px float64) float64 { return min(px*0.75, 409) }
func pixelsToChars(px float64) float64  { return min(px/7, 255) }

// ImportXLSX pastes the cell texts of one worksheet as sources, top-left at
// topLeft. An empty sheet name selects the first worksheet. Numbers and
// booleans become literals and other text becomes a quoted string, so the
// imported cells evaluate to what the workbook showed. The import is a
// single undo step and is rolled back completely if ctx is cancelled.
func (g *Grid) ImportXLSX(ctx context.Context, path, sheet string, topLeft Coord) (PasteReport, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return PasteReport{}, &IOFailure{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return PasteReport{}, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	for _, row := range rows {
		for j, text := range row {
			row[j] = importSource(text)
		}
	}
	report, err := g.Paste(ctx, topLeft, rows)
	if err != nil {
		return report, fmt.Errorf("import %s: %w", path, err)
	}
	return report, nil
}

// importSource turns a displayed cell text into an expression yielding it.
func importSource(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if _, err := strconv.ParseFloat(text, 64); err == nil && !strings.ContainsAny(strings.ToLower(text), "inx_") {
		return text
	}
	switch strings.ToUpper(text) {
	case "TRUE":
		return "true"
	case "FALSE":
		return "false"
	}
	return strconv.Quote(text)
}
