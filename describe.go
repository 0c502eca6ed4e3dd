package xlgrid

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Describe opens the save file at path without trusting it and returns a
// human-readable tree of its contents. Useful for inspecting documents
// without running any of their code.
func Describe(path string, opts ...Option) (string, error) {
	g := New(opts...)
	if _, err := g.Open(context.Background(), path); err != nil {
		return "", err
	}
	return g.Describe(), nil
}

// Describe returns a human-readable tree of the document: shape, trust
// state, every table with its cells, attributes and size overrides, and the
// macro block. Cell values are not evaluated.
func (g *Grid) Describe() string {
	g.lock()
	defer g.unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", g.id)
	fmt.Fprintf(&b, "Shape: %s\n", g.store.shape)
	fmt.Fprintf(&b, "Trust: %s\n", g.trust)

	byTable := make(map[int][]Coord)
	for _, c := range g.store.sortedCoords() {
		byTable[c.Table] = append(byTable[c.Table], c)
	}
	for t := range g.store.shape.Tables {
		g.describeTable(&b, t, byTable[t])
	}

	if g.store.macros != "" {
		b.WriteString("Macros:\n")
		for _, line := range strings.Split(g.store.macros, "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}

// describeTable writes the cells, attributes and sizes of table t. Tables
// with nothing in them are listed on one line.
func (g *Grid) describeTable(b *strings.Builder, t int, cells []Coord) {
	var attrs []AttrEntry
	for _, e := range g.store.attrs {
		if e.Table == t {
			attrs = append(attrs, e)
		}
	}
	heights := sizesOfTable(g.store.rowHeights, t)
	widths := sizesOfTable(g.store.colWidths, t)

	fmt.Fprintf(b, "Table %d: %d cells\n", t, len(cells))
	if len(cells) > 0 {
		b.WriteString("  Cells:\n")
		for _, c := range cells {
			src, _ := g.store.source(c)
			fmt.Fprintf(b, "    %s %s: %s\n", c.CellName(), c, escapeSource(src))
		}
	}
	if len(attrs) > 0 {
		b.WriteString("  Attributes:\n")
		for _, e := range attrs {
			data, err := json.Marshal(e.Attrs)
			if err != nil {
				data = []byte(fmt.Sprint(e.Attrs))
			}
			fmt.Fprintf(b, "    %s %s\n", e.Selection, data)
		}
	}
	if len(heights) > 0 {
		b.WriteString("  Row heights:\n")
		for _, k := range heights {
			fmt.Fprintf(b, "    %d: %g\n", k.Index+1, g.store.rowHeights[k])
		}
	}
	if len(widths) > 0 {
		b.WriteString("  Column widths:\n")
		for _, k := range widths {
			fmt.Fprintf(b, "    %s: %g\n", ColToName(k.Index), g.store.colWidths[k])
		}
	}
}

func sizesOfTable(m map[sizeKey]float64, t int) []sizeKey {
	var out []sizeKey
	for _, k := range sortedSizeKeys(m) {
		if k.Table == t {
			out = append(out, k)
		}
	}
	return out
}
