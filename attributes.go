package xlgrid

import (
	"maps"
	"slices"
)

// Attributes is a dictionary of cell formatting keys, e.g. "bgcolor" or
// "textfont". The engine stores and merges them but does not interpret them.
type Attributes map[string]any

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// AttrEntry applies Attrs to every cell of Table that Selection contains.
// Entries form an ordered list; later entries override earlier ones.
type AttrEntry struct {
	Selection Selection
	Table     int
	Attrs     Attributes
}

func (e AttrEntry) clone() AttrEntry {
	return AttrEntry{Selection: e.Selection.clone(), Table: e.Table, Attrs: e.Attrs.Clone()}
}

func cloneAttrEntries(entries []AttrEntry) []AttrEntry {
	out := make([]AttrEntry, len(entries))
	for i, e := range entries {
		out[i] = e.clone()
	}
	return out
}

// mergedAttributes resolves the attributes of c. Keys are taken from the most
// recent matching entry that defines them, falling back to defaults.
func mergedAttributes(entries []AttrEntry, defaults Attributes, c Coord) Attributes {
	out := defaults.Clone()
	if out == nil {
		out = Attributes{}
	}
	for _, e := range entries {
		if e.Table != c.Table || !e.Selection.Contains(c.Row, c.Col) {
			continue
		}
		maps.Copy(out, e.Attrs)
	}
	return out
}

// remapAttrEntries applies a structural mutation to the attribute list.
// Entries whose selection or table disappears are dropped.
func remapAttrEntries(entries []AttrEntry, axis Axis, index, count int, insert bool) []AttrEntry {
	out := make([]AttrEntry, 0, len(entries))
	for _, e := range entries {
		if axis == AxisTable {
			t, ok := remapIndex(e.Table, index, count, insert)
			if !ok {
				continue
			}
			e = e.clone()
			e.Table = t
			out = append(out, e)
			continue
		}
		sel := e.Selection.remap(axis, index, count, insert)
		if sel.IsEmpty() {
			continue
		}
		out = append(out, AttrEntry{Selection: sel, Table: e.Table, Attrs: e.Attrs.Clone()})
	}
	return slices.Clip(out)
}
