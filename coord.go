package xlgrid

import (
	"fmt"
	"strconv"
	"strings"
)

// Axis selects one dimension of the grid.
type Axis int

const (
	AxisRow Axis = iota
	AxisCol
	AxisTable
)

// String returns "row", "col" or "table".
func (a Axis) String() string {
	switch a {
	case AxisRow:
		return "row"
	case AxisCol:
		return "col"
	case AxisTable:
		return "table"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// ParseAxis parses "row", "col"/"column" or "table"/"tab".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "row", "rows":
		return AxisRow, nil
	case "col", "cols", "column", "columns":
		return AxisCol, nil
	case "table", "tables", "tab", "tabs":
		return AxisTable, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// Coord addresses a single cell. Coordinates are values; mutation of the
// grid never changes a Coord, it produces new ones.
type Coord struct {
	Row   int
	Col   int
	Table int
}

// C is shorthand for Coord{row, col, table}.
func C(row, col, table int) Coord {
	return Coord{Row: row, Col: col, Table: table}
}

// String formats the coordinate as "(row, col, table)".
func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.Row, c.Col, c.Table)
}

// CellName returns the A1-style name of the cell within its table, like "B3".
func (c Coord) CellName() string {
	return ColToName(c.Col) + strconv.Itoa(c.Row+1)
}

// Get returns the component of c on the given axis.
func (c Coord) Get(axis Axis) int {
	switch axis {
	case AxisRow:
		return c.Row
	case AxisCol:
		return c.Col
	default:
		return c.Table
	}
}

// With returns a copy of c with the component on axis replaced by v.
func (c Coord) With(axis Axis, v int) Coord {
	switch axis {
	case AxisRow:
		c.Row = v
	case AxisCol:
		c.Col = v
	default:
		c.Table = v
	}
	return c
}

// Less orders coordinates table first, then row, then column.
func (c Coord) Less(o Coord) bool {
	if c.Table != o.Table {
		return c.Table < o.Table
	}
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Col < o.Col
}

// Shape is the extent of the grid: valid coordinates satisfy
// 0 <= Row < Rows, 0 <= Col < Cols and 0 <= Table < Tables.
type Shape struct {
	Rows   int
	Cols   int
	Tables int
}

// String formats the shape as "(rows, cols, tables)".
func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Rows, s.Cols, s.Tables)
}

// Contains reports whether c lies within the shape.
func (s Shape) Contains(c Coord) bool {
	return c.Row >= 0 && c.Row < s.Rows &&
		c.Col >= 0 && c.Col < s.Cols &&
		c.Table >= 0 && c.Table < s.Tables
}

// Extent returns the size of the shape along axis.
func (s Shape) Extent(axis Axis) int {
	switch axis {
	case AxisRow:
		return s.Rows
	case AxisCol:
		return s.Cols
	default:
		return s.Tables
	}
}

// WithExtent returns a copy of s with the size along axis replaced by n.
func (s Shape) WithExtent(axis Axis, n int) Shape {
	switch axis {
	case AxisRow:
		s.Rows = n
	case AxisCol:
		s.Cols = n
	default:
		s.Tables = n
	}
	return s
}

// Valid reports whether no dimension is negative.
func (s Shape) Valid() bool {
	return s.Rows >= 0 && s.Cols >= 0 && s.Tables >= 0
}

// ParseCoord parses "B3", "$B$3", "2,1" or "2,1,0". Forms without a table
// use the given default table.
func ParseCoord(s string, table int) (Coord, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Coord{}, fmt.Errorf("empty cell reference")
	}
	if strings.Contains(s, ",") {
		s = strings.Trim(s, "()")
		parts := strings.Split(s, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return Coord{}, fmt.Errorf("invalid cell reference: %q", s)
		}
		nums := make([]int, 0, 3)
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return Coord{}, fmt.Errorf("invalid cell reference %q: %w", s, err)
			}
			nums = append(nums, n)
		}
		if len(nums) == 2 {
			nums = append(nums, table)
		}
		return C(nums[0], nums[1], nums[2]), nil
	}
	row, col, err := ParseCellName(strings.ReplaceAll(s, "$", ""))
	if err != nil {
		return Coord{}, fmt.Errorf("invalid cell reference %q: %w", s, err)
	}
	return C(row, col, table), nil
}

// ParseCellName parses "A1" into row=0, col=0.
func ParseCellName(name string) (row, col int, err error) {
	if len(name) == 0 {
		return 0, 0, fmt.Errorf("empty cell name")
	}

	i := 0
	for i < len(name) && isAlpha(name[i]) {
		i++
	}
	if i == 0 || i == len(name) {
		return 0, 0, fmt.Errorf("invalid cell name: %q", name)
	}

	col, err = NameToCol(name[:i])
	if err != nil {
		return 0, 0, err
	}

	rowNum := 0
	for _, ch := range name[i:] {
		if ch < '0' || ch > '9' {
			return 0, 0, fmt.Errorf("invalid row in cell name: %q", name)
		}
		rowNum = rowNum*10 + int(ch-'0')
	}
	if rowNum < 1 {
		return 0, 0, fmt.Errorf("invalid row number in cell name: %q", name)
	}
	return rowNum - 1, col, nil
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// ColToName converts a 0-based column index to a column name.
// 0→"A", 25→"Z", 26→"AA", 702→"AAA"
func ColToName(col int) string {
	result := ""
	col++
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}

// NameToCol converts a column name to a 0-based column index.
// "A"→0, "Z"→25, "AA"→26
func NameToCol(name string) (int, error) {
	name = strings.ToUpper(name)
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	col := 0
	for _, ch := range name {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("invalid column name: %q", name)
		}
		col = col*26 + int(ch-'A') + 1
	}
	return col - 1, nil
}

// remapIndex shifts v for an insertion or deletion of count items at index.
// The second result is false when v falls inside a deleted range.
func remapIndex(v, index, count int, insert bool) (int, bool) {
	if v < index {
		return v, true
	}
	if insert {
		return v + count, true
	}
	if v < index+count {
		return 0, false
	}
	return v - count, true
}
