package xlgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoord(t *testing.T) {
	tests := []struct {
		in    string
		table int
		want  Coord
	}{
		{"A1", 0, C(0, 0, 0)},
		{"B3", 1, C(2, 1, 1)},
		{"$C$5", 0, C(4, 2, 0)},
		{"aa10", 0, C(9, 26, 0)},
		{"2,1", 1, C(2, 1, 1)},
		{"(2, 1, 0)", 1, C(2, 1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCoord(tt.in, tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCoord_Invalid(t *testing.T) {
	for _, in := range []string{"", "A", "1", "A0", "1,2,3,4", "x,y"} {
		_, err := ParseCoord(in, 0)
		assert.Error(t, err, in)
	}
}

func TestColToName_RoundTrip(t *testing.T) {
	assert.Equal(t, "A", ColToName(0))
	assert.Equal(t, "Z", ColToName(25))
	assert.Equal(t, "AA", ColToName(26))
	assert.Equal(t, "AZ", ColToName(51))
	for col := range 1000 {
		n, err := NameToCol(ColToName(col))
		require.NoError(t, err)
		require.Equal(t, col, n)
	}
}

func TestCoord_String(t *testing.T) {
	c := C(2, 1, 0)
	assert.Equal(t, "(2, 1, 0)", c.String())
	assert.Equal(t, "B3", c.CellName())
}

func TestCoord_Less(t *testing.T) {
	assert.True(t, C(5, 5, 0).Less(C(0, 0, 1)))
	assert.True(t, C(0, 5, 0).Less(C(1, 0, 0)))
	assert.True(t, C(1, 0, 0).Less(C(1, 1, 0)))
	assert.False(t, C(1, 1, 0).Less(C(1, 1, 0)))
}

func TestShape_Contains(t *testing.T) {
	s := Shape{Rows: 3, Cols: 2, Tables: 1}
	assert.True(t, s.Contains(C(2, 1, 0)))
	assert.False(t, s.Contains(C(3, 0, 0)))
	assert.False(t, s.Contains(C(0, 2, 0)))
	assert.False(t, s.Contains(C(0, 0, 1)))
	assert.False(t, s.Contains(C(-1, 0, 0)))
}

func TestShape_WithExtent(t *testing.T) {
	s := Shape{Rows: 3, Cols: 2, Tables: 1}
	assert.Equal(t, Shape{Rows: 3, Cols: 7, Tables: 1}, s.WithExtent(AxisCol, 7))
	assert.Equal(t, 1, s.Extent(AxisTable))
}

func TestParseAxis(t *testing.T) {
	for _, a := range []Axis{AxisRow, AxisCol, AxisTable} {
		got, err := ParseAxis(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	_, err := ParseAxis("diagonal")
	assert.Error(t, err)
}

func TestRemapIndex(t *testing.T) {
	v, ok := remapIndex(5, 1, 2, true)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	v, ok = remapIndex(0, 1, 2, true)
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	_, ok = remapIndex(2, 1, 2, false)
	assert.False(t, ok)

	v, ok = remapIndex(3, 1, 2, false)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}
