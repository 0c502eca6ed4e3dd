package xlgrid

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_ListenerReceivesChanges(t *testing.T) {
	rec := &recorder{}
	g := newTestGrid(t, WithListener(rec))

	mustSet(t, g, C(0, 0, 0), "1")
	require.NoError(t, g.Insert(0, 1, AxisRow))
	require.NoError(t, g.AddAttributes(SelectAll(), 0, Attributes{"a": 1}))
	require.NoError(t, g.SetRowHeight(0, 0, 10))
	require.NoError(t, g.SetMacros("x = 1"))
	g.EnterSafeMode()

	kinds := rec.kinds()
	for _, want := range []ChangeKind{ChangeCell, ChangeShape, ChangeAttributes, ChangeSize, ChangeMacros, ChangeSafeMode, ChangeResultCache} {
		assert.Contains(t, kinds, want)
	}
	assert.Equal(t, ChangeCell, rec.changes[0].Kind)
	assert.Equal(t, C(0, 0, 0), rec.changes[0].Coord)

	last := rec.changes[len(rec.changes)-1]
	assert.Equal(t, ChangeSafeMode, last.Kind)
	assert.True(t, last.SafeMode)
}

func TestGrid_ListenerMayCallBack(t *testing.T) {
	var seen []int
	g := newTestGrid(t, WithListener(ListenerFunc(func(g *Grid, ch Change) {
		if ch.Kind == ChangeCell {
			seen = append(seen, g.Len())
		}
	})))
	mustSet(t, g, C(0, 0, 0), "1")
	mustSet(t, g, C(0, 1, 0), "2")
	assert.Equal(t, []int{1, 2}, seen)
}

func TestGrid_ListenerSeesLoadAndSave(t *testing.T) {
	rec := &recorder{}
	g := newTestGrid(t, WithListener(rec))
	mustSet(t, g, C(0, 0, 0), "1")

	var buf bytes.Buffer
	require.NoError(t, g.Save(context.Background(), &buf))
	_, err := g.Load(context.Background(), &buf)
	require.NoError(t, err)

	var details []string
	for _, ch := range rec.changes {
		if ch.Kind == ChangeDocument {
			details = append(details, ch.Detail)
		}
	}
	assert.Equal(t, []string{"saved", "cleared", "cleared", "loaded"}, details)
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "Cell", ChangeCell.String())
	assert.Equal(t, "SafeMode", ChangeSafeMode.String())
	assert.Equal(t, "Unknown", ChangeKind(99).String())
}
