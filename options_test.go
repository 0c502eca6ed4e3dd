package xlgrid

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upperEvaluator evaluates every expression to its upper-cased text.
type upperEvaluator struct {
	resets int
}

func (e *upperEvaluator) Evaluate(expression string, _ map[string]any) (any, error) {
	return strings.ToUpper(expression), nil
}

func (e *upperEvaluator) Check(string, map[string]any) error { return nil }

func (e *upperEvaluator) Reset() { e.resets++ }

func TestWithExpressionEvaluator(t *testing.T) {
	ev := &upperEvaluator{}
	g := newTestGrid(t, WithExpressionEvaluator(ev))
	mustSet(t, g, C(0, 0, 0), "shout")
	assert.Equal(t, "SHOUT", mustValue(t, g, C(0, 0, 0)))

	g.EnterSafeMode()
	_, err := g.Value(C(0, 0, 0))
	var tbe *TrustBlockedError
	assert.ErrorAs(t, err, &tbe)

	require.NoError(t, g.LeaveSafeMode())
	assert.Positive(t, ev.resets)
}

func TestWithDefaultAttributes(t *testing.T) {
	g := newTestGrid(t, WithDefaultAttributes(Attributes{"font": "mono", "size": 10}))
	require.NoError(t, g.AddAttributes(SelectBlock(0, 0, 0, 0), 0, Attributes{"size": 12}))
	require.NoError(t, g.AddAttributes(SelectCols(0), 0, Attributes{"size": 14, "bold": true}))

	attrs, err := g.Attributes(C(0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, Attributes{"font": "mono", "size": 14, "bold": true}, attrs)

	attrs, err = g.Attributes(C(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, Attributes{"font": "mono", "size": 10}, attrs)

	attrs, err = g.Attributes(C(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, Attributes{"font": "mono", "size": 10}, attrs)
}

func TestWithDefaultSizes(t *testing.T) {
	g := newTestGrid(t, WithDefaultRowHeight(18), WithDefaultColWidth(64))
	assert.Equal(t, 18.0, g.RowHeight(0, 0))
	assert.Equal(t, 64.0, g.ColWidth(0, 0))

	require.NoError(t, g.SetRowHeight(0, 0, 40))
	assert.Equal(t, 40.0, g.RowHeight(0, 0))

	var re *RangeError
	assert.ErrorAs(t, g.SetRowHeight(0, 0, 0), &re)
	var be *BoundsError
	assert.ErrorAs(t, g.SetColWidth(50, 0, 10), &be)
}

func TestWithFunctions_LaterOverrides(t *testing.T) {
	g := newTestGrid(t,
		WithFunctions(map[string]any{"answer": 1, "name": "grid"}),
		WithFunction("answer", 42),
	)
	mustSet(t, g, C(0, 0, 0), "answer")
	mustSet(t, g, C(0, 1, 0), "name")
	assert.Equal(t, 42, mustValue(t, g, C(0, 0, 0)))
	assert.Equal(t, "grid", mustValue(t, g, C(0, 1, 0)))
}

func TestNew_Defaults(t *testing.T) {
	g := New(WithShape(Shape{Rows: -1}))
	assert.Equal(t, DefaultShape, g.Shape())
	assert.Equal(t, TrustTrusted, g.Trust())
	assert.NotEmpty(t, g.ID())
	assert.False(t, g.Modified())
}

func TestGrid_MetricsEnabled(t *testing.T) {
	g := newTestGrid(t, WithMetrics(true))
	mustSet(t, g, C(0, 0, 0), "S(0, 0)")
	mustSet(t, g, C(0, 1, 0), "1")
	mustValue(t, g, C(0, 1, 0))
	mustValue(t, g, C(0, 1, 0))
	_, err := g.Value(C(0, 0, 0))
	assert.Error(t, err)
	g.EnterSafeMode()
	g.ClearResultCache()
	_, err = g.Value(C(0, 1, 0))
	assert.Error(t, err)
	require.NoError(t, initMetrics())
}

func TestGrid_ClearStartsNewDocument(t *testing.T) {
	g := newTestGrid(t)
	mustSet(t, g, C(0, 0, 0), "1")
	require.NoError(t, g.SetMacros("x = 1"))
	g.EnterSafeMode()
	id := g.ID()

	g.Clear(Shape{Rows: 3, Cols: 3, Tables: 1})
	assert.NotEqual(t, id, g.ID())
	assert.Equal(t, Shape{Rows: 3, Cols: 3, Tables: 1}, g.Shape())
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, "", g.Macros())
	assert.False(t, g.SafeMode())
	assert.False(t, g.CanUndo())
	assert.False(t, g.Modified())

	// A cancelled load still leaves a usable document.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Load(ctx, strings.NewReader("[Pyspread save file version]\n0.1\n[shape]\n2\n2\n1\n"))
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, Shape{Rows: 3, Cols: 3, Tables: 1}, g.Shape())
}
