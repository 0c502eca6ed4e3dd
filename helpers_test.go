package xlgrid

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestGrid creates a small trusted grid with logging discarded and
// metrics off.
func newTestGrid(t *testing.T, opts ...Option) *Grid {
	t.Helper()
	base := []Option{
		WithShape(Shape{Rows: 10, Cols: 10, Tables: 2}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(false),
	}
	return New(append(base, opts...)...)
}

func mustSet(t *testing.T, g *Grid, c Coord, src string) {
	t.Helper()
	require.NoError(t, g.SetSource(c, src))
}

func mustValue(t *testing.T, g *Grid, c Coord) any {
	t.Helper()
	v, err := g.Value(c)
	require.NoError(t, err)
	return v
}

// cellMap collects every non-empty cell.
func cellMap(g *Grid) map[Coord]string {
	out := make(map[Coord]string)
	for c, src := range g.Cells() {
		out[c] = src
	}
	return out
}

// countdownCtx reports cancellation after Err has been called n times.
type countdownCtx struct {
	context.Context
	left atomic.Int64
}

func newCountdownCtx(n int) *countdownCtx {
	ctx := &countdownCtx{Context: context.Background()}
	ctx.left.Store(int64(n))
	return ctx
}

func (c *countdownCtx) Err() error {
	if c.left.Add(-1) < 0 {
		return context.Canceled
	}
	return nil
}

// recorder is a Listener that keeps every change.
type recorder struct {
	changes []Change
}

func (r *recorder) GridChanged(_ *Grid, ch Change) {
	r.changes = append(r.changes, ch)
}

func (r *recorder) kinds() []ChangeKind {
	out := make([]ChangeKind, 0, len(r.changes))
	for _, ch := range r.changes {
		out = append(out, ch.Kind)
	}
	return out
}
