package xlgrid

import (
	"fmt"
	"time"
)

// evalFrame tracks one in-flight cell evaluation.
type evalFrame struct {
	coord Coord
	deps  coordSet
	// depErr is the first error raised by S, R or cell, either a bad
	// reference or an error result read through them. It becomes the cell's
	// error whatever the expression did with it.
	depErr error
}

func (f *evalFrame) fail(err error) error {
	if f.depErr == nil {
		f.depErr = err
	}
	return err
}

// evaluate returns the result of c, evaluating it and every cell it reads on
// demand. It must be called with g.mu held and c inside the shape.
func (g *Grid) evaluate(c Coord) Result {
	src, ok := g.store.source(c)
	if !ok {
		return Result{}
	}
	if _, busy := g.cache.evaluating[c]; busy {
		g.metrics.circular()
		g.logger.Debug("circular reference", "cell", c.String())
		return Result{Err: &CircularReferenceError{Coord: c}}
	}
	if r, ok := g.cache.get(c); ok {
		g.metrics.cacheHit()
		return r
	}
	g.metrics.cacheMiss()

	if g.trust == TrustSafe {
		g.metrics.blocked()
		r := Result{Err: &TrustBlockedError{Coord: c}}
		g.cache.put(c, r)
		return r
	}

	frame := &evalFrame{coord: c, deps: make(coordSet)}
	g.cache.evaluating[c] = struct{}{}
	start := time.Now()
	value, err := g.run(cellExpression(src), g.ns.cellEnv(c, g.accessors(frame)))
	delete(g.cache.evaluating, c)

	var r Result
	switch {
	case frame.depErr != nil:
		r = Result{Err: &ExpressionError{Coord: c, Err: frame.depErr}}
	case err != nil:
		r = Result{Err: &ExpressionError{Coord: c, Err: err}}
	default:
		r = Result{Value: value}
	}
	g.metrics.evaluated(time.Since(start), r.OK())
	g.cache.setDeps(c, frame.deps)
	g.cache.put(c, r)
	g.logger.Debug("evaluated cell", "cell", c.String(), "deps", len(frame.deps), "ok", r.OK())
	return r
}

// run executes one expression, turning a panic in a registered function into
// an error so the evaluation stack unwinds cleanly.
func (g *Grid) run(src string, env map[string]any) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return g.eval.Evaluate(src, env)
}

// accessors builds the S, R and cell functions for frame.
func (g *Grid) accessors(frame *evalFrame) cellAccessors {
	return cellAccessors{
		S: func(args ...any) (any, error) {
			if len(args) < 2 || len(args) > 3 {
				return nil, frame.fail(fmt.Errorf("S expects (row, col[, table]), got %d arguments", len(args)))
			}
			d, err := g.argCoord(frame, args)
			if err != nil {
				return nil, frame.fail(err)
			}
			return g.pull(frame, d)
		},
		R: func(args ...any) ([]any, error) {
			if len(args) < 4 || len(args) > 5 {
				return nil, frame.fail(fmt.Errorf("R expects (top, left, bottom, right[, table]), got %d arguments", len(args)))
			}
			nums := make([]int, 0, 5)
			for _, a := range args {
				n, err := toInt(a)
				if err != nil {
					return nil, frame.fail(err)
				}
				nums = append(nums, n)
			}
			table := frame.coord.Table
			if len(nums) == 5 {
				table = nums[4]
			}
			top, left, bottom, right := nums[0], nums[1], nums[2], nums[3]
			if bottom < top {
				top, bottom = bottom, top
			}
			if right < left {
				left, right = right, left
			}
			for _, corner := range []Coord{C(top, left, table), C(bottom, right, table)} {
				if !g.store.shape.Contains(corner) {
					return nil, frame.fail(&BoundsError{Coord: corner, Shape: g.store.shape})
				}
			}
			out := make([]any, 0, (bottom-top+1)*(right-left+1))
			for row := top; row <= bottom; row++ {
				for col := left; col <= right; col++ {
					v, err := g.pull(frame, C(row, col, table))
					if err != nil {
						return nil, err
					}
					out = append(out, v)
				}
			}
			return out, nil
		},
		Cell: func(args ...any) (any, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, frame.fail(fmt.Errorf("cell expects (name[, table]), got %d arguments", len(args)))
			}
			name, ok := args[0].(string)
			if !ok {
				return nil, frame.fail(fmt.Errorf("cell name must be a string, got %T", args[0]))
			}
			row, col, err := ParseCellName(name)
			if err != nil {
				return nil, frame.fail(err)
			}
			table := frame.coord.Table
			if len(args) == 2 {
				if table, err = toInt(args[1]); err != nil {
					return nil, frame.fail(err)
				}
			}
			d := C(row, col, table)
			if !g.store.shape.Contains(d) {
				return nil, frame.fail(&BoundsError{Coord: d, Shape: g.store.shape})
			}
			return g.pull(frame, d)
		},
	}
}

func (g *Grid) argCoord(frame *evalFrame, args []any) (Coord, error) {
	row, err := toInt(args[0])
	if err != nil {
		return Coord{}, err
	}
	col, err := toInt(args[1])
	if err != nil {
		return Coord{}, err
	}
	table := frame.coord.Table
	if len(args) == 3 {
		if table, err = toInt(args[2]); err != nil {
			return Coord{}, err
		}
	}
	d := C(row, col, table)
	if !g.store.shape.Contains(d) {
		return Coord{}, &BoundsError{Coord: d, Shape: g.store.shape}
	}
	return d, nil
}

// pull records the edge frame -> d and returns the value of d. An error
// result of d becomes the error of the reading cell.
func (g *Grid) pull(frame *evalFrame, d Coord) (any, error) {
	frame.deps[d] = struct{}{}
	r := g.evaluate(d)
	if r.Err != nil {
		return nil, frame.fail(r.Err)
	}
	return r.Value, nil
}
