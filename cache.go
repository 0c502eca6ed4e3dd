package xlgrid

import (
	"maps"
	"slices"
)

// CellState is the evaluation state of one cell.
type CellState int

const (
	StateEmpty      CellState = iota // no source
	StateClean                       // cached value is valid
	StateDirty                       // source present, no valid cached result
	StateEvaluating                  // on the current evaluation stack
	StateError                       // cached result is an error
)

// String returns a human-readable name for the CellState.
func (s CellState) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateClean:
		return "Clean"
	case StateDirty:
		return "Dirty"
	case StateEvaluating:
		return "Evaluating"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Result is the outcome of evaluating a cell: a value, or a captured error.
// Errors are cacheable results like any value.
type Result struct {
	Value any
	Err   error
}

// OK reports whether the result carries a value rather than an error.
func (r Result) OK() bool {
	return r.Err == nil
}

// String renders the value, or the error message prefixed with "#ERR ".
func (r Result) String() string {
	if r.Err != nil {
		return "#ERR " + r.Err.Error()
	}
	if r.Value == nil {
		return ""
	}
	return formatValue(r.Value)
}

// edge records that From's last evaluation read To.
type edge struct {
	From Coord
	To   Coord
}

type coordSet map[Coord]struct{}

// resultCache memoizes results and keeps the dependency graph in both
// directions: deps[c] are the cells c read, rdeps[d] the cells that read d.
// The coherence contract: when a cell leaves CLEAN, every cell that
// transitively reads it leaves CLEAN as well.
type resultCache struct {
	results    map[Coord]Result
	deps       map[Coord]coordSet
	rdeps      map[Coord]coordSet
	evaluating coordSet
}

func newResultCache() *resultCache {
	rc := &resultCache{}
	rc.clearAll()
	return rc
}

// clearAll drops results and every dependency edge.
func (rc *resultCache) clearAll() {
	rc.results = make(map[Coord]Result)
	rc.deps = make(map[Coord]coordSet)
	rc.rdeps = make(map[Coord]coordSet)
	rc.evaluating = make(coordSet)
}

// reset drops every cached result. Edges stay until the next evaluation of
// each cell replaces them.
func (rc *resultCache) reset() int {
	n := len(rc.results)
	rc.results = make(map[Coord]Result)
	return n
}

func (rc *resultCache) get(c Coord) (Result, bool) {
	r, ok := rc.results[c]
	return r, ok
}

func (rc *resultCache) put(c Coord, r Result) {
	rc.results[c] = r
}

func (rc *resultCache) state(c Coord, hasSource bool) CellState {
	if _, ok := rc.evaluating[c]; ok {
		return StateEvaluating
	}
	if !hasSource {
		return StateEmpty
	}
	r, ok := rc.results[c]
	switch {
	case !ok:
		return StateDirty
	case r.Err != nil:
		return StateError
	default:
		return StateClean
	}
}

// setDeps replaces the outgoing edges of c with exactly deps.
func (rc *resultCache) setDeps(c Coord, deps coordSet) {
	rc.dropDeps(c)
	if len(deps) == 0 {
		return
	}
	rc.deps[c] = deps
	for d := range deps {
		rc.addReverse(d, c)
	}
}

func (rc *resultCache) addEdge(from, to Coord) {
	s, ok := rc.deps[from]
	if !ok {
		s = make(coordSet)
		rc.deps[from] = s
	}
	s[to] = struct{}{}
	rc.addReverse(to, from)
}

func (rc *resultCache) addReverse(to, from Coord) {
	s, ok := rc.rdeps[to]
	if !ok {
		s = make(coordSet)
		rc.rdeps[to] = s
	}
	s[from] = struct{}{}
}

// dropDeps removes the outgoing edges of c.
func (rc *resultCache) dropDeps(c Coord) {
	for d := range rc.deps[c] {
		if s, ok := rc.rdeps[d]; ok {
			delete(s, c)
			if len(s) == 0 {
				delete(rc.rdeps, d)
			}
		}
	}
	delete(rc.deps, c)
}

// invalidate removes the result of c and of every cell that transitively
// reads c. It returns the cells whose cached result was dropped.
func (rc *resultCache) invalidate(c Coord) []Coord {
	var dropped []Coord
	seen := coordSet{c: {}}
	queue := []Coord{c}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := rc.results[cur]; ok {
			delete(rc.results, cur)
			dropped = append(dropped, cur)
		}
		for dep := range rc.rdeps[cur] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}
	return dropped
}

func (rc *resultCache) dependencies(c Coord) []Coord {
	return sortedSet(rc.deps[c])
}

func (rc *resultCache) dependents(c Coord) []Coord {
	return sortedSet(rc.rdeps[c])
}

// remap rewrites every cached result and every edge through fn, which
// returns false for coordinates that no longer exist. It returns the edges
// dropped because an endpoint vanished (in old coordinates) and the surviving
// cells, in new coordinates, that moved or lost or changed an edge. The
// caller invalidates the latter.
func (rc *resultCache) remap(fn func(Coord) (Coord, bool)) (dropped []edge, affected []Coord) {
	touched := make(coordSet)

	results := make(map[Coord]Result, len(rc.results))
	for c, r := range rc.results {
		nc, ok := fn(c)
		if !ok {
			continue
		}
		if nc != c {
			touched[nc] = struct{}{}
		}
		results[nc] = r
	}

	oldDeps := rc.deps
	rc.deps = make(map[Coord]coordSet, len(oldDeps))
	rc.rdeps = make(map[Coord]coordSet, len(rc.rdeps))
	for from, tos := range oldDeps {
		nfrom, fromOK := fn(from)
		for to := range tos {
			nto, toOK := fn(to)
			if !fromOK || !toOK {
				dropped = append(dropped, edge{From: from, To: to})
				if fromOK {
					touched[nfrom] = struct{}{}
				}
				continue
			}
			if nfrom != from || nto != to {
				touched[nfrom] = struct{}{}
			}
			rc.addEdge(nfrom, nto)
		}
	}
	rc.results = results
	return dropped, sortedSet(touched)
}

func sortedSet(s coordSet) []Coord {
	if len(s) == 0 {
		return nil
	}
	out := slices.Collect(maps.Keys(s))
	slices.SortFunc(out, func(a, b Coord) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return out
}
