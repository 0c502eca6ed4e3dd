package xlgrid

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Grid is a sparse three-dimensional spreadsheet: cell sources keyed by
// (row, col, table), evaluated lazily with dependency tracking, with undo,
// structural edits and a safe mode for untrusted documents.
//
// A Grid is safe for concurrent use. Every exported method takes a single
// lock; evaluation runs on the calling goroutine while holding it, so
// functions registered with WithFunctions must not call back into the grid.
type Grid struct {
	mu sync.Mutex

	opts    *Options
	logger  *slog.Logger
	store   *cellStore
	cache   *resultCache
	undo    *UndoLog
	ns      *namespace
	eval    ExpressionEvaluator
	metrics gridMetrics

	trust    TrustState
	id       uuid.UUID
	modified bool
	pending  []Change
}

// New creates an empty, trusted grid.
func New(opts ...Option) *Grid {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.evaluator == nil {
		o.evaluator = NewExpressionEvaluator()
	}
	if o.verifier == nil {
		if v, ok := o.signer.(Verifier); ok {
			o.verifier = v
		}
	}
	if !o.shape.Valid() {
		o.shape = DefaultShape
	}

	g := &Grid{
		opts:    o,
		store:   newCellStore(o.shape),
		cache:   newResultCache(),
		undo:    NewUndoLog(),
		ns:      newNamespace(o.functions),
		eval:    o.evaluator,
		metrics: gridMetrics{enabled: o.metrics},
		trust:   TrustTrusted,
	}
	g.newDocument()
	return g
}

// newDocument assigns a fresh document id.
func (g *Grid) newDocument() {
	g.id = uuid.New()
	g.logger = g.opts.logger.With("doc", g.id.String())
}

func (g *Grid) lock() {
	g.mu.Lock()
}

// unlock releases the lock and then delivers the changes queued while it
// was held.
func (g *Grid) unlock() {
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()
	for _, ch := range pending {
		for _, l := range g.opts.listeners {
			l.GridChanged(g, ch)
		}
	}
}

func (g *Grid) notify(ch Change) {
	if len(g.opts.listeners) == 0 {
		return
	}
	g.pending = append(g.pending, ch)
}

func (g *Grid) checkBounds(c Coord) error {
	if !g.store.shape.Contains(c) {
		return &BoundsError{Coord: c, Shape: g.store.shape}
	}
	return nil
}

// ID returns the document id, regenerated whenever a document is cleared or
// loaded.
func (g *Grid) ID() string {
	g.lock()
	defer g.unlock()
	return g.id.String()
}

// Shape returns the current shape.
func (g *Grid) Shape() Shape {
	g.lock()
	defer g.unlock()
	return g.store.shape
}

// Len returns the number of non-empty cells.
func (g *Grid) Len() int {
	g.lock()
	defer g.unlock()
	return g.store.len()
}

// Modified reports whether the document changed since it was created,
// loaded or saved.
func (g *Grid) Modified() bool {
	g.lock()
	defer g.unlock()
	return g.modified
}

// Source returns the source text of c and whether the cell is non-empty.
func (g *Grid) Source(c Coord) (string, bool, error) {
	g.lock()
	defer g.unlock()
	if err := g.checkBounds(c); err != nil {
		return "", false, err
	}
	src, ok := g.store.source(c)
	return src, ok, nil
}

// SetSource replaces the source of c. An empty text removes the cell. The
// results of c and of every cell that transitively read it are invalidated.
func (g *Grid) SetSource(c Coord, text string) error {
	g.lock()
	defer g.unlock()
	if err := g.checkBounds(c); err != nil {
		return err
	}
	if op, changed := g.setSource(c, text); changed {
		g.undo.Push(op)
	}
	return nil
}

// setSource writes c through the store and invalidates it. It returns the
// operation that redoes or reverts the write and whether anything changed.
func (g *Grid) setSource(c Coord, text string) (Operation, bool) {
	old, had := g.store.source(c)
	if had && old == text || !had && text == "" {
		return Operation{}, false
	}
	g.putSource(c, text)
	return Operation{
		Name:     "set source " + c.String(),
		Apply:    func() { g.putSource(c, text) },
		Rollback: func() { g.putSource(c, old) },
	}, true
}

func (g *Grid) putSource(c Coord, text string) {
	g.store.put(c, text)
	g.cache.invalidate(c)
	if text == "" {
		g.cache.dropDeps(c)
	}
	g.modified = true
	g.notify(Change{Kind: ChangeCell, Coord: c})
}

// Cells yields every non-empty cell in table, row, column order. It works on
// a snapshot, so the grid may be modified while iterating.
func (g *Grid) Cells() iter.Seq2[Coord, string] {
	return func(yield func(Coord, string) bool) {
		type entry struct {
			c   Coord
			src string
		}
		g.lock()
		snapshot := make([]entry, 0, g.store.len())
		for c, src := range g.store.each() {
			snapshot = append(snapshot, entry{c, src})
		}
		g.unlock()
		for _, e := range snapshot {
			if !yield(e.c, e.src) {
				return
			}
		}
	}
}

// Clear starts a new, empty and trusted document, optionally with a new
// shape. Cells, attributes, sizes, macros, results and the undo history are
// all dropped.
func (g *Grid) Clear(shape ...Shape) {
	g.lock()
	defer g.unlock()
	s := g.store.shape
	if len(shape) > 0 && shape[0].Valid() {
		s = shape[0]
	}
	g.clear(s)
	g.trust = TrustTrusted
	if err := g.executeMacros(); err != nil {
		g.logger.Warn("macros failed after clear", "error", err)
	}
	g.logger.Info("document cleared", "shape", s.String())
}

// clear empties every structure and assigns a new document id. Trust is
// left unchanged. Must be called with g.mu held.
func (g *Grid) clear(shape Shape) {
	g.store.clear(shape)
	g.cache.clearAll()
	g.undo.Reset()
	g.ns.clearGlobals()
	g.eval.Reset()
	g.modified = false
	g.newDocument()
	g.notify(Change{Kind: ChangeDocument, Shape: shape, Detail: "cleared"})
}

// Evaluate returns the result of c. Per-cell failures, cycles and safe-mode
// refusals are captured in Result.Err; the returned error is only set for a
// coordinate outside the grid.
func (g *Grid) Evaluate(c Coord) (Result, error) {
	g.lock()
	defer g.unlock()
	if err := g.checkBounds(c); err != nil {
		return Result{}, err
	}
	return g.evaluate(c), nil
}

// Value returns the value of c, or its captured error.
func (g *Grid) Value(c Coord) (any, error) {
	r, err := g.Evaluate(c)
	if err != nil {
		return nil, err
	}
	return r.Value, r.Err
}

// State returns the evaluation state of c.
func (g *Grid) State(c Coord) (CellState, error) {
	g.lock()
	defer g.unlock()
	if err := g.checkBounds(c); err != nil {
		return StateEmpty, err
	}
	_, has := g.store.source(c)
	return g.cache.state(c, has), nil
}

// Dependencies returns the cells read by the last evaluation of c.
func (g *Grid) Dependencies(c Coord) []Coord {
	g.lock()
	defer g.unlock()
	return g.cache.dependencies(c)
}

// Dependents returns the cells whose last evaluation read c.
func (g *Grid) Dependents(c Coord) []Coord {
	g.lock()
	defer g.unlock()
	return g.cache.dependents(c)
}

// ClearResultCache drops every cached result. Sources are untouched.
func (g *Grid) ClearResultCache() {
	g.lock()
	defer g.unlock()
	g.resetResults("explicit")
}

func (g *Grid) resetResults(reason string) {
	n := g.cache.reset()
	g.logger.Debug("result cache reset", "reason", reason, "results", n)
	g.notify(Change{Kind: ChangeResultCache, Detail: reason})
}

// ReloadNamespace drops the macro globals, executes the macro block again
// and resets the result cache.
func (g *Grid) ReloadNamespace() error {
	g.lock()
	defer g.unlock()
	err := g.executeMacros()
	g.resetResults("namespace reload")
	return err
}

// Macros returns the macro block.
func (g *Grid) Macros() string {
	g.lock()
	defer g.unlock()
	return g.store.macros
}

// SetMacros replaces the macro block, executes it and resets the result
// cache. The returned error reports macro lines that failed; the block is
// stored regardless.
func (g *Grid) SetMacros(text string) error {
	g.lock()
	defer g.unlock()
	old := g.store.macros
	if old == text {
		return nil
	}
	err := g.putMacros(text)
	g.undo.Push(Operation{
		Name:     "set macros",
		Apply:    func() { g.putMacros(text) },
		Rollback: func() { g.putMacros(old) },
	})
	return err
}

func (g *Grid) putMacros(text string) error {
	g.store.macros = text
	err := g.executeMacros()
	g.resetResults("macros replaced")
	g.modified = true
	g.notify(Change{Kind: ChangeMacros})
	return err
}

// ExecuteMacros runs the macro block again and resets the result cache.
func (g *Grid) ExecuteMacros() error {
	return g.ReloadNamespace()
}

// AddAttributes appends an attribute entry for the cells of table inside
// sel. Later entries override earlier ones.
func (g *Grid) AddAttributes(sel Selection, table int, attrs Attributes) error {
	g.lock()
	defer g.unlock()
	if table < 0 || table >= g.store.shape.Tables {
		return &BoundsError{Coord: C(0, 0, table), Shape: g.store.shape}
	}
	if sel.IsEmpty() || len(attrs) == 0 {
		return nil
	}
	before := cloneAttrEntries(g.store.attrs)
	after := append(cloneAttrEntries(g.store.attrs), AttrEntry{Selection: sel.clone(), Table: table, Attrs: attrs.Clone()})
	g.putAttrs(after)
	g.undo.Push(Operation{
		Name:     "add attributes",
		Apply:    func() { g.putAttrs(cloneAttrEntries(after)) },
		Rollback: func() { g.putAttrs(cloneAttrEntries(before)) },
	})
	return nil
}

func (g *Grid) putAttrs(entries []AttrEntry) {
	g.store.attrs = entries
	g.modified = true
	g.notify(Change{Kind: ChangeAttributes})
}

// Attributes returns the merged attributes of c.
func (g *Grid) Attributes(c Coord) (Attributes, error) {
	g.lock()
	defer g.unlock()
	if err := g.checkBounds(c); err != nil {
		return nil, err
	}
	return mergedAttributes(g.store.attrs, g.opts.defaultAttributes, c), nil
}

// AttributeEntries returns a copy of the attribute list, oldest first.
func (g *Grid) AttributeEntries() []AttrEntry {
	g.lock()
	defer g.unlock()
	return cloneAttrEntries(g.store.attrs)
}

// SetRowHeight overrides the height of row in table.
func (g *Grid) SetRowHeight(row, table int, height float64) error {
	return g.setSize(AxisRow, row, table, height)
}

// SetColWidth overrides the width of col in table.
func (g *Grid) SetColWidth(col, table int, width float64) error {
	return g.setSize(AxisCol, col, table, width)
}

func (g *Grid) setSize(axis Axis, index, table int, size float64) error {
	g.lock()
	defer g.unlock()
	if size <= 0 {
		return &RangeError{Op: "set size", Axis: axis, Index: index, Message: fmt.Sprintf("size %g must be positive", size)}
	}
	c := C(0, 0, table).With(axis, index)
	if err := g.checkBounds(c); err != nil {
		return err
	}
	key := sizeKey{Index: index, Table: table}
	old, had := g.store.size(axis, key)
	if had && old == size {
		return nil
	}
	g.putSize(axis, key, size)
	g.undo.Push(Operation{
		Name:     "set " + axis.String() + " size",
		Apply:    func() { g.putSize(axis, key, size) },
		Rollback: func() { g.putSize(axis, key, old) },
	})
	return nil
}

func (g *Grid) putSize(axis Axis, key sizeKey, size float64) {
	g.store.setSize(axis, key, size)
	g.modified = true
	g.notify(Change{Kind: ChangeSize, Coord: C(0, 0, key.Table).With(axis, key.Index)})
}

// RowHeight returns the height of row in table.
func (g *Grid) RowHeight(row, table int) float64 {
	g.lock()
	defer g.unlock()
	if h, ok := g.store.size(AxisRow, sizeKey{Index: row, Table: table}); ok {
		return h
	}
	return g.opts.defaultRowHeight
}

// ColWidth returns the width of col in table.
func (g *Grid) ColWidth(col, table int) float64 {
	g.lock()
	defer g.unlock()
	if w, ok := g.store.size(AxisCol, sizeKey{Index: col, Table: table}); ok {
		return w
	}
	return g.opts.defaultColWidth
}

// Undo reverts the latest recorded operation. It reports false when there
// is nothing to undo.
func (g *Grid) Undo() bool {
	g.lock()
	defer g.unlock()
	name, ok := g.undo.Undo()
	if ok {
		g.logger.Debug("undo", "op", name)
	}
	return ok
}

// Redo re-applies the latest undone operation. It reports false when there
// is nothing to redo.
func (g *Grid) Redo() bool {
	g.lock()
	defer g.unlock()
	name, ok := g.undo.Redo()
	if ok {
		g.logger.Debug("redo", "op", name)
	}
	return ok
}

// CanUndo reports whether Undo would do anything.
func (g *Grid) CanUndo() bool {
	g.lock()
	defer g.unlock()
	return g.undo.CanUndo()
}

// CanRedo reports whether Redo would do anything.
func (g *Grid) CanRedo() bool {
	g.lock()
	defer g.unlock()
	return g.undo.CanRedo()
}

// ResetUndo clears the undo and redo history.
func (g *Grid) ResetUndo() {
	g.lock()
	defer g.unlock()
	g.undo.Reset()
}

// SuspendUndo stops recording undo operations until the returned suspension
// is closed, e.g. around a scripted bulk import.
func (g *Grid) SuspendUndo() *UndoSuspension {
	g.lock()
	defer g.unlock()
	s := g.undo.Suspend()
	s.mu = &g.mu
	return s
}

// Trust returns the trust state of the document.
func (g *Grid) Trust() TrustState {
	g.lock()
	defer g.unlock()
	return g.trust
}

// SafeMode reports whether evaluation is currently refused.
func (g *Grid) SafeMode() bool {
	return g.Trust() == TrustSafe
}

// EnterSafeMode stops all evaluation until LeaveSafeMode or Approve.
func (g *Grid) EnterSafeMode() {
	g.lock()
	defer g.unlock()
	g.enterSafeMode()
}

func (g *Grid) enterSafeMode() {
	if g.trust == TrustSafe {
		return
	}
	g.trust = TrustSafe
	g.ns.clearGlobals()
	g.resetResults("safe mode entered")
	g.logger.Warn("safe mode entered")
	g.notify(Change{Kind: ChangeSafeMode, SafeMode: true})
}

// LeaveSafeMode trusts the document: the result cache is reset, the macro
// block executed and the post-load hooks run. It is the explicit approval
// step; nothing leaves safe mode automatically.
func (g *Grid) LeaveSafeMode() error {
	g.lock()
	if g.trust == TrustTrusted {
		g.unlock()
		return nil
	}
	g.trust = TrustTrusted
	g.resetResults("safe mode left")
	err := g.executeMacros()
	g.logger.Info("safe mode left")
	g.notify(Change{Kind: ChangeSafeMode, SafeMode: false})
	g.unlock()

	return errors.Join(err, g.runPostLoadHooks())
}

// Approve verifies the signature of the save file at path and, if it is
// valid, leaves safe mode. It reports whether the signature verified.
func (g *Grid) Approve(path string) (bool, error) {
	v := g.opts.verifier
	if v == nil {
		return false, fmt.Errorf("approve %s: no verifier configured", path)
	}
	ok, err := v.Verify(path, SignaturePath(path))
	if err != nil {
		return false, fmt.Errorf("approve %s: %w", path, err)
	}
	if !ok {
		g.lock()
		g.logger.Warn("signature did not verify", "path", path)
		g.unlock()
		return false, nil
	}
	return true, g.LeaveSafeMode()
}

// runPostLoadHooks runs the registered hooks with the grid unlocked.
func (g *Grid) runPostLoadHooks() error {
	var errs []error
	for _, hook := range g.opts.postLoadHooks {
		if err := hook(g); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
