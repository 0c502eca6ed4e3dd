package xlgrid

import "sync"

// Operation is one reversible step of the undo history. Apply performs the
// forward action, Rollback reverts it. Both capture the minimal state needed
// (old source, old attribute list, old shape) and call back into the grid;
// they never hold copies of live cell records.
type Operation struct {
	Name     string
	Apply    func()
	Rollback func()
}

// Group combines ops into a single operation. Apply runs them in order,
// Rollback runs their rollbacks in reverse order.
func Group(name string, ops ...Operation) Operation {
	return Operation{
		Name: name,
		Apply: func() {
			for _, op := range ops {
				op.Apply()
			}
		},
		Rollback: func() {
			for i := len(ops) - 1; i >= 0; i-- {
				ops[i].Rollback()
			}
		},
	}
}

// UndoLog is a pair of LIFO stacks of operations.
// While the log is inactive (see Suspend), Push is a no-op.
type UndoLog struct {
	undo   []Operation
	redo   []Operation
	active bool
}

// NewUndoLog creates an empty, recording log.
func NewUndoLog() *UndoLog {
	return &UndoLog{}
}

// Push records op and clears the redo stack.
func (l *UndoLog) Push(op Operation) {
	if l.active {
		return
	}
	l.undo = append(l.undo, op)
	l.redo = nil
}

// Undo pops the latest operation, rolls it back and moves it to the redo
// stack. It reports false when there is nothing to undo.
func (l *UndoLog) Undo() (string, bool) {
	if len(l.undo) == 0 {
		return "", false
	}
	op := l.undo[len(l.undo)-1]
	l.undo = l.undo[:len(l.undo)-1]

	s := l.Suspend()
	defer s.Close()
	op.Rollback()

	l.redo = append(l.redo, op)
	return op.Name, true
}

// Redo re-applies the latest undone operation and moves it back to the undo
// stack. It reports false when there is nothing to redo.
func (l *UndoLog) Redo() (string, bool) {
	if len(l.redo) == 0 {
		return "", false
	}
	op := l.redo[len(l.redo)-1]
	l.redo = l.redo[:len(l.redo)-1]

	s := l.Suspend()
	defer s.Close()
	op.Apply()

	l.undo = append(l.undo, op)
	return op.Name, true
}

// Reset clears both stacks.
func (l *UndoLog) Reset() {
	l.undo = nil
	l.redo = nil
}

// Active reports whether recording is currently suppressed.
func (l *UndoLog) Active() bool {
	return l.active
}

// CanUndo reports whether Undo would do anything.
func (l *UndoLog) CanUndo() bool { return len(l.undo) > 0 }

// CanRedo reports whether Redo would do anything.
func (l *UndoLog) CanRedo() bool { return len(l.redo) > 0 }

// Len returns the depth of the undo and redo stacks.
func (l *UndoLog) Len() (undo, redo int) {
	return len(l.undo), len(l.redo)
}

// UndoSuspension suppresses recording until Close restores the previous
// state. Use with defer: s := log.Suspend(); defer s.Close()
type UndoSuspension struct {
	log    *UndoLog
	mu     sync.Locker // held while restoring, when the log belongs to a Grid
	prev   bool
	closed bool
}

// Suspend makes Push a no-op until the returned suspension is closed.
// Suspensions nest.
func (l *UndoLog) Suspend() *UndoSuspension {
	s := &UndoSuspension{log: l, prev: l.active}
	l.active = true
	return s
}

// Close restores the recording state seen by Suspend. Calling Close more
// than once is harmless.
func (s *UndoSuspension) Close() {
	if s.closed {
		return
	}
	if s.mu != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	s.closed = true
	s.log.active = s.prev
}
