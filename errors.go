package xlgrid

import (
	"errors"
	"fmt"
)

// ErrAborted is returned by bulk operations whose context was cancelled.
var ErrAborted = errors.New("operation aborted")

// ErrUnsupportedFormat indicates the input is not a save file at all.
var ErrUnsupportedFormat = errors.New("file format unsupported")

// BoundsError reports a coordinate or range outside the current shape.
type BoundsError struct {
	Coord Coord
	Shape Shape
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("coordinate %s outside grid shape %s", e.Coord, e.Shape)
}

// CircularReferenceError is the cached result of a cell whose evaluation
// re-entered a cell that was still being evaluated.
type CircularReferenceError struct {
	Coord Coord // the cell that was re-entered
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular reference at %s", e.Coord)
}

// ExpressionError wraps any failure while compiling or running a cell's
// expression. It is stored as the cell's result, never returned from Evaluate.
type ExpressionError struct {
	Coord Coord
	Err   error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("cell %s: %v", e.Coord, e.Err)
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}

// TrustBlockedError is the result of every evaluation attempted while the
// grid is in safe mode. No expression code runs to produce it.
type TrustBlockedError struct {
	Coord Coord
}

func (e *TrustBlockedError) Error() string {
	return fmt.Sprintf("cell %s not evaluated: document is in safe mode", e.Coord)
}

// RangeError reports invalid structural mutation parameters. The mutation is
// not applied.
type RangeError struct {
	Op      string
	Axis    Axis
	Index   int
	Count   int
	Extent  int
	Message string
}

func (e *RangeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Axis, e.Message)
	}
	return fmt.Sprintf("%s %s: index %d count %d invalid for extent %d", e.Op, e.Axis, e.Index, e.Count, e.Extent)
}

// UnsupportedVersionError reports a save file with an unknown version line.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("file version %q unsupported (not %s)", e.Version, SaveFileVersion)
}

// FormatError reports a malformed line in a save file section.
type FormatError struct {
	Section string
	Line    int
	Err     error
}

func (e *FormatError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("section %s line %d: %v", e.Section, e.Line, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IOFailure reports a read or write failure on the underlying file.
type IOFailure struct {
	Path string
	Op   string // "open", "read", "write", "sign"
	Err  error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOFailure) Unwrap() error {
	return e.Err
}
