package xlgrid

import (
	"context"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Severity indicates the severity of a validation issue.
type Severity int

const (
	SeverityError   Severity = iota // Cell or macro line will fail when evaluated
	SeverityWarning                 // Cell may produce unexpected results
)

// ValidationIssue represents a single problem found during validation.
// MacroLine is set (1-based) for issues in the macro block; Coord is only
// meaningful when MacroLine is zero.
type ValidationIssue struct {
	Severity  Severity
	Coord     Coord
	MacroLine int
	Message   string
}

// String formats the issue as "[ERROR] B3 (2, 1, 0): message",
// "[WARN] ..." or "[ERROR] macros:4: message".
func (v ValidationIssue) String() string {
	sev := "ERROR"
	if v.Severity == SeverityWarning {
		sev = "WARN"
	}
	if v.MacroLine > 0 {
		return fmt.Sprintf("[%s] macros:%d: %s", sev, v.MacroLine, v.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", sev, v.Coord.CellName(), v.Coord, v.Message)
}

// Validate opens the save file at path without trusting it and performs
// static validation checks. A non-nil error indicates the file could not be
// read at all.
func Validate(path string, opts ...Option) ([]ValidationIssue, error) {
	g := New(opts...)
	if _, err := g.Open(context.Background(), path); err != nil {
		return nil, err
	}
	return g.Validate(), nil
}

// Validate compiles every cell source and macro line without running any of
// them, so it is safe on untrusted documents. Syntax errors are reported as
// errors; literal S and cell references outside the grid or to the cell
// itself as warnings.
func (g *Grid) Validate() []ValidationIssue {
	g.lock()
	defer g.unlock()

	var issues []ValidationIssue
	for c, src := range g.store.each() {
		issues = append(issues, g.validateCell(c, src)...)
	}
	issues = append(issues, validateMacros(g.store.macros)...)
	return issues
}

func (g *Grid) validateCell(c Coord, src string) []ValidationIssue {
	src = cellExpression(src)
	if _, err := expr.Compile(src, expr.AllowUndefinedVariables()); err != nil {
		return []ValidationIssue{{
			Severity: SeverityError,
			Coord:    c,
			Message:  fmt.Sprintf("invalid expression syntax %q: %v", src, err),
		}}
	}
	tree, err := parser.Parse(src)
	if err != nil {
		return nil
	}
	v := &refVisitor{cell: c}
	ast.Walk(&tree.Node, v)

	var issues []ValidationIssue
	for _, ref := range v.refs {
		switch {
		case !g.store.shape.Contains(ref):
			issues = append(issues, ValidationIssue{
				Severity: SeverityWarning,
				Coord:    c,
				Message:  fmt.Sprintf("reads %s outside grid shape %s", ref, g.store.shape),
			})
		case ref == c:
			issues = append(issues, ValidationIssue{
				Severity: SeverityWarning,
				Coord:    c,
				Message:  "reads itself (circular reference)",
			})
		}
	}
	return issues
}

// refVisitor collects the cells named by literal S(row, col[, table]) and
// cell("A1"[, table]) calls.
type refVisitor struct {
	cell Coord
	refs []Coord
}

func (v *refVisitor) Visit(node *ast.Node) {
	call, ok := (*node).(*ast.CallNode)
	if !ok {
		return
	}
	callee, ok := call.Callee.(*ast.IdentifierNode)
	if !ok {
		return
	}
	args := call.Arguments
	switch {
	case callee.Value == "S" && (len(args) == 2 || len(args) == 3):
		nums := make([]int, 0, 3)
		for _, a := range args {
			n, ok := a.(*ast.IntegerNode)
			if !ok {
				return
			}
			nums = append(nums, n.Value)
		}
		table := v.cell.Table
		if len(nums) == 3 {
			table = nums[2]
		}
		v.refs = append(v.refs, C(nums[0], nums[1], table))
	case callee.Value == "cell" && (len(args) == 1 || len(args) == 2):
		name, ok := args[0].(*ast.StringNode)
		if !ok {
			return
		}
		row, col, err := ParseCellName(name.Value)
		if err != nil {
			return
		}
		table := v.cell.Table
		if len(args) == 2 {
			n, ok := args[1].(*ast.IntegerNode)
			if !ok {
				return
			}
			table = n.Value
		}
		v.refs = append(v.refs, C(row, col, table))
	}
}

func validateMacros(text string) []ValidationIssue {
	var issues []ValidationIssue
	lines, errs := parseMacros(text)
	for _, err := range errs {
		issue := ValidationIssue{Severity: SeverityError, Message: err.Error()}
		var syn *macroSyntaxError
		if errors.As(err, &syn) {
			issue.MacroLine = syn.Line
		}
		issues = append(issues, issue)
	}
	for _, ml := range lines {
		if _, err := expr.Compile(ml.Expr, expr.AllowUndefinedVariables()); err != nil {
			issues = append(issues, ValidationIssue{
				Severity:  SeverityError,
				MacroLine: ml.Line,
				Message:   fmt.Sprintf("%s: invalid expression syntax %q: %v", ml.Name, ml.Expr, err),
			})
		}
	}
	return issues
}
