package xlgrid

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExpressionEvaluator compiles and runs cell and macro expressions.
// Replace it with WithExpressionEvaluator to embed another language; the
// trust gate and error capture in Grid do not depend on the implementation.
type ExpressionEvaluator interface {
	// Evaluate runs expression against env.
	Evaluate(expression string, env map[string]any) (any, error)
	// Check compiles expression against env without running it.
	Check(expression string, env map[string]any) error
	// Reset forgets compiled programs, e.g. after the namespace changed shape.
	Reset()
}

// exprEvaluator implements ExpressionEvaluator using expr-lang/expr.
type exprEvaluator struct {
	cache sync.Map // expression string → compiled *vm.Program
}

// NewExpressionEvaluator creates a new expression evaluator backed by expr-lang/expr.
func NewExpressionEvaluator() ExpressionEvaluator {
	return &exprEvaluator{}
}

func (e *exprEvaluator) Evaluate(expression string, env map[string]any) (any, error) {
	program, err := e.compile(expression, env)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

func (e *exprEvaluator) Check(expression string, env map[string]any) error {
	if _, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables()); err != nil {
		return fmt.Errorf("compile expression %q: %w", expression, err)
	}
	return nil
}

func (e *exprEvaluator) Reset() {
	e.cache.Clear()
}

func (e *exprEvaluator) compile(expression string, env map[string]any) (*vm.Program, error) {
	if cached, ok := e.cache.Load(expression); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.cache.Store(expression, program)
	return program, nil
}
