package xlgrid

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// namespace holds the names every cell evaluation sees besides its own cell
// accessors: registered functions, builtins and the globals bound by the
// macro block.
type namespace struct {
	functions map[string]any
	globals   map[string]any

	// Cached merged map for expression evaluation.
	// Invalidated (set to nil) whenever globals change.
	cachedMap map[string]any
}

func newNamespace(functions map[string]any) *namespace {
	return &namespace{
		functions: maps.Clone(functions),
		globals:   make(map[string]any),
	}
}

// setGlobal binds a macro global.
func (n *namespace) setGlobal(name string, value any) {
	n.globals[name] = value
	n.invalidateCache()
}

// clearGlobals drops every macro global.
func (n *namespace) clearGlobals() {
	n.globals = make(map[string]any)
	n.invalidateCache()
}

func (n *namespace) invalidateCache() {
	n.cachedMap = nil
}

// base returns the merged map of builtins, functions and globals. Globals
// override functions, functions override builtins. The result is cached and
// must not be modified.
func (n *namespace) base() map[string]any {
	if n.cachedMap != nil {
		return n.cachedMap
	}
	m := make(map[string]any, len(n.functions)+len(n.globals)+1)
	m["hyperlink"] = Hyperlink
	maps.Copy(m, n.functions)
	maps.Copy(m, n.globals)
	n.cachedMap = m
	return m
}

// cellAccessors are the per-evaluation names bound to the evaluating cell.
type cellAccessors struct {
	S    func(args ...any) (any, error)
	R    func(args ...any) ([]any, error)
	Cell func(args ...any) (any, error)
}

// cellEnv builds the evaluation map for the cell at c.
func (n *namespace) cellEnv(c Coord, acc cellAccessors) map[string]any {
	base := n.base()
	env := make(map[string]any, len(base)+6)
	maps.Copy(env, base)
	env["X"] = c.Row
	env["Y"] = c.Col
	env["Z"] = c.Table
	env["S"] = acc.S
	env["R"] = acc.R
	env["cell"] = acc.Cell
	return env
}

// macroEnv builds the evaluation map for one macro line.
func (n *namespace) macroEnv() map[string]any {
	return maps.Clone(n.base())
}

// cellExpression returns the expression of a cell source. A leading "=" is
// optional, as in most spreadsheets.
func cellExpression(src string) string {
	trimmed := strings.TrimSpace(src)
	if strings.HasPrefix(trimmed, "=") && !strings.HasPrefix(trimmed, "==") {
		return trimmed[1:]
	}
	return src
}

// toInt converts a numeric expression argument to an index.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float32:
		if float32(int(n)) != n {
			return 0, fmt.Errorf("index %v is not an integer", n)
		}
		return int(n), nil
	case float64:
		if float64(int(n)) != n {
			return 0, fmt.Errorf("index %v is not an integer", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("index %v (%T) is not a number", v, v)
}

// formatValue renders a cell value the way it is shown and exported.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
