package xlgrid

import (
	"errors"
	"fmt"
	"strings"
)

// macroLine is one "name = expression" binding of the macro block.
type macroLine struct {
	Line int // 1-based
	Name string
	Expr string
}

// parseMacros splits the macro block into bindings. Blank lines and lines
// starting with "#" or "//" are skipped. Malformed lines are reported and
// left out.
func parseMacros(text string) ([]macroLine, []error) {
	var (
		out  []macroLine
		errs []error
	)
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		name, expression, ok := strings.Cut(line, "=")
		name = strings.TrimSpace(name)
		expression = strings.TrimSpace(expression)
		if !ok || !isIdentifier(name) || expression == "" || strings.HasPrefix(expression, "=") {
			errs = append(errs, &macroSyntaxError{Line: i + 1, Text: line})
			continue
		}
		out = append(out, macroLine{Line: i + 1, Name: name, Expr: expression})
	}
	return out, errs
}

// macroSyntaxError reports a macro line that is not a binding.
type macroSyntaxError struct {
	Line int
	Text string
}

func (e *macroSyntaxError) Error() string {
	return fmt.Sprintf("macro line %d: expected \"name = expression\", got %q", e.Line, e.Text)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	switch s {
	case "X", "Y", "Z", "S", "R", "cell":
		return false
	}
	return true
}

// executeMacros rebinds the macro globals from the stored macro block.
// Failing lines are skipped and reported together; the other lines still
// bind. Nothing runs in safe mode. Must be called with g.mu held.
func (g *Grid) executeMacros() error {
	g.ns.clearGlobals()
	g.eval.Reset()
	if g.trust == TrustSafe {
		g.logger.Debug("macros not executed in safe mode")
		return nil
	}
	lines, errs := parseMacros(g.store.macros)
	for _, ml := range lines {
		value, err := g.run(ml.Expr, g.ns.macroEnv())
		if err != nil {
			errs = append(errs, fmt.Errorf("macro line %d (%s): %w", ml.Line, ml.Name, err))
			continue
		}
		g.ns.setGlobal(ml.Name, value)
	}
	// Programs compiled against the previous namespace may have been
	// type-checked against different globals.
	g.eval.Reset()
	err := errors.Join(errs...)
	if err != nil {
		g.logger.Warn("macro execution failed", "error", err)
	} else if len(lines) > 0 {
		g.logger.Debug("macros executed", "bindings", len(lines))
	}
	return err
}
