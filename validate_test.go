package xlgrid

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_ValidateClean(t *testing.T) {
	g := newTestGrid(t)
	mustSet(t, g, C(0, 0, 0), "1 + 1")
	mustSet(t, g, C(0, 1, 0), `S(0, 0) + cell("A1")`)
	mustSet(t, g, C(0, 2, 0), "= undefinedName * 2")
	require.NoError(t, g.SetMacros("# ok\nx = 1"))
	assert.Empty(t, g.Validate())
}

func TestGrid_ValidateInvalidExpressionSyntax(t *testing.T) {
	g := newTestGrid(t)
	mustSet(t, g, C(2, 1, 0), "1 +")

	issues := g.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Equal(t, C(2, 1, 0), issues[0].Coord)
	assert.Contains(t, issues[0].Message, "invalid expression syntax")
	assert.Contains(t, issues[0].String(), "[ERROR] B3 (2, 1, 0)")
}

func TestGrid_ValidateReferenceWarnings(t *testing.T) {
	g := newTestGrid(t)
	mustSet(t, g, C(0, 0, 0), "S(99, 0)")
	mustSet(t, g, C(1, 0, 0), "S(1, 0) + 1")
	mustSet(t, g, C(2, 0, 1), `cell("A3")`)
	mustSet(t, g, C(3, 0, 0), "S(0, 0, 7)")

	issues := g.Validate()
	require.Len(t, issues, 4)
	for _, issue := range issues {
		assert.Equal(t, SeverityWarning, issue.Severity)
	}
	assert.Contains(t, issues[0].Message, "outside grid shape")
	assert.Contains(t, issues[1].Message, "reads itself")
	assert.Contains(t, issues[2].Message, "outside grid shape")
	assert.Equal(t, C(2, 0, 1), issues[3].Coord)
	assert.Contains(t, issues[3].Message, "reads itself")
}

func TestGrid_ValidateMacros(t *testing.T) {
	g := newTestGrid(t)
	g.EnterSafeMode()
	require.NoError(t, g.SetMacros("a = 1\nnot a binding\nb = (1 +"))

	issues := g.Validate()
	require.Len(t, issues, 2)
	assert.Equal(t, 2, issues[0].MacroLine)
	assert.Equal(t, 3, issues[1].MacroLine)
	assert.Equal(t, "[ERROR] macros:3: "+issues[1].Message, issues[1].String())
}

func TestValidate_File(t *testing.T) {
	src := newTestGrid(t)
	mustSet(t, src, C(0, 0, 0), "1 +")
	path := filepath.Join(t.TempDir(), "doc.xlg")
	require.NoError(t, src.SaveFile(context.Background(), path))

	issues, err := Validate(path, WithMetrics(false))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
}
