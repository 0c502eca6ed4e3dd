package xlgrid

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *KeyedSigner {
	t.Helper()
	s, err := NewKeyedSigner([]byte("test signing key"))
	require.NoError(t, err)
	return s
}

func TestKeyedSigner_SignAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.xlg")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	s := newTestSigner(t)
	ok, err := s.Verify(path, SignaturePath(path))
	require.NoError(t, err)
	assert.False(t, ok, "missing signature")

	require.NoError(t, SignFile(s, path))
	ok, err = s.Verify(path, SignaturePath(path))
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := NewKeyedSigner([]byte("another key"))
	require.NoError(t, err)
	ok, err = other.Verify(path, SignaturePath(path))
	require.NoError(t, err)
	assert.False(t, ok, "wrong key")

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
	ok, err = s.Verify(path, SignaturePath(path))
	require.NoError(t, err)
	assert.False(t, ok, "tampered file")
}

func TestNewKeyedSigner_KeyLength(t *testing.T) {
	_, err := NewKeyedSigner(nil)
	assert.Error(t, err)
	_, err = NewKeyedSigner(make([]byte, 65))
	assert.Error(t, err)
}

func TestLoadKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("  secret\n"), 0o600))
	s, err := LoadKeyFile(path)
	require.NoError(t, err)

	want, err := NewKeyedSigner([]byte("secret"))
	require.NoError(t, err)
	a, err := s.Sign([]byte("x"))
	require.NoError(t, err)
	b, err := want.Sign([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestGrid_SafeModeBlocksEvaluation(t *testing.T) {
	g := newTestGrid(t)
	mustSet(t, g, C(0, 0, 0), "= 1+1")
	g.EnterSafeMode()
	require.True(t, g.SafeMode())

	_, err := g.Value(C(0, 0, 0))
	var tbe *TrustBlockedError
	require.ErrorAs(t, err, &tbe)
	assert.Equal(t, C(0, 0, 0), tbe.Coord)

	require.NoError(t, g.LeaveSafeMode())
	assert.Equal(t, 2, mustValue(t, g, C(0, 0, 0)))
}

func TestGrid_UnsignedFileOpensInSafeMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.xlg")

	src := newTestGrid(t)
	mustSet(t, src, C(0, 0, 0), "= 1+1")
	require.NoError(t, src.SetMacros("k = 5"))
	mustSet(t, src, C(0, 1, 0), "k")
	require.NoError(t, src.SaveFile(context.Background(), path))
	_, err := os.Stat(SignaturePath(path))
	require.True(t, os.IsNotExist(err))

	signer := newTestSigner(t)
	g := newTestGrid(t, WithSigner(signer))
	_, err = g.Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, TrustSafe, g.Trust())

	_, err = g.Value(C(0, 0, 0))
	var tbe *TrustBlockedError
	require.ErrorAs(t, err, &tbe)

	ok, err := g.Approve(path)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, g.SafeMode())

	require.NoError(t, SignFile(signer, path))
	ok, err = g.Approve(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, TrustTrusted, g.Trust())
	assert.Equal(t, 2, mustValue(t, g, C(0, 0, 0)))
	assert.Equal(t, 5, mustValue(t, g, C(0, 1, 0)))
}

func TestGrid_SignedFileOpensTrusted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.xlg")
	signer := newTestSigner(t)

	hooks := 0
	src := newTestGrid(t, WithSigner(signer))
	mustSet(t, src, C(0, 0, 0), "6 * 7")
	require.NoError(t, src.SaveFile(context.Background(), path))
	_, err := os.Stat(SignaturePath(path))
	require.NoError(t, err)

	g := newTestGrid(t, WithSigner(signer), WithPostLoadHook(func(*Grid) error {
		hooks++
		return nil
	}))
	_, err = g.Open(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, g.SafeMode())
	assert.Equal(t, 1, hooks)
	assert.Equal(t, 42, mustValue(t, g, C(0, 0, 0)))
}

func TestGrid_ApproveWithoutVerifier(t *testing.T) {
	g := newTestGrid(t)
	_, err := g.Approve(filepath.Join(t.TempDir(), "doc.xlg"))
	assert.Error(t, err)
}

func TestGrid_SafeModeEditsStillRecorded(t *testing.T) {
	g := newTestGrid(t)
	g.EnterSafeMode()
	mustSet(t, g, C(0, 0, 0), "1")
	require.NoError(t, g.Insert(0, 1, AxisRow))
	assert.Equal(t, map[Coord]string{C(1, 0, 0): "1"}, cellMap(g))
	require.True(t, g.Undo())
	require.True(t, g.Undo())
	assert.Empty(t, cellMap(g))
}

func TestGrid_VerifierFunc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.xlgu")
	src := newTestGrid(t)
	mustSet(t, src, C(0, 0, 0), "1")
	require.NoError(t, src.SaveFile(context.Background(), path))

	var seen string
	g := newTestGrid(t, WithVerifier(VerifierFunc(func(p, sig string) (bool, error) {
		seen = sig
		return true, nil
	})))
	_, err := g.Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path+".sig", seen)
	assert.False(t, g.SafeMode())
}
