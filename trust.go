package xlgrid

import (
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/crypto/blake2b"
)

// TrustState is the provenance state of the open document.
type TrustState int

const (
	// TrustSafe refuses all expression evaluation. Fresh, unverified
	// documents start here.
	TrustSafe TrustState = iota
	// TrustTrusted evaluates cells and macros normally.
	TrustTrusted
)

// String returns a human-readable name for the TrustState.
func (s TrustState) String() string {
	if s == TrustTrusted {
		return "TRUSTED"
	}
	return "SAFE"
}

// Signer produces a detached signature for the bytes of a save file.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// Verifier checks a save file against its detached signature file.
// A missing or mismatching signature yields false without error.
type Verifier interface {
	Verify(path, sigPath string) (bool, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(path, sigPath string) (bool, error)

// Verify calls f(path, sigPath).
func (f VerifierFunc) Verify(path, sigPath string) (bool, error) { return f(path, sigPath) }

// SignatureExt is appended to a save file path to name its signature file.
const SignatureExt = ".sig"

// SignaturePath returns the detached signature path for a save file.
func SignaturePath(path string) string {
	return path + SignatureExt
}

// KeyedSigner signs and verifies with a keyed BLAKE2b-256 MAC. Signatures are
// stored hex encoded. It implements both Signer and Verifier.
type KeyedSigner struct {
	key []byte
}

// NewKeyedSigner creates a signer for key, which must be 1 to 64 bytes.
func NewKeyedSigner(key []byte) (*KeyedSigner, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("signing key must be 1 to %d bytes, got %d", blake2b.Size, len(key))
	}
	return &KeyedSigner{key: bytes.Clone(key)}, nil
}

// LoadKeyFile reads a signing key from path. Surrounding whitespace is
// trimmed, so keys can be kept in plain text files.
func LoadKeyFile(path string) (*KeyedSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	return NewKeyedSigner(bytes.TrimSpace(data))
}

func (s *KeyedSigner) mac(data []byte) ([]byte, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// Sign returns the hex encoded MAC of data.
func (s *KeyedSigner) Sign(data []byte) ([]byte, error) {
	sum, err := s.mac(data)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out, nil
}

// Verify reports whether sigPath holds the signature of the bytes at path.
func (s *KeyedSigner) Verify(path, sigPath string) (bool, error) {
	sig, err := os.ReadFile(sigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &IOFailure{Path: sigPath, Op: "read", Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, &IOFailure{Path: path, Op: "read", Err: err}
	}
	want, err := s.Sign(data)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want, bytes.TrimSpace(sig)) == 1, nil
}

// SignFile signs the file at path and writes the signature to SignaturePath(path).
func SignFile(signer Signer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &IOFailure{Path: path, Op: "sign", Err: err}
	}
	sig, err := signer.Sign(data)
	if err != nil {
		return &IOFailure{Path: path, Op: "sign", Err: err}
	}
	if err := os.WriteFile(SignaturePath(path), sig, 0o644); err != nil {
		return &IOFailure{Path: SignaturePath(path), Op: "write", Err: err}
	}
	return nil
}
