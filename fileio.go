package xlgrid

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// PlainExt names save files written without compression. Every other
// extension is written zstd compressed. Open detects either.
const PlainExt = ".xlgu"

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Open loads the save file at path. The document starts trusted only if a
// verifier is configured and the detached signature <path>.sig verifies;
// otherwise it stays in safe mode.
func (g *Grid) Open(ctx context.Context, path string) (LoadReport, error) {
	trusted := false
	if v := g.opts.verifier; v != nil {
		ok, err := v.Verify(path, SignaturePath(path))
		if err != nil {
			g.lock()
			g.logger.Warn("signature check failed", "path", path, "error", err)
			g.unlock()
		}
		trusted = ok
	}

	f, err := os.Open(path)
	if err != nil {
		return LoadReport{}, &IOFailure{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return LoadReport{}, &IOFailure{Path: path, Op: "read", Err: err}
		}
		defer dec.Close()
		r = dec
	}

	report, err := g.Load(ctx, r)
	if err != nil {
		var ioErr *IOFailure
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = path
		}
		return report, err
	}

	g.lock()
	g.logger.Info("opened", "path", path, "trusted", trusted)
	g.unlock()
	if trusted {
		if err := g.LeaveSafeMode(); err != nil {
			return report, fmt.Errorf("open %s: %w", path, err)
		}
	}
	return report, nil
}

// SaveFile writes the document to path, compressed unless path ends in
// PlainExt, and signs it when a signer is configured. A failed or aborted
// save removes the partial file.
func (g *Grid) SaveFile(ctx context.Context, path string) error {
	if err := g.writeFile(ctx, path); err != nil {
		return err
	}
	if s := g.opts.signer; s != nil {
		if err := SignFile(s, path); err != nil {
			return err
		}
	}
	g.lock()
	g.logger.Info("saved", "path", path, "signed", g.opts.signer != nil)
	g.unlock()
	return nil
}

func (g *Grid) writeFile(ctx context.Context, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &IOFailure{Path: path, Op: "open", Err: err}
	}
	var enc *zstd.Encoder
	defer func() {
		if err != nil {
			if enc != nil {
				enc.Close()
			}
			f.Close()
			os.Remove(path)
		}
	}()

	var w io.Writer = f
	if filepath.Ext(path) != PlainExt {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return &IOFailure{Path: path, Op: "write", Err: err}
		}
		w = enc
	}
	if err = g.Save(ctx, w); err != nil {
		var ioErr *IOFailure
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = path
		}
		return err
	}
	if enc != nil {
		if err = enc.Close(); err != nil {
			return &IOFailure{Path: path, Op: "write", Err: err}
		}
	}
	if err = f.Close(); err != nil {
		return &IOFailure{Path: path, Op: "write", Err: err}
	}
	return nil
}
