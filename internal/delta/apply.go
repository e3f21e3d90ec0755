package delta

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

var ErrChecksumMismatch = errors.New("patched content does not match source checksum")

// Apply rebuilds the source described by delta on top of basis and writes it
// to out. With verify set the result is checked against the source hash
// recorded in the stream.
func Apply(ctx context.Context, basis io.ReaderAt, delta io.Reader, out io.Writer, verify bool) (int64, error) {
	zr, err := zstd.NewReader(delta)
	if err != nil {
		return 0, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer zr.Close()

	dec := cbor.NewDecoder(zr)

	var (
		h       = sha256.New()
		mw      = io.MultiWriter(out, h)
		written int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		var o op
		if err := dec.Decode(&o); err != nil {
			if errors.Is(err, io.EOF) {
				return written, fmt.Errorf("%w: missing end marker", ErrFormat)
			}
			return written, fmt.Errorf("%w: %v", ErrFormat, err)
		}

		switch o.Kind {
		case opCopy:
			if o.Offset < 0 || o.Length < 0 {
				return written, fmt.Errorf("%w: negative copy range", ErrFormat)
			}
			n, err := io.Copy(mw, io.NewSectionReader(basis, o.Offset, o.Length))
			written += n
			if err != nil {
				return written, fmt.Errorf("failed to copy from basis: %w", err)
			}
			if n != o.Length {
				return written, fmt.Errorf("%w: copy past end of basis at %d", ErrFormat, o.Offset)
			}

		case opInsert:
			n, err := mw.Write(o.Data)
			written += int64(n)
			if err != nil {
				return written, fmt.Errorf("failed to write literal: %w", err)
			}

		case opEnd:
			if written != o.Length {
				return written, fmt.Errorf("%w: wrote %d bytes, expected %d", ErrFormat, written, o.Length)
			}
			if verify && !bytes.Equal(h.Sum(nil), o.Hash) {
				return written, ErrChecksumMismatch
			}
			return written, nil

		default:
			return written, fmt.Errorf("%w: unknown op %d", ErrFormat, o.Kind)
		}
	}
}
