package delta

import (
	"context"
	"crypto/sha256"
	"fmt"
	"foldersync/internal/util"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

type opKind uint8

const (
	opCopy opKind = iota + 1
	opInsert
	opEnd
)

// maxInsert bounds the size of a single literal run.
const maxInsert = 1 << 20

// op is one delta instruction. Copy reuses a range of the basis, insert
// carries literal bytes and end closes the stream with the expected result.
type op struct {
	Kind   opKind `cbor:"k"`
	Offset int64  `cbor:"o,omitempty"`
	Length int64  `cbor:"n,omitempty"`
	Data   []byte `cbor:"d,omitempty"`
	Hash   []byte `cbor:"h,omitempty"`
}

type Stats struct {
	Size     int64
	Copied   int64
	Inserted int64
}

type deltaWriter struct {
	enc     *cbor.Encoder
	pending *op
	stats   Stats
}

func (w *deltaWriter) flush() error {
	if w.pending == nil {
		return nil
	}
	p := w.pending
	w.pending = nil
	return w.enc.Encode(p)
}

func (w *deltaWriter) copyBlock(b Block) error {
	w.stats.Copied += b.Length
	if p := w.pending; p != nil && p.Kind == opCopy && p.Offset+p.Length == b.Offset {
		p.Length += b.Length
		return nil
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.pending = &op{Kind: opCopy, Offset: b.Offset, Length: b.Length}
	return nil
}

func (w *deltaWriter) insert(chunk []byte) error {
	w.stats.Inserted += int64(len(chunk))
	if p := w.pending; p != nil && p.Kind == opInsert && len(p.Data)+len(chunk) <= maxInsert {
		p.Data = append(p.Data, chunk...)
		return nil
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.pending = &op{Kind: opInsert, Data: append([]byte(nil), chunk...)}
	return nil
}

// WriteDelta encodes the instructions that rebuild src from the basis
// described by sig. The stream is zstd compressed.
func WriteDelta(ctx context.Context, src io.Reader, sig *Signature, w io.Writer) (Stats, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create compressor: %w", err)
	}

	dw := &deltaWriter{enc: cbor.NewEncoder(zw)}
	spl := sig.Params.normalized().splitter(func(chunk []byte, _ uint) error {
		sum := sha256.Sum256(chunk)
		if b, ok := sig.lookup(sum[:]); ok && b.Length == int64(len(chunk)) {
			return dw.copyBlock(b)
		}
		return dw.insert(chunk)
	})

	h := sha256.New()
	size, err := util.CopyContext(ctx, spl, io.TeeReader(src, h))
	if err == nil {
		err = spl.Close()
	}
	if err == nil {
		err = dw.flush()
	}
	if err == nil {
		err = dw.enc.Encode(op{Kind: opEnd, Length: size, Hash: h.Sum(nil)})
	}
	if err != nil {
		_ = zw.Close()
		return Stats{}, fmt.Errorf("failed to encode delta: %w", err)
	}

	if err := zw.Close(); err != nil {
		return Stats{}, fmt.Errorf("failed to flush delta: %w", err)
	}

	dw.stats.Size = size
	return dw.stats, nil
}
