package delta

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"foldersync/internal/util"
	"io"

	"github.com/bobg/hashsplit"
	"github.com/fxamacker/cbor/v2"
)

const formatVersion = 1

const (
	DefaultSplitBits = 13
	DefaultMinSize   = 2048
)

var ErrFormat = errors.New("invalid delta stream")

// Params controls content defined chunking. Both sides of an update must
// split with the same values, so they travel inside the signature.
type Params struct {
	SplitBits uint `cbor:"bits"`
	MinSize   int  `cbor:"min"`
}

func DefaultParams() Params {
	return Params{SplitBits: DefaultSplitBits, MinSize: DefaultMinSize}
}

func (p Params) normalized() Params {
	if p.SplitBits == 0 {
		p.SplitBits = DefaultSplitBits
	}
	if p.MinSize <= 0 {
		p.MinSize = DefaultMinSize
	}
	return p
}

func (p Params) splitter(fn func(chunk []byte, level uint) error) *hashsplit.Splitter {
	spl := hashsplit.NewSplitter(fn)
	spl.SplitBits = p.SplitBits
	spl.MinSize = p.MinSize
	return spl
}

type Block struct {
	Hash   []byte `cbor:"h"`
	Offset int64  `cbor:"o"`
	Length int64  `cbor:"n"`
}

type sigHeader struct {
	Version int    `cbor:"v"`
	Params  Params `cbor:"p"`
	Size    int64  `cbor:"s"`
	Blocks  int    `cbor:"b"`
}

// Signature lists the chunks of a basis file by content hash.
type Signature struct {
	Params Params
	Size   int64
	Blocks []Block

	index map[string]int
}

func (s *Signature) lookup(hash []byte) (Block, bool) {
	if s.index == nil {
		s.index = make(map[string]int, len(s.Blocks))
		for i, b := range s.Blocks {
			if _, ok := s.index[string(b.Hash)]; !ok {
				s.index[string(b.Hash)] = i
			}
		}
	}

	i, ok := s.index[string(hash)]
	if !ok {
		return Block{}, false
	}
	return s.Blocks[i], true
}

// BuildSignature chunks basis and hashes every chunk.
func BuildSignature(ctx context.Context, basis io.Reader, p Params) (*Signature, error) {
	p = p.normalized()
	sig := &Signature{Params: p}

	spl := p.splitter(func(chunk []byte, _ uint) error {
		sum := sha256.Sum256(chunk)
		sig.Blocks = append(sig.Blocks, Block{
			Hash:   sum[:],
			Offset: sig.Size,
			Length: int64(len(chunk)),
		})
		sig.Size += int64(len(chunk))
		return nil
	})

	if _, err := util.CopyContext(ctx, spl, basis); err != nil {
		return nil, fmt.Errorf("failed to chunk basis: %w", err)
	}
	if err := spl.Close(); err != nil {
		return nil, fmt.Errorf("failed to chunk basis: %w", err)
	}

	return sig, nil
}

// WriteSignature builds the signature of basis and encodes it to w.
func WriteSignature(ctx context.Context, basis io.Reader, w io.Writer, p Params) (*Signature, error) {
	sig, err := BuildSignature(ctx, basis, p)
	if err != nil {
		return nil, err
	}

	enc := cbor.NewEncoder(w)
	header := sigHeader{
		Version: formatVersion,
		Params:  sig.Params,
		Size:    sig.Size,
		Blocks:  len(sig.Blocks),
	}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("failed to write signature header: %w", err)
	}

	for _, b := range sig.Blocks {
		if err := enc.Encode(b); err != nil {
			return nil, fmt.Errorf("failed to write signature block: %w", err)
		}
	}

	return sig, nil
}

func ReadSignature(r io.Reader) (*Signature, error) {
	dec := cbor.NewDecoder(r)

	var header sigHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: signature header: %v", ErrFormat, err)
	}
	if header.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported signature version %d", ErrFormat, header.Version)
	}

	sig := &Signature{
		Params: header.Params.normalized(),
		Size:   header.Size,
		Blocks: make([]Block, 0, min(max(header.Blocks, 0), 1<<16)),
	}

	for range header.Blocks {
		var b Block
		if err := dec.Decode(&b); err != nil {
			return nil, fmt.Errorf("%w: signature block: %v", ErrFormat, err)
		}
		if len(b.Hash) != sha256.Size || b.Offset < 0 || b.Length < 0 {
			return nil, fmt.Errorf("%w: malformed signature block", ErrFormat)
		}
		sig.Blocks = append(sig.Blocks, b)
	}

	return sig, nil
}
