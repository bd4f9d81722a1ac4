// Package digest computes several content digests in a single read pass.
package digest

import (
	"context"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"sort"

	"github.com/zeebo/errs"
)

// ChunkSize is the read buffer used when streaming input into the hashers.
const ChunkSize = 64 * 1024

var (
	// ErrIO wraps failures reading the input stream.
	ErrIO = errs.Class("io error")
	// ErrUnknownAlgorithm is returned for unsupported algorithm names.
	ErrUnknownAlgorithm = errs.Class("unknown digest algorithm")
	// ErrNoAlgorithms is returned when an empty algorithm set is requested.
	ErrNoAlgorithms = errs.Class("no digest algorithms")
	// ErrDuplicateAlgorithm is returned when a set names an algorithm twice.
	ErrDuplicateAlgorithm = errs.Class("duplicate digest algorithm")
)

// Digests maps each requested algorithm to its digest value.
type Digests map[Algorithm][]byte

// Hex returns the lowercase hex form of the digest for alg, or "" if absent.
func (d Digests) Hex(alg Algorithm) string {
	v, ok := d[alg]
	if !ok {
		return ""
	}
	return hex.EncodeToString(v)
}

// Algorithms returns the algorithms present, sorted by name.
func (d Digests) Algorithms() []Algorithm {
	algs := make([]Algorithm, 0, len(d))
	for alg := range d {
		algs = append(algs, alg)
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

// Writer feeds every byte written to it into one hasher per algorithm.
type Writer struct {
	algs   []Algorithm
	hashes []hash.Hash
	n      int64
}

// NewWriter creates a Writer for a non-empty, duplicate-free algorithm set.
func NewWriter(algs []Algorithm) (*Writer, error) {
	if err := validate(algs); err != nil {
		return nil, err
	}
	w := &Writer{
		algs:   append([]Algorithm(nil), algs...),
		hashes: make([]hash.Hash, len(algs)),
	}
	for i, alg := range algs {
		h, err := alg.newHash()
		if err != nil {
			return nil, err
		}
		w.hashes[i] = h
	}
	return w, nil
}

// Write never fails; hash.Hash writes are infallible.
func (w *Writer) Write(p []byte) (int, error) {
	for _, h := range w.hashes {
		h.Write(p)
	}
	w.n += int64(len(p))
	return len(p), nil
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.n
}

// Sum returns the digests of everything written so far.
func (w *Writer) Sum() Digests {
	out := make(Digests, len(w.algs))
	for i, alg := range w.algs {
		out[alg] = w.hashes[i].Sum(nil)
	}
	return out
}

// Copy streams src into dst in ChunkSize reads, checking ctx between chunks.
// Read failures are classed ErrIO. It returns the number of bytes copied.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			written, werr := dst.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			if written != n {
				return total, io.ErrShortWrite
			}
		}
		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		if rerr != nil {
			return total, ErrIO.Wrap(rerr)
		}
	}
}

// Sum reads r to the end exactly once and returns the digests for algs
// together with the number of bytes read.
func Sum(ctx context.Context, r io.Reader, algs []Algorithm) (Digests, int64, error) {
	w, err := NewWriter(algs)
	if err != nil {
		return nil, 0, err
	}
	n, err := Copy(ctx, w, r)
	if err != nil {
		return nil, n, err
	}
	return w.Sum(), n, nil
}
