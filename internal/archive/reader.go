// Package archive lists the members of tar and zip containers, optionally
// wrapped in one decompression stage, without extracting anything.
package archive

import (
	"archive/tar"
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/errs"
)

var (
	// ErrCorrupt marks a stream that claims to be an archive but cannot be
	// parsed to the end.
	ErrCorrupt = errs.Class("corrupt archive")
	// ErrMalformedEntry marks an entry whose path is empty or not UTF-8.
	ErrMalformedEntry = errs.Class("malformed archive entry")
)

// Entry is one member of an archive. Directories are never reported.
type Entry struct {
	Path string
	Size int64
}

// Reader yields archive entries one at a time. Next returns io.EOF once the
// archive is exhausted.
type Reader struct {
	format  Format
	next    func() (Entry, error)
	closers []func() error
}

// Format returns the resolved format. For compressed streams whose
// container was Undetermined this is Tar or Opaque after sniffing.
func (r *Reader) Format() Format {
	return r.format
}

// Next returns the next non-directory entry.
func (r *Reader) Next() (Entry, error) {
	if r.next == nil {
		return Entry{}, io.EOF
	}
	return r.next()
}

// Close releases decompressor resources. It does not close the source.
func (r *Reader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}

// NewReader builds a streaming Reader for the tar family. Zip needs random
// access and must go through NewZipReader instead.
func NewReader(src io.Reader, f Format) (*Reader, error) {
	if f.Container == Zip {
		return nil, fmt.Errorf("zip archives need random access; use NewZipReader")
	}
	r := &Reader{format: f}
	if f.IsOpaque() {
		return r, nil
	}

	stream, err := r.decompress(src, f.Compression)
	if err != nil {
		r.Close()
		return nil, err
	}

	if f.Container == Undetermined {
		br := bufio.NewReaderSize(stream, SniffLen)
		head, err := br.Peek(SniffLen)
		if err != nil && !errors.Is(err, io.EOF) {
			r.Close()
			return nil, ErrCorrupt.Wrap(err)
		}
		if !isTar(head) {
			r.format.Container = Opaque
			return r, nil
		}
		r.format.Container = Tar
		stream = br
	}

	tr := tar.NewReader(stream)
	if f.Compression == Uncompressed {
		r.next = func() (Entry, error) { return nextTarEntry(tr) }
		return r, nil
	}
	// The decompressor only checks its trailer at end of stream, which the
	// tar reader never reaches on its own.
	drained := false
	r.next = func() (Entry, error) {
		e, err := nextTarEntry(tr)
		if errors.Is(err, io.EOF) && !drained {
			drained = true
			if _, derr := io.Copy(io.Discard, stream); derr != nil {
				return Entry{}, ErrCorrupt.Wrap(derr)
			}
		}
		return e, err
	}
	return r, nil
}

func (r *Reader) decompress(src io.Reader, c Compression) (io.Reader, error) {
	switch c {
	case Uncompressed:
		return src, nil
	case Gzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, ErrCorrupt.Wrap(err)
		}
		r.closers = append(r.closers, zr.Close)
		return zr, nil
	case XZ:
		xr, err := xz.NewReader(src)
		if err != nil {
			return nil, ErrCorrupt.Wrap(err)
		}
		return xr, nil
	case Zstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, ErrCorrupt.Wrap(err)
		}
		r.closers = append(r.closers, func() error { zr.Close(); return nil })
		return zr, nil
	case LZ4:
		return lz4.NewReader(src), nil
	case Bzip2:
		return bzip2.NewReader(src), nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}

func nextTarEntry(tr *tar.Reader) (Entry, error) {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		if err != nil {
			return Entry{}, ErrCorrupt.Wrap(err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeXGlobalHeader:
			continue
		}
		if err := checkPath(hdr.Name); err != nil {
			return Entry{}, err
		}
		return Entry{Path: hdr.Name, Size: hdr.Size}, nil
	}
}

// NewZipReader reads the central directory of a zip archive of the given size.
func NewZipReader(src io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, ErrCorrupt.Wrap(err)
	}
	files := zr.File
	i := 0
	return &Reader{
		format: Format{Uncompressed, Zip},
		next: func() (Entry, error) {
			for i < len(files) {
				f := files[i]
				i++
				if strings.HasSuffix(f.Name, "/") {
					continue
				}
				if err := checkPath(f.Name); err != nil {
					return Entry{}, err
				}
				if f.UncompressedSize64 > math.MaxInt64 {
					return Entry{}, ErrCorrupt.New("%s: size %d out of range", f.Name, f.UncompressedSize64)
				}
				return Entry{Path: f.Name, Size: int64(f.UncompressedSize64)}, nil
			}
			return Entry{}, io.EOF
		},
	}, nil
}

func checkPath(name string) error {
	if name == "" {
		return ErrMalformedEntry.New("empty path")
	}
	if !utf8.ValidString(name) {
		return ErrMalformedEntry.New("path is not valid UTF-8: %q", name)
	}
	return nil
}

// Collect drains r. When a path repeats, as with members appended to a tar,
// the last occurrence wins and keeps the position of the first.
func Collect(r *Reader) ([]Entry, error) {
	var entries []Entry
	index := make(map[string]int)
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		if i, ok := index[e.Path]; ok {
			entries[i] = e
			continue
		}
		index[e.Path] = len(entries)
		entries = append(entries, e)
	}
}
