package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"hoard-go/internal/archive"
)

// ArchiveMember describes one member written into a test archive.
type ArchiveMember struct {
	Name string
	Body []byte
	Dir  bool
	// GNU forces the GNU header format so arbitrary name bytes are kept.
	GNU bool
}

// TarBytes builds an uncompressed tar archive.
func TarBytes(t *testing.T, members ...ArchiveMember) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		hdr := &tar.Header{Name: m.Name, Mode: 0644, Size: int64(len(m.Body)), Typeflag: tar.TypeReg}
		if m.Dir {
			hdr = &tar.Header{Name: m.Name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		if m.GNU {
			hdr.Format = tar.FormatGNU
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header %q: %v", m.Name, err)
		}
		if !m.Dir {
			if _, err := tw.Write(m.Body); err != nil {
				t.Fatalf("writing tar body %q: %v", m.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	return buf.Bytes()
}

// ZipBytes builds a zip archive.
func ZipBytes(t *testing.T, members ...ArchiveMember) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		name := m.Name
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip member %q: %v", name, err)
		}
		if !m.Dir {
			if _, err := w.Write(m.Body); err != nil {
				t.Fatalf("writing zip member %q: %v", name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	return buf.Bytes()
}

// Compress wraps data in the given compression stage. Bzip2 has no
// encoder available and is served from checked-in fixtures instead.
func Compress(t *testing.T, c archive.Compression, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch c {
	case archive.Uncompressed:
		return append([]byte(nil), data...)
	case archive.Gzip:
		w = gzip.NewWriter(&buf)
	case archive.XZ:
		w, err = xz.NewWriter(&buf)
	case archive.Zstd:
		w, err = zstd.NewWriter(&buf)
	case archive.LZ4:
		w = lz4.NewWriter(&buf)
	default:
		t.Fatalf("no test encoder for %s", c)
	}
	if err != nil {
		t.Fatalf("creating %s writer: %v", c, err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compressing with %s: %v", c, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing %s writer: %v", c, err)
	}
	return buf.Bytes()
}
