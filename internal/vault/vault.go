// Package vault stores catalog snapshots away from the machine that owns
// the catalog.
package vault

import (
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/errs"
)

// ErrSnapshotNotFound is returned by GetSnapshot when nothing was stored
// under the requested name.
var ErrSnapshotNotFound = errs.Class("snapshot not found")

// snapshotKey is the location of a snapshot relative to a vault root.
func snapshotKey(catalogID, name string) (string, error) {
	for _, part := range []string{catalogID, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid snapshot key component %q", part)
		}
	}
	return "snapshots/" + catalogID + "/" + name, nil
}

// sizedReader fails the read that reaches EOF when the stream did not
// hold exactly size bytes, so uploads abort before anything is committed.
type sizedReader struct {
	r    io.Reader
	size int64
	n    int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	if s.n > s.size {
		return n, checkSize(s.size, s.n)
	}
	if err == io.EOF {
		if serr := checkSize(s.size, s.n); serr != nil {
			return n, serr
		}
	}
	return n, err
}

func checkSize(expected, got int64) error {
	if expected != got {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, got)
	}
	return nil
}
