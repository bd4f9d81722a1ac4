package hoard

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"hoard-go/internal/digest"
	"hoard-go/internal/model"
)

// FileDetail is everything the catalog knows about one file.
type FileDetail struct {
	File       model.File
	Collection model.Collection
	Hashes     []*model.FileHash
	Entries    []*model.FileArchiveEntry
	Placements []*PlacementDetail
}

// ListChildren returns the files directly below prefix, ordered by path.
// A prefix without a trailing slash that names a file returns just that
// file. Names starting with "." are hidden unless all is set.
func (s *Service) ListChildren(ctx context.Context, collection, prefix string, all bool) ([]*model.File, error) {
	dir, err := CanonicalPath(prefix)
	if err != nil {
		return nil, err
	}
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	if exact, err := s.exactFile(ctx, coll, prefix, dir); err != nil || exact != nil {
		return exact, err
	}

	files, err := s.catalog.ListDirectory(ctx, coll.ID, dir, all)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return files, nil
}

// FindFiles calls fn for every file below q.Prefix that matches q, in path
// order. Rows are streamed; fn returning an error stops the walk.
func (s *Service) FindFiles(ctx context.Context, collection string, q FindQuery, fn func(*model.File) error) error {
	if q.MinDepth < 0 || q.MaxDepth < 0 {
		return ErrInvalidArgument.New("depth cannot be negative")
	}
	if q.MaxDepth > 0 && q.MinDepth > q.MaxDepth {
		return ErrInvalidArgument.New("min depth %d is greater than max depth %d", q.MinDepth, q.MaxDepth)
	}
	for _, re := range []string{q.Name, q.Path} {
		if re == "" {
			continue
		}
		if _, err := regexp.Compile(re); err != nil {
			return ErrInvalidArgument.New("invalid regular expression %q: %v", re, err)
		}
	}

	raw := q.Prefix
	if raw == "" {
		raw = "/"
	}
	dir, err := CanonicalPath(raw)
	if err != nil {
		return err
	}
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}

	exact, err := s.exactFile(ctx, coll, raw, dir)
	if err != nil {
		return err
	}
	if exact != nil {
		return fn(exact[0])
	}

	q.Prefix = dir
	if err := s.catalog.WalkFiles(ctx, coll.ID, q, fn); err != nil {
		return fmt.Errorf("finding files under %s: %w", dir, err)
	}
	return nil
}

// exactFile returns the file named by a prefix written without a trailing
// slash, or nil when the prefix is a directory.
func (s *Service) exactFile(ctx context.Context, coll *model.Collection, raw, canonical string) ([]*model.File, error) {
	if canonical == "/" || strings.HasSuffix(raw, "/") {
		return nil, nil
	}
	f, err := s.catalog.FindFileByPath(ctx, coll.ID, canonical)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	return []*model.File{f}, nil
}

// InspectFile returns the hashes, archive entries and placements of the
// file at path. Placements are reported whether or not the media is
// currently connected.
func (s *Service) InspectFile(ctx context.Context, collection, path string) (*FileDetail, error) {
	path, err := FilePath(path)
	if err != nil {
		return nil, err
	}
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	f, err := s.catalog.FindFileByPath(ctx, coll.ID, path)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if f == nil {
		return nil, ErrNotFound.New("%s in collection %s", path, coll.Name)
	}

	detail := &FileDetail{File: *f, Collection: *coll}
	if detail.Hashes, err = s.catalog.FileHashes(ctx, f.ID); err != nil {
		return nil, fmt.Errorf("loading hashes: %w", err)
	}
	if detail.Entries, err = s.catalog.FileArchiveEntries(ctx, f.ID); err != nil {
		return nil, fmt.Errorf("loading archive entries: %w", err)
	}
	if detail.Placements, err = s.catalog.FilePlacements(ctx, f.ID); err != nil {
		return nil, fmt.Errorf("loading placements: %w", err)
	}
	return detail, nil
}

// FindByDigest returns every file, in any collection, whose recorded digest
// for algorithm equals the hex value.
func (s *Service) FindByDigest(ctx context.Context, algorithm, hexValue string) ([]*FileMatch, error) {
	alg, err := digest.ParseAlgorithm(algorithm)
	if err != nil {
		return nil, ErrInvalidArgument.Wrap(err)
	}
	value, err := hex.DecodeString(strings.TrimSpace(hexValue))
	if err != nil {
		return nil, ErrInvalidArgument.New("digest is not hex: %v", err)
	}
	if len(value) != alg.Size() {
		return nil, ErrInvalidArgument.New("%s digest must be %d bytes, got %d", alg, alg.Size(), len(value))
	}

	matches, err := s.catalog.FindFilesByHash(ctx, alg.String(), value)
	if err != nil {
		return nil, fmt.Errorf("finding files by hash: %w", err)
	}
	return matches, nil
}
