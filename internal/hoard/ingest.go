package hoard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"hoard-go/internal/archive"
	"hoard-go/internal/digest"
	"hoard-go/internal/model"
)

// inspection is what one read of a source file produced.
type inspection struct {
	format  archive.Format
	digests digest.Digests
	size    int64
	entries []archive.Entry
	// archiveErr is a failure of the archive reader alone; the digests
	// are still valid when it is set.
	archiveErr error
}

// AddFile catalogs the local file src at virtual path dest in a collection
// and records its placement on the given partition. The file is read once:
// its digests and, for recognized archives, its member list are computed
// from the same stream.
func (s *Service) AddFile(ctx context.Context, collection, partitionUUID string, src *Path, dest string) (*model.File, error) {
	if src.IsDir() {
		return nil, ErrInvalidArgument.New("source is a directory; use recursive mode: %s", src.String())
	}
	dest, err := FilePath(dest)
	if err != nil {
		return nil, err
	}

	coll, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	part, err := s.partition(ctx, partitionUUID)
	if err != nil {
		return nil, err
	}

	// Checked again inside the ingest transaction; this only avoids
	// hashing a large file that can never be cataloged.
	existing, err := s.catalog.FindFileByPath(ctx, coll.ID, dest)
	if err != nil {
		return nil, fmt.Errorf("checking for existing file: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicatePath.New("%s already exists in collection %s", dest, coll.Name)
	}

	f, err := s.fsmgr.Open(src)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()

	res, err := s.inspect(ctx, src.String(), f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src.String(), err)
	}
	if err := s.applyCorruptPolicy(src.String(), res); err != nil {
		return nil, err
	}

	rec := s.newIngestRecord(coll, part, dest, res)
	if err := s.catalog.IngestFile(ctx, rec); err != nil {
		return nil, fmt.Errorf("ingesting file: %w", err)
	}

	s.logger.Info("file added",
		"collection", coll.Name,
		"path", dest,
		"size", res.size,
		"format", res.format.String(),
		"entries", len(rec.Entries),
		"partition", part.UUID)
	return &rec.File, nil
}

// AddTree catalogs every regular file below the directory src at
// destDir/<relative path>, skipping ignored files. Each file is its own
// transaction; the first failure stops the walk and earlier files stay
// cataloged. Returns the number of files added.
func (s *Service) AddTree(ctx context.Context, collection, partitionUUID string, src *Path, destDir string) (int, error) {
	if !src.IsDir() {
		return 0, ErrInvalidArgument.New("source is not a directory: %s", src.String())
	}
	destDir, err := CanonicalPath(destDir)
	if err != nil {
		return 0, err
	}

	files, err := s.fsmgr.FindFiles(src, true)
	if err != nil {
		return 0, fmt.Errorf("finding files: %w", err)
	}

	count := 0
	for _, f := range files {
		ignored, err := s.fsmgr.IsIgnored(f, src.String())
		if err != nil {
			return count, fmt.Errorf("checking ignore rules: %w", err)
		}
		if ignored {
			s.logger.Debug("file ignored", "path", f.String())
			continue
		}

		rel, err := filepath.Rel(src.String(), f.String())
		if err != nil {
			return count, fmt.Errorf("calculating relative path: %w", err)
		}
		dest := path.Join(destDir, filepath.ToSlash(rel))
		if _, err := s.AddFile(ctx, collection, partitionUUID, f, dest); err != nil {
			return count, err
		}
		count++
	}

	s.logger.Info("tree added", "source", src.String(), "dest", destDir, "count", count)
	return count, nil
}

// AttachFile records that the already-cataloged file at dest is also
// stored on another partition. Nothing is re-read or re-hashed.
func (s *Service) AttachFile(ctx context.Context, collection, partitionUUID, dest string) error {
	dest, err := FilePath(dest)
	if err != nil {
		return err
	}
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}
	part, err := s.partition(ctx, partitionUUID)
	if err != nil {
		return err
	}

	file, err := s.catalog.FindFileByPath(ctx, coll.ID, dest)
	if err != nil {
		return fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return ErrNotFound.New("%s in collection %s", dest, coll.Name)
	}

	placement := &model.FilePlacement{PartitionID: part.ID, FileID: file.ID, CreatedAt: s.clock.Now()}
	if err := s.catalog.AttachFile(ctx, placement); err != nil {
		return fmt.Errorf("attaching file: %w", err)
	}

	s.logger.Info("file attached", "collection", coll.Name, "path", dest, "partition", part.UUID)
	return nil
}

// inspect reads src exactly once, computing digests and listing archive
// entries. Zip needs the central directory at the end of the file, so it is
// listed with random access after hashing instead of from the stream.
func (s *Service) inspect(ctx context.Context, name string, src SourceFile) (*inspection, error) {
	format := archive.Format{}
	if s.opts.InspectArchives {
		head := make([]byte, archive.SniffLen)
		n, err := src.ReadAt(head, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, digest.ErrIO.Wrap(err)
		}
		format = archive.Detect(name, head[:n])
	}

	switch {
	case format.IsOpaque():
		digests, size, err := digest.Sum(ctx, src, s.opts.Algorithms)
		if err != nil {
			return nil, fmt.Errorf("hashing: %w", err)
		}
		return &inspection{format: format, digests: digests, size: size}, nil

	case format.Container == archive.Zip:
		digests, size, err := digest.Sum(ctx, src, s.opts.Algorithms)
		if err != nil {
			return nil, fmt.Errorf("hashing: %w", err)
		}
		res := &inspection{format: format, digests: digests, size: size}
		zr, err := archive.NewZipReader(src, size)
		if err != nil {
			res.archiveErr = err
			return res, nil
		}
		defer zr.Close()
		res.entries, res.archiveErr = archive.Collect(zr)
		return res, nil

	default:
		return s.hashAndList(ctx, src, format)
	}
}

// hashAndList tees src into the digest writer and a pipe feeding the
// archive reader. The archive side always drains the pipe so the hashing
// side never blocks, even after the reader gives up.
func (s *Service) hashAndList(ctx context.Context, src io.Reader, format archive.Format) (*inspection, error) {
	dw, err := digest.NewWriter(s.opts.Algorithms)
	if err != nil {
		return nil, err
	}
	res := &inspection{format: format}
	pr, pw := io.Pipe()

	var g errgroup.Group
	g.Go(func() error {
		_, err := digest.Copy(ctx, io.MultiWriter(dw, pw), src)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		defer io.Copy(io.Discard, pr)
		res.format, res.entries, res.archiveErr = listStream(pr, format)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hashing: %w", err)
	}

	res.digests = dw.Sum()
	res.size = dw.Size()
	return res, nil
}

func listStream(r io.Reader, format archive.Format) (archive.Format, []archive.Entry, error) {
	ar, err := archive.NewReader(r, format)
	if err != nil {
		return format, nil, err
	}
	defer ar.Close()
	entries, err := archive.Collect(ar)
	return ar.Format(), entries, err
}

// applyCorruptPolicy decides whether an archive failure aborts the ingest.
// Malformed entries always abort; a corrupt stream aborts only under
// CorruptReject and otherwise degrades to an opaque file.
func (s *Service) applyCorruptPolicy(name string, res *inspection) error {
	err := res.archiveErr
	if err == nil {
		return nil
	}
	if archive.ErrCorrupt.Has(err) && s.opts.CorruptPolicy == CorruptOpaque {
		s.logger.Warn("corrupt archive cataloged as opaque file", "path", name, "format", res.format.String(), "error", err)
		res.entries = nil
		res.format = archive.Format{}
		return nil
	}
	return fmt.Errorf("inspecting archive %s: %w", name, err)
}

func (s *Service) newIngestRecord(coll *model.Collection, part *model.Partition, dest string, res *inspection) *IngestRecord {
	now := s.clock.Now()
	fileID := s.idgen.New()
	rec := &IngestRecord{
		File: model.File{
			ID:           fileID,
			CollectionID: coll.ID,
			Path:         dest,
			Size:         res.size,
			CreatedAt:    now,
		},
		Placement: model.FilePlacement{PartitionID: part.ID, FileID: fileID, CreatedAt: now},
	}
	for _, alg := range res.digests.Algorithms() {
		rec.Hashes = append(rec.Hashes, model.FileHash{
			ID:        s.idgen.New(),
			FileID:    fileID,
			Algorithm: alg.String(),
			Value:     res.digests[alg],
		})
	}
	for _, e := range res.entries {
		rec.Entries = append(rec.Entries, model.FileArchiveEntry{
			ID:     s.idgen.New(),
			FileID: fileID,
			Path:   e.Path,
			Size:   e.Size,
		})
	}
	return rec
}
