package hoard_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/klauspost/compress/zip"

	"hoard-go/internal/archive"
	"hoard-go/internal/digest"
	"hoard-go/internal/hoard"
	"hoard-go/internal/model"
	"hoard-go/internal/testutil"
)

// catalogPaths returns every file path in collection "leaks".
func catalogPaths(t *testing.T, env *testEnv) []string {
	t.Helper()
	var paths []string
	err := env.svc.FindFiles(context.Background(), "leaks", hoard.FindQuery{}, func(f *model.File) error {
		paths = append(paths, f.Path)
		return nil
	})
	if err != nil {
		t.Fatalf("FindFiles() error = %v", err)
	}
	return paths
}

func entryPaths(entries []*model.FileArchiveEntry) map[string]int64 {
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		out[e.Path] = e.Size
	}
	return out
}

func TestService_AddFile(t *testing.T) {
	ctx := context.Background()

	t.Run("plain file", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		content := []byte("abcd")
		if err := env.addFile(t, "/src/y.txt", content, "/x/y.txt"); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}

		d, err := env.svc.InspectFile(ctx, "leaks", "/x/y.txt")
		if err != nil {
			t.Fatalf("InspectFile() error = %v", err)
		}
		if d.File.Size != 4 {
			t.Errorf("Size = %d, want 4", d.File.Size)
		}
		if len(d.Hashes) != len(digest.DefaultAlgorithms) {
			t.Fatalf("got %d hashes, want %d", len(d.Hashes), len(digest.DefaultAlgorithms))
		}
		want := sha256.Sum256(content)
		found := false
		for _, h := range d.Hashes {
			if h.Algorithm == "sha2-256" {
				found = true
				if string(h.Value) != string(want[:]) {
					t.Errorf("sha2-256 = %x, want %x", h.Value, want)
				}
			}
		}
		if !found {
			t.Error("no sha2-256 digest recorded")
		}
		if len(d.Entries) != 0 {
			t.Errorf("plain file has %d archive entries", len(d.Entries))
		}
		if len(d.Placements) != 1 || d.Placements[0].Partition.UUID != "P-1" || d.Placements[0].Disk.Label != "disk-a" {
			t.Errorf("Placements = %+v, want P-1 on disk-a", d.Placements)
		}
	})

	t.Run("tar.gz entries", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		tarball := testutil.Compress(t, archive.Gzip, testutil.TarBytes(t,
			testutil.ArchiveMember{Name: "docs/", Dir: true},
			testutil.ArchiveMember{Name: "docs/readme.md", Body: []byte("hello")},
			testutil.ArchiveMember{Name: "notes.txt", Body: []byte("abc")},
		))
		if err := env.addFile(t, "/src/bundle.tar.gz", tarball, "/bundle.tar.gz"); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}

		d, err := env.svc.InspectFile(ctx, "leaks", "/bundle.tar.gz")
		if err != nil {
			t.Fatalf("InspectFile() error = %v", err)
		}
		got := entryPaths(d.Entries)
		if len(got) != 2 || got["docs/readme.md"] != 5 || got["notes.txt"] != 3 {
			t.Errorf("entries = %v, want docs/readme.md:5 notes.txt:3", got)
		}
		if d.File.Size != int64(len(tarball)) {
			t.Errorf("Size = %d, want compressed size %d", d.File.Size, len(tarball))
		}
	})

	t.Run("zip entries", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		zipped := testutil.ZipBytes(t,
			testutil.ArchiveMember{Name: "a.txt", Body: []byte("1234")},
			testutil.ArchiveMember{Name: "b/c.txt", Body: []byte("0123456789")},
		)
		if err := env.addFile(t, "/src/z.zip", zipped, "/z.zip"); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}
		d, err := env.svc.InspectFile(ctx, "leaks", "/z.zip")
		if err != nil {
			t.Fatalf("InspectFile() error = %v", err)
		}
		got := entryPaths(d.Entries)
		if len(got) != 2 || got["a.txt"] != 4 || got["b/c.txt"] != 10 {
			t.Errorf("entries = %v, want a.txt:4 b/c.txt:10", got)
		}
	})

	t.Run("inspection disabled", func(t *testing.T) {
		opts := hoard.DefaultOptions()
		opts.InspectArchives = false
		env := newRegisteredEnv(t, opts)
		zipped := testutil.ZipBytes(t, testutil.ArchiveMember{Name: "a.txt", Body: []byte("1234")})
		if err := env.addFile(t, "/src/z.zip", zipped, "/z.zip"); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}
		d, err := env.svc.InspectFile(ctx, "leaks", "/z.zip")
		if err != nil {
			t.Fatalf("InspectFile() error = %v", err)
		}
		if len(d.Entries) != 0 {
			t.Errorf("got %d entries with inspection disabled", len(d.Entries))
		}
	})

	t.Run("duplicate path leaves catalog unchanged", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		if err := env.addFile(t, "/src/y.txt", []byte("abcd"), "/x/y.txt"); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}
		err := env.addFile(t, "/src/other.txt", []byte("something else"), "/x/y.txt")
		if !hoard.ErrDuplicatePath.Has(err) {
			t.Fatalf("AddFile() error = %v, want ErrDuplicatePath", err)
		}
		d, err := env.svc.InspectFile(ctx, "leaks", "/x/y.txt")
		if err != nil {
			t.Fatalf("InspectFile() error = %v", err)
		}
		if d.File.Size != 4 {
			t.Errorf("Size = %d, want original 4", d.File.Size)
		}
		if env.fsmgr.OpenCount() != 1 {
			t.Errorf("OpenCount() = %d, duplicate source should not be read", env.fsmgr.OpenCount())
		}
	})

	t.Run("path below a file", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		if err := env.addFile(t, "/src/y.txt", []byte("abcd"), "/x/y.txt"); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}
		err := env.addFile(t, "/src/z.txt", []byte("z"), "/x/y.txt/z.txt")
		if !hoard.ErrPathConflict.Has(err) {
			t.Errorf("AddFile() error = %v, want ErrPathConflict", err)
		}
	})

	t.Run("unknown collection and partition", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		env.fsmgr.AddFile("/src/y.txt", []byte("abcd"))
		src, _ := env.fsmgr.Resolve("/src/y.txt")
		if _, err := env.svc.AddFile(ctx, "nope", "P-1", src, "/y.txt"); !hoard.ErrUnknownCollection.Has(err) {
			t.Errorf("AddFile() error = %v, want ErrUnknownCollection", err)
		}
		if _, err := env.svc.AddFile(ctx, "leaks", "P-9", src, "/y.txt"); !hoard.ErrUnknownPartition.Has(err) {
			t.Errorf("AddFile() error = %v, want ErrUnknownPartition", err)
		}
	})

	t.Run("invalid destination", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		for _, dest := range []string{"", "/", "relative.txt", "/a/../../b"} {
			if err := env.addFile(t, "/src/y.txt", []byte("abcd"), dest); err == nil {
				t.Errorf("AddFile(dest=%q) succeeded", dest)
			}
		}
		if paths := catalogPaths(t, env); len(paths) != 0 {
			t.Errorf("catalog has %v after rejected adds", paths)
		}
	})

	t.Run("directory source", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		env.fsmgr.AddDirectory("/src")
		src, _ := env.fsmgr.Resolve("/src")
		if _, err := env.svc.AddFile(ctx, "leaks", "P-1", src, "/src"); !hoard.ErrInvalidArgument.Has(err) {
			t.Errorf("AddFile() error = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestService_AddFile_CorruptArchive(t *testing.T) {
	ctx := context.Background()
	truncated := func(t *testing.T) []byte {
		full := testutil.Compress(t, archive.Gzip, testutil.TarBytes(t,
			testutil.ArchiveMember{Name: "a.txt", Body: make([]byte, 4096)},
			testutil.ArchiveMember{Name: "b.txt", Body: []byte("tail")},
		))
		return full[:len(full)/2]
	}

	t.Run("opaque policy catalogs without entries", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		data := truncated(t)
		if err := env.addFile(t, "/src/broken.tar.gz", data, "/broken.tar.gz"); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}
		d, err := env.svc.InspectFile(ctx, "leaks", "/broken.tar.gz")
		if err != nil {
			t.Fatalf("InspectFile() error = %v", err)
		}
		if len(d.Entries) != 0 {
			t.Errorf("corrupt archive recorded %d entries", len(d.Entries))
		}
		if d.File.Size != int64(len(data)) {
			t.Errorf("Size = %d, want %d", d.File.Size, len(data))
		}
		if len(d.Hashes) == 0 {
			t.Error("corrupt archive recorded no hashes")
		}
	})

	t.Run("reject policy writes nothing", func(t *testing.T) {
		opts := hoard.DefaultOptions()
		opts.CorruptPolicy = hoard.CorruptReject
		env := newRegisteredEnv(t, opts)
		err := env.addFile(t, "/src/broken.tar.gz", truncated(t), "/broken.tar.gz")
		if !archive.ErrCorrupt.Has(err) {
			t.Fatalf("AddFile() error = %v, want ErrCorrupt", err)
		}
		if paths := catalogPaths(t, env); len(paths) != 0 {
			t.Errorf("catalog has %v after rejected archive", paths)
		}
	})

	t.Run("reject policy catches a bad gzip trailer", func(t *testing.T) {
		opts := hoard.DefaultOptions()
		opts.CorruptPolicy = hoard.CorruptReject
		env := newRegisteredEnv(t, opts)
		data := testutil.Compress(t, archive.Gzip, testutil.TarBytes(t,
			testutil.ArchiveMember{Name: "a.txt", Body: []byte("hello")},
		))
		data[len(data)-8] ^= 0xff
		err := env.addFile(t, "/src/bad.tar.gz", data, "/bad.tar.gz")
		if !archive.ErrCorrupt.Has(err) {
			t.Fatalf("AddFile() error = %v, want ErrCorrupt", err)
		}
		if paths := catalogPaths(t, env); len(paths) != 0 {
			t.Errorf("catalog has %v after rejected archive", paths)
		}
	})

	t.Run("zip entry size out of range degrades to opaque", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		if _, err := zw.CreateRaw(&zip.FileHeader{Name: "big.bin", Method: zip.Store, UncompressedSize64: 1 << 63}); err != nil {
			t.Fatalf("CreateRaw() error = %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := env.addFile(t, "/src/big.zip", buf.Bytes(), "/big.zip"); err != nil {
			t.Fatalf("AddFile() error = %v", err)
		}
		d, err := env.svc.InspectFile(ctx, "leaks", "/big.zip")
		if err != nil {
			t.Fatalf("InspectFile() error = %v", err)
		}
		if len(d.Entries) != 0 {
			t.Errorf("Entries = %v, want none", d.Entries)
		}
	})

	t.Run("malformed entry always aborts", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		data := testutil.TarBytes(t, testutil.ArchiveMember{Name: "bad-\xff\xfe.txt", Body: []byte("x"), GNU: true})
		err := env.addFile(t, "/src/bad.tar", data, "/bad.tar")
		if !archive.ErrMalformedEntry.Has(err) {
			t.Fatalf("AddFile() error = %v, want ErrMalformedEntry", err)
		}
		if paths := catalogPaths(t, env); len(paths) != 0 {
			t.Errorf("catalog has %v after malformed archive", paths)
		}
	})
}

func TestService_AddFile_Aborts(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		env.fsmgr.AddFile("/src/y.txt", []byte("abcd"))
		src, _ := env.fsmgr.Resolve("/src/y.txt")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := env.svc.AddFile(ctx, "leaks", "P-1", src, "/x/y.txt")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("AddFile() error = %v, want context.Canceled", err)
		}
		if paths := catalogPaths(t, env); len(paths) != 0 {
			t.Errorf("catalog has %v after cancelled add", paths)
		}
	})

	t.Run("read failure", func(t *testing.T) {
		errDisk := errors.New("device went away")
		for _, name := range []string{"/src/y.bin", "/src/y.tar"} {
			env := newRegisteredEnv(t, hoard.DefaultOptions())
			env.fsmgr.AddFailingFile(name, testutil.TarBytes(t, testutil.ArchiveMember{Name: "a", Body: make([]byte, 2048)}), 1024, errDisk)
			src, _ := env.fsmgr.Resolve(name)
			_, err := env.svc.AddFile(context.Background(), "leaks", "P-1", src, "/y")
			if !digest.ErrIO.Has(err) || !errors.Is(err, errDisk) {
				t.Errorf("AddFile(%s) error = %v, want ErrIO wrapping the read error", name, err)
			}
			if paths := catalogPaths(t, env); len(paths) != 0 {
				t.Errorf("catalog has %v after failed read of %s", paths, name)
			}
		}
	})
}

func TestService_AddTree(t *testing.T) {
	ctx := context.Background()
	env := newRegisteredEnv(t, hoard.DefaultOptions())
	env.fsmgr.AddDirectory("/src")
	env.fsmgr.AddFile("/src/a.txt", []byte("a"))
	env.fsmgr.AddFile("/src/sub/b.txt", []byte("bb"))
	env.fsmgr.AddFile("/src/sub/.DS_Store", []byte("junk"))
	env.fsmgr.Ignore(".DS_Store")

	src, err := env.fsmgr.Resolve("/src")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	n, err := env.svc.AddTree(ctx, "leaks", "P-1", src, "/backup")
	if err != nil {
		t.Fatalf("AddTree() error = %v", err)
	}
	if n != 2 {
		t.Errorf("AddTree() = %d, want 2", n)
	}
	got := catalogPaths(t, env)
	want := []string{"/backup/a.txt", "/backup/sub/b.txt"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("catalog paths = %v, want %v", got, want)
	}

	t.Run("stops at first failure", func(t *testing.T) {
		env.fsmgr.AddFile("/src/c.txt", []byte("c"))
		n, err := env.svc.AddTree(ctx, "leaks", "P-1", src, "/backup")
		if !hoard.ErrDuplicatePath.Has(err) {
			t.Fatalf("AddTree() error = %v, want ErrDuplicatePath", err)
		}
		if n != 0 {
			t.Errorf("AddTree() = %d, want 0 before the failing file", n)
		}
	})

	t.Run("file source", func(t *testing.T) {
		f, _ := env.fsmgr.Resolve("/src/a.txt")
		if _, err := env.svc.AddTree(ctx, "leaks", "P-1", f, "/backup"); !hoard.ErrInvalidArgument.Has(err) {
			t.Errorf("AddTree() error = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestService_AttachFile(t *testing.T) {
	ctx := context.Background()
	env := newRegisteredEnv(t, hoard.DefaultOptions())
	if _, err := env.svc.AddDisk(ctx, "/dev/sdb", "disk-b"); err != nil {
		t.Fatalf("AddDisk() error = %v", err)
	}
	if _, err := env.svc.AddPartition(ctx, "/dev/sdb1"); err != nil {
		t.Fatalf("AddPartition() error = %v", err)
	}
	if err := env.addFile(t, "/src/y.txt", []byte("abcd"), "/x/y.txt"); err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}

	if err := env.svc.AttachFile(ctx, "leaks", "P-2", "/x/y.txt"); err != nil {
		t.Fatalf("AttachFile() error = %v", err)
	}
	d, err := env.svc.InspectFile(ctx, "leaks", "/x/y.txt")
	if err != nil {
		t.Fatalf("InspectFile() error = %v", err)
	}
	if len(d.Placements) != 2 {
		t.Fatalf("got %d placements, want 2", len(d.Placements))
	}
	if env.fsmgr.OpenCount() != 1 {
		t.Errorf("OpenCount() = %d, attach must not read the source", env.fsmgr.OpenCount())
	}

	if err := env.svc.AttachFile(ctx, "leaks", "P-2", "/x/y.txt"); !hoard.ErrDuplicatePlacement.Has(err) {
		t.Errorf("AttachFile() again error = %v, want ErrDuplicatePlacement", err)
	}
	if err := env.svc.AttachFile(ctx, "leaks", "P-2", "/x/missing.txt"); !hoard.ErrNotFound.Has(err) {
		t.Errorf("AttachFile() missing error = %v, want ErrNotFound", err)
	}
}
