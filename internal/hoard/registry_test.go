package hoard_test

import (
	"context"
	"errors"
	"testing"

	"hoard-go/internal/hoard"
	"hoard-go/internal/media"
	"hoard-go/internal/testutil"
)

func TestService_AddCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("creates collection", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		c, err := env.svc.AddCollection(ctx, "  leaks ")
		if err != nil {
			t.Fatalf("AddCollection() error = %v", err)
		}
		if c.Name != "leaks" {
			t.Errorf("Name = %q, want leaks", c.Name)
		}
		if c.ID != testutil.SeqID(1) {
			t.Errorf("ID = %v, want first generated id", c.ID)
		}
		if !c.CreatedAt.Equal(env.clock.Now()) {
			t.Errorf("CreatedAt = %v, want %v", c.CreatedAt, env.clock.Now())
		}
	})

	t.Run("empty name", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		if _, err := env.svc.AddCollection(ctx, " "); !hoard.ErrInvalidArgument.Has(err) {
			t.Errorf("AddCollection() error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		if _, err := env.svc.AddCollection(ctx, "leaks"); err != nil {
			t.Fatalf("AddCollection() error = %v", err)
		}
		_, err := env.svc.AddCollection(ctx, "leaks")
		if !hoard.ErrDuplicateName.Has(err) {
			t.Errorf("AddCollection() error = %v, want ErrDuplicateName", err)
		}
		if !hoard.IsIntegrityError(err) {
			t.Error("IsIntegrityError() = false for duplicate name")
		}
		cs, _ := env.svc.ListCollections(ctx)
		if len(cs) != 1 {
			t.Errorf("ListCollections() returned %d collections, want 1", len(cs))
		}
	})
}

func TestService_AddDisk(t *testing.T) {
	ctx := context.Background()

	t.Run("serial comes from the device", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		d, err := env.svc.AddDisk(ctx, "/dev/sda", "disk-a")
		if err != nil {
			t.Fatalf("AddDisk() error = %v", err)
		}
		if d.SerialNumber != "SN123" || d.Label != "disk-a" {
			t.Errorf("AddDisk() = %+v", d)
		}
	})

	t.Run("duplicate serial leaves first registration", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		if _, err := env.svc.AddDisk(ctx, "/dev/sda", "disk-a"); err != nil {
			t.Fatalf("AddDisk() error = %v", err)
		}
		_, err := env.svc.AddDisk(ctx, "/dev/sda", "disk-b")
		if !hoard.ErrDuplicateSerial.Has(err) {
			t.Fatalf("AddDisk() error = %v, want ErrDuplicateSerial", err)
		}
		disks, err := env.svc.ListDisks(ctx)
		if err != nil {
			t.Fatalf("ListDisks() error = %v", err)
		}
		if len(disks) != 1 || disks[0].Label != "disk-a" {
			t.Errorf("ListDisks() = %+v, want only disk-a", disks)
		}
	})

	t.Run("duplicate label", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		if _, err := env.svc.AddDisk(ctx, "/dev/sda", "disk-a"); err != nil {
			t.Fatalf("AddDisk() error = %v", err)
		}
		if _, err := env.svc.AddDisk(ctx, "/dev/sdb", "disk-a"); !hoard.ErrDuplicateLabel.Has(err) {
			t.Errorf("AddDisk() error = %v, want ErrDuplicateLabel", err)
		}
	})

	t.Run("partition device", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		if _, err := env.svc.AddDisk(ctx, "/dev/sda1", "disk-a"); !media.ErrNotADisk.Has(err) {
			t.Errorf("AddDisk() error = %v, want ErrNotADisk", err)
		}
	})

	t.Run("empty label", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		if _, err := env.svc.AddDisk(ctx, "/dev/sda", ""); !hoard.ErrInvalidArgument.Has(err) {
			t.Errorf("AddDisk() error = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestService_AddPartition(t *testing.T) {
	ctx := context.Background()

	t.Run("binds to the parent disk", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		d, err := env.svc.AddDisk(ctx, "/dev/sda", "disk-a")
		if err != nil {
			t.Fatalf("AddDisk() error = %v", err)
		}
		p, err := env.svc.AddPartition(ctx, "/dev/sda1")
		if err != nil {
			t.Fatalf("AddPartition() error = %v", err)
		}
		if p.DiskID != d.ID || p.UUID != "P-1" || p.Capacity != 1000000 {
			t.Errorf("AddPartition() = %+v", p)
		}
	})

	t.Run("parent disk not registered", func(t *testing.T) {
		env := newTestEnv(t, hoard.DefaultOptions())
		_, err := env.svc.AddPartition(ctx, "/dev/sda1")
		if !hoard.ErrUnknownDisk.Has(err) {
			t.Errorf("AddPartition() error = %v, want ErrUnknownDisk", err)
		}
	})

	t.Run("duplicate uuid", func(t *testing.T) {
		env := newRegisteredEnv(t, hoard.DefaultOptions())
		_, err := env.svc.AddPartition(ctx, "/dev/sda1")
		if !hoard.ErrDuplicateUUID.Has(err) {
			t.Fatalf("AddPartition() error = %v, want ErrDuplicateUUID", err)
		}
		ps, _ := env.svc.ListPartitions(ctx)
		if len(ps) != 1 {
			t.Errorf("ListPartitions() returned %d, want 1", len(ps))
		}
	})

	t.Run("prober failure is surfaced", func(t *testing.T) {
		catalog := testutil.NewTestCatalog(t)
		prober := &testutil.FailingProber{}
		svc := hoard.NewService(catalog, media.NewRegistry(prober), testutil.NewMockFilesystemManager(),
			hoard.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), hoard.DefaultOptions())
		_, err := svc.AddPartition(ctx, "/dev/sda1")
		if !errors.Is(err, testutil.ErrProbeFailed) {
			t.Errorf("AddPartition() error = %v, want ErrProbeFailed", err)
		}
	})
}
