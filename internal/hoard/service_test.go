package hoard_test

import (
	"context"
	"testing"

	"hoard-go/internal/database"
	"hoard-go/internal/hoard"
	"hoard-go/internal/testutil"
)

type testEnv struct {
	svc     *hoard.Service
	catalog *database.SQLiteCatalog
	fsmgr   *testutil.MockFilesystemManager
	clock   *testutil.StubClock
}

func newTestEnv(t *testing.T, opts hoard.Options) *testEnv {
	t.Helper()
	catalog := testutil.NewTestCatalog(t)
	fsmgr := testutil.NewMockFilesystemManager()
	clock := testutil.FixedClock()
	svc := hoard.NewService(catalog, testutil.NewTestMediaRegistry(), fsmgr, hoard.NewNopLogger(), clock, testutil.NewStubIDGenerator(), opts)
	return &testEnv{svc: svc, catalog: catalog, fsmgr: fsmgr, clock: clock}
}

// newRegisteredEnv returns an environment with collection "leaks", disk
// "disk-a" (SN123) and partition P-1 registered.
func newRegisteredEnv(t *testing.T, opts hoard.Options) *testEnv {
	t.Helper()
	env := newTestEnv(t, opts)
	ctx := context.Background()
	if _, err := env.svc.AddCollection(ctx, "leaks"); err != nil {
		t.Fatalf("AddCollection() error = %v", err)
	}
	if _, err := env.svc.AddDisk(ctx, "/dev/sda", "disk-a"); err != nil {
		t.Fatalf("AddDisk() error = %v", err)
	}
	if _, err := env.svc.AddPartition(ctx, "/dev/sda1"); err != nil {
		t.Fatalf("AddPartition() error = %v", err)
	}
	return env
}

// addFile stores content in the mock filesystem at src and ingests it at dest.
func (e *testEnv) addFile(t *testing.T, src string, content []byte, dest string) error {
	t.Helper()
	e.fsmgr.AddFile(src, content)
	p, err := e.fsmgr.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve(%s) error = %v", src, err)
	}
	_, err = e.svc.AddFile(context.Background(), "leaks", "P-1", p, dest)
	return err
}

func TestParseCorruptPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    hoard.CorruptPolicy
		wantErr bool
	}{
		{"", hoard.CorruptOpaque, false},
		{"opaque", hoard.CorruptOpaque, false},
		{"reject", hoard.CorruptReject, false},
		{"skip", "", true},
	}
	for _, tt := range tests {
		got, err := hoard.ParseCorruptPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCorruptPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCorruptPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
