package instancedir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"toproute/internal/integrations"
	"toproute/internal/store"
)

const sampleInstance = `2 50 3
0 0 0
10 0 20
10 10 30
0 10 10
5 5 0
`

func TestFetchAndImport(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "p1.2.a.txt"), []byte(sampleInstance), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.txt"), []byte("not an instance"), 0o644); err != nil {
		t.Fatal(err)
	}

	var warned []string
	src := New(dir)
	src.Warn = func(path string, err error) { warned = append(warned, path) }

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(got))
	}
	if got[0].Name != "p1.2.a.txt" {
		t.Fatalf("unexpected name %q", got[0].Name)
	}
	if got[0].Trucks != 2 || got[0].TMax != 50 || len(got[0].Customers) != 5 {
		t.Fatalf("unexpected instance %+v", got[0])
	}
	if len(warned) != 1 {
		t.Fatalf("expected 1 warning, got %v", warned)
	}

	mem := store.NewMemory()
	n, err := integrations.Import(context.Background(), mem, src)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 created, got %d", n)
	}

	// Second import is a no-op: the name is already present.
	n, err = integrations.Import(context.Background(), mem, src)
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 created on reimport, got %d", n)
	}
}
