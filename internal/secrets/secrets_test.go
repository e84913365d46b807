package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "vars.json"), filepath.Join(tmp, "vars.lock"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

func TestStoreSetGetDelete(t *testing.T) {
	store := openTestStore(t)

	if ok, err := store.Has("DEPLOYER_PK"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := store.Set("DEPLOYER_PK", "0xabc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := store.Get("DEPLOYER_PK")
	if err != nil || !ok || v != "0xabc" {
		t.Fatalf("unexpected get result v=%q ok=%v err=%v", v, ok, err)
	}

	existed, err := store.Delete("DEPLOYER_PK")
	if err != nil || !existed {
		t.Fatalf("expected delete to report existing var, got %v %v", existed, err)
	}
	existed, err = store.Delete("DEPLOYER_PK")
	if err != nil || existed {
		t.Fatalf("expected second delete to be a no-op, got %v %v", existed, err)
	}
}

func TestStoreFilePermissions(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("A", "1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 vars file, got %v", info.Mode().Perm())
	}
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	store := openTestStore(t)
	for _, name := range []string{"", "1ABC", "WITH-DASH", "has space"} {
		if err := store.Set(name, "v"); !clierr.HasCode(err, clierr.CodeUsage) {
			t.Fatalf("expected usage error for %q, got %v", name, err)
		}
	}
	if err := store.Set("EMPTY", ""); !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for empty value, got %v", err)
	}
}

func TestStoreListSorted(t *testing.T) {
	store := openTestStore(t)
	for _, name := range []string{"ZED", "ALPHA", "MID"} {
		if err := store.Set(name, "x"); err != nil {
			t.Fatalf("Set %s: %v", name, err)
		}
	}
	names, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 3 || names[0] != "ALPHA" || names[2] != "ZED" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestStoreCorruptFile(t *testing.T) {
	store := openTestStore(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.Get("X"); !clierr.HasCode(err, clierr.CodeConfig) {
		t.Fatalf("expected config error for corrupt vars file, got %v", err)
	}
}

func TestStoreConcurrentSet(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "vars.json")
	lockPath := filepath.Join(tmp, "vars.lock")

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := Open(path, lockPath)
			if err != nil {
				errCh <- err
				return
			}
			if err := store.Set(fmt.Sprintf("VAR_%d", i), "v"); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent set failed: %v", err)
	}

	store, err := Open(path, lockPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	names, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != workers {
		t.Fatalf("expected %d vars, got %v", workers, names)
	}
}
