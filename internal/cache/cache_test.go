package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCacheFreshThenStale(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Set("k1", []byte(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get("k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.Hit || res.Stale {
		t.Fatalf("expected fresh hit, got %+v", res)
	}

	now = now.Add(2 * time.Minute)
	res, err = store.Get("k1")
	if err != nil {
		t.Fatalf("Get stale failed: %v", err)
	}
	if !res.Hit || !res.Stale || res.Age != 2*time.Minute {
		t.Fatalf("expected stale hit aged 2m, got %+v", res)
	}

	var out map[string]int
	ok, err := store.GetJSON("k1", &out)
	if err != nil || ok {
		t.Fatalf("expected stale entry to miss, ok=%v err=%v", ok, err)
	}
}

func TestCacheJSONRoundTripAndDelete(t *testing.T) {
	store := openTestStore(t)
	key := Key("explorer", "Base-Mainnet", "0xABC", "")
	if key != "explorer:base-mainnet:0xabc" {
		t.Fatalf("unexpected key %q", key)
	}
	if err := store.SetJSON(key, map[string]bool{"verified": true}, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	var out map[string]bool
	ok, err := store.GetJSON(key, &out)
	if err != nil || !ok || !out["verified"] {
		t.Fatalf("unexpected GetJSON result ok=%v err=%v out=%v", ok, err, out)
	}
	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if res, _ := store.Get(key); res.Hit {
		t.Fatal("expected miss after delete")
	}
}

func TestCachePruneDropsExpired(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	if err := store.Set("old", []byte(`1`), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	now = now.Add(time.Hour)
	if err := store.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if res, _ := store.Get("old"); res.Hit {
		t.Fatal("expected pruned entry to be gone")
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 16
	const iterations = 40

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				res, err := store.Get(key)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !res.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}
