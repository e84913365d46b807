// Package cache is a small sqlite-backed TTL store for upstream lookups (explorer
// verification status, probe results) shared between CLI invocations.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Result struct {
	Hit   bool
	Value []byte
	Age   time.Duration
	Stale bool
}

// Key joins non-empty parts with ':' after lower-casing them.
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, ":")
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS lookups (key TEXT PRIMARY KEY, value BLOB NOT NULL, stored_at INTEGER NOT NULL, expires_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune drops expired entries. Open calls it once.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("DELETE FROM lookups WHERE expires_at < ?", s.now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

func (s *Store) Get(key string) (Result, error) {
	var (
		value     []byte
		storedAt  int64
		expiresAt int64
	)
	err := s.db.QueryRow("SELECT value, stored_at, expires_at FROM lookups WHERE key = ?", key).Scan(&value, &storedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}
	now := s.now().UTC().UnixMilli()
	age := time.Duration(now-storedAt) * time.Millisecond
	if age < 0 {
		age = 0
	}
	return Result{Hit: true, Value: value, Age: age, Stale: now > expiresAt}, nil
}

// GetJSON decodes a fresh entry into out. Stale entries count as misses.
func (s *Store) GetJSON(key string, out any) (bool, error) {
	res, err := s.Get(key)
	if err != nil || !res.Hit || res.Stale {
		return false, err
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	if ttl <= 0 {
		ttl = time.Second
	}
	now := s.now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO lookups (key, value, stored_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			stored_at=excluded.stored_at,
			expires_at=excluded.expires_at
	`, key, value, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func (s *Store) SetJSON(key string, v any, ttl time.Duration) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return s.Set(key, buf, ttl)
}

func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM lookups WHERE key = ?", key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
