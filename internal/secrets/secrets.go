// Package secrets keeps named configuration variables (deployer keys and similar) in a
// private JSON file outside the project tree. Writers serialize through a file lock.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Store struct {
	path string
	lock *flock.Flock
}

type fileFormat struct {
	Format string            `json:"_format"`
	Vars   map[string]string `json:"vars"`
}

const formatVersion = "deployctl-vars-1"

func Open(path, lockPath string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, clierr.New(clierr.CodeConfig, "vars path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create vars directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &Store{path: path, lock: flock.New(lockPath)}, nil
}

func (s *Store) Path() string {
	return s.path
}

// ValidateName reports whether name can be stored; names follow environment variable rules.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid variable name %q", name))
	}
	return nil
}

func (s *Store) Get(name string) (string, bool, error) {
	vars, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := vars[name]
	return v, ok, nil
}

func (s *Store) Has(name string) (bool, error) {
	_, ok, err := s.Get(name)
	return ok, err
}

// List returns stored names in sorted order. Values are never listed.
func (s *Store) List() ([]string, error) {
	vars, err := s.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Set(name, value string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if value == "" {
		return clierr.New(clierr.CodeUsage, "variable value cannot be empty")
	}
	return s.update(func(vars map[string]string) (bool, error) {
		vars[name] = value
		return true, nil
	})
}

// Delete removes name and reports whether it existed.
func (s *Store) Delete(name string) (bool, error) {
	existed := false
	err := s.update(func(vars map[string]string) (bool, error) {
		if _, ok := vars[name]; !ok {
			return false, nil
		}
		delete(vars, name)
		existed = true
		return true, nil
	})
	return existed, err
}

func (s *Store) update(fn func(map[string]string) (bool, error)) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock vars: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock vars: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	vars, err := s.read()
	if err != nil {
		return err
	}
	changed, err := fn(vars)
	if err != nil || !changed {
		return err
	}
	return s.write(vars)
}

func (s *Store) read() (map[string]string, error) {
	buf, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read vars: %w", err)
	}
	var doc fileFormat
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "parse vars file", err)
	}
	if doc.Vars == nil {
		doc.Vars = map[string]string{}
	}
	return doc.Vars, nil
}

func (s *Store) write(vars map[string]string) error {
	buf, err := json.MarshalIndent(fileFormat{Format: formatVersion, Vars: vars}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vars: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(buf, '\n'), 0o600); err != nil {
		return fmt.Errorf("write vars: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace vars: %w", err)
	}
	return nil
}
