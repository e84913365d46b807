// Package deployments records contract addresses produced by deploy runs so later
// commands (verification in particular) can find them without re-deploying.
package deployments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
)

type Record struct {
	ID        string    `json:"id"`
	Network   string    `json:"network"`
	ChainID   int64     `json:"chain_id"`
	Module    string    `json:"module"`
	Contract  string    `json:"contract"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create deployments directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create deployments lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open deployments sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS deployments (
			id TEXT PRIMARY KEY,
			network TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			module TEXT NOT NULL,
			contract TEXT NOT NULL,
			address TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_deployments_network_contract ON deployments(network, contract, created_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init deployments schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save assigns an id and timestamp when missing and stores the record with a
// checksummed address.
func (s *Store) Save(rec Record) (Record, error) {
	if strings.TrimSpace(rec.Network) == "" || strings.TrimSpace(rec.Contract) == "" {
		return Record{}, clierr.New(clierr.CodeUsage, "deployment record needs a network and a contract")
	}
	if !common.IsHexAddress(rec.Address) {
		return Record{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid contract address %q", rec.Address))
	}
	rec.Address = common.HexToAddress(rec.Address).Hex()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return Record{}, fmt.Errorf("lock deployments store: %w", err)
	}
	if !locked {
		return Record{}, fmt.Errorf("lock deployments store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(`
		INSERT INTO deployments (id, network, chain_id, module, contract, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			network=excluded.network,
			chain_id=excluded.chain_id,
			module=excluded.module,
			contract=excluded.contract,
			address=excluded.address
	`, rec.ID, rec.Network, rec.ChainID, rec.Module, rec.Contract, rec.Address, rec.CreatedAt.UnixNano())
	if err != nil {
		return Record{}, fmt.Errorf("save deployment: %w", err)
	}
	return rec, nil
}

// Latest returns the newest record for a contract on a network.
func (s *Store) Latest(network, contract string) (Record, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, network, chain_id, module, contract, address, created_at
		FROM deployments WHERE network = ? AND contract = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, network, contract)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read deployment: %w", err)
	}
	return rec, true, nil
}

// List returns records newest first, optionally filtered by network.
func (s *Store) List(network string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	const cols = "SELECT id, network, chain_id, module, contract, address, created_at FROM deployments"
	if strings.TrimSpace(network) == "" {
		rows, err = s.db.Query(cols+" ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(cols+" WHERE network = ? ORDER BY created_at DESC, rowid DESC LIMIT ?", network, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployment rows: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.Network, &rec.ChainID, &rec.Module, &rec.Contract, &rec.Address, &created); err != nil {
		return Record{}, err
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return rec, nil
}
