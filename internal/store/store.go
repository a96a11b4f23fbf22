// Package store provides the SQLite storage layer for leasebot.
//
// A single database file holds:
// - Leads, one row per chat session, with the extracted intake fields
// - The append-only message log for each lead
// - A local property catalog used for availability searches
//
// SQLiteStore satisfies both outbox.Sink and respond.Searcher.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.leasebot/leasebot.db"

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// StoreStats holds row counts and file size.
type StoreStats struct {
	LeadCount     int64
	MessageCount  int64
	PropertyCount int64
	DBSizeBytes   int64
}

// SQLiteStore persists leads, messages and properties.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewStore opens (creating if needed) the database and runs migrations.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:      db,
		dbPath:  cfg.DBPath,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats returns row counts and the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	st := &StoreStats{}
	counts := []struct {
		table string
		dst   *int64
	}{
		{"leads", &st.LeadCount},
		{"lead_messages", &st.MessageCount},
		{"properties", &st.PropertyCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}
	if s.dbPath != ":memory:" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			st.DBSizeBytes = fi.Size()
		}
	}
	return st, nil
}

// newID returns a time-ordered unique identifier.
func (s *SQLiteStore) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
