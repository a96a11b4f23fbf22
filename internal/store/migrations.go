package store

import (
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is bumped whenever bootstrap DDL changes shape.
const schemaVersion = "2"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: search indexes on the property catalog.
	if err := s.migratePropertyIndexes(); err != nil {
		return fmt.Errorf("migrating property indexes: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bootstrap: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL DEFAULT 'website',
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			move_in_date TEXT NOT NULL DEFAULT '',
			bedrooms INTEGER,
			bathrooms REAL,
			budget INTEGER,
			pet_friendly INTEGER,
			preferences TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'NEW',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status)`,
		`CREATE TABLE IF NOT EXISTS lead_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			lead_id TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '',
			sent_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lead_messages_lead ON lead_messages(lead_id, id)`,
		`CREATE TABLE IF NOT EXISTS properties (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			bedrooms INTEGER NOT NULL,
			bathrooms REAL NOT NULL DEFAULT 1,
			rent INTEGER NOT NULL,
			available INTEGER NOT NULL DEFAULT 1,
			pet_friendly INTEGER NOT NULL DEFAULT 0,
			amenities TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", truncate(stmt, 60), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bootstrap: %w", err)
	}
	return nil
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	value, err := s.getMetaValue(key)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

// getMetaValue returns "" for missing keys.
func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range defaults {
		_, err := s.db.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

func (s *SQLiteStore) columnExists(table, column string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking for %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) migratePropertyIndexes() error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_properties_search ON properties(available, bedrooms, rent)`,
		`CREATE INDEX IF NOT EXISTS idx_properties_pets ON properties(pet_friendly)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", truncate(stmt, 60), err)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
