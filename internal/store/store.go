// Package store provides sqlite persistence for the automation engine.
//
// Every state transition that must happen at most once is expressed as a
// conditional UPDATE guarded on the current state; the caller inspects the
// affected-row count to learn whether it won the transition. Invocations are
// stateless and may overlap, so this is the only mutual exclusion in the
// system — no in-process lock is held anywhere.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	// Best-effort migrations for databases created before these columns
	// existed (no-ops when the column is already present).
	_, _ = db.Exec(`ALTER TABLE personas ADD COLUMN ai_fallback BOOLEAN NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`ALTER TABLE personas ADD COLUMN post_prompt TEXT NOT NULL DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE queued_posts ADD COLUMN remote_id TEXT NOT NULL DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE reply_records ADD COLUMN retryable BOOLEAN NOT NULL DEFAULT 1`)

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// --- JSON column helpers ---

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalStrings(raw string) []string {
	var out []string
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func marshalStringMap(v map[string]string) string {
	if v == nil {
		v = map[string]string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalStringMap(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
