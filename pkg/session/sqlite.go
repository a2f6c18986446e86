// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jllopis/skycast/pkg/llm"
)

// migrations is the ordered list of schema statements.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		agent TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq)`,
}

// SQLite stores sessions in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database that lives as long as the store.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "skycast.db"
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, storeError("create directory", "", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeError("open database", "", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, storeError("migrate database", "", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts turn at the end of the session.
func (s *SQLite) Append(ctx context.Context, sessionID string, turn Turn) error {
	turn, err := prepare(sessionID, turn)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, role, content, agent, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, string(turn.Role), turn.Content, turn.Agent, turn.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return storeError("append", sessionID, err)
	}
	return nil
}

// Load returns the session's turns in insertion order.
func (s *SQLite) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := validateID(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, agent, created_at FROM turns WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, storeError("load", sessionID, err)
	}
	defer rows.Close()

	turns := make([]Turn, 0)
	for rows.Next() {
		var (
			t         Turn
			role      string
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Content, &t.Agent, &createdAt); err != nil {
			return nil, storeError("scan turn", sessionID, err)
		}
		t.Role = llm.Role(role)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.CreatedAt = ts
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("load", sessionID, err)
	}
	return turns, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
