// Package journal persists service state transitions so a stack's history
// can be inspected after the orchestrator process has exited.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is a SQLite-backed transition log.
type Journal struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := j.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Record appends one transition. Satisfies the operator's Recorder.
func (j *Journal) Record(stack, service, state, reason string) error {
	_, err := j.db.Exec(
		`INSERT INTO transitions (stack, service, state, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		stack, service, state, reason, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Entry is one recorded transition.
type Entry struct {
	Stack   string
	Service string
	State   string
	Reason  string
	At      time.Time
}

// History returns a stack's transitions, oldest first.
func (j *Journal) History(ctx context.Context, stack string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT stack, service, state, reason, created_at FROM transitions WHERE stack = ? ORDER BY id`,
		stack)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.Stack, &e.Service, &e.State, &e.Reason, &at); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *Journal) Close() error { return j.db.Close() }
