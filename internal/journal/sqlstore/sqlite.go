// Package sqlstore persists completed JournalEntry records for audit and
// history, adapted from the teacher's graph/store/sqlite.go and
// graph/store/mysql.go single-file/server-backed stores. Unlike the
// teacher's Store[S] (which persists mutable workflow state for
// resumption), this package persists the engine's append-only log: rows
// are never updated, only inserted, mirroring §3 invariant 1.
//
// Scope is out: per SPEC_FULL §5, durable persistence of in-flight
// scheduler state (RunState, pending levels) is a non-goal. This store
// exists for post-hoc audit queries over completed runs.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/probelabs/visor-sub002/internal/engine"
)

// SQLite is a sqlite-backed durable mirror of the in-memory Journal's
// completed entries. It offers Append, LoadAll and Close for audit export
// and does not implement journal.Journal.
type SQLite struct {
	db    *sql.DB
	mu    sync.Mutex
	runID string
}

// NewSQLite opens (creating if needed) a sqlite-backed journal store for
// one run. path may be ":memory:" for ephemeral use in tests.
func NewSQLite(path, runID string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, runID: runID}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS journal_entries (
			seq INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			check_id TEXT NOT NULL,
			wave INTEGER NOT NULL,
			scope TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			skip_reason TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			output_value TEXT,
			error_kind TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT '',
			group_name TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq)
		)
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append inserts one entry row. Rows are immutable once inserted.
func (s *SQLite) Append(ctx context.Context, entry engine.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	outputJSON, err := json.Marshal(entry.OutputValue)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	scopeJSON, err := json.Marshal(entry.Scope)
	if err != nil {
		return fmt.Errorf("marshal scope: %w", err)
	}

	var errKind, errMsg string
	if entry.Error != nil {
		errKind, errMsg = entry.Error.Kind, entry.Error.Message
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal_entries
			(seq, run_id, check_id, wave, scope, attempt, status, skip_reason,
			 started_at, ended_at, duration_ms, output_value, error_kind,
			 error_message, session_id, group_name)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		entry.Seq, s.runID, entry.CheckID, entry.Wave, string(scopeJSON), entry.Attempt,
		string(entry.Status), string(entry.SkipReason), entry.StartedAt, entry.EndedAt,
		entry.DurationMs, string(outputJSON), errKind, errMsg, entry.SessionID, entry.Group,
	)
	return err
}

// LoadAll replays every row for this run, ordered by seq, for audit
// queries or cold-start rehydration of an in-memory journal.
func (s *SQLite) LoadAll(ctx context.Context) ([]engine.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, check_id, wave, scope, attempt, status, skip_reason,
		       started_at, ended_at, duration_ms, output_value, error_kind,
		       error_message, session_id, group_name
		FROM journal_entries WHERE run_id = ? ORDER BY seq ASC`, s.runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []engine.JournalEntry
	for rows.Next() {
		var e engine.JournalEntry
		var scopeJSON, outputJSON, errKind, errMsg string
		var startedAt, endedAt time.Time
		if err := rows.Scan(&e.Seq, &e.CheckID, &e.Wave, &scopeJSON, &e.Attempt,
			&e.Status, &e.SkipReason, &startedAt, &endedAt, &e.DurationMs,
			&outputJSON, &errKind, &errMsg, &e.SessionID, &e.Group); err != nil {
			return nil, err
		}
		e.StartedAt, e.EndedAt = startedAt, endedAt
		if err := json.Unmarshal([]byte(scopeJSON), &e.Scope); err != nil {
			return nil, fmt.Errorf("unmarshal scope: %w", err)
		}
		if outputJSON != "" && outputJSON != "null" {
			_ = json.Unmarshal([]byte(outputJSON), &e.OutputValue)
		}
		if errKind != "" {
			e.Error = &engine.EntryError{Kind: errKind, Message: errMsg}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
