package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/probelabs/visor-sub002/internal/engine"
)

// MySQL is a server-backed durable mirror of the Journal, for deployments
// that already run MySQL for other state (adapted from the teacher's
// graph/store/mysql.go). Schema and semantics mirror SQLite's.
type MySQL struct {
	db    *sql.DB
	mu    sync.Mutex
	runID string
}

// NewMySQL opens a connection using dsn (the go-sql-driver/mysql DSN
// format, e.g. "user:pass@tcp(127.0.0.1:3306)/dbname?parseTime=true").
// parseTime=true is required so TIMESTAMP columns scan into time.Time.
func NewMySQL(dsn, runID string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	m := &MySQL{db: db, runID: runID}
	if err := m.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *MySQL) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS journal_entries (
			seq BIGINT NOT NULL,
			run_id VARCHAR(128) NOT NULL,
			check_id VARCHAR(256) NOT NULL,
			wave INT NOT NULL,
			scope TEXT NOT NULL,
			attempt INT NOT NULL,
			status VARCHAR(16) NOT NULL,
			skip_reason VARCHAR(32) NOT NULL DEFAULT '',
			started_at TIMESTAMP(3) NOT NULL,
			ended_at TIMESTAMP(3) NOT NULL,
			duration_ms BIGINT NOT NULL,
			output_value LONGTEXT,
			error_kind VARCHAR(64) NOT NULL DEFAULT '',
			error_message TEXT,
			session_id VARCHAR(128) NOT NULL DEFAULT '',
			group_name VARCHAR(256) NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq)
		) ENGINE=InnoDB
	`
	_, err := m.db.ExecContext(ctx, schema)
	return err
}

// Append inserts one entry row.
func (m *MySQL) Append(ctx context.Context, entry engine.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

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

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO journal_entries
			(seq, run_id, check_id, wave, scope, attempt, status, skip_reason,
			 started_at, ended_at, duration_ms, output_value, error_kind,
			 error_message, session_id, group_name)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		entry.Seq, m.runID, entry.CheckID, entry.Wave, string(scopeJSON), entry.Attempt,
		string(entry.Status), string(entry.SkipReason), entry.StartedAt, entry.EndedAt,
		entry.DurationMs, string(outputJSON), errKind, errMsg, entry.SessionID, entry.Group,
	)
	return err
}

// LoadAll replays every row for this run, ordered by seq.
func (m *MySQL) LoadAll(ctx context.Context) ([]engine.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.QueryContext(ctx, `
		SELECT seq, check_id, wave, scope, attempt, status, skip_reason,
		       started_at, ended_at, duration_ms, output_value, error_kind,
		       error_message, session_id, group_name
		FROM journal_entries WHERE run_id = ? ORDER BY seq ASC`, m.runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []engine.JournalEntry
	for rows.Next() {
		var e engine.JournalEntry
		var scopeJSON, outputJSON, errKind, errMsg sql.NullString
		var startedAt, endedAt time.Time
		if err := rows.Scan(&e.Seq, &e.CheckID, &e.Wave, &scopeJSON, &e.Attempt,
			&e.Status, &e.SkipReason, &startedAt, &endedAt, &e.DurationMs,
			&outputJSON, &errKind, &errMsg, &e.SessionID, &e.Group); err != nil {
			return nil, err
		}
		e.StartedAt, e.EndedAt = startedAt, endedAt
		if scopeJSON.Valid {
			_ = json.Unmarshal([]byte(scopeJSON.String), &e.Scope)
		}
		if outputJSON.Valid && outputJSON.String != "" && outputJSON.String != "null" {
			_ = json.Unmarshal([]byte(outputJSON.String), &e.OutputValue)
		}
		if errKind.Valid && errKind.String != "" {
			msg := ""
			if errMsg.Valid {
				msg = errMsg.String
			}
			e.Error = &engine.EntryError{Kind: errKind.String, Message: msg}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (m *MySQL) Close() error {
	return m.db.Close()
}
