// Package audit keeps a SQLite journal of executed tool calls.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"record-mcp/internal/mcp"
)

const (
	// DefaultLimit is used by Recent when limit is not positive.
	DefaultLimit = 50
	// MaxLimit caps Recent.
	MaxLimit = 500
)

// Entry is one journaled tool call.
type Entry struct {
	ID         string    `json:"id"`
	CallID     string    `json:"call_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Tool       string    `json:"tool"`
	Table      string    `json:"table,omitempty"`
	SysID      string    `json:"sys_id,omitempty"`
	OK         bool      `json:"ok"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Journal appends tool call outcomes to a SQLite file.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the journal at path. Parent directories are created if needed.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("audit journal initialized", "path", path)
	return &Journal{db: db, logger: logger}, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		tool TEXT NOT NULL,
		table_name TEXT NOT NULL DEFAULT '',
		sys_id TEXT NOT NULL DEFAULT '',
		ok INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tool_calls_created
		ON tool_calls(created_at);
`

// Record implements mcp.Journal.
func (j *Journal) Record(ctx context.Context, rec mcp.CallRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, call_id, request_id, tool, table_name, sys_id, ok, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), rec.CallID, rec.RequestID, rec.Tool, rec.Table, rec.SysID,
		rec.OK, rec.Duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, call_id, request_id, tool, table_name, sys_id, ok, duration_ms, created_at
		FROM tool_calls
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CallID, &e.RequestID, &e.Tool, &e.Table, &e.SysID, &e.OK, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tool call: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
