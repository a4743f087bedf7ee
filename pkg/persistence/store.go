// Package persistence keeps a history of completed task runs in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite" // SQLite driver
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	task TEXT NOT NULL,
	skip_verification INTEGER NOT NULL DEFAULT 1,
	path TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL DEFAULT 0,
	answer TEXT NOT NULL DEFAULT '',
	tools_used TEXT NOT NULL DEFAULT '[]',
	error TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Run is one recorded task execution.
type Run struct {
	ID               string    `json:"id"`
	Task             string    `json:"task"`
	SkipVerification bool      `json:"skip_verification"`
	Path             string    `json:"path,omitempty"`
	Success          bool      `json:"success"`
	Answer           string    `json:"answer,omitempty"`
	ToolsUsed        []string  `json:"tools_used"`
	Error            string    `json:"error,omitempty"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// RunStore persists runs.
type RunStore struct {
	db *sql.DB
}

// Open opens (and creates if needed) the run database at path. ":memory:"
// gives a private in-memory database.
func Open(path string) (*RunStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; a single connection also keeps an
	// in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("📦 Run store initialized", "path", path)
	return &RunStore{db: db}, nil
}

// Record inserts or replaces run.
func (s *RunStore) Record(ctx context.Context, run Run) error {
	tools := run.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("failed to encode tools: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, task, skip_verification, path, success, answer, tools_used, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Task, run.SkipVerification, run.Path, run.Success, run.Answer,
		string(toolsJSON), run.Error, run.DurationMs, run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task, skip_verification, path, success, answer, tools_used, error, duration_ms, created_at
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r         Run
			toolsJSON string
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.Task, &r.SkipVerification, &r.Path, &r.Success, &r.Answer,
			&toolsJSON, &r.Error, &r.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(toolsJSON), &r.ToolsUsed); err != nil {
			return nil, fmt.Errorf("failed to decode tools of run %s: %w", r.ID, err)
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}
