// Package journal keeps a SQLite record of every extract, sync and restore
// pqsync performs, listed by `pqsync history`.
//
// The database is an embedded SQLite file opened through
// github.com/ncruces/go-sqlite3 in WAL mode, so a running watch daemon and
// a `history` command can use it at the same time.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Operations recorded in the journal.
const (
	OpExtract    = "extract"
	OpSync       = "sync"
	OpSyncDelete = "sync_delete"
	OpRestore    = "restore"
	OpWatch      = "watch"
	OpUnwatch    = "unwatch"
)

// Outcomes recorded in the journal.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// timeFormat is fixed-width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Entry is one journal row.
type Entry struct {
	ID       int64     `json:"id"`
	Time     time.Time `json:"time"`
	Op       string    `json:"op"`
	Outcome  string    `json:"outcome"`
	Path     string    `json:"path"`
	Workbook string    `json:"workbook,omitempty"`
	Backup   string    `json:"backup,omitempty"`
	Hash     string    `json:"hash,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Journal wraps the SQLite connection.
type Journal struct {
	conn *sql.DB
	path string
}

// Open opens or creates the journal at path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	j, err := journal.Open("/home/me/.config/pqsync/journal.db")
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	j := &Journal{conn: conn, path: path}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if err := j.initSchema(context.Background()); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close checkpoints the WAL and closes the connection.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}
	_, cpErr := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := j.conn.Close()
	j.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	if cpErr != nil {
		return fmt.Errorf("failed to checkpoint journal: %w", cpErr)
	}
	return nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		op TEXT NOT NULL,
		outcome TEXT NOT NULL,
		path TEXT NOT NULL,
		workbook TEXT NOT NULL DEFAULT '',
		backup TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_entries_at ON entries(at);
	CREATE INDEX IF NOT EXISTS idx_entries_path ON entries(path);
	`
	if _, err := j.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record appends e and returns its id. A zero Time means now.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Op == "" || e.Outcome == "" {
		return 0, errors.New("journal entry needs an op and an outcome")
	}

	res, err := j.conn.ExecContext(ctx, `
		INSERT INTO entries (at, op, outcome, path, workbook, backup, hash, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC().Format(timeFormat), e.Op, e.Outcome, e.Path,
		e.Workbook, e.Backup, e.Hash, e.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record %s: %w", e.Op, err)
	}
	return res.LastInsertId()
}

// Filter narrows List.
type Filter struct {
	// Path limits entries to one .m file or workbook.
	Path string
	// Since drops entries older than this time.
	Since time.Time
	// Limit caps the number of entries (default: 50).
	Limit int
}

// List returns entries newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := `SELECT id, at, op, outcome, path, workbook, backup, hash, error FROM entries WHERE 1=1`
	var args []any
	if f.Path != "" {
		query += ` AND (path = ? OR workbook = ?)`
		args = append(args, f.Path, f.Path)
	}
	if !f.Since.IsZero() {
		query += ` AND at >= ?`
		args = append(args, f.Since.UTC().Format(timeFormat))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			at string
		)
		if err := rows.Scan(&e.ID, &at, &e.Op, &e.Outcome, &e.Path, &e.Workbook, &e.Backup, &e.Hash, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if e.Time, err = time.Parse(timeFormat, at); err != nil {
			return nil, fmt.Errorf("bad journal timestamp %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of entries.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

// logger scopes l to the journal component.
func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "journal")
}
