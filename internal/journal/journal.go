// Package journal records every CRM mutation attempted by a sync run.
//
// The journal is an audit trail, not a source of truth: a failed write is
// logged by the caller and never stops a run. Backends are chosen by DSN:
//
//	""                         no-op
//	postgres://, postgresql:// Postgres via pgxpool
//	sqlite://path, or a path   SQLite file via go-sqlite3
package journal

import (
	"context"
	"strings"
	"time"
)

// Entry is one attempted mutation.
type Entry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"runId"`
	Operation string    `json:"operation"`
	Object    string    `json:"object"`
	RecordID  string    `json:"recordId,omitempty"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Journal persists entries.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, runID string) ([]Entry, error)
	Close() error
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS sync_journal (
	id         %s,
	run_id     TEXT NOT NULL,
	operation  TEXT NOT NULL,
	object     TEXT NOT NULL,
	record_id  TEXT NOT NULL DEFAULT '',
	success    BOOLEAN NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
)`

const createIndexSQL = `CREATE INDEX IF NOT EXISTS idx_sync_journal_run ON sync_journal (run_id, id)`

// Open selects and initializes a backend for dsn.
func Open(ctx context.Context, dsn string) (Journal, error) {
	switch {
	case dsn == "":
		return Nop{}, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) List(context.Context, string) ([]Entry, error) { return nil, nil }

func (Nop) Close() error { return nil }

// stamp fills CreatedAt when the caller left it zero.
func stamp(e Entry) Entry {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}
