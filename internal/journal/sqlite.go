package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores entries in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the file at path and ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// Single writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		fmt.Sprintf(createTableSQL, "INTEGER PRIMARY KEY AUTOINCREMENT"),
		createIndexSQL,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init journal: %w", err)
		}
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Record(ctx context.Context, e Entry) error {
	e = stamp(e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_journal (run_id, operation, object, record_id, success, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Operation, e.Object, e.RecordID, e.Success, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, operation, object, record_id, success, detail, created_at
		 FROM sync_journal WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Operation, &e.Object, &e.RecordID, &e.Success, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
