package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores entries through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse journal dsn: %w", err)
	}
	// A run writes sequentially; more than a couple of connections is waste.
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(createTableSQL, "BIGSERIAL PRIMARY KEY")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create journal table: %w", err)
	}
	if _, err := pool.Exec(ctx, createIndexSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create journal index: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	e = stamp(e)
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sync_journal (run_id, operation, object, record_id, success, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.RunID, e.Operation, e.Object, e.RecordID, e.Success, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, run_id, operation, object, record_id, success, detail, created_at
		 FROM sync_journal WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.RunID, &e.Operation, &e.Object, &e.RecordID, &e.Success, &e.Detail, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan journal entries: %w", err)
	}
	return entries, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
