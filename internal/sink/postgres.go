// Package sink owns all writes to the relational store. Row writes are
// idempotent on the idempotency key so redelivered work items never
// duplicate data; nothing else in the system writes to the database.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sharebridge/internal/etl"
	"sharebridge/internal/fault"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	slog.Info("postgres connected")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// EnsureSchema creates the tables the sink writes to. Kept here rather
// than in external migrations because the schema is tiny and the worker
// must be able to bootstrap a fresh database in the compose setup.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS etl_rows (
		idempotency_key TEXT PRIMARY KEY,
		work_item_id    UUID NOT NULL,
		source_file     TEXT NOT NULL,
		sheet_name      TEXT NOT NULL,
		row_ordinal     INTEGER NOT NULL,
		payload         JSONB NOT NULL,
		processed_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS etl_results (
		id            BIGSERIAL PRIMARY KEY,
		work_item_id  UUID NOT NULL,
		source_file   TEXT NOT NULL,
		sheet_name    TEXT NOT NULL,
		status        TEXT NOT NULL,
		rows_written  BIGINT NOT NULL,
		rows_skipped  INTEGER NOT NULL,
		error_kind    TEXT,
		error_message TEXT,
		processed_at  TIMESTAMPTZ NOT NULL
	);`

	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// WriteRows upserts the batch keyed on the idempotency key. Rows whose
// key already exists are left untouched, so re-invoking with the same
// rows yields the same final row set. Returns the number of rows newly
// inserted by this call.
func (p *Postgres) WriteRows(ctx context.Context, rows []etl.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	const query = `
	INSERT INTO etl_rows (idempotency_key, work_item_id, source_file, sheet_name, row_ordinal, payload)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (idempotency_key) DO NOTHING;`

	batch := &pgx.Batch{}
	for _, row := range rows {
		payload, err := json.Marshal(row.Payload)
		if err != nil {
			return 0, fault.Wrap(fault.Persistence, "marshal row payload", err)
		}
		batch.Queue(query, row.IdempotencyKey, row.WorkItemID, row.SourceFile, row.Sheet, row.Ordinal, payload)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	var written int64
	for range rows {
		tag, err := br.Exec()
		if err != nil {
			return written, fault.Wrap(fault.Persistence, "insert rows", err)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

func (p *Postgres) RecordResult(ctx context.Context, res etl.Result) error {
	const query = `
	INSERT INTO etl_results (work_item_id, source_file, sheet_name, status, rows_written, rows_skipped, error_kind, error_message, processed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	_, err := p.pool.Exec(ctx, query,
		res.WorkItemID,
		res.SourceFile,
		res.Sheet,
		string(res.Status),
		res.RowsWritten,
		res.RowsSkipped,
		nullable(string(res.ErrorKind)),
		nullable(res.ErrorMessage),
		res.ProcessedAt,
	)
	if err != nil {
		return fault.Wrap(fault.Persistence, "insert processing result", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
