package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"go.uber.org/zap"
)

// PostgresSchema creates the audit table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS tool_call_events (
	request_id      TEXT        NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	tool            TEXT        NOT NULL,
	method          TEXT        NOT NULL DEFAULT '',
	builder         TEXT        NOT NULL DEFAULT '',
	transport       TEXT        NOT NULL,
	outcome         TEXT        NOT NULL,
	http_status     INTEGER     NOT NULL,
	upstream_status INTEGER     NOT NULL DEFAULT 0,
	args_hash       TEXT        NOT NULL,
	args_size       INTEGER     NOT NULL,
	latency_ms      REAL        NOT NULL
);
CREATE INDEX IF NOT EXISTS tool_call_events_tool_ts ON tool_call_events (tool, ts);
`

const postgresColumns = 12

// OpenPostgres opens a pooled *sql.DB over pgx and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenPostgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("OpenPostgres: ping: %w", err)
	}
	return db, nil
}

// PostgresWriter writes call events to PostgreSQL asynchronously with the
// same buffering as ClickHouseWriter.
type PostgresWriter struct {
	*batcher
	db *sql.DB
}

// NewPostgresWriter ensures the table exists and starts the flush loop.
// The writer does not own db.
func NewPostgresWriter(ctx context.Context, db *sql.DB, logger *zap.Logger) (*PostgresWriter, error) {
	if _, err := db.ExecContext(ctx, PostgresSchema); err != nil {
		return nil, fmt.Errorf("NewPostgresWriter: create table: %w", err)
	}
	w := &PostgresWriter{db: db}
	w.batcher = newBatcher("postgres", w.insert, logger)
	w.start()
	return w, nil
}

// insert writes one multi-row INSERT inside a transaction.
func (w *PostgresWriter) insert(ctx context.Context, events []*CallEvent) error {
	query, args := buildPostgresInsert(events)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("PostgresWriter.insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("PostgresWriter.insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("PostgresWriter.insert: commit: %w", err)
	}
	return nil
}

func buildPostgresInsert(events []*CallEvent) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO tool_call_events (
		request_id, ts, tool, method, builder, transport,
		outcome, http_status, upstream_status,
		args_hash, args_size, latency_ms
	) VALUES `)

	args := make([]any, 0, len(events)*postgresColumns)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < postgresColumns; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*postgresColumns+c+1)
		}
		sb.WriteByte(')')
		args = append(args,
			e.RequestID,
			e.Timestamp,
			e.Tool,
			e.Method,
			e.Builder,
			e.Transport,
			e.Outcome,
			int32(e.HTTPStatus),
			int32(e.UpstreamStatus),
			e.ArgsHash,
			int64(e.ArgsSize),
			e.LatencyMs,
		)
	}
	return sb.String(), args
}
