package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// ClickHouseSchema creates the audit table.
const ClickHouseSchema = `
CREATE TABLE IF NOT EXISTS tool_call_events (
	request_id      String,
	timestamp       DateTime64(3),
	tool            LowCardinality(String),
	method          LowCardinality(String),
	builder         LowCardinality(String),
	transport       LowCardinality(String),
	outcome         LowCardinality(String),
	http_status     UInt16,
	upstream_status UInt16,
	args_hash       String,
	args_size       UInt32,
	latency_ms      Float32
) ENGINE = MergeTree
ORDER BY (tool, timestamp)
TTL toDateTime(timestamp) + INTERVAL 90 DAY
`

// ClickHouseWriter writes call events to ClickHouse asynchronously.
// Write() is non-blocking; events are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	*batcher
	conn driver.Conn
}

// NewClickHouseWriter connects, ensures the table exists and starts the
// background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}

	// 9440 is the native TLS port (ClickHouse Cloud) even without ?secure=true.
	if opts.TLS == nil && opts.Protocol == clickhouse.Native && isSecurePort(opts.Addr) {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}

	if err := prepareClickHouse(context.Background(), conn); err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}

	w := &ClickHouseWriter{conn: conn}
	w.batcher = newBatcher("clickhouse", w.insert, logger)
	w.start()
	return w, nil
}

// clickhouseConn is the part of driver.Conn used while connecting.
type clickhouseConn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// prepareClickHouse checks the connection and creates the table. conn is
// closed on failure.
func prepareClickHouse(ctx context.Context, conn clickhouseConn) error {
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("ping: %w", err)
	}
	if err := conn.Exec(ctx, ClickHouseSchema); err != nil {
		_ = conn.Close()
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Close drains the buffer and closes the connection.
func (w *ClickHouseWriter) Close() {
	w.batcher.Close()
	_ = w.conn.Close()
}

func (w *ClickHouseWriter) insert(ctx context.Context, events []*CallEvent) error {
	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO tool_call_events (
			request_id, timestamp, tool, method, builder, transport,
			outcome, http_status, upstream_status,
			args_hash, args_size, latency_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.Timestamp,
			e.Tool,
			e.Method,
			e.Builder,
			e.Transport,
			e.Outcome,
			e.HTTPStatus,
			e.UpstreamStatus,
			e.ArgsHash,
			e.ArgsSize,
			e.LatencyMs,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// isSecurePort reports whether any address uses the ClickHouse native TLS port.
func isSecurePort(addrs []string) bool {
	for _, a := range addrs {
		if strings.HasSuffix(a, ":9440") {
			return true
		}
	}
	return false
}
