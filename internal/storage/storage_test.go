package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingFlush struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recordingFlush) flush(_ context.Context, events []*CallEvent) error {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.RequestID
	}
	r.mu.Lock()
	r.batches = append(r.batches, ids)
	r.mu.Unlock()
	return nil
}

func (r *recordingFlush) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestHashArgs_StableAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"id": 1.0, "fields": map[string]any{"B": 2.0, "A": 1.0}}
	b := map[string]any{"fields": map[string]any{"A": 1.0, "B": 2.0}, "id": 1.0}

	ha, sa := HashArgs(a)
	hb, sb := HashArgs(b)
	assert.Equal(t, ha, hb)
	assert.Equal(t, sa, sb)
	assert.Len(t, ha, 64)

	empty, size := HashArgs(nil)
	assert.NotEmpty(t, empty)
	assert.Equal(t, uint32(2), size) // {}
}

func TestBatcher_FlushesOnSize(t *testing.T) {
	rec := &recordingFlush{}
	b := newBatcher("test", rec.flush, zap.NewNop())
	b.interval = time.Hour
	b.maxBatch = 3
	b.start()

	for i := 0; i < 7; i++ {
		b.Write(&CallEvent{RequestID: fmt.Sprint(i)})
	}
	require.Eventually(t, func() bool { return rec.total() >= 6 }, time.Second, 5*time.Millisecond)
	b.Close()

	assert.Equal(t, [][]string{{"0", "1", "2"}, {"3", "4", "5"}, {"6"}}, rec.batches)
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	rec := &recordingFlush{}
	b := newBatcher("test", rec.flush, zap.NewNop())
	b.interval = 10 * time.Millisecond
	b.start()
	defer b.Close()

	b.Write(&CallEvent{RequestID: "a"})
	require.Eventually(t, func() bool { return rec.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_CloseDrains(t *testing.T) {
	rec := &recordingFlush{}
	b := newBatcher("test", rec.flush, zap.NewNop())
	b.interval = time.Hour
	b.start()

	for i := 0; i < 5; i++ {
		b.Write(&CallEvent{RequestID: fmt.Sprint(i)})
	}
	b.Close()
	assert.Equal(t, 5, rec.total())
}

func TestBatcher_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := newBatcher("test", func(context.Context, []*CallEvent) error { return nil }, zap.New(core))
	b.buffer = make(chan *CallEvent, 1)

	// Loop not started: the second write finds the buffer full.
	b.Write(&CallEvent{RequestID: "kept"})
	b.Write(&CallEvent{RequestID: "dropped"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "test buffer full, dropping event", logs.All()[0].Message)
}

func TestBatcher_LogsFlushErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	b := newBatcher("test", func(context.Context, []*CallEvent) error {
		return fmt.Errorf("boom")
	}, zap.New(core))
	b.start()
	b.Write(&CallEvent{RequestID: "x"})
	b.Close()

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "test batch insert failed", logs.All()[0].Message)
}

func TestLogWriter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := NewLogWriter(zap.New(core))
	w.Write(&CallEvent{RequestID: "r1", Tool: "bitrix_deal_get", Outcome: "ok", HTTPStatus: 200})
	w.Close()

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "tool_call", entry.Message)
	assert.Equal(t, "bitrix_deal_get", entry.ContextMap()["tool"])
}

func TestMultiWriter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := MultiWriter{NewLogWriter(zap.New(core)), NewLogWriter(zap.New(core))}
	m.Write(&CallEvent{RequestID: "r1"})
	m.Close()
	assert.Equal(t, 2, logs.Len())
}

func TestBuildPostgresInsert(t *testing.T) {
	now := time.Now()
	q, args := buildPostgresInsert([]*CallEvent{
		{RequestID: "a", Timestamp: now},
		{RequestID: "b", Timestamp: now},
	})
	assert.Contains(t, q, "($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12), ($13,")
	assert.Contains(t, q, "$24)")
	require.Len(t, args, 24)
	assert.Equal(t, "a", args[0])
	assert.Equal(t, "b", args[12])
}

func TestNewClickHouseWriter_BadDSN(t *testing.T) {
	_, err := NewClickHouseWriter("://not a dsn", zap.NewNop())
	require.Error(t, err)
}

type fakeClickHouseConn struct {
	pingErr error
	execErr error
	queries []string
	closed  bool
}

func (c *fakeClickHouseConn) Ping(context.Context) error { return c.pingErr }

func (c *fakeClickHouseConn) Exec(_ context.Context, query string, _ ...any) error {
	c.queries = append(c.queries, query)
	return c.execErr
}

func (c *fakeClickHouseConn) Close() error {
	c.closed = true
	return nil
}

func TestPrepareClickHouse(t *testing.T) {
	ctx := context.Background()

	ok := &fakeClickHouseConn{}
	require.NoError(t, prepareClickHouse(ctx, ok))
	assert.Equal(t, []string{ClickHouseSchema}, ok.queries)
	assert.False(t, ok.closed)

	pingFails := &fakeClickHouseConn{pingErr: fmt.Errorf("connection refused")}
	err := prepareClickHouse(ctx, pingFails)
	require.ErrorContains(t, err, "ping")
	assert.Empty(t, pingFails.queries)
	assert.True(t, pingFails.closed)

	execFails := &fakeClickHouseConn{execErr: fmt.Errorf("readonly")}
	err = prepareClickHouse(ctx, execFails)
	require.ErrorContains(t, err, "create table")
	assert.True(t, execFails.closed)
}

func TestIsSecurePort(t *testing.T) {
	assert.True(t, isSecurePort([]string{"abc.clickhouse.cloud:9440"}))
	assert.False(t, isSecurePort([]string{"localhost:9000"}))
}
