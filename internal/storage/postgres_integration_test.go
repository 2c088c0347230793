//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func TestPostgresWriter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("audit"),
		tcpostgres.WithUsername("audit"),
		tcpostgres.WithPassword("audit"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skip: cannot start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	db, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	w, err := NewPostgresWriter(ctx, db, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	hash, size := HashArgs(map[string]any{"id": 1.0})
	for _, id := range []string{"r1", "r2", "r3"} {
		w.Write(&CallEvent{
			RequestID:  id,
			Timestamp:  time.Now().UTC(),
			Tool:       "bitrix_deal_get",
			Method:     "crm.deal.get",
			Builder:    "deals",
			Transport:  "http",
			Outcome:    "ok",
			HTTPStatus: 200,
			ArgsHash:   hash,
			ArgsSize:   size,
			LatencyMs:  12.5,
		})
	}
	w.Close()

	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM tool_call_events WHERE tool = $1 AND args_hash = $2`,
		"bitrix_deal_get", hash,
	).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("rows=%d want 3", n)
	}

	// Schema creation is idempotent.
	again, err := NewPostgresWriter(ctx, db, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	again.Close()
}
