package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/bitrix"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/config"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/engine/builders"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/proxy"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/ratelimit"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/storage"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/telemetry"
)

// app owns every long-lived dependency of one process.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	service  *proxy.Service

	closers []func()
}

// newApp wires config into a ready proxy.Service. Optional backends that
// fail to connect are logged and replaced by their local fallback.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewPrometheusMetrics(a.registry)

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TraceConfig{
		ServiceVersion: version,
		UseStdout:      cfg.OTelStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("newApp: tracing: %w", err)
	}
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	})

	dispatcher, err := builders.NewDispatcher()
	if err != nil {
		return nil, fmt.Errorf("newApp: %w", err)
	}
	if err := dispatcher.Catalogue().CompileAll(); err != nil {
		return nil, fmt.Errorf("newApp: %w", err)
	}

	client := bitrix.NewClient(cfg.Bitrix(), a.buildPacer(ctx),
		bitrix.WithLogger(logger),
		bitrix.WithMetrics(metrics),
	)
	a.service = proxy.NewService(dispatcher, client,
		proxy.WithEvents(a.buildEvents(ctx)),
		proxy.WithMetrics(metrics),
		proxy.WithLogger(logger),
	)

	logger.Info("tool catalogue loaded", zap.Int("tools", dispatcher.Catalogue().Len()))
	return a, nil
}

func (a *app) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// close releases dependencies in reverse order of creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildPacer returns the shared Redis pacer when REDIS_URL is set and
// reachable, else a process-local limiter.
func (a *app) buildPacer(ctx context.Context) ratelimit.Pacer {
	local := ratelimit.NewLimiter(a.cfg.RPS)
	if a.cfg.RedisURL == "" {
		a.logger.Info("rate limiter: process local", zap.Float64("rps", a.cfg.RPS))
		return local
	}

	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		a.logger.Warn("invalid REDIS_URL, falling back to local rate limiter", zap.Error(err))
		return local
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("redis connection failed, falling back to local rate limiter", zap.Error(err))
		_ = client.Close()
		return local
	}
	a.onClose(func() { _ = client.Close() })
	a.logger.Info("rate limiter: redis",
		zap.String("key", a.cfg.RedisKey),
		zap.Float64("rps", a.cfg.RPS),
	)
	return ratelimit.NewRedisPacer(client, a.cfg.RedisKey, a.cfg.RPS, ratelimit.WithRedisLogger(a.logger))
}

// buildEvents returns the audit sink: ClickHouse and/or Postgres, or the
// log writer when neither is configured or reachable.
func (a *app) buildEvents(ctx context.Context) storage.EventWriter {
	var writers storage.MultiWriter

	if a.cfg.ClickHouseDSN != "" {
		ch, err := storage.NewClickHouseWriter(a.cfg.ClickHouseDSN, a.logger)
		if err != nil {
			a.logger.Warn("clickhouse connection failed, skipping", zap.Error(err))
		} else {
			writers = append(writers, ch)
			a.logger.Info("clickhouse writer connected")
		}
	}

	if a.cfg.PostgresDSN != "" {
		if pg, db, err := a.openPostgresWriter(ctx); err != nil {
			a.logger.Warn("postgres connection failed, skipping", zap.Error(err))
		} else {
			writers = append(writers, pg)
			a.onClose(func() { _ = db.Close() })
			a.logger.Info("postgres writer connected")
		}
	}

	var w storage.EventWriter
	switch len(writers) {
	case 0:
		a.logger.Info("no audit database configured, using log writer")
		w = storage.NewLogWriter(a.logger)
	case 1:
		w = writers[0]
	default:
		w = writers
	}
	a.onClose(w.Close)
	return w
}

func (a *app) openPostgresWriter(ctx context.Context) (*storage.PostgresWriter, *sql.DB, error) {
	db, err := storage.OpenPostgres(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	w, err := storage.NewPostgresWriter(ctx, db, a.logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return w, db, nil
}
