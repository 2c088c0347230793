package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/api"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/config"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, MCP and gRPC health servers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logger
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting bitrix proxy",
		zap.String("version", version),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.Int("timeout_ms", cfg.TimeoutMs),
		zap.Int("retry_count", cfg.RetryCount),
		zap.Int("retry_delay_ms", cfg.RetryDelayMs),
		zap.Float64("rps", cfg.RPS),
	)
	// A misconfigured webhook must not crash the process: calls report
	// CONFIGURATION_ERROR instead.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration, tool calls will fail", zap.Error(err))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.close()

	handler, err := api.NewRouter(&api.Dependencies{
		Service:   a.service,
		MCP:       api.NewMCPServer(a.service, version),
		Gatherer:  a.registry,
		Logger:    logger,
		Version:   version,
		TokenHash: cfg.TokenHash,
		CacheTTL:  cfg.AuthCacheTTL(),
	})
	if err != nil {
		return err
	}
	if cfg.TokenHash == "" {
		logger.Warn("no PROXY_TOKEN_HASH set, tool endpoints are open")
	}

	// HTTP API server
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Bind both ports before serving so a failed listen leaves nothing running.
	httpLis, grpcLis, err := listenPair(httpServer.Addr, ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("listen failed", zap.Error(err))
		return err
	}

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpLis.Addr().String()))
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	// gRPC health server
	health := server.NewHealthServer(logger)
	go func() {
		if err := health.Serve(grpcLis); err != nil {
			serverErrors <- err
		}
	}()
	health.SetServing(true)

	// Block until shutdown signal or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-serverErrors:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	// Graceful shutdown
	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	health.Stop(shutdownCtx)

	logger.Info("bitrix proxy stopped")
	return runErr
}

// listenPair opens the HTTP and gRPC listeners. If the second fails the
// first is closed.
func listenPair(httpAddr, grpcAddr string) (net.Listener, net.Listener, error) {
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("http listen %s: %w", httpAddr, err)
	}
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		_ = httpLis.Close()
		return nil, nil, fmt.Errorf("grpc listen %s: %w", grpcAddr, err)
	}
	return httpLis, grpcLis, nil
}
