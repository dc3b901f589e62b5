// Command orchestrator runs the agentrail HTTP API: workflow execution,
// conversation routing, and the tenant event stream. It owns the
// scheduler's tick loop; cmd/worker is a separate process that dequeues
// the jobs the scheduler enqueues (workflow runs and wait.delay resumes)
// and calls back into
// this process's internal resume endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentrail/core/internal/config"
	"github.com/agentrail/core/internal/core"
	"github.com/agentrail/core/internal/server"
	"github.com/agentrail/core/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the orchestrator config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := store.Migrate(cfg.Database.DSN, cfg.Database.MigrationsPath); err != nil {
		logger.Warn("schema migration failed, continuing against existing schema", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := core.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build core: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("core close failed", "error", err)
		}
	}()

	srv := &server.Server{
		Interpreter:   c.Interpreter,
		Bus:           c.Bus,
		Conversations: c.Store,
		Agents:        c.Store,
		ChatRouter:    c.ChatRouter,
		Notifier:      c.Notifier,
		Auth:          c.Auth,
		Metrics:       c.Metrics,
		Logger:        logger,
		ApprovalRoute: cfg.Notifier.ApprovalChannel,
		RateLimiter:   c.RateLimiter,
	}

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	apiListener, err := startServer(apiAddr, srv.Routes(), logger, "api")
	if err != nil {
		return err
	}
	defer stopServer(apiListener.server, logger, "api")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
	metricsListener, err := startServer(metricsAddr, metricsMux, logger, "metrics")
	if err != nil {
		return err
	}
	defer stopServer(metricsListener.server, logger, "metrics")

	c.Scheduler.Start(ctx)
	defer c.Scheduler.Stop()

	logger.Info("orchestrator started", "api_addr", apiAddr, "metrics_addr", metricsAddr)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	return nil
}

type listening struct {
	server *http.Server
}

func startServer(addr string, handler http.Handler, logger *slog.Logger, name string) (*listening, error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s listen: %w", name, err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(name+" server error", "error", err)
		}
	}()

	return &listening{server: srv}, nil
}

func stopServer(srv *http.Server, logger *slog.Logger, name string) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(name+" shutdown error", "error", err)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
