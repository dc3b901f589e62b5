// Command worker drains the priority job queue and calls back into a
// running cmd/orchestrator process over HTTP. It holds no workflow state
// of its own — every job dispatch is a single authenticated HTTP request,
// so workers scale horizontally without needing to share anything beyond
// the queue and the orchestrator's address.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentrail/core/internal/auth"
	"github.com/agentrail/core/internal/config"
	"github.com/agentrail/core/internal/core"
	"github.com/agentrail/core/internal/eventbus"
	"github.com/agentrail/core/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the worker config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	if cfg.Worker.OrchestratorURL == "" {
		logger.Error("worker.orchestrator_url is required")
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
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

	d := &dispatcher{
		bus:             c.Bus,
		auth:            c.Auth,
		orchestratorURL: cfg.Worker.OrchestratorURL,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		logger:          logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		g.Go(func() error {
			d.loop(gctx)
			return nil
		})
	}

	logger.Info("worker started", "concurrency", cfg.Worker.Concurrency, "orchestrator", cfg.Worker.OrchestratorURL)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight jobs")
	return g.Wait()
}

// dispatcher pulls jobs off the queue and forwards each one to the
// orchestrator as a single HTTP request.
type dispatcher struct {
	bus             eventbus.Bus
	auth            *auth.Service
	orchestratorURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func (d *dispatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := d.bus.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		if err := d.dispatch(ctx, job); err != nil {
			d.logger.Warn("job dispatch failed", "job_id", job.ID, "kind", job.Kind, "error", err)
		}
	}
}

func (d *dispatcher) dispatch(ctx context.Context, job *eventbus.Job) error {
	switch job.Kind {
	case scheduler.KindWorkflowRun:
		var payload scheduler.RunPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode run payload: %w", err)
		}
		path := fmt.Sprintf("/v1/tenants/%s/workflows/%s/executions", payload.TenantID, payload.WorkflowID)
		body := map[string]any{
			"input_data": map[string]any{
				"scheduled_job_id": payload.ScheduledJobID,
				"trigger":          payload.Trigger,
			},
		}
		return d.post(ctx, path, body)
	case scheduler.KindWorkflowResume:
		var payload scheduler.ResumePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode resume payload: %w", err)
		}
		path := fmt.Sprintf("/v1/internal/tenants/%s/executions/%s/resume", payload.TenantID, payload.ExecutionID)
		return d.post(ctx, path, nil)
	default:
		d.logger.Warn("unknown job kind, dropping", "kind", job.Kind, "job_id", job.ID)
		return nil
	}
}

func (d *dispatcher) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.orchestratorURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.auth.Enabled() {
		token, err := d.auth.Generate("worker", "worker")
		if err != nil {
			return fmt.Errorf("generate service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call orchestrator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("orchestrator returned status %d for %s", resp.StatusCode, path)
	}
	return nil
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
