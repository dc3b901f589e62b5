package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentrail/core/internal/auth"
	"github.com/agentrail/core/internal/eventbus"
	"github.com/agentrail/core/internal/scheduler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLevel(t *testing.T) {
	if got := parseLevel("debug"); got != slog.LevelDebug {
		t.Fatalf("parseLevel(debug) = %v", got)
	}
	if got := parseLevel(""); got != slog.LevelInfo {
		t.Fatalf("parseLevel(\"\") = %v", got)
	}
}

func TestDispatchPostsWorkflowRunToOrchestrator(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := &dispatcher{
		orchestratorURL: srv.URL,
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		auth:            auth.NewService("", 0),
		logger:          discardLogger(),
	}

	payload, err := json.Marshal(scheduler.RunPayload{
		TenantID: "tenant-1", WorkflowID: "wf-1", ScheduledJobID: "job-1", Trigger: "cron",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	err = d.dispatch(context.Background(), &eventbus.Job{
		ID: "j1", Kind: scheduler.KindWorkflowRun, Payload: payload,
	})
	if err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}

	if gotPath != "/v1/tenants/tenant-1/workflows/wf-1/executions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	inputData, ok := gotBody["input_data"].(map[string]any)
	if !ok || inputData["scheduled_job_id"] != "job-1" {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestDispatchAddsServiceTokenWhenAuthEnabled(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	authSvc := auth.NewService("test-secret", time.Hour)
	d := &dispatcher{
		orchestratorURL: srv.URL,
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		auth:            authSvc,
		logger:          discardLogger(),
	}

	payload, _ := json.Marshal(scheduler.RunPayload{TenantID: "tenant-1", WorkflowID: "wf-1"})
	if err := d.dispatch(context.Background(), &eventbus.Job{Kind: scheduler.KindWorkflowRun, Payload: payload}); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}

	if gotAuth == "" {
		t.Fatal("expected an Authorization header to be set")
	}
	if _, err := authSvc.Validate(gotAuth[len("Bearer "):]); err != nil {
		t.Fatalf("expected a valid service token, got error %v", err)
	}
}

func TestDispatchUnknownKindDoesNotError(t *testing.T) {
	d := &dispatcher{logger: discardLogger()}
	err := d.dispatch(context.Background(), &eventbus.Job{ID: "j1", Kind: "mystery.kind"})
	if err != nil {
		t.Fatalf("dispatch() error = %v, want nil for unknown kind", err)
	}
}
