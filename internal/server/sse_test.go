package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentrail/core/internal/eventbus"
)

func TestHandleStreamWritesPublishedEvents(t *testing.T) {
	bus := eventbus.NewMemory()
	srv := &Server{Bus: bus}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants/"+testTenant+"/stream", nil).WithContext(ctx)
	req = withURLParams(req, map[string]string{"tenantID": testTenant})
	rec := newFlushRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleStream(rec, req)
		close(done)
	}()

	// Give handleStream a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)

	if err := bus.Publish(context.Background(), eventbus.Event{
		Type: eventbus.TypeWorkflowStarted, TenantID: testTenant,
		Data: map[string]any{"execution_id": "exec-1"},
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Fatalf("expected a connected frame on first attach, got body %q", body)
	}
	if strings.Index(body, "event: connected") > strings.Index(body, "event: workflow.started") {
		t.Fatalf("expected connected frame before workflow.started, got body %q", body)
	}
	if !strings.Contains(body, "event: workflow.started") {
		t.Fatalf("expected SSE event frame, got body %q", body)
	}
	if !strings.Contains(body, "exec-1") {
		t.Fatalf("expected event payload in body, got %q", body)
	}
}

// flushRecorder wraps httptest.ResponseRecorder to satisfy http.Flusher,
// which the real http.ResponseWriter provides but the bare recorder
// doesn't implement.
type flushRecorder struct {
	*httptest.ResponseRecorder
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (f *flushRecorder) Flush() {}
