package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordProviderRequestIncrementsCounterAndTokens(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordProviderRequest("anthropic", "claude-3-opus", "success", 1.2, 100, 50)

	if got := testutil.ToFloat64(m.ProviderRequestCounter.WithLabelValues("anthropic", "claude-3-opus", "success")); got != 1 {
		t.Errorf("got request counter %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProviderTokensUsed.WithLabelValues("anthropic", "claude-3-opus", "prompt")); got != 100 {
		t.Errorf("got prompt tokens %v, want 100", got)
	}
	if got := testutil.ToFloat64(m.ProviderTokensUsed.WithLabelValues("anthropic", "claude-3-opus", "completion")); got != 50 {
		t.Errorf("got completion tokens %v, want 50", got)
	}
}

func TestRecordProviderRequestSkipsZeroTokenCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordProviderRequest("openai", "gpt-4o", "error", 0.5, 0, 0)

	if testutil.CollectAndCount(m.ProviderTokensUsed) != 0 {
		t.Error("expected no token samples recorded when counts are zero")
	}
}

func TestRecordToolExecution(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordToolExecution("send_email", "success", 0.3)
	m.RecordToolExecution("send_email", "error", 0.1)

	expected := `
		# HELP agentrail_tool_executions_total Tool invocations by tool and status
		# TYPE agentrail_tool_executions_total counter
		agentrail_tool_executions_total{status="error",tool_id="send_email"} 1
		agentrail_tool_executions_total{status="success",tool_id="send_email"} 1
	`
	if err := testutil.CollectAndCompare(m.ToolExecutionCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestSetQueueDepthOverwritesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetQueueDepth("high", 3)
	m.SetQueueDepth("high", 7)

	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("high")); got != 7 {
		t.Errorf("got queue depth %v, want 7 (gauge set, not accumulated)", got)
	}
}

func TestRecordSchedulerFire(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSchedulerFire("fired")
	m.RecordSchedulerFire("fired")
	m.RecordSchedulerFire("skipped")

	if got := testutil.ToFloat64(m.SchedulerFireCounter.WithLabelValues("fired")); got != 2 {
		t.Errorf("got fired count %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SchedulerFireCounter.WithLabelValues("skipped")); got != 1 {
		t.Errorf("got skipped count %v, want 1", got)
	}
}

func TestNewMetricsCanBeConstructedTwiceWithDistinctRegistries(t *testing.T) {
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
