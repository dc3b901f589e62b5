package openai

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if errs.KindOf(err) != errs.KindConfig {
		t.Errorf("got kind %v, want config", errs.KindOf(err))
	}
}

func TestNewDefaultsNameToOpenAI(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("got name %q, want openai", p.Name())
	}
}

func TestNewHonorsNameOverrideForGroq(t *testing.T) {
	p, err := New(Config{APIKey: "gsk-test", Name: "groq", BaseURL: "https://api.groq.com/openai/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "groq" {
		t.Errorf("got name %q, want groq", p.Name())
	}
}

func TestConvertMessagesToolResultsExpandPerResult(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.RoleTool, ToolResults: []provider.ToolResult{
			{ToolCallID: "call_1", Content: "72F"},
			{ToolCallID: "call_2", Content: "sunny"},
		}},
	}
	out := convertMessages(msgs, "")
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2 (one per tool result)", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleTool {
		t.Errorf("got role %q, want tool", out[0].Role)
	}
}

func TestConvertMessagesPrependsSystem(t *testing.T) {
	out := convertMessages([]provider.Message{{Role: provider.RoleUser, Content: "hi"}}, "be concise")
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("got first role %q, want system", out[0].Role)
	}
}

func TestConvertToolsUnmarshalsParameters(t *testing.T) {
	schema, _ := json.Marshal(map[string]any{"type": "object"})
	tools := convertTools([]provider.ToolDef{{Name: "search", Schema: schema}})
	if len(tools) != 1 || tools[0].Function.Name != "search" {
		t.Fatalf("got %+v", tools)
	}
}

func TestIsRetryable(t *testing.T) {
	if !isRetryable(&testErr{"429 rate limit exceeded"}) {
		t.Error("429 should be retryable")
	}
	if isRetryable(&testErr{"401 unauthorized"}) {
		t.Error("401 should not be retryable")
	}
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
