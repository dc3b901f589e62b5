package bedrock

import (
	"encoding/json"
	"testing"

	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
)

func TestBuildBodyDropsSystemRoleMessages(t *testing.T) {
	req := provider.Request{
		System: "be helpful",
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "ignored"},
			{Role: provider.RoleUser, Content: "hello"},
			{Role: provider.RoleAssistant, Content: "hi there"},
		},
	}
	raw, err := buildBody(req, 4096)
	if err != nil {
		t.Fatalf("buildBody: %v", err)
	}
	var body bedrockRequestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.System != "be helpful" {
		t.Errorf("got system %q, want %q", body.System, "be helpful")
	}
	if len(body.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (system role excluded)", len(body.Messages))
	}
	if body.AnthropicVersion != anthropicVersion {
		t.Errorf("got anthropic_version %q, want %q", body.AnthropicVersion, anthropicVersion)
	}
}

func TestBuildBodyFallsBackToDefaultMaxTokens(t *testing.T) {
	raw, err := buildBody(provider.Request{}, 2048)
	if err != nil {
		t.Fatalf("buildBody: %v", err)
	}
	var body bedrockRequestBody
	_ = json.Unmarshal(raw, &body)
	if body.MaxTokens != 2048 {
		t.Errorf("got max_tokens %d, want 2048", body.MaxTokens)
	}
}

func TestWrapInvokeErrClassification(t *testing.T) {
	cases := map[string]errs.Kind{
		"ThrottlingException: rate exceeded": errs.KindRateLimit,
		"AccessDeniedException: not allowed": errs.KindAuth,
		"ValidationException: bad input":     errs.KindUpstream,
	}
	for msg, want := range cases {
		got := errs.KindOf(wrapInvokeErr(&testErr{msg}))
		if got != want {
			t.Errorf("wrapInvokeErr(%q) kind = %v, want %v", msg, got, want)
		}
	}
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
