package mcptool

import (
	"context"
	"testing"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/mcp"
)

func TestNewRequiresServerIDAndToolName(t *testing.T) {
	cases := []map[string]string{
		{},
		{"server_id": "s1"},
		{"tool_name": "lookup"},
	}
	for _, cfg := range cases {
		if _, err := New(mcp.NewManager(nil, nil), &domain.ToolRef{ID: "x", Config: cfg}); err == nil {
			t.Errorf("config %+v: expected an error", cfg)
		}
	}
}

func TestRunFailsWhenServerNotConnected(t *testing.T) {
	manager := mcp.NewManager(&mcp.Config{}, nil)
	tool, err := New(manager, &domain.ToolRef{
		ID:   "lookup_customer",
		Name: "lookup_customer",
		Config: map[string]string{
			"server_id": "crm",
			"tool_name": "lookup_customer",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := tool.Run(context.Background(), map[string]any{"id": "42"}); err == nil {
		t.Fatal("expected an error because the crm server was never connected")
	}
}

func TestRunFailsWithNoManager(t *testing.T) {
	tool, err := New(nil, &domain.ToolRef{ID: "x", Config: map[string]string{"server_id": "crm", "tool_name": "lookup"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tool.Run(context.Background(), nil); err == nil {
		t.Fatal("expected an error when no manager is configured")
	}
}

func TestFlattenTextJoinsTextBlocksOnly(t *testing.T) {
	result := &mcp.ToolCallResult{Content: []mcp.ToolResultContent{
		{Type: "text", Text: "first"},
		{Type: "image", Data: "base64..."},
		{Type: "text", Text: "second"},
	}}
	if got := flattenText(result); got != "first\nsecond" {
		t.Errorf("got %q, want %q", got, "first\nsecond")
	}
}

func TestIDNameDescriptionRequiredConfig(t *testing.T) {
	tool, err := New(mcp.NewManager(nil, nil), &domain.ToolRef{
		ID: "lookup", Name: "Lookup", Config: map[string]string{"server_id": "crm", "tool_name": "lookup_customer"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tool.ID() != "lookup" || tool.Name() != "Lookup" {
		t.Errorf("got ID=%q Name=%q", tool.ID(), tool.Name())
	}
	if tool.Description() != "mcp:crm/lookup_customer" {
		t.Errorf("got description %q", tool.Description())
	}
	want := []string{"server_id", "tool_name"}
	got := tool.RequiredConfig()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}
