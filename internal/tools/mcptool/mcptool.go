// Package mcptool backs ToolRefs whose Category is "mcp": each one names an
// already-connected internal/mcp server and a tool exposed by it, so the
// interpreter's mcp_action task type can call real MCP tool servers
// through the same uniform tools.Tool contract every other category uses.
package mcptool

import (
	"context"
	"strings"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/mcp"
)

// Tool calls one tool on one connected MCP server.
type Tool struct {
	id          string
	name        string
	description string
	serverID    string
	toolName    string
	manager     *mcp.Manager
}

// New builds a Tool from a ToolRef. Config must set "server_id" (an
// internal/mcp.ServerConfig.ID already connected by manager) and
// "tool_name" (the MCP tool exposed by that server).
func New(manager *mcp.Manager, ref *domain.ToolRef) (*Tool, error) {
	serverID := ref.Config["server_id"]
	toolName := ref.Config["tool_name"]
	if serverID == "" || toolName == "" {
		return nil, errs.New(errs.KindConfig, "mcp tool requires config[server_id] and config[tool_name]")
	}
	return &Tool{
		id: ref.ID, name: ref.Name, description: "mcp:" + serverID + "/" + toolName,
		serverID: serverID, toolName: toolName, manager: manager,
	}, nil
}

func (t *Tool) ID() string               { return t.id }
func (t *Tool) Name() string             { return t.name }
func (t *Tool) Description() string      { return t.description }
func (t *Tool) RequiredConfig() []string { return []string{"server_id", "tool_name"} }

// Run calls the MCP tool and flattens its content blocks into a single
// string (concatenating any "text" parts) plus the raw blocks, so callers
// that only care about a prompt-ready summary don't have to parse
// ToolCallResult themselves.
func (t *Tool) Run(ctx context.Context, params map[string]any) (any, error) {
	if t.manager == nil {
		return nil, errs.New(errs.KindConfig, "mcp tool has no manager configured")
	}
	result, err := t.manager.CallTool(ctx, t.serverID, t.toolName, params)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "mcp tool call failed", err)
	}
	if result.IsError {
		return nil, errs.New(errs.KindUpstream, "mcp tool "+t.toolName+" returned an error result: "+flattenText(result))
	}
	return map[string]any{
		"text":    flattenText(result),
		"content": result.Content,
	}, nil
}

func flattenText(result *mcp.ToolCallResult) string {
	var sb strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}
