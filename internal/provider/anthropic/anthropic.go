// Package anthropic adapts Anthropic's Claude API to the provider.Provider
// interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
)

// Config configures a Provider instance. APIKey is required; everything
// else defaults per the constants below.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

const (
	defaultModel      = "claude-sonnet-4-20250514"
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultMaxTokens  = 4096
)

// Provider implements provider.Provider over github.com/anthropics/anthropic-sdk-go.
type Provider struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// New constructs a Provider. Returns an ErrConfig-kind error if APIKey is
// empty.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindConfig, "anthropic: api key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Models() []provider.ModelInfo {
	return []provider.ModelInfo{
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextWindow: 200000, MaxOutputTokens: 32000, SupportsVision: true, SupportsTools: true},
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextWindow: 200000, MaxOutputTokens: 16384, SupportsVision: true, SupportsTools: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextWindow: 200000, MaxOutputTokens: 8192, SupportsVision: true, SupportsTools: true},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextWindow: 200000, MaxOutputTokens: 8192, SupportsVision: true, SupportsTools: true},
	}
}

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, Tools: true, Vision: true}
}

// Complete drains Stream into a single Response.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	var toolCalls []provider.ToolCall
	var usage provider.Usage
	for c := range chunks {
		if c.Err != nil {
			return nil, c.Err
		}
		text.WriteString(c.Text)
		if c.ToolCall != nil {
			toolCalls = append(toolCalls, *c.ToolCall)
		}
		if c.Usage != nil {
			usage = *c.Usage
		}
	}
	return &provider.Response{Text: text.String(), ToolCalls: toolCalls, Usage: usage}, nil
}

func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	out := make(chan provider.Chunk)

	go func() {
		defer close(out)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var err error
		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			stream, err = p.createStream(ctx, req)
			if err == nil {
				break
			}
			wrapped := p.wrapError(err)
			if errs.KindOf(wrapped) != errs.KindRateLimit && errs.KindOf(wrapped) != errs.KindUpstream {
				out <- provider.Chunk{Err: wrapped}
				return
			}
			if attempt == p.maxRetries {
				break
			}
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				out <- provider.Chunk{Err: errs.Wrap(errs.KindCancelled, "anthropic stream", ctx.Err())}
				return
			case <-time.After(backoff):
			}
		}
		if err != nil {
			out <- provider.Chunk{Err: errs.Wrap(errs.KindUpstream, "anthropic: max retries exceeded", p.wrapError(err))}
			return
		}

		p.processStream(stream, out)
	}()

	return out, nil
}

func (p *Provider) model(req provider.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *Provider) maxTokens(req provider.Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

func (p *Provider) createStream(ctx context.Context, req provider.Request) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, errs.Wrap(errs.KindMissingInput, "anthropic: convert messages", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  messages,
		MaxTokens: int64(p.maxTokens(req)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, errs.Wrap(errs.KindMissingInput, "anthropic: convert tools", err)
		}
		params.Tools = tools
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

func convertMessages(messages []provider.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == provider.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(tc.Arguments, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call arguments: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if msg.Role == provider.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func convertTools(tools []provider.ToolDef) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("tool %q: invalid schema: %w", t.Name, err)
		}
		props, _ := schema["properties"].(map[string]any)
		var required []string
		if r, ok := schema["required"].([]any); ok {
			for _, v := range r {
				if s, ok := v.(string); ok {
					required = append(required, s)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out, nil
}

func (p *Provider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- provider.Chunk) {
	var currentToolCall *provider.ToolCall
	var currentToolInput strings.Builder
	var inputTokens, outputTokens int64

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = ms.Message.Usage.InputTokens
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				currentToolCall = &provider.ToolCall{ID: tu.ID, Name: tu.Name}
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- provider.Chunk{Text: delta.Text}
				}
			case "input_json_delta":
				currentToolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.Arguments = []byte(currentToolInput.String())
				out <- provider.Chunk{ToolCall: currentToolCall}
				currentToolCall = nil
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = md.Usage.OutputTokens
			}

		case "message_stop":
			out <- provider.Chunk{Done: true, Usage: &provider.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- provider.Chunk{Err: errs.Wrap(errs.KindUpstream, "anthropic: stream error", err)}
		return
	}
	out <- provider.Chunk{Done: true, Usage: &provider.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}}
}

func (p *Provider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return errs.Wrap(errs.KindRateLimit, "anthropic", err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return errs.Wrap(errs.KindAuth, "anthropic", err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return errs.Wrap(errs.KindTimeout, "anthropic", err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return errs.Wrap(errs.KindUpstream, "anthropic", err)
	default:
		return errs.Wrap(errs.KindUpstream, "anthropic", err)
	}
}
