// Package openai adapts OpenAI's chat completion API to the
// provider.Provider interface. The same client also backs any
// OpenAI-compatible endpoint (Groq, a self-hosted gateway) by pointing
// Config.BaseURL elsewhere and supplying Config.Name.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
)

// Config configures a Provider instance.
type Config struct {
	// Name overrides the provider identifier (default "openai"). Set to
	// "groq" or a tenant-chosen label when BaseURL points elsewhere.
	Name string
	APIKey string
	// BaseURL overrides the OpenAI API host, for Groq or a self-hosted
	// OpenAI-compatible gateway.
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
	// Models is the static model list reported by Models(), since
	// OpenAI-compatible gateways don't all expose a shared catalog.
	Models []provider.ModelInfo
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// Provider implements provider.Provider over github.com/sashabaranov/go-openai.
type Provider struct {
	client       *openai.Client
	name         string
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	models       []provider.ModelInfo
}

// New constructs a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindConfig, "openai: api key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openai.NewClientWithConfig(clientCfg),
		name:         cfg.Name,
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		models:       cfg.Models,
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Models() []provider.ModelInfo { return p.models }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, Tools: true, Vision: false}
}

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

func (p *Provider) model(req provider.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req),
		Messages: convertMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(errs.KindCancelled, p.name, ctx.Err())
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return nil, wrapError(p.name, lastErr)
		}
	}
	if lastErr != nil {
		return nil, errs.Wrap(errs.KindUpstream, p.name+": max retries exceeded", lastErr)
	}

	out := make(chan provider.Chunk)
	go processStream(ctx, stream, out)
	return out, nil
}

func processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- provider.Chunk) {
	defer close(out)
	defer stream.Close()

	toolCalls := make(map[int]*provider.ToolCall)
	var inputTokens, outputTokens int64

	for {
		select {
		case <-ctx.Done():
			out <- provider.Chunk{Err: errs.Wrap(errs.KindCancelled, "openai stream", ctx.Err()), Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				for _, tc := range toolCalls {
					if tc.ID != "" && tc.Name != "" {
						out <- provider.Chunk{ToolCall: tc}
					}
				}
				out <- provider.Chunk{Done: true, Usage: &provider.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}}
				return
			}
			out <- provider.Chunk{Err: errs.Wrap(errs.KindUpstream, "openai stream", err), Done: true}
			return
		}

		if resp.Usage != nil {
			inputTokens = int64(resp.Usage.PromptTokens)
			outputTokens = int64(resp.Usage.CompletionTokens)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			out <- provider.Chunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &provider.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Arguments = append(toolCalls[index].Arguments, []byte(tc.Function.Arguments)...)
			}
		}

		if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			for _, tc := range toolCalls {
				if tc.ID != "" && tc.Name != "" {
					out <- provider.Chunk{ToolCall: tc}
				}
			}
			toolCalls = make(map[int]*provider.ToolCall)
		}
	}
}

func convertMessages(messages []provider.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case provider.RoleTool:
			for _, tr := range msg.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case provider.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, oaiMsg)
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}
	return out
}

func convertTools(tools []provider.ToolDef) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Schema, &schema)
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout")
}

func wrapError(name string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return errs.Wrap(errs.KindAuth, name, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return errs.Wrap(errs.KindRateLimit, name, err)
	case strings.Contains(msg, "timeout"):
		return errs.Wrap(errs.KindTimeout, name, err)
	default:
		return errs.Wrap(errs.KindUpstream, name, err)
	}
}
