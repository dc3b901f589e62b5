// Package bedrock adapts AWS Bedrock runtime invocations (Claude-family
// models only, the Bedrock-hosted wire format Anthropic documents) to the
// provider.Provider interface. Unlike the anthropic/openai adapters this one
// demonstrates Provider over a signed-AWS-request transport instead of a
// plain HTTP+JSON client. It runs on the platform's configured AWS
// credentials; routing.BuildCredentialedProvider does not build Bedrock
// adapters from tenant BYOK keys.
package bedrock

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
)

// Config configures a Provider instance. Region defaults to us-east-1.
// AccessKeyID/SecretAccessKey/SessionToken are optional; when empty the
// default AWS credential chain is used (so a tenant can also configure this
// via IAM instance/task role rather than a stored key).
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	DefaultMaxTokens int
}

const anthropicVersion = "bedrock-2023-05-31"

// Provider implements provider.Provider over bedrockruntime.InvokeModel /
// InvokeModelWithResponseStream for Claude-on-Bedrock model IDs.
type Provider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxTokens    int
}

// New constructs a Provider, loading AWS config from the supplied static
// credentials or, if empty, the default provider chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultMaxTokens == 0 {
		cfg.DefaultMaxTokens = 4096
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "bedrock: load aws config", err)
	}

	return &Provider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.DefaultMaxTokens,
	}, nil
}

func (p *Provider) Name() string { return "bedrock" }

func (p *Provider) Models() []provider.ModelInfo {
	return []provider.ModelInfo{
		{ID: "anthropic.claude-3-5-sonnet-20241022-v2:0", Name: "Claude 3.5 Sonnet (Bedrock)", ContextWindow: 200000, MaxOutputTokens: 8192, SupportsTools: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextWindow: 200000, MaxOutputTokens: 4096, SupportsTools: true},
	}
}

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, Tools: true, Vision: false}
}

func (p *Provider) model(req provider.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequestBody struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

func buildBody(req provider.Request, maxTokens int) ([]byte, error) {
	messages := make([]bedrockMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == provider.RoleSystem {
			continue
		}
		role := "user"
		if m.Role == provider.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, bedrockMessage{Role: role, Content: m.Content})
	}
	mt := req.MaxTokens
	if mt <= 0 {
		mt = maxTokens
	}
	return json.Marshal(bedrockRequestBody{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        mt,
		System:           req.System,
		Messages:         messages,
	})
}

type bedrockInvokeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	body, err := buildBody(req, p.maxTokens)
	if err != nil {
		return nil, errs.Wrap(errs.KindMissingInput, "bedrock: build request", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model(req)),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, wrapInvokeErr(err)
	}

	var parsed bedrockInvokeResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "bedrock: decode response", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &provider.Response{
		Text: text.String(),
		Usage: provider.Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}

// streamEvent mirrors the subset of Anthropic's SSE event shapes Bedrock
// relays through InvokeModelWithResponseStream chunks.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	body, err := buildBody(req, p.maxTokens)
	if err != nil {
		return nil, errs.Wrap(errs.KindMissingInput, "bedrock: build request", err)
	}

	resp, err := p.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(p.model(req)),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, wrapInvokeErr(err)
	}

	out := make(chan provider.Chunk)
	go func() {
		defer close(out)
		stream := resp.GetStream()
		defer stream.Close()

		var inputTokens, outputTokens int64
		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			var ev streamEvent
			if err := json.Unmarshal(chunk.Value.Bytes, &ev); err != nil {
				continue
			}
			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Text != "" {
					out <- provider.Chunk{Text: ev.Delta.Text}
				}
			case "message_delta":
				if ev.Usage.OutputTokens > 0 {
					outputTokens = ev.Usage.OutputTokens
				}
			case "message_start":
				if ev.Usage.InputTokens > 0 {
					inputTokens = ev.Usage.InputTokens
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- provider.Chunk{Err: errs.Wrap(errs.KindUpstream, "bedrock: stream error", err)}
			return
		}
		out <- provider.Chunk{Done: true, Usage: &provider.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}}
	}()

	return out, nil
}

func wrapInvokeErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "throttling") || strings.Contains(msg, "toomanyrequests"):
		return errs.Wrap(errs.KindRateLimit, "bedrock", err)
	case strings.Contains(msg, "accessdenied") || strings.Contains(msg, "unauthorized"):
		return errs.Wrap(errs.KindAuth, "bedrock", err)
	default:
		return errs.Wrap(errs.KindUpstream, "bedrock", err)
	}
}
