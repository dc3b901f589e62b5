// Package httptool is the bundled outbound-webhook tool: a ToolRef whose
// Category is "http" is backed by one of these, calling a fixed URL with
// params merged into the request body. It reuses workflow/httptask's
// bounded HTTP call rather than rolling its own client.
package httptool

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/workflow/httptask"
)

// Tool calls a fixed webhook URL, JSON-encoding the task's resolved params
// as the request body.
type Tool struct {
	id          string
	name        string
	description string
	url         string
	method      string
	headers     map[string]string
	client      *http.Client
}

// New builds a Tool from a ToolRef. Config must set "url"; "method"
// defaults to POST, "headers" (a JSON object) is optional.
func New(ref *domain.ToolRef, client *http.Client) (*Tool, error) {
	url := ref.Config["url"]
	if url == "" {
		return nil, errs.New(errs.KindConfig, "http tool requires config[url]")
	}
	method := ref.Config["method"]
	if method == "" {
		method = http.MethodPost
	}
	headers := map[string]string{}
	if raw := ref.Config["headers"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return nil, errs.Wrap(errs.KindConfig, "http tool config[headers] must be a JSON object", err)
		}
	}
	return &Tool{
		id: ref.ID, name: ref.Name, description: "webhook: " + url,
		url: url, method: method, headers: headers, client: client,
	}, nil
}

func (t *Tool) ID() string                 { return t.id }
func (t *Tool) Name() string               { return t.name }
func (t *Tool) Description() string        { return t.description }
func (t *Tool) RequiredConfig() []string   { return []string{"url"} }

// Run JSON-encodes params as the request body and returns the parsed (or
// raw) response.
func (t *Tool) Run(ctx context.Context, params map[string]any) (any, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "encode http tool params", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range t.headers {
		headers[k] = v
	}
	resp, err := httptask.Do(ctx, t.client, httptask.Request{
		Method: t.method, URL: t.url, Headers: headers, Body: string(body),
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "http tool call failed", err)
	}
	if resp.StatusCode >= 300 {
		return nil, errs.New(errs.KindUpstream, httpToolStatusError(resp.StatusCode, resp.Body))
	}
	if resp.Parsed != nil {
		return resp.Parsed, nil
	}
	return resp.Body, nil
}

func httpToolStatusError(status int, body string) string {
	const maxBodyInError = 200
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}
	return "webhook returned status " + http.StatusText(status) + ": " + body
}
