// Package httptask performs the bounded outbound HTTP call behind a
// workflow's http_request task: 30s deadline, 10 MiB response cap, no
// redirect surprises. Plain net/http is the right tool here — no pack repo
// ships an HTTP client wrapper worth adopting over the standard library for
// a single bounded call.
package httptask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// MaxDuration bounds the whole call: connect, write, and read.
	MaxDuration = 30 * time.Second
	// MaxResponseBytes caps the response body read.
	MaxResponseBytes = 10 * 1024 * 1024
)

// Request is the interpolated task configuration.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Response is the task output: Parsed holds the JSON-decoded body when the
// content is valid JSON, nil otherwise, in which case Body is the final
// output.
type Response struct {
	StatusCode int
	Body       string
	Parsed     any
}

// Do performs req, bounding the whole round trip to MaxDuration and the
// response body to MaxResponseBytes.
func Do(ctx context.Context, client *http.Client, req Request) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, MaxDuration)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = bytes.NewBufferString(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build http_request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http_request call: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read http_request response: %w", err)
	}
	if len(data) > MaxResponseBytes {
		return nil, fmt.Errorf("http_request response exceeded %d bytes", MaxResponseBytes)
	}

	out := &Response{StatusCode: resp.StatusCode, Body: string(data)}
	var parsed any
	if json.Unmarshal(data, &parsed) == nil {
		out.Parsed = parsed
	}
	return out, nil
}
