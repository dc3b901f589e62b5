package domain

import "time"

// TokenUsage is the token accounting for a single provider call, mirroring
// the fields a provider response reports (including prompt-cache hits).
type TokenUsage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
}

// Total returns the sum of every token bucket.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// UsageRecord is an immutable, append-only accounting entry written once per
// completed provider call. Nothing ever updates a UsageRecord after insert.
type UsageRecord struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	UsageMode   UsageMode  `json:"usage_mode"`
	Usage       TokenUsage `json:"usage"`
	CostUSD     float64    `json:"cost_usd,omitempty"`
	ExecutionID string     `json:"execution_id,omitempty"`
	TaskOrder   string     `json:"task_order,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
