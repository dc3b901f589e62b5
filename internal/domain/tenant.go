// Package domain holds the entities the orchestration core reads and writes.
//
// Entities are plain structs referenced by ID rather than by pointer graph:
// Workflow <-> WorkflowTask and Agent <-> ToolRef are cyclic in the product
// these types model, but nothing here embeds a pointer back to its owner.
// Relationships are resolved at read time through internal/store.
package domain

import "time"

// LLMTier gates which models a tenant may invoke. Higher tiers can always
// use every model available to a lower tier.
type LLMTier string

const (
	TierFree         LLMTier = "free"
	TierStandard     LLMTier = "standard"
	TierProfessional LLMTier = "professional"
	TierEnterprise   LLMTier = "enterprise"
)

// TierRank orders tiers from lowest to highest capability.
func TierRank(t LLMTier) int {
	switch t {
	case TierFree:
		return 0
	case TierStandard:
		return 1
	case TierProfessional:
		return 2
	case TierEnterprise:
		return 3
	default:
		return 0
	}
}

// AllTiersUpTo returns every tier whose rank is <= t's rank, lowest first.
func AllTiersUpTo(t LLMTier) []LLMTier {
	order := []LLMTier{TierFree, TierStandard, TierProfessional, TierEnterprise}
	rank := TierRank(t)
	out := make([]LLMTier, 0, rank+1)
	for _, candidate := range order {
		if TierRank(candidate) <= rank {
			out = append(out, candidate)
		}
	}
	return out
}

// Tenant is the billing and isolation root. It owns its Users, Sessions, API
// keys, LLM config, Usage Records, and Conversations exclusively.
type Tenant struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Plan               string    `json:"plan"`
	SubscriptionStatus string    `json:"subscription_status"`
	TrialEndsAt        time.Time `json:"trial_ends_at,omitempty"`

	LLMTier LLMTier `json:"llm_tier"`

	// MonthlyTokenLimit is the platform-mode token budget for the current
	// billing period. A nil value means unlimited.
	MonthlyTokenLimit *int64 `json:"monthly_token_limit,omitempty"`
	TokensUsedPeriod  int64  `json:"tokens_used_period"`
	// LimitResetAt is the first instant of the next calendar month, UTC.
	LimitResetAt time.Time `json:"limit_reset_at"`

	MaxUsers        int `json:"max_users"`
	MaxAgents       int `json:"max_agents"`
	MaxWorkflows    int `json:"max_workflows"`
	MaxExecutionsMo int `json:"max_executions_per_month"`

	CreatedAt time.Time `json:"created_at"`
}

// HasUnlimitedTokens reports whether the tenant has no monthly token ceiling.
func (t *Tenant) HasUnlimitedTokens() bool {
	return t.MonthlyTokenLimit == nil
}

// RemainingTokens returns the tokens left in the period, or -1 if unlimited.
func (t *Tenant) RemainingTokens() int64 {
	if t.HasUnlimitedTokens() {
		return -1
	}
	remaining := *t.MonthlyTokenLimit - t.TokensUsedPeriod
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FirstOfNextMonthUTC returns the first instant of the month after now, UTC.
func FirstOfNextMonthUTC(now time.Time) time.Time {
	now = now.UTC()
	year, month, _ := now.Date()
	firstOfThisMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return firstOfThisMonth.AddDate(0, 1, 0)
}

// UsageMode controls how a tenant's LLM calls are funded.
type UsageMode string

const (
	UsageModePlatform UsageMode = "platform"
	UsageModeBYOK     UsageMode = "byok"
	UsageModeHybrid   UsageMode = "hybrid"
)

// TenantLLMConfig is the one-per-tenant LLM configuration record.
type TenantLLMConfig struct {
	TenantID string    `json:"tenant_id"`
	Mode     UsageMode `json:"mode"`

	// EncryptedKeys maps provider name (groq|openai|anthropic) to a
	// nacl/secretbox-sealed API key. Never holds plaintext.
	EncryptedKeys map[string][]byte `json:"-"`

	AllowedModels []string `json:"allowed_models,omitempty"`
	BlockedModels []string `json:"blocked_models,omitempty"`

	PreferredProvider string `json:"preferred_provider,omitempty"`
	PreferredModel    string `json:"preferred_model,omitempty"`
}

// Validate enforces the §3 invariant: byok mode requires at least one key.
func (c *TenantLLMConfig) Validate() error {
	if c.Mode == UsageModeBYOK && len(c.EncryptedKeys) == 0 {
		return &ConfigError{Reason: "byok mode requires at least one provider key"}
	}
	return nil
}

// ConfigError reports a configuration-time validation failure (ErrConfig).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }
