// Package routing selects a model for each LLM call: it scores the
// candidate models available at or below a tenant's LLM tier against the
// requirements of the task at hand, tracks per-provider health, and
// enforces tenant token budgets and BYOK credential resolution.
package routing

import (
	"sort"
	"sync"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/provider"
)

// Capability identifies a model capability relevant to routing decisions.
type Capability string

const (
	CapVision     Capability = "vision"
	CapTools      Capability = "tools"
	CapStreaming  Capability = "streaming"
	CapCode       Capability = "code"
	CapReasoning  Capability = "reasoning"
	CapLongContext Capability = "long_context"
)

// Model is one catalog entry: a concrete (provider, model id) pair plus the
// per-million-token pricing and the 1-5 ratings the scoring function in
// score.go reads.
type Model struct {
	ID              string
	Provider        provider.Name
	Name            string
	Tier            domain.LLMTier
	ContextWindow   int
	MaxOutputTokens int
	Capabilities    []Capability

	InputPrice  float64 // USD per million input tokens
	OutputPrice float64 // USD per million output tokens

	// Cost/Speed/Reasoning/Creativity are the 1-5 ratings scored against a
	// TaskType's requirements in score.go.
	Cost       int
	Speed      int
	Reasoning  int
	Creativity int
}

// HasCapability reports whether m supports cap.
func (m *Model) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Catalog is a mutex-guarded registry of Models, keyed by model ID.
// Unlike the teacher's provider/quality tiers, tiers here gate tenant
// entitlement: a tenant's tier determines which models it may route to,
// not how "good" the model is.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]*Model // id -> model
}

// NewCatalog builds a Catalog pre-populated with the built-in model set.
func NewCatalog() *Catalog {
	c := &Catalog{models: make(map[string]*Model)}
	c.registerBuiltins()
	return c
}

// Register adds or replaces a model in the catalog.
func (c *Catalog) Register(m *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.ID] = m
}

// Get retrieves a model by ID.
func (c *Catalog) Get(id string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	return m, ok
}

// ListUpToTier returns every model whose tier is <= the tenant's tier,
// i.e. every model the tenant is entitled to route to, sorted by tier
// (lowest first), then provider, then name for deterministic candidate
// ordering.
func (c *Catalog) ListUpToTier(tier domain.LLMTier) []*Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	allowed := make(map[domain.LLMTier]bool)
	for _, t := range domain.AllTiersUpTo(tier) {
		allowed[t] = true
	}

	var out []*Model
	for _, m := range c.models {
		if allowed[m.Tier] {
			out = append(out, m)
		}
	}
	// Lower/cheaper tier first, so Select/SelectFallback's tie-break (tier,
	// then candidate-list order) has a stable tier ordering to work from.
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := domain.TierRank(out[i].Tier), domain.TierRank(out[j].Tier); ri != rj {
			return ri < rj
		}
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ListByProvider returns every catalog model for the given provider.
func (c *Catalog) ListByProvider(name provider.Name) []*Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Model
	for _, m := range c.models {
		if m.Provider == name {
			out = append(out, m)
		}
	}
	return out
}

func (c *Catalog) registerBuiltins() {
	for _, m := range builtinModels {
		c.Register(m)
	}
}

var builtinModels = []*Model{
	{
		ID: "claude-opus-4-20250514", Provider: provider.NameAnthropic, Name: "Claude Opus 4",
		Tier: domain.TierEnterprise, ContextWindow: 200000, MaxOutputTokens: 32000,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapCode, CapReasoning, CapLongContext},
		InputPrice: 15.0, OutputPrice: 75.0,
		Cost: 1, Speed: 2, Reasoning: 5, Creativity: 5,
	},
	{
		ID: "claude-sonnet-4-20250514", Provider: provider.NameAnthropic, Name: "Claude Sonnet 4",
		Tier: domain.TierProfessional, ContextWindow: 200000, MaxOutputTokens: 16384,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapCode, CapReasoning, CapLongContext},
		InputPrice: 3.0, OutputPrice: 15.0,
		Cost: 3, Speed: 3, Reasoning: 4, Creativity: 4,
	},
	{
		ID: "claude-3-5-haiku-20241022", Provider: provider.NameAnthropic, Name: "Claude 3.5 Haiku",
		Tier: domain.TierStandard, ContextWindow: 200000, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapCode, CapLongContext},
		InputPrice: 0.8, OutputPrice: 4.0,
		Cost: 4, Speed: 4, Reasoning: 3, Creativity: 3,
	},
	{
		ID: "gpt-4o", Provider: provider.NameOpenAI, Name: "GPT-4o",
		Tier: domain.TierProfessional, ContextWindow: 128000, MaxOutputTokens: 16384,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapCode, CapLongContext},
		InputPrice: 2.5, OutputPrice: 10.0,
		Cost: 3, Speed: 3, Reasoning: 4, Creativity: 4,
	},
	{
		ID: "gpt-4o-mini", Provider: provider.NameOpenAI, Name: "GPT-4o Mini",
		Tier: domain.TierStandard, ContextWindow: 128000, MaxOutputTokens: 16384,
		Capabilities: []Capability{CapVision, CapTools, CapStreaming, CapCode},
		InputPrice: 0.15, OutputPrice: 0.6,
		Cost: 5, Speed: 4, Reasoning: 3, Creativity: 3,
	},
	{
		ID: "llama-3.1-70b-versatile", Provider: provider.NameGroq, Name: "Llama 3.1 70B (Groq)",
		Tier: domain.TierFree, ContextWindow: 131072, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapTools, CapStreaming, CapCode},
		InputPrice: 0.59, OutputPrice: 0.79,
		Cost: 5, Speed: 5, Reasoning: 3, Creativity: 3,
	},
	{
		ID: "llama-3.1-8b-instant", Provider: provider.NameGroq, Name: "Llama 3.1 8B Instant (Groq)",
		Tier: domain.TierFree, ContextWindow: 131072, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapStreaming},
		InputPrice: 0.05, OutputPrice: 0.08,
		Cost: 5, Speed: 5, Reasoning: 2, Creativity: 2,
	},
	{
		ID: "anthropic.claude-3-5-sonnet-20241022-v2:0", Provider: provider.NameBedrock, Name: "Claude 3.5 Sonnet (Bedrock)",
		Tier: domain.TierEnterprise, ContextWindow: 200000, MaxOutputTokens: 8192,
		Capabilities: []Capability{CapTools, CapStreaming, CapCode, CapLongContext},
		InputPrice: 3.0, OutputPrice: 15.0,
		Cost: 3, Speed: 3, Reasoning: 4, Creativity: 4,
	},
}
