package config

import (
	"encoding/hex"
	"fmt"
)

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`

	// FallbackChain names provider IDs in fallback order. Every entry must
	// also appear under Providers; Load checks that, but nothing reads the
	// list at call time, so it does not decide which provider a failed call
	// is retried on.
	FallbackChain []string `yaml:"fallback_chain"`

	// KeyVaultMasterKey is a 64-character hex string (32 bytes) used to
	// seal/open tenant BYOK provider keys. Left empty, the orchestrator
	// generates a random key at startup — fine for a single demo process,
	// but it means encrypted tenant keys stop decrypting across restarts,
	// so production deployments must set this explicitly.
	KeyVaultMasterKey string `yaml:"keyvault_master_key"`
}

// ProviderConfig configures one entry in the provider registry. Anthropic
// and OpenAI-compatible providers (openai, groq) read APIKey/BaseURL/
// DefaultModel; Bedrock reads Region/AccessKeyID/SecretAccessKey instead,
// falling back to the default AWS credential chain when the latter two are
// empty.
type ProviderConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	DefaultModel    string `yaml:"default_model"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
}

func validateLLMConfig(cfg *LLMConfig) error {
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("llm.providers: at least one provider must be configured")
	}
	if cfg.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
			return fmt.Errorf("llm.default_provider %q is not configured under llm.providers", cfg.DefaultProvider)
		}
	}
	for _, name := range cfg.FallbackChain {
		if _, ok := cfg.Providers[name]; !ok {
			return fmt.Errorf("llm.fallback_chain references unconfigured provider %q", name)
		}
	}
	if cfg.KeyVaultMasterKey != "" {
		raw, err := hex.DecodeString(cfg.KeyVaultMasterKey)
		if err != nil {
			return fmt.Errorf("llm.keyvault_master_key: %w", err)
		}
		if len(raw) != 32 {
			return fmt.Errorf("llm.keyvault_master_key: must decode to 32 bytes, got %d", len(raw))
		}
	}
	return nil
}
