package routing

import (
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
	"github.com/agentrail/core/internal/provider/anthropic"
	"github.com/agentrail/core/internal/provider/openai"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint. A tenant's stored Groq
// credential is only ever an API key (ResolvedCredential carries nothing
// else), so the base URL has to come from somewhere fixed rather than from
// the credential itself.
const groqBaseURL = "https://api.groq.com/openai/v1"

// BuildCredentialedProvider constructs a one-off provider.Provider backed by
// a tenant's own decrypted key, for a byok/hybrid prompt task. It is built
// fresh per call and never cached: the caller makes exactly one Complete
// call against it and discards it.
//
// Bedrock BYOK is unsupported. ResolvedCredential carries a single API key;
// bedrock.Config needs an AWS access key/secret/session token tuple and a
// region, none of which the key vault stores. A tenant wanting BYOK Bedrock
// access would need ResolvedCredential (and the encrypted_keys it's sourced
// from) to grow fields for an AWS credential tuple, which is out of scope
// here.
func BuildCredentialedProvider(cred *ResolvedCredential) (provider.Provider, error) {
	switch cred.Provider {
	case provider.NameAnthropic:
		return anthropic.New(anthropic.Config{APIKey: cred.APIKey})
	case provider.NameBedrock:
		return nil, errs.New(errs.KindConfig, "bedrock does not support BYOK: no AWS credential tuple in the key vault")
	case provider.NameGroq:
		return openai.New(openai.Config{Name: string(provider.NameGroq), APIKey: cred.APIKey, BaseURL: groqBaseURL})
	default:
		// NameOpenAI and any tenant-relabeled OpenAI-compatible provider.
		return openai.New(openai.Config{Name: string(cred.Provider), APIKey: cred.APIKey})
	}
}
