package routing

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
)

// KeyVault seals and opens tenant-supplied provider API keys with
// nacl/secretbox, using a single server-held master key. A tenant's
// plaintext key never touches disk or a log line.
type KeyVault struct {
	masterKey [32]byte
}

// NewKeyVault constructs a KeyVault from a 32-byte master key, typically
// itself sourced from an environment-provided secret.
func NewKeyVault(masterKey [32]byte) *KeyVault {
	return &KeyVault{masterKey: masterKey}
}

// Seal encrypts plaintext under a fresh random nonce, returning
// nonce||ciphertext.
func (v *KeyVault) Seal(plaintext string) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errs.Wrap(errs.KindConfig, "byok: generate nonce", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.masterKey), nil
}

// Open decrypts a blob produced by Seal.
func (v *KeyVault) Open(sealed []byte) (string, error) {
	if len(sealed) < 24 {
		return "", errs.New(errs.KindConfig, "byok: sealed key too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &v.masterKey)
	if !ok {
		return "", errs.New(errs.KindConfig, "byok: decryption failed, key vault mismatch or corrupted data")
	}
	return string(plaintext), nil
}

// ResolvedCredential is one tenant-supplied, decrypted provider key, ready
// to hand to a provider constructor for exactly one call. Callers must not
// cache this value beyond the request it was resolved for.
type ResolvedCredential struct {
	Provider provider.Name
	APIKey   string
}

// ResolveCredential decrypts the tenant's stored key for name according to
// its usage mode. Platform mode never reaches here (the platform's own
// keys come from static config); byok/hybrid tenants must have a key
// configured for name, or resolution fails with KindConfig.
//
// Resolution happens fresh on every call rather than being memoized on the
// TenantLLMConfig, so a key rotation takes effect on the tenant's very next
// request without requiring any cache invalidation.
func (v *KeyVault) ResolveCredential(cfg *domain.TenantLLMConfig, name provider.Name) (*ResolvedCredential, error) {
	if cfg.Mode == domain.UsageModePlatform {
		return nil, errs.New(errs.KindConfig, "byok: tenant is in platform mode, no stored credential to resolve")
	}

	sealed, ok := cfg.EncryptedKeys[string(name)]
	if !ok {
		return nil, errs.New(errs.KindConfig, "byok: no stored key for provider "+string(name))
	}

	plaintext, err := v.Open(sealed)
	if err != nil {
		return nil, err
	}
	return &ResolvedCredential{Provider: name, APIKey: plaintext}, nil
}

// ResolveUsageMode determines whether a request should use the tenant's
// own credential or the platform's shared credential for provider name.
// Hybrid mode prefers the tenant's own key when present and falls back to
// platform otherwise.
func ResolveUsageMode(cfg *domain.TenantLLMConfig, name provider.Name) domain.UsageMode {
	switch cfg.Mode {
	case domain.UsageModeBYOK:
		return domain.UsageModeBYOK
	case domain.UsageModeHybrid:
		if _, ok := cfg.EncryptedKeys[string(name)]; ok {
			return domain.UsageModeBYOK
		}
		return domain.UsageModePlatform
	default:
		return domain.UsageModePlatform
	}
}
