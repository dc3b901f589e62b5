package provider

import "github.com/agentrail/core/internal/errs"

// Name identifies a provider implementation in configuration and in
// domain.Agent.Provider. It is distinct from a Provider instance's Name(),
// which may be tenant-relabeled (a Groq adapter still reports "groq" even
// though it shares the openai package).
type Name string

const (
	NameAnthropic Name = "anthropic"
	NameOpenAI    Name = "openai"
	NameGroq      Name = "groq"
	NameBedrock   Name = "bedrock"
)

// Registry is a closed, mutex-free map from provider name to a live
// instance. It is built once at startup from configuration — never via
// reflection or a dynamic plugin mechanism. BYOK calls do not go through
// it: routing.BuildCredentialedProvider builds a one-off adapter per call.
type Registry struct {
	providers map[Name]Provider
}

// NewRegistry builds a Registry from the supplied instances, keyed by each
// Provider's own Name(). Two instances sharing a Name() (e.g. configuring
// both a default and a BYOK anthropic provider under the same key) is a
// caller error; the later one wins silently, matching Go's map semantics.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Name]Provider, len(providers))}
	for _, p := range providers {
		r.providers[Name(p.Name())] = p
	}
	return r
}

// Get returns the provider registered under name, or a KindConfig error if
// none is registered.
func (r *Registry) Get(name Name) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, errs.New(errs.KindConfig, "no provider registered for "+string(name))
	}
	return p, nil
}

// Names lists every registered provider name, in no particular order.
func (r *Registry) Names() []Name {
	out := make([]Name, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	return out
}
