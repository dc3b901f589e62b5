package provider

import (
	"context"
	"testing"

	"github.com/agentrail/core/internal/errs"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return &Response{}, nil
}
func (s stubProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	ch := make(chan Chunk)
	close(ch)
	return ch, nil
}
func (s stubProvider) Models() []ModelInfo       { return nil }
func (s stubProvider) Capabilities() Capabilities { return Capabilities{} }

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry(stubProvider{name: "anthropic"}, stubProvider{name: "groq"})

	p, err := reg.Get(NameAnthropic)
	if err != nil {
		t.Fatalf("Get(anthropic): %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("got provider %q, want anthropic", p.Name())
	}

	if _, err := reg.Get(NameBedrock); err == nil {
		t.Fatal("expected error for unregistered provider, got nil")
	} else if errs.KindOf(err) != errs.KindConfig {
		t.Errorf("got kind %v, want config", errs.KindOf(err))
	}
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry(stubProvider{name: "anthropic"}, stubProvider{name: "openai"})
	names := reg.Names()
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2", len(names))
	}
}
