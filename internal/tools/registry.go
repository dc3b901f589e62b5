package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
)

// ToolRefStore is the narrow persistence surface the registry needs to
// resolve a tool_id into its tenant-scoped configuration.
type ToolRefStore interface {
	GetToolRef(ctx context.Context, tenantID, toolID string) (*domain.ToolRef, error)
}

// Factory builds a Tool from its persisted reference. Factories are
// registered per ToolRef.Category (e.g. "http", "mcp", "notifier") so the
// registry never needs a case on concrete tool types.
type Factory func(ref *domain.ToolRef) (Tool, error)

// Registry resolves a tenant's tool_id to a ToolRef, gates on its status,
// and dispatches to the factory registered for its category. It implements
// workflow.ToolRunner.
type Registry struct {
	Store ToolRefStore

	mu         sync.RWMutex
	factories  map[string]Factory
	cache      map[string]Tool // toolID -> built instance, invalidated never (ToolRefs are read-only at runtime)
}

// NewRegistry builds an empty Registry. Register factories with
// RegisterFactory before calling Run.
func NewRegistry(store ToolRefStore) *Registry {
	return &Registry{
		Store:     store,
		factories: make(map[string]Factory),
		cache:     make(map[string]Tool),
	}
}

// RegisterFactory binds category to a Factory. A tool category with no
// registered factory fails every tool_id under it at Run time with a
// config error, not at registration time, since categories are data (a
// ToolRef's Category field) rather than a closed Go type.
func (r *Registry) RegisterFactory(category string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[category] = factory
}

// Run resolves toolID for tenantID, builds (or reuses) the Tool behind it,
// and invokes it with params. Matches workflow.ToolRunner.
func (r *Registry) Run(ctx context.Context, tenantID, toolID string, params map[string]any) (any, error) {
	tool, err := r.resolve(ctx, tenantID, toolID)
	if err != nil {
		return nil, err
	}
	return tool.Run(ctx, params)
}

func (r *Registry) resolve(ctx context.Context, tenantID, toolID string) (Tool, error) {
	cacheKey := tenantID + "/" + toolID
	r.mu.RLock()
	cached, ok := r.cache[cacheKey]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	ref, err := r.Store.GetToolRef(ctx, tenantID, toolID)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, "tool not found: "+toolID, err)
	}
	if !ref.Invocable() {
		return nil, errs.New(errs.KindConfig, fmt.Sprintf("tool %q is not invocable (status=%s)", toolID, ref.Status))
	}

	r.mu.RLock()
	factory, ok := r.factories[ref.Category]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindConfig, fmt.Sprintf("tool %q has unregistered category %q", toolID, ref.Category))
	}

	tool, err := factory(ref)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "build tool "+toolID, err)
	}

	if err := checkRequiredConfig(ref, tool); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[cacheKey] = tool
	r.mu.Unlock()
	return tool, nil
}

func checkRequiredConfig(ref *domain.ToolRef, tool Tool) error {
	for _, key := range tool.RequiredConfig() {
		if ref.Config[key] == "" {
			return errs.New(errs.KindConfig, fmt.Sprintf("tool %q missing required config %q", ref.ID, key))
		}
	}
	return nil
}
