// Package workflow implements the task-graph interpreter: it walks a
// Workflow's ordered tasks against a mutable WorkflowExecution, evaluating
// conditions, interpolating variables, applying each task's error policy,
// persisting progress after every step, and emitting events for live
// subscribers.
package workflow

import (
	"context"
	"net/http"
	"time"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/eventbus"
	"github.com/agentrail/core/internal/provider"
	"github.com/agentrail/core/internal/routing"
)

// MaxLoopIterations bounds a single loop task (§4.D).
const MaxLoopIterations = 100

// MaxGotos bounds goto transitions across one execution's lifetime (§4.D).
const MaxGotos = 25

// DefaultApprovalTimeout is how long a human_approval task waits when its
// config sets no timeout. Once it has passed, Resume fails the execution.
const DefaultApprovalTimeout = 24 * time.Hour

// ToolRunner is the narrow surface the interpreter needs from the tool
// registry. Defined locally (rather than importing internal/tools) to
// avoid a dependency cycle, the same pattern routing.TenantStore uses for
// internal/store.
type ToolRunner interface {
	Run(ctx context.Context, tenantID, toolID string, params map[string]any) (any, error)
}

// Store is the narrow persistence surface the interpreter needs.
type Store interface {
	GetWorkflow(ctx context.Context, tenantID, workflowID string) (*domain.Workflow, error)
	ListWorkflowTasks(ctx context.Context, tenantID, workflowID string) ([]*domain.WorkflowTask, error)
	GetExecution(ctx context.Context, tenantID, executionID string) (*domain.WorkflowExecution, error)
	CreateExecution(ctx context.Context, e *domain.WorkflowExecution) error
	SaveExecution(ctx context.Context, e *domain.WorkflowExecution) error
	GetPromptTemplate(ctx context.Context, tenantID, promptID string) (*domain.PromptTemplate, error)
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	GetTenantLLMConfig(ctx context.Context, tenantID string) (*domain.TenantLLMConfig, error)
	AppendUsageRecord(ctx context.Context, r *domain.UsageRecord) error
}

// Interpreter executes workflow task graphs. One Interpreter value is
// shared by every worker goroutine; all mutable state lives on the
// WorkflowExecution passed to Resume.
type Interpreter struct {
	Store      Store
	Bus        eventbus.Bus
	Router     *routing.Router
	Providers  *provider.Registry
	Quota      *routing.QuotaEnforcer
	KeyVault   *routing.KeyVault
	Tools      ToolRunner
	HTTPClient *http.Client

	now func() time.Time
}

// New builds an Interpreter. A nil HTTPClient falls back to
// http.DefaultClient.
func New(store Store, bus eventbus.Bus, router *routing.Router, providers *provider.Registry, quota *routing.QuotaEnforcer, vault *routing.KeyVault, tools ToolRunner) *Interpreter {
	return &Interpreter{
		Store: store, Bus: bus, Router: router, Providers: providers,
		Quota: quota, KeyVault: vault, Tools: tools,
		HTTPClient: http.DefaultClient,
		now:        time.Now,
	}
}

func (in *Interpreter) clock() time.Time {
	if in.now != nil {
		return in.now()
	}
	return time.Now()
}

func (in *Interpreter) publish(ctx context.Context, ev eventbus.Event) {
	if in.Bus == nil {
		return
	}
	ev.Timestamp = in.clock().UTC()
	_ = in.Bus.Publish(ctx, ev)
}
