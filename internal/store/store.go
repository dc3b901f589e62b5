// Package store persists every domain entity the orchestration core reads
// and writes. A Postgres implementation (postgres.go) backs production; a
// Memory implementation (memory.go) backs tests and the teacher-style
// single-process demo command.
package store

import (
	"context"
	"time"

	"github.com/agentrail/core/internal/domain"
)

// ErrNotFound is returned by Get-style methods when no record matches.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.ID
}

// Store is the full persistence surface for the orchestration core. It is
// intentionally one interface rather than one-per-entity: every concrete
// implementation (Postgres, Memory) backs the whole domain, and callers
// depend on this interface rather than on a concrete store type.
type Store interface {
	TenantStore
	AgentStore
	WorkflowStore
	ConversationStore
	UsageStore

	// Close releases any underlying resources (connection pool, etc).
	Close() error
}

// TenantStore covers tenant records, tier entitlement, and LLM config.
type TenantStore interface {
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	CreateTenant(ctx context.Context, t *domain.Tenant) error
	AddTokensUsed(ctx context.Context, tenantID string, tokens int64) error
	ResetTenantPeriod(ctx context.Context, tenantID string, resetAt time.Time) error

	GetTenantLLMConfig(ctx context.Context, tenantID string) (*domain.TenantLLMConfig, error)
	PutTenantLLMConfig(ctx context.Context, cfg *domain.TenantLLMConfig) error
}

// AgentStore covers agent bundles, prompt templates, and tool references.
type AgentStore interface {
	GetAgent(ctx context.Context, tenantID, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context, tenantID string) ([]*domain.Agent, error)
	CreateAgent(ctx context.Context, a *domain.Agent) error

	GetToolRef(ctx context.Context, tenantID, toolID string) (*domain.ToolRef, error)
	ListToolRefs(ctx context.Context, tenantID string) ([]*domain.ToolRef, error)

	GetPromptTemplate(ctx context.Context, tenantID, promptID string) (*domain.PromptTemplate, error)
	ListPromptTemplates(ctx context.Context, tenantID string) ([]*domain.PromptTemplate, error)
	CreatePromptTemplate(ctx context.Context, p *domain.PromptTemplate) error
}

// WorkflowStore covers workflow definitions, task graphs, executions, and
// scheduled jobs.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, tenantID, workflowID string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context, tenantID string) ([]*domain.Workflow, error)
	CreateWorkflow(ctx context.Context, w *domain.Workflow) error

	ListWorkflowTasks(ctx context.Context, tenantID, workflowID string) ([]*domain.WorkflowTask, error)
	CreateWorkflowTask(ctx context.Context, t *domain.WorkflowTask) error

	GetExecution(ctx context.Context, tenantID, executionID string) (*domain.WorkflowExecution, error)
	CreateExecution(ctx context.Context, e *domain.WorkflowExecution) error
	// SaveExecution persists the full mutable state of e. Every task-graph
	// step calls this so a crash mid-execution loses at most one step.
	SaveExecution(ctx context.Context, e *domain.WorkflowExecution) error
	// GetDueWaitingExecutions returns running executions parked on a
	// wait.delay task whose deadline has passed as of asOf, for the
	// scheduler's resume poll.
	GetDueWaitingExecutions(ctx context.Context, asOf time.Time) ([]*domain.WorkflowExecution, error)

	ListScheduledJobs(ctx context.Context, tenantID string) ([]*domain.ScheduledJob, error)
	GetDueScheduledJobs(ctx context.Context, asOf time.Time) ([]*domain.ScheduledJob, error)
	CreateScheduledJob(ctx context.Context, j *domain.ScheduledJob) error
	// CompareAndSwapSchedule atomically advances a job's last/next fire
	// times only if its current next_fire_at still matches expectedNext,
	// so two scheduler instances racing on the same tick fire it once.
	CompareAndSwapSchedule(ctx context.Context, jobID string, expectedNext, lastFire, nextFire time.Time, lastExecID string) (bool, error)
}

// ConversationStore covers chat conversations and messages.
type ConversationStore interface {
	GetConversation(ctx context.Context, tenantID, conversationID string) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, c *domain.Conversation) error
	SetActiveAgent(ctx context.Context, tenantID, conversationID, agentID string) error

	AppendMessage(ctx context.Context, m *domain.Message) error
	ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]*domain.Message, error)
}

// UsageStore covers the append-only usage ledger.
type UsageStore interface {
	AppendUsageRecord(ctx context.Context, r *domain.UsageRecord) error
	ListUsageRecords(ctx context.Context, tenantID string, since time.Time) ([]*domain.UsageRecord, error)
}
