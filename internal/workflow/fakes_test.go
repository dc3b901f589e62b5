package workflow

import (
	"context"
	"sync"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/provider"
)

// fakeStore is an in-memory Store good enough to drive the interpreter in
// tests. It has no concept of tenants beyond what the test seeds.
type fakeStore struct {
	mu sync.Mutex

	workflows  map[string]*domain.Workflow
	tasks      map[string][]*domain.WorkflowTask
	executions map[string]*domain.WorkflowExecution
	tenants    map[string]*domain.Tenant
	llmConfigs map[string]*domain.TenantLLMConfig
	prompts    map[string]*domain.PromptTemplate
	usage      []*domain.UsageRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workflows:  map[string]*domain.Workflow{},
		tasks:      map[string][]*domain.WorkflowTask{},
		executions: map[string]*domain.WorkflowExecution{},
		tenants:    map[string]*domain.Tenant{},
		llmConfigs: map[string]*domain.TenantLLMConfig{},
		prompts:    map[string]*domain.PromptTemplate{},
	}
}

func (s *fakeStore) GetWorkflow(ctx context.Context, tenantID, workflowID string) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "workflow not found")
	}
	return wf, nil
}

func (s *fakeStore) ListWorkflowTasks(ctx context.Context, tenantID, workflowID string) ([]*domain.WorkflowTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[workflowID], nil
}

func (s *fakeStore) GetExecution(ctx context.Context, tenantID, executionID string) (*domain.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[executionID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "execution not found")
	}
	return e, nil
}

func (s *fakeStore) CreateExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e
	return nil
}

func (s *fakeStore) SaveExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e
	return nil
}

func (s *fakeStore) GetPromptTemplate(ctx context.Context, tenantID, promptID string) (*domain.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[promptID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "prompt template not found")
	}
	return p, nil
}

func (s *fakeStore) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "tenant not found")
	}
	return t, nil
}

func (s *fakeStore) GetTenantLLMConfig(ctx context.Context, tenantID string) (*domain.TenantLLMConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.llmConfigs[tenantID]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "llm config not found")
	}
	return c, nil
}

func (s *fakeStore) AppendUsageRecord(ctx context.Context, r *domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, r)
	return nil
}

func (s *fakeStore) usageRecords() []*domain.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.UsageRecord(nil), s.usage...)
}

// fakeProvider answers every Complete call with text, failing the first
// failCount calls instead.
type fakeProvider struct {
	mu        sync.Mutex
	name      provider.Name
	text      string
	failCount int
	calls     int
}

func (p *fakeProvider) Name() string { return string(p.name) }

func (p *fakeProvider) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failCount {
		return nil, errs.New(errs.KindUpstream, "simulated upstream failure")
	}
	return &provider.Response{
		Text:  p.text,
		Usage: provider.Usage{InputTokens: 12, OutputTokens: 8},
	}, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	return nil, errs.New(errs.KindConfig, "streaming not implemented by fakeProvider")
}

func (p *fakeProvider) Models() []provider.ModelInfo { return nil }

func (p *fakeProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }

// fakeTools is a ToolRunner whose named tools fail their first callCount
// invocations before succeeding.
type fakeTools struct {
	mu        sync.Mutex
	failFirst map[string]int
	calls     map[string]int
}

func newFakeTools() *fakeTools {
	return &fakeTools{failFirst: map[string]int{}, calls: map[string]int{}}
}

func (t *fakeTools) Run(ctx context.Context, tenantID, toolID string, params map[string]any) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[toolID]++
	if t.calls[toolID] <= t.failFirst[toolID] {
		return nil, errs.New(errs.KindUpstream, "simulated tool failure")
	}
	return map[string]any{"tool_id": toolID, "params": params}, nil
}

func (t *fakeTools) callCount(toolID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[toolID]
}
