package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentrail/core/internal/domain"
)

// These mirror the reserved WorkflowExecution.Variables keys internal/workflow
// sets when it pauses a wait.delay task (workflow.waitingOnEventKey /
// waitDeadlineKey / the "__wait_delay" marker value). Those constants are
// unexported in workflow, so the literal keys are duplicated here; keep
// them in lockstep if workflow's ever change.
const (
	waitDelayMarkerKey   = "__waiting_on_event"
	waitDelayMarkerValue = "__wait_delay"
	waitDeadlineKeyName  = "__wait_deadline"
)

func parseWaitDeadline(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Memory is an in-process Store, used by tests and the single-process demo
// command the same way the teacher selects jobs.MemoryStore over
// jobs.CockroachStore.
type Memory struct {
	mu sync.RWMutex

	tenants    map[string]*domain.Tenant
	llmConfigs map[string]*domain.TenantLLMConfig

	agents  map[string]*domain.Agent           // tenantID/agentID
	tools   map[string]*domain.ToolRef         // tenantID/toolID
	prompts map[string]*domain.PromptTemplate  // tenantID/promptID

	workflows map[string]*domain.Workflow // tenantID/workflowID
	tasks     map[string][]*domain.WorkflowTask
	execs     map[string]*domain.WorkflowExecution // tenantID/executionID
	schedules map[string]*domain.ScheduledJob

	conversations map[string]*domain.Conversation
	messages      map[string][]*domain.Message // tenantID/conversationID

	usage []*domain.UsageRecord
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants:       make(map[string]*domain.Tenant),
		llmConfigs:    make(map[string]*domain.TenantLLMConfig),
		agents:        make(map[string]*domain.Agent),
		tools:         make(map[string]*domain.ToolRef),
		prompts:       make(map[string]*domain.PromptTemplate),
		workflows:     make(map[string]*domain.Workflow),
		tasks:         make(map[string][]*domain.WorkflowTask),
		execs:         make(map[string]*domain.WorkflowExecution),
		schedules:     make(map[string]*domain.ScheduledJob),
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]*domain.Message),
	}
}

func scopedKey(tenantID, id string) string { return tenantID + "/" + id }

func (m *Memory) Close() error { return nil }

// --- TenantStore ---

func (m *Memory) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, &ErrNotFound{Entity: "tenant", ID: tenantID}
	}
	clone := *t
	return &clone, nil
}

func (m *Memory) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *t
	m.tenants[t.ID] = &clone
	return nil
}

func (m *Memory) AddTokensUsed(ctx context.Context, tenantID string, tokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return &ErrNotFound{Entity: "tenant", ID: tenantID}
	}
	t.TokensUsedPeriod += tokens
	return nil
}

func (m *Memory) ResetTenantPeriod(ctx context.Context, tenantID string, resetAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return &ErrNotFound{Entity: "tenant", ID: tenantID}
	}
	t.TokensUsedPeriod = 0
	t.LimitResetAt = resetAt
	return nil
}

func (m *Memory) GetTenantLLMConfig(ctx context.Context, tenantID string) (*domain.TenantLLMConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.llmConfigs[tenantID]
	if !ok {
		return nil, &ErrNotFound{Entity: "tenant_llm_config", ID: tenantID}
	}
	clone := *cfg
	return &clone, nil
}

func (m *Memory) PutTenantLLMConfig(ctx context.Context, cfg *domain.TenantLLMConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *cfg
	m.llmConfigs[cfg.TenantID] = &clone
	return nil
}

// --- AgentStore ---

func (m *Memory) GetAgent(ctx context.Context, tenantID, agentID string) (*domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[scopedKey(tenantID, agentID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", ID: agentID}
	}
	clone := *a
	return &clone, nil
}

func (m *Memory) ListAgents(ctx context.Context, tenantID string) ([]*domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Agent
	for _, a := range m.agents {
		if a.TenantID == tenantID {
			clone := *a
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateAgent(ctx context.Context, a *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *a
	m.agents[scopedKey(a.TenantID, a.ID)] = &clone
	return nil
}

func (m *Memory) GetToolRef(ctx context.Context, tenantID, toolID string) (*domain.ToolRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tools[scopedKey(tenantID, toolID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "tool_ref", ID: toolID}
	}
	clone := *t
	return &clone, nil
}

func (m *Memory) ListToolRefs(ctx context.Context, tenantID string) ([]*domain.ToolRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ToolRef
	for _, t := range m.tools {
		if t.TenantID == tenantID {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetPromptTemplate(ctx context.Context, tenantID, promptID string) (*domain.PromptTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prompts[scopedKey(tenantID, promptID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "prompt_template", ID: promptID}
	}
	clone := *p
	return &clone, nil
}

func (m *Memory) ListPromptTemplates(ctx context.Context, tenantID string) ([]*domain.PromptTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.PromptTemplate
	for _, p := range m.prompts {
		if p.TenantID == tenantID {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreatePromptTemplate(ctx context.Context, p *domain.PromptTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.prompts[scopedKey(p.TenantID, p.ID)] = &clone
	return nil
}

// --- WorkflowStore ---

func (m *Memory) GetWorkflow(ctx context.Context, tenantID, workflowID string) (*domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workflows[scopedKey(tenantID, workflowID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "workflow", ID: workflowID}
	}
	clone := *w
	return &clone, nil
}

func (m *Memory) ListWorkflows(ctx context.Context, tenantID string) ([]*domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Workflow
	for _, w := range m.workflows {
		if w.TenantID == tenantID {
			clone := *w
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *w
	m.workflows[scopedKey(w.TenantID, w.ID)] = &clone
	return nil
}

func (m *Memory) ListWorkflowTasks(ctx context.Context, tenantID, workflowID string) ([]*domain.WorkflowTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tasks := m.tasks[scopedKey(tenantID, workflowID)]
	out := make([]*domain.WorkflowTask, len(tasks))
	for i, t := range tasks {
		clone := *t
		out[i] = &clone
	}
	return out, nil
}

func (m *Memory) CreateWorkflowTask(ctx context.Context, t *domain.WorkflowTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *t
	key := scopedKey(t.TenantID, t.Workflow)
	m.tasks[key] = append(m.tasks[key], &clone)
	return nil
}

func (m *Memory) GetExecution(ctx context.Context, tenantID, executionID string) (*domain.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.execs[scopedKey(tenantID, executionID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "execution", ID: executionID}
	}
	return cloneExecution(e), nil
}

func (m *Memory) CreateExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs[scopedKey(e.TenantID, e.ID)] = cloneExecution(e)
	return nil
}

func (m *Memory) SaveExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs[scopedKey(e.TenantID, e.ID)] = cloneExecution(e)
	return nil
}

// GetDueWaitingExecutions returns every running execution parked on a
// wait.delay task whose deadline has passed, for the scheduler's resume
// poll. Executions waiting on a named event are never returned here; those
// only advance via ResumeEvent.
func (m *Memory) GetDueWaitingExecutions(ctx context.Context, asOf time.Time) ([]*domain.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.WorkflowExecution
	for _, e := range m.execs {
		if e.Status != domain.ExecRunning {
			continue
		}
		marker, _ := e.Variables[waitDelayMarkerKey].(string)
		if marker != waitDelayMarkerValue {
			continue
		}
		deadline, ok := parseWaitDeadline(e.Variables[waitDeadlineKeyName])
		if !ok || deadline.After(asOf) {
			continue
		}
		out = append(out, cloneExecution(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneExecution(e *domain.WorkflowExecution) *domain.WorkflowExecution {
	clone := *e
	clone.InputData = cloneMap(e.InputData)
	clone.Variables = cloneMap(e.Variables)
	clone.TasksCompleted = append([]string(nil), e.TasksCompleted...)
	clone.TaskResults = make(map[string]domain.TaskResult, len(e.TaskResults))
	for k, v := range e.TaskResults {
		clone.TaskResults[k] = v
	}
	clone.OutputData = cloneMap(e.OutputData)
	return &clone
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (m *Memory) ListScheduledJobs(ctx context.Context, tenantID string) ([]*domain.ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ScheduledJob
	for _, j := range m.schedules {
		if j.TenantID == tenantID {
			clone := *j
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetDueScheduledJobs(ctx context.Context, asOf time.Time) ([]*domain.ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ScheduledJob
	for _, j := range m.schedules {
		if j.Active && !j.NextFireAt.After(asOf) {
			clone := *j
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateScheduledJob(ctx context.Context, j *domain.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *j
	m.schedules[j.ID] = &clone
	return nil
}

func (m *Memory) CompareAndSwapSchedule(ctx context.Context, jobID string, expectedNext, lastFire, nextFire time.Time, lastExecID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.schedules[jobID]
	if !ok {
		return false, &ErrNotFound{Entity: "scheduled_job", ID: jobID}
	}
	if !j.NextFireAt.Equal(expectedNext) {
		return false, nil
	}
	j.LastFireAt = lastFire
	j.NextFireAt = nextFire
	j.LastExecID = lastExecID
	return true, nil
}

// --- ConversationStore ---

func (m *Memory) GetConversation(ctx context.Context, tenantID, conversationID string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[scopedKey(tenantID, conversationID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "conversation", ID: conversationID}
	}
	clone := *c
	return &clone, nil
}

func (m *Memory) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *c
	m.conversations[scopedKey(c.TenantID, c.ID)] = &clone
	return nil
}

func (m *Memory) SetActiveAgent(ctx context.Context, tenantID, conversationID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[scopedKey(tenantID, conversationID)]
	if !ok {
		return &ErrNotFound{Entity: "conversation", ID: conversationID}
	}
	c.ActiveAgentID = agentID
	return nil
}

func (m *Memory) AppendMessage(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *msg
	key := scopedKey(msg.TenantID, msg.ConversationID)
	m.messages[key] = append(m.messages[key], &clone)
	if c, ok := m.conversations[key]; ok {
		c.LastMessageAt = msg.CreatedAt
	}
	return nil
}

func (m *Memory) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]*domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[scopedKey(tenantID, conversationID)]
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	start := len(msgs) - limit
	out := make([]*domain.Message, limit)
	for i, msg := range msgs[start:] {
		clone := *msg
		out[i] = &clone
	}
	return out, nil
}

// --- UsageStore ---

func (m *Memory) AppendUsageRecord(ctx context.Context, r *domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *r
	m.usage = append(m.usage, &clone)
	return nil
}

func (m *Memory) ListUsageRecords(ctx context.Context, tenantID string, since time.Time) ([]*domain.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.UsageRecord
	for _, r := range m.usage {
		if r.TenantID == tenantID && !r.CreatedAt.Before(since) {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}
