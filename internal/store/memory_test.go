package store

import (
	"context"
	"testing"
	"time"

	"github.com/agentrail/core/internal/domain"
)

func TestMemoryTenantCRUD(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	limit := int64(1000)
	tenant := &domain.Tenant{ID: "t1", Name: "Acme", LLMTier: domain.TierStandard, MonthlyTokenLimit: &limit}

	if err := s.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	got, err := s.GetTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got.Name != "Acme" {
		t.Errorf("got name %q, want Acme", got.Name)
	}

	if err := s.AddTokensUsed(ctx, "t1", 500); err != nil {
		t.Fatalf("AddTokensUsed: %v", err)
	}
	got, _ = s.GetTenant(ctx, "t1")
	if got.TokensUsedPeriod != 500 {
		t.Errorf("got tokens used %d, want 500", got.TokensUsedPeriod)
	}

	resetAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if err := s.ResetTenantPeriod(ctx, "t1", resetAt); err != nil {
		t.Fatalf("ResetTenantPeriod: %v", err)
	}
	got, _ = s.GetTenant(ctx, "t1")
	if got.TokensUsedPeriod != 0 || !got.LimitResetAt.Equal(resetAt) {
		t.Errorf("reset did not take effect: %+v", got)
	}
}

func TestMemoryGetTenantNotFound(t *testing.T) {
	s := NewMemory()
	if _, err := s.GetTenant(context.Background(), "missing"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestMemoryTenantReadIsDefensiveCopy(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.CreateTenant(ctx, &domain.Tenant{ID: "t1", Name: "Acme"}); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}

	got, _ := s.GetTenant(ctx, "t1")
	got.Name = "Mutated"

	reread, _ := s.GetTenant(ctx, "t1")
	if reread.Name != "Acme" {
		t.Errorf("mutating a returned tenant leaked into the store: got %q", reread.Name)
	}
}

func TestMemoryTenantLLMConfigRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	cfg := &domain.TenantLLMConfig{
		TenantID:      "t1",
		Mode:          domain.UsageModeBYOK,
		EncryptedKeys: map[string][]byte{"anthropic": []byte("sealed")},
	}
	if err := s.PutTenantLLMConfig(ctx, cfg); err != nil {
		t.Fatalf("PutTenantLLMConfig: %v", err)
	}
	got, err := s.GetTenantLLMConfig(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenantLLMConfig: %v", err)
	}
	if got.Mode != domain.UsageModeBYOK {
		t.Errorf("got mode %v, want byok", got.Mode)
	}
}

func TestMemoryAgentCRUD(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	agent := &domain.Agent{ID: "a1", TenantID: "t1", Name: "Support Bot", Scope: domain.ScopeBusiness}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, "t1", "a1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Name != "Support Bot" {
		t.Errorf("got name %q, want Support Bot", got.Name)
	}

	// Agent from a different tenant is invisible even with the same ID.
	if _, err := s.GetAgent(ctx, "t2", "a1"); err == nil {
		t.Fatal("expected not-found for cross-tenant agent lookup")
	}

	list, err := s.ListAgents(ctx, "t1")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a1" {
		t.Fatalf("got %+v, want one agent a1", list)
	}
}

func TestMemoryPromptTemplateCRUD(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	tmpl := &domain.PromptTemplate{ID: "p1", TenantID: "t1", Name: "Greeting", Body: "Hello {name}", Variables: []string{"name"}}
	if err := s.CreatePromptTemplate(ctx, tmpl); err != nil {
		t.Fatalf("CreatePromptTemplate: %v", err)
	}

	got, err := s.GetPromptTemplate(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("GetPromptTemplate: %v", err)
	}
	if got.Body != "Hello {name}" {
		t.Errorf("got body %q, want Hello {name}", got.Body)
	}

	list, err := s.ListPromptTemplates(ctx, "t1")
	if err != nil {
		t.Fatalf("ListPromptTemplates: %v", err)
	}
	if len(list) != 1 || list[0].ID != "p1" {
		t.Fatalf("got %+v, want one template p1", list)
	}
}

func TestMemoryWorkflowExecutionCrashSafety(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	exec := &domain.WorkflowExecution{
		ID: "e1", TenantID: "t1", WorkflowID: "w1", Status: domain.ExecRunning,
		Variables: map[string]any{"count": 1},
	}
	if err := s.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	// Mutating the caller's map after Create must not reach the stored copy.
	exec.Variables["count"] = 999
	got, err := s.GetExecution(ctx, "t1", "e1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Variables["count"] != 1 {
		t.Fatalf("store aliased the caller's map: got %v", got.Variables["count"])
	}

	// Mutating a value returned by Get must not reach the stored copy either.
	got.Variables["count"] = 42
	got.TasksCompleted = append(got.TasksCompleted, "1.1")
	reread, _ := s.GetExecution(ctx, "t1", "e1")
	if reread.Variables["count"] != 1 {
		t.Fatalf("store aliased a returned map: got %v", reread.Variables["count"])
	}
	if len(reread.TasksCompleted) != 0 {
		t.Fatalf("store aliased a returned slice: got %v", reread.TasksCompleted)
	}

	got.Status = domain.ExecCompleted
	got.TasksCompleted = []string{"1.1"}
	if err := s.SaveExecution(ctx, got); err != nil {
		t.Fatalf("SaveExecution: %v", err)
	}
	reread, _ = s.GetExecution(ctx, "t1", "e1")
	if reread.Status != domain.ExecCompleted {
		t.Errorf("got status %v, want completed", reread.Status)
	}
}

func TestMemoryCompareAndSwapSchedule(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	next := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	job := &domain.ScheduledJob{ID: "j1", TenantID: "t1", WorkflowID: "w1", NextFireAt: next, Active: true}
	if err := s.CreateScheduledJob(ctx, job); err != nil {
		t.Fatalf("CreateScheduledJob: %v", err)
	}

	stale := next.Add(-time.Minute)
	swapped, err := s.CompareAndSwapSchedule(ctx, "j1", stale, next, next.Add(time.Hour), "exec-1")
	if err != nil {
		t.Fatalf("CompareAndSwapSchedule: %v", err)
	}
	if swapped {
		t.Fatal("expected swap to fail against a stale expected time")
	}

	swapped, err = s.CompareAndSwapSchedule(ctx, "j1", next, next, next.Add(time.Hour), "exec-1")
	if err != nil {
		t.Fatalf("CompareAndSwapSchedule: %v", err)
	}
	if !swapped {
		t.Fatal("expected swap to succeed against the current expected time")
	}

	list, _ := s.ListScheduledJobs(ctx, "t1")
	if len(list) != 1 || list[0].LastExecID != "exec-1" {
		t.Fatalf("got %+v, want job with LastExecID exec-1", list)
	}
}

func TestMemoryGetDueScheduledJobs(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	due := &domain.ScheduledJob{ID: "due", TenantID: "t1", NextFireAt: now.Add(-time.Minute), Active: true}
	notYet := &domain.ScheduledJob{ID: "not-yet", TenantID: "t1", NextFireAt: now.Add(time.Hour), Active: true}
	inactive := &domain.ScheduledJob{ID: "inactive", TenantID: "t1", NextFireAt: now.Add(-time.Minute), Active: false}
	for _, j := range []*domain.ScheduledJob{due, notYet, inactive} {
		if err := s.CreateScheduledJob(ctx, j); err != nil {
			t.Fatalf("CreateScheduledJob: %v", err)
		}
	}

	got, err := s.GetDueScheduledJobs(ctx, now)
	if err != nil {
		t.Fatalf("GetDueScheduledJobs: %v", err)
	}
	if len(got) != 1 || got[0].ID != "due" {
		t.Fatalf("got %+v, want only the due job", got)
	}
}

func TestMemoryConversationAndMessages(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv := &domain.Conversation{ID: "c1", TenantID: "t1", UserID: "u1", CreatedAt: time.Now()}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	if err := s.SetActiveAgent(ctx, "t1", "c1", "a1"); err != nil {
		t.Fatalf("SetActiveAgent: %v", err)
	}
	got, _ := s.GetConversation(ctx, "t1", "c1")
	if got.ActiveAgentID != "a1" {
		t.Errorf("got active agent %q, want a1", got.ActiveAgentID)
	}

	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		msg := &domain.Message{
			ID: string(rune('1' + i)), TenantID: "t1", ConversationID: "c1",
			Role: domain.RoleUser, Content: "hello", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	all, err := s.ListMessages(ctx, "t1", "c1", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d messages, want 3", len(all))
	}

	last2, _ := s.ListMessages(ctx, "t1", "c1", 2)
	if len(last2) != 2 || last2[0].ID != "2" || last2[1].ID != "3" {
		t.Fatalf("got %+v, want the last two messages in order", last2)
	}

	got, _ = s.GetConversation(ctx, "t1", "c1")
	if !got.LastMessageAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("conversation LastMessageAt not updated by AppendMessage: got %v", got.LastMessageAt)
	}
}

func TestMemoryUsageRecords(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	old := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	records := []*domain.UsageRecord{
		{ID: "u1", TenantID: "t1", Provider: "anthropic", Model: "claude-sonnet-4", CreatedAt: old},
		{ID: "u2", TenantID: "t1", Provider: "anthropic", Model: "claude-sonnet-4", CreatedAt: recent},
		{ID: "u3", TenantID: "t2", Provider: "openai", Model: "gpt-4o", CreatedAt: recent},
	}
	for _, r := range records {
		if err := s.AppendUsageRecord(ctx, r); err != nil {
			t.Fatalf("AppendUsageRecord: %v", err)
		}
	}

	since := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	got, err := s.ListUsageRecords(ctx, "t1", since)
	if err != nil {
		t.Fatalf("ListUsageRecords: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u2" {
		t.Fatalf("got %+v, want only u2", got)
	}
}
