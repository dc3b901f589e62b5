package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/agentrail/core/internal/domain"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Postgres{db: db}, mock
}

func TestPostgresGetTenant(t *testing.T) {
	tests := []struct {
		name      string
		tenantID  string
		setupMock func(sqlmock.Sqlmock)
		wantErr   bool
		wantFound bool
	}{
		{
			name:     "found",
			tenantID: "t1",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{
					"id", "name", "plan", "subscription_status", "trial_ends_at", "llm_tier",
					"monthly_token_limit", "tokens_used_period", "limit_reset_at",
					"max_users", "max_agents", "max_workflows", "max_executions_per_month", "created_at",
				}).AddRow("t1", "Acme", "pro", "active", nil, domain.TierProfessional,
					int64(100000), int64(500), time.Now(),
					5, 10, 10, 1000, time.Now())
				mock.ExpectQuery("SELECT .* FROM tenants WHERE id = \\$1").
					WithArgs("t1").
					WillReturnRows(rows)
			},
			wantFound: true,
		},
		{
			name:     "not found",
			tenantID: "missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT .* FROM tenants WHERE id = \\$1").
					WithArgs("missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: true,
		},
		{
			name:     "database error",
			tenantID: "t1",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT .* FROM tenants WHERE id = \\$1").
					WithArgs("t1").
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newMockPostgres(t)
			tt.setupMock(mock)

			got, err := p.GetTenant(context.Background(), tt.tenantID)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.name == "not found" {
					var nf *ErrNotFound
					if !errors.As(err, &nf) {
						t.Errorf("expected *ErrNotFound, got %T: %v", err, err)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantFound && got.ID != tt.tenantID {
				t.Errorf("ID mismatch: got %q, want %q", got.ID, tt.tenantID)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestPostgresCreateTenant(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("INSERT INTO tenants").
		WillReturnResult(sqlmock.NewResult(0, 1))

	limit := int64(100000)
	err := p.CreateTenant(context.Background(), &domain.Tenant{
		ID: "t1", Name: "Acme", Plan: "pro", SubscriptionStatus: "active",
		LLMTier: domain.TierProfessional, MonthlyTokenLimit: &limit,
		MaxUsers: 5, MaxAgents: 10, MaxWorkflows: 10, MaxExecutionsMo: 1000,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresCreateTenantDatabaseError(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("INSERT INTO tenants").
		WillReturnError(errors.New("duplicate key"))

	err := p.CreateTenant(context.Background(), &domain.Tenant{ID: "t1"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestPostgresAddTokensUsed(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("UPDATE tenants SET tokens_used_period").
		WithArgs("t1", int64(250)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.AddTokensUsed(context.Background(), "t1", 250); err != nil {
		t.Fatalf("AddTokensUsed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresResetTenantPeriod(t *testing.T) {
	p, mock := newMockPostgres(t)
	resetAt := time.Now()
	mock.ExpectExec("UPDATE tenants SET tokens_used_period = 0").
		WithArgs("t1", resetAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.ResetTenantPeriod(context.Background(), "t1", resetAt); err != nil {
		t.Fatalf("ResetTenantPeriod: %v", err)
	}
}

func TestPostgresGetAgent(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   bool
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{
					"id", "tenant_id", "name", "description", "icon", "scope", "system_prompt",
					"tool_ids", "prompt_ids", "functional_area",
				}).AddRow("a1", "t1", "Support Bot", nil, nil, "tenant", "You help customers.",
					[]byte(`["tool1"]`), []byte(`["p1"]`), nil)
				mock.ExpectQuery("SELECT .* FROM agents WHERE tenant_id = \\$1 AND id = \\$2").
					WithArgs("t1", "a1").
					WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT .* FROM agents WHERE tenant_id = \\$1 AND id = \\$2").
					WithArgs("t1", "missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newMockPostgres(t)
			tt.setupMock(mock)

			id := "a1"
			if tt.wantErr {
				id = "missing"
			}
			got, err := p.GetAgent(context.Background(), "t1", id)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var nf *ErrNotFound
				if !errors.As(err, &nf) {
					t.Errorf("expected *ErrNotFound, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got.ToolIDs) != 1 || got.ToolIDs[0] != "tool1" {
				t.Errorf("tool_ids not decoded: %+v", got.ToolIDs)
			}
		})
	}
}

func TestPostgresListAgents(t *testing.T) {
	p, mock := newMockPostgres(t)
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "name", "description", "icon", "scope", "system_prompt",
		"tool_ids", "prompt_ids", "functional_area",
	}).
		AddRow("a1", "t1", "A", nil, nil, "tenant", "p", []byte(`[]`), []byte(`[]`), nil).
		AddRow("a2", "t1", "B", nil, nil, "tenant", "p", []byte(`[]`), []byte(`[]`), nil)
	mock.ExpectQuery("SELECT .* FROM agents WHERE tenant_id = \\$1").
		WithArgs("t1").
		WillReturnRows(rows)

	got, err := p.ListAgents(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d agents, want 2", len(got))
	}
}

func TestPostgresCreateExecutionAndGet(t *testing.T) {
	p, mock := newMockPostgres(t)
	exec := &domain.WorkflowExecution{
		ID: "e1", TenantID: "t1", WorkflowID: "w1", Status: domain.ExecRunning,
		InputData: map[string]any{"a": 1}, Variables: map[string]any{},
		CurrentTaskOrder: "1", TasksCompleted: []string{}, TaskResults: map[string]domain.TaskResult{},
		StartedAt: time.Now(),
	}
	mock.ExpectExec("INSERT INTO workflow_executions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.CreateExecution(context.Background(), exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "workflow_id", "status", "input_data", "variables",
		"current_task_order", "tasks_completed", "task_results",
		"error_message", "error_task_id", "error_kind", "output_data", "goto_count",
		"started_at", "completed_at",
	}).AddRow("e1", "t1", "w1", "running", []byte(`{}`), []byte(`{}`),
		"1", []byte(`[]`), []byte(`{}`), nil, nil, nil, []byte(`{}`), 0,
		time.Now(), nil)
	mock.ExpectQuery("SELECT .* FROM workflow_executions WHERE tenant_id = \\$1 AND id = \\$2").
		WithArgs("t1", "e1").
		WillReturnRows(rows)

	got, err := p.GetExecution(context.Background(), "t1", "e1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != domain.ExecRunning {
		t.Errorf("status = %q, want running", got.Status)
	}
}

func TestPostgresSaveExecution(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("UPDATE workflow_executions SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	exec := &domain.WorkflowExecution{ID: "e1", TenantID: "t1", Status: domain.ExecCompleted}
	if err := p.SaveExecution(context.Background(), exec); err != nil {
		t.Fatalf("SaveExecution: %v", err)
	}
}

func TestPostgresGetDueWaitingExecutions(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   bool
		wantCount int
	}{
		{
			name: "returns due delays",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{
					"id", "tenant_id", "workflow_id", "status", "input_data", "variables",
					"current_task_order", "tasks_completed", "task_results",
					"error_message", "error_task_id", "error_kind", "output_data", "goto_count",
					"started_at", "completed_at",
				}).AddRow("e1", "t1", "w1", "running", []byte(`{}`),
					[]byte(`{"__waiting_on_event":"__wait_delay","__wait_deadline":"2026-07-30T00:00:00Z"}`),
					"3", []byte(`[]`), []byte(`{}`), nil, nil, nil, []byte(`{}`), 0,
					time.Now(), nil)
				mock.ExpectQuery("SELECT .* FROM workflow_executions").
					WillReturnRows(rows)
			},
			wantCount: 1,
		},
		{
			name: "none due",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{
					"id", "tenant_id", "workflow_id", "status", "input_data", "variables",
					"current_task_order", "tasks_completed", "task_results",
					"error_message", "error_task_id", "error_kind", "output_data", "goto_count",
					"started_at", "completed_at",
				})
				mock.ExpectQuery("SELECT .* FROM workflow_executions").
					WillReturnRows(rows)
			},
			wantCount: 0,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT .* FROM workflow_executions").
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newMockPostgres(t)
			tt.setupMock(mock)

			got, err := p.GetDueWaitingExecutions(context.Background(), time.Now())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Fatalf("got %d executions, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestPostgresCompareAndSwapSchedule(t *testing.T) {
	tests := []struct {
		name         string
		setupMock    func(sqlmock.Sqlmock)
		wantSwapped  bool
		wantErr      bool
	}{
		{
			name: "swap succeeds",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE scheduled_jobs").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantSwapped: true,
		},
		{
			name: "already claimed by another instance",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE scheduled_jobs").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantSwapped: false,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE scheduled_jobs").
					WillReturnError(errors.New("deadlock"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newMockPostgres(t)
			tt.setupMock(mock)

			now := time.Now()
			swapped, err := p.CompareAndSwapSchedule(context.Background(), "job1", now, now, now.Add(time.Hour), "e1")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if swapped != tt.wantSwapped {
				t.Errorf("swapped = %v, want %v", swapped, tt.wantSwapped)
			}
		})
	}
}

func TestPostgresAppendUsageRecord(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("INSERT INTO usage_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.AppendUsageRecord(context.Background(), &domain.UsageRecord{
		ID: "u1", TenantID: "t1", Provider: "anthropic", Model: "claude-sonnet-4-20250514",
		UsageMode: domain.UsageModePlatform, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendUsageRecord: %v", err)
	}
}

func TestPostgresGetTenantLLMConfigNotFound(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery("SELECT .* FROM tenant_llm_configs").
		WithArgs("t1").
		WillReturnError(sql.ErrNoRows)

	_, err := p.GetTenantLLMConfig(context.Background(), "t1")
	var nf *ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected *ErrNotFound, got %T: %v", err, err)
	}
}

func TestPostgresClose(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectClose()
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error on close: %v", err)
	}
}

func TestNewPostgresFromDSNEmptyDSN(t *testing.T) {
	_, err := NewPostgresFromDSN("", nil)
	if err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
