package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/agentrail/core/internal/domain"
)

// PostgresConfig configures the connection pool backing a Postgres store.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sane pool defaults for a single orchestrator
// or worker process.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Postgres implements Store over a single database/sql pool. Migrations
// live under db/migrations and are applied with golang-migrate before the
// process starts serving.
type Postgres struct {
	db *sql.DB
}

// NewPostgresFromDSN opens a pool against dsn and verifies connectivity.
func NewPostgresFromDSN(dsn string, cfg *PostgresConfig) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// --- TenantStore ---

func (p *Postgres) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, plan, subscription_status, trial_ends_at, llm_tier,
		       monthly_token_limit, tokens_used_period, limit_reset_at,
		       max_users, max_agents, max_workflows, max_executions_per_month, created_at
		FROM tenants WHERE id = $1
	`, tenantID)

	var t domain.Tenant
	var trialEndsAt, limitResetAt sql.NullTime
	var monthlyLimit sql.NullInt64
	if err := row.Scan(
		&t.ID, &t.Name, &t.Plan, &t.SubscriptionStatus, &trialEndsAt, &t.LLMTier,
		&monthlyLimit, &t.TokensUsedPeriod, &limitResetAt,
		&t.MaxUsers, &t.MaxAgents, &t.MaxWorkflows, &t.MaxExecutionsMo, &t.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{Entity: "tenant", ID: tenantID}
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if trialEndsAt.Valid {
		t.TrialEndsAt = trialEndsAt.Time
	}
	if limitResetAt.Valid {
		t.LimitResetAt = limitResetAt.Time
	}
	if monthlyLimit.Valid {
		t.MonthlyTokenLimit = &monthlyLimit.Int64
	}
	return &t, nil
}

func (p *Postgres) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, plan, subscription_status, trial_ends_at, llm_tier,
		                      monthly_token_limit, tokens_used_period, limit_reset_at,
		                      max_users, max_agents, max_workflows, max_executions_per_month, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		t.ID, t.Name, t.Plan, t.SubscriptionStatus, nullTime(t.TrialEndsAt), t.LLMTier,
		nullInt64Ptr(t.MonthlyTokenLimit), t.TokensUsedPeriod, nullTime(t.LimitResetAt),
		t.MaxUsers, t.MaxAgents, t.MaxWorkflows, t.MaxExecutionsMo, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (p *Postgres) AddTokensUsed(ctx context.Context, tenantID string, tokens int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET tokens_used_period = tokens_used_period + $2 WHERE id = $1
	`, tenantID, tokens)
	if err != nil {
		return fmt.Errorf("add tokens used: %w", err)
	}
	return nil
}

func (p *Postgres) ResetTenantPeriod(ctx context.Context, tenantID string, resetAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET tokens_used_period = 0, limit_reset_at = $2 WHERE id = $1
	`, tenantID, resetAt)
	if err != nil {
		return fmt.Errorf("reset tenant period: %w", err)
	}
	return nil
}

func (p *Postgres) GetTenantLLMConfig(ctx context.Context, tenantID string) (*domain.TenantLLMConfig, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT tenant_id, mode, encrypted_keys, allowed_models, blocked_models,
		       preferred_provider, preferred_model
		FROM tenant_llm_configs WHERE tenant_id = $1
	`, tenantID)

	var cfg domain.TenantLLMConfig
	var encryptedKeysJSON, allowedJSON, blockedJSON []byte
	var preferredProvider, preferredModel sql.NullString
	if err := row.Scan(&cfg.TenantID, &cfg.Mode, &encryptedKeysJSON, &allowedJSON, &blockedJSON,
		&preferredProvider, &preferredModel); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{Entity: "tenant_llm_config", ID: tenantID}
		}
		return nil, fmt.Errorf("get tenant llm config: %w", err)
	}

	if len(encryptedKeysJSON) > 0 {
		raw := make(map[string]string)
		if err := json.Unmarshal(encryptedKeysJSON, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal encrypted keys: %w", err)
		}
		cfg.EncryptedKeys = make(map[string][]byte, len(raw))
		for k, v := range raw {
			cfg.EncryptedKeys[k] = []byte(v)
		}
	}
	_ = json.Unmarshal(allowedJSON, &cfg.AllowedModels)
	_ = json.Unmarshal(blockedJSON, &cfg.BlockedModels)
	cfg.PreferredProvider = preferredProvider.String
	cfg.PreferredModel = preferredModel.String
	return &cfg, nil
}

func (p *Postgres) PutTenantLLMConfig(ctx context.Context, cfg *domain.TenantLLMConfig) error {
	rawKeys := make(map[string]string, len(cfg.EncryptedKeys))
	for k, v := range cfg.EncryptedKeys {
		rawKeys[k] = string(v)
	}
	encryptedKeysJSON, err := json.Marshal(rawKeys)
	if err != nil {
		return fmt.Errorf("marshal encrypted keys: %w", err)
	}
	allowedJSON, _ := json.Marshal(cfg.AllowedModels)
	blockedJSON, _ := json.Marshal(cfg.BlockedModels)

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO tenant_llm_configs (tenant_id, mode, encrypted_keys, allowed_models, blocked_models,
		                                 preferred_provider, preferred_model)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			encrypted_keys = EXCLUDED.encrypted_keys,
			allowed_models = EXCLUDED.allowed_models,
			blocked_models = EXCLUDED.blocked_models,
			preferred_provider = EXCLUDED.preferred_provider,
			preferred_model = EXCLUDED.preferred_model
	`, cfg.TenantID, cfg.Mode, encryptedKeysJSON, allowedJSON, blockedJSON,
		nullableString(cfg.PreferredProvider), nullableString(cfg.PreferredModel))
	if err != nil {
		return fmt.Errorf("put tenant llm config: %w", err)
	}
	return nil
}

// --- AgentStore ---

func (p *Postgres) GetAgent(ctx context.Context, tenantID, agentID string) (*domain.Agent, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, description, icon, scope, system_prompt,
		       tool_ids, prompt_ids, functional_area
		FROM agents WHERE tenant_id = $1 AND id = $2
	`, tenantID, agentID)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "agent", ID: agentID}
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (p *Postgres) ListAgents(ctx context.Context, tenantID string) ([]*domain.Agent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, description, icon, scope, system_prompt,
		       tool_ids, prompt_ids, functional_area
		FROM agents WHERE tenant_id = $1 ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(s rowScanner) (*domain.Agent, error) {
	var a domain.Agent
	var description, icon, functionalArea sql.NullString
	var toolIDsJSON, promptIDsJSON []byte
	if err := s.Scan(&a.ID, &a.TenantID, &a.Name, &description, &icon, &a.Scope, &a.SystemPrompt,
		&toolIDsJSON, &promptIDsJSON, &functionalArea); err != nil {
		return nil, err
	}
	a.Description = description.String
	a.Icon = icon.String
	a.FunctionalArea = functionalArea.String
	_ = json.Unmarshal(toolIDsJSON, &a.ToolIDs)
	_ = json.Unmarshal(promptIDsJSON, &a.PromptIDs)
	return &a, nil
}

func (p *Postgres) CreateAgent(ctx context.Context, a *domain.Agent) error {
	toolIDsJSON, _ := json.Marshal(a.ToolIDs)
	promptIDsJSON, _ := json.Marshal(a.PromptIDs)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents (id, tenant_id, name, description, icon, scope, system_prompt,
		                     tool_ids, prompt_ids, functional_area)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, a.ID, a.TenantID, a.Name, nullableString(a.Description), nullableString(a.Icon), a.Scope,
		a.SystemPrompt, toolIDsJSON, promptIDsJSON, nullableString(a.FunctionalArea))
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (p *Postgres) GetToolRef(ctx context.Context, tenantID, toolID string) (*domain.ToolRef, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, category, status, required_config
		FROM tool_refs WHERE tenant_id = $1 AND id = $2
	`, tenantID, toolID)
	t, err := scanToolRef(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "tool_ref", ID: toolID}
	}
	if err != nil {
		return nil, fmt.Errorf("get tool ref: %w", err)
	}
	return t, nil
}

func (p *Postgres) ListToolRefs(ctx context.Context, tenantID string) ([]*domain.ToolRef, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, category, status, required_config
		FROM tool_refs WHERE tenant_id = $1 ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tool refs: %w", err)
	}
	defer rows.Close()

	var out []*domain.ToolRef
	for rows.Next() {
		t, err := scanToolRef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool ref: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanToolRef(s rowScanner) (*domain.ToolRef, error) {
	var t domain.ToolRef
	var requiredConfigJSON []byte
	if err := s.Scan(&t.ID, &t.TenantID, &t.Name, &t.Category, &t.Status, &requiredConfigJSON); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(requiredConfigJSON, &t.RequiredConfig)
	return &t, nil
}

func (p *Postgres) GetPromptTemplate(ctx context.Context, tenantID, promptID string) (*domain.PromptTemplate, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, body, variables, bound_tool_id
		FROM prompt_templates WHERE tenant_id = $1 AND id = $2
	`, tenantID, promptID)
	t, err := scanPromptTemplate(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "prompt_template", ID: promptID}
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt template: %w", err)
	}
	return t, nil
}

func (p *Postgres) ListPromptTemplates(ctx context.Context, tenantID string) ([]*domain.PromptTemplate, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, body, variables, bound_tool_id
		FROM prompt_templates WHERE tenant_id = $1 ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list prompt templates: %w", err)
	}
	defer rows.Close()

	var out []*domain.PromptTemplate
	for rows.Next() {
		t, err := scanPromptTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanPromptTemplate(s rowScanner) (*domain.PromptTemplate, error) {
	var t domain.PromptTemplate
	var variablesJSON []byte
	var boundToolID sql.NullString
	if err := s.Scan(&t.ID, &t.TenantID, &t.Name, &t.Body, &variablesJSON, &boundToolID); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(variablesJSON, &t.Variables)
	t.BoundToolID = boundToolID.String
	return &t, nil
}

func (p *Postgres) CreatePromptTemplate(ctx context.Context, t *domain.PromptTemplate) error {
	variablesJSON, _ := json.Marshal(t.Variables)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO prompt_templates (id, tenant_id, name, body, variables, bound_tool_id)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, t.ID, t.TenantID, t.Name, t.Body, variablesJSON, nullableString(t.BoundToolID))
	if err != nil {
		return fmt.Errorf("create prompt template: %w", err)
	}
	return nil
}

// --- WorkflowStore ---

func (p *Postgres) GetWorkflow(ctx context.Context, tenantID, workflowID string) (*domain.Workflow, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, agent_id, name, trigger, trigger_config, input_schema, active
		FROM workflows WHERE tenant_id = $1 AND id = $2
	`, tenantID, workflowID)
	w, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "workflow", ID: workflowID}
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

func (p *Postgres) ListWorkflows(ctx context.Context, tenantID string) ([]*domain.Workflow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, agent_id, name, trigger, trigger_config, input_schema, active
		FROM workflows WHERE tenant_id = $1 ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*domain.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorkflow(s rowScanner) (*domain.Workflow, error) {
	var w domain.Workflow
	var triggerConfigJSON, inputSchemaJSON []byte
	if err := s.Scan(&w.ID, &w.TenantID, &w.AgentID, &w.Name, &w.Trigger, &triggerConfigJSON,
		&inputSchemaJSON, &w.Active); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(triggerConfigJSON, &w.TriggerConfig)
	_ = json.Unmarshal(inputSchemaJSON, &w.InputSchema)
	return &w, nil
}

func (p *Postgres) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	triggerConfigJSON, _ := json.Marshal(w.TriggerConfig)
	inputSchemaJSON, _ := json.Marshal(w.InputSchema)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO workflows (id, tenant_id, agent_id, name, trigger, trigger_config, input_schema, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, w.ID, w.TenantID, w.AgentID, w.Name, w.Trigger, triggerConfigJSON, inputSchemaJSON, w.Active)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

func (p *Postgres) ListWorkflowTasks(ctx context.Context, tenantID, workflowID string) ([]*domain.WorkflowTask, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, workflow_id, "order", type, config, on_error_kind, on_error_retry_count, on_error_goto
		FROM workflow_tasks WHERE tenant_id = $1 AND workflow_id = $2 ORDER BY "order"
	`, tenantID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow tasks: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowTask
	for rows.Next() {
		var t domain.WorkflowTask
		var configJSON []byte
		var gotoOrder sql.NullString
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Workflow, &t.Order, &t.Type, &configJSON,
			&t.OnError.Kind, &t.OnError.RetryCount, &gotoOrder); err != nil {
			return nil, fmt.Errorf("scan workflow task: %w", err)
		}
		_ = json.Unmarshal(configJSON, &t.Config)
		t.OnError.GotoOrder = gotoOrder.String
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateWorkflowTask(ctx context.Context, t *domain.WorkflowTask) error {
	configJSON, _ := json.Marshal(t.Config)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO workflow_tasks (id, tenant_id, workflow_id, "order", type, config,
		                             on_error_kind, on_error_retry_count, on_error_goto)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, t.ID, t.TenantID, t.Workflow, t.Order, t.Type, configJSON,
		t.OnError.Kind, t.OnError.RetryCount, nullableString(t.OnError.GotoOrder))
	if err != nil {
		return fmt.Errorf("create workflow task: %w", err)
	}
	return nil
}

func (p *Postgres) GetExecution(ctx context.Context, tenantID, executionID string) (*domain.WorkflowExecution, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, workflow_id, status, input_data, variables,
		       current_task_order, tasks_completed, task_results,
		       error_message, error_task_id, error_kind, output_data, goto_count,
		       started_at, completed_at
		FROM workflow_executions WHERE tenant_id = $1 AND id = $2
	`, tenantID, executionID)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Entity: "execution", ID: executionID}
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

func scanExecution(s rowScanner) (*domain.WorkflowExecution, error) {
	var e domain.WorkflowExecution
	var inputJSON, varsJSON, completedJSON, resultsJSON, outputJSON []byte
	var errorMessage, errorTaskID, errorKind sql.NullString
	var completedAt sql.NullTime
	if err := s.Scan(&e.ID, &e.TenantID, &e.WorkflowID, &e.Status, &inputJSON, &varsJSON,
		&e.CurrentTaskOrder, &completedJSON, &resultsJSON,
		&errorMessage, &errorTaskID, &errorKind, &outputJSON, &e.GotoCount,
		&e.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(inputJSON, &e.InputData)
	_ = json.Unmarshal(varsJSON, &e.Variables)
	_ = json.Unmarshal(completedJSON, &e.TasksCompleted)
	_ = json.Unmarshal(resultsJSON, &e.TaskResults)
	_ = json.Unmarshal(outputJSON, &e.OutputData)
	e.ErrorMessage = errorMessage.String
	e.ErrorTaskID = errorTaskID.String
	e.ErrorKind = errorKind.String
	if completedAt.Valid {
		e.CompletedAt = completedAt.Time
	}
	return &e, nil
}

func (p *Postgres) CreateExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	return p.upsertExecution(ctx, e, true)
}

func (p *Postgres) SaveExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	return p.upsertExecution(ctx, e, false)
}

func (p *Postgres) upsertExecution(ctx context.Context, e *domain.WorkflowExecution, insert bool) error {
	inputJSON, _ := json.Marshal(e.InputData)
	varsJSON, _ := json.Marshal(e.Variables)
	completedJSON, _ := json.Marshal(e.TasksCompleted)
	resultsJSON, _ := json.Marshal(e.TaskResults)
	outputJSON, _ := json.Marshal(e.OutputData)

	if insert {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO workflow_executions (id, tenant_id, workflow_id, status, input_data, variables,
			                                  current_task_order, tasks_completed, task_results,
			                                  error_message, error_task_id, error_kind, output_data, goto_count,
			                                  started_at, completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`, e.ID, e.TenantID, e.WorkflowID, e.Status, inputJSON, varsJSON,
			e.CurrentTaskOrder, completedJSON, resultsJSON,
			nullableString(e.ErrorMessage), nullableString(e.ErrorTaskID), nullableString(e.ErrorKind),
			outputJSON, e.GotoCount, e.StartedAt, nullTime(e.CompletedAt))
		if err != nil {
			return fmt.Errorf("create execution: %w", err)
		}
		return nil
	}

	_, err := p.db.ExecContext(ctx, `
		UPDATE workflow_executions SET
			status = $3, input_data = $4, variables = $5,
			current_task_order = $6, tasks_completed = $7, task_results = $8,
			error_message = $9, error_task_id = $10, error_kind = $11, output_data = $12,
			goto_count = $13, completed_at = $14
		WHERE tenant_id = $1 AND id = $2
	`, e.TenantID, e.ID, e.Status, inputJSON, varsJSON,
		e.CurrentTaskOrder, completedJSON, resultsJSON,
		nullableString(e.ErrorMessage), nullableString(e.ErrorTaskID), nullableString(e.ErrorKind),
		outputJSON, e.GotoCount, nullTime(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

// GetDueWaitingExecutions returns running executions parked on a wait.delay
// task whose deadline has passed, for the scheduler's resume poll. The
// "__waiting_on_event"/"__wait_deadline" keys mirror internal/workflow's
// reserved Variables entries for a paused wait task; "__wait_delay" is the
// marker value workflow stores for a plain delay (as opposed to a named
// event, which only advances via the deliver-event endpoint).
func (p *Postgres) GetDueWaitingExecutions(ctx context.Context, asOf time.Time) ([]*domain.WorkflowExecution, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, workflow_id, status, input_data, variables,
		       current_task_order, tasks_completed, task_results,
		       error_message, error_task_id, error_kind, output_data, goto_count,
		       started_at, completed_at
		FROM workflow_executions
		WHERE status = 'running'
		  AND variables->>'__waiting_on_event' = '__wait_delay'
		  AND (variables->>'__wait_deadline')::timestamptz <= $1
		ORDER BY id
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("get due waiting executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waiting execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ListScheduledJobs(ctx context.Context, tenantID string) ([]*domain.ScheduledJob, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, workflow_id, cron_expr, timezone, next_fire_at, last_fire_at, last_execution_id, active
		FROM scheduled_jobs WHERE tenant_id = $1 ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	defer rows.Close()
	return scanScheduledJobs(rows)
}

func (p *Postgres) GetDueScheduledJobs(ctx context.Context, asOf time.Time) ([]*domain.ScheduledJob, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, workflow_id, cron_expr, timezone, next_fire_at, last_fire_at, last_execution_id, active
		FROM scheduled_jobs WHERE active = true AND next_fire_at <= $1 ORDER BY next_fire_at
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("get due scheduled jobs: %w", err)
	}
	defer rows.Close()
	return scanScheduledJobs(rows)
}

func scanScheduledJobs(rows *sql.Rows) ([]*domain.ScheduledJob, error) {
	var out []*domain.ScheduledJob
	for rows.Next() {
		var j domain.ScheduledJob
		var lastFireAt sql.NullTime
		var lastExecID sql.NullString
		if err := rows.Scan(&j.ID, &j.TenantID, &j.WorkflowID, &j.CronExpr, &j.Timezone,
			&j.NextFireAt, &lastFireAt, &lastExecID, &j.Active); err != nil {
			return nil, fmt.Errorf("scan scheduled job: %w", err)
		}
		if lastFireAt.Valid {
			j.LastFireAt = lastFireAt.Time
		}
		j.LastExecID = lastExecID.String
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateScheduledJob(ctx context.Context, j *domain.ScheduledJob) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, tenant_id, workflow_id, cron_expr, timezone, next_fire_at,
		                             last_fire_at, last_execution_id, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, j.ID, j.TenantID, j.WorkflowID, j.CronExpr, j.Timezone, j.NextFireAt,
		nullTime(j.LastFireAt), nullableString(j.LastExecID), j.Active)
	if err != nil {
		return fmt.Errorf("create scheduled job: %w", err)
	}
	return nil
}

// CompareAndSwapSchedule relies on Postgres row-level locking: the UPDATE's
// WHERE clause only matches if next_fire_at is still expectedNext, so two
// scheduler instances racing on the same tick only ever have one UPDATE
// affect a row.
func (p *Postgres) CompareAndSwapSchedule(ctx context.Context, jobID string, expectedNext, lastFire, nextFire time.Time, lastExecID string) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET last_fire_at = $2, next_fire_at = $3, last_execution_id = $4
		WHERE id = $1 AND next_fire_at = $5
	`, jobID, lastFire, nextFire, nullableString(lastExecID), expectedNext)
	if err != nil {
		return false, fmt.Errorf("compare and swap schedule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare and swap schedule: %w", err)
	}
	return n == 1, nil
}

// --- ConversationStore ---

func (p *Postgres) GetConversation(ctx context.Context, tenantID, conversationID string) (*domain.Conversation, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, active_agent_id, title, created_at, last_message_at
		FROM conversations WHERE tenant_id = $1 AND id = $2
	`, tenantID, conversationID)

	var c domain.Conversation
	var activeAgentID, title sql.NullString
	var lastMessageAt sql.NullTime
	if err := row.Scan(&c.ID, &c.TenantID, &c.UserID, &activeAgentID, &title, &c.CreatedAt, &lastMessageAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{Entity: "conversation", ID: conversationID}
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.ActiveAgentID = activeAgentID.String
	c.Title = title.String
	if lastMessageAt.Valid {
		c.LastMessageAt = lastMessageAt.Time
	}
	return &c, nil
}

func (p *Postgres) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversations (id, tenant_id, user_id, active_agent_id, title, created_at, last_message_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.TenantID, c.UserID, nullableString(c.ActiveAgentID), nullableString(c.Title),
		c.CreatedAt, nullTime(c.LastMessageAt))
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (p *Postgres) SetActiveAgent(ctx context.Context, tenantID, conversationID, agentID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE conversations SET active_agent_id = $3 WHERE tenant_id = $1 AND id = $2
	`, tenantID, conversationID, agentID)
	if err != nil {
		return fmt.Errorf("set active agent: %w", err)
	}
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, m *domain.Message) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO messages (id, tenant_id, conversation_id, role, content, agent_id, handoff_from, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.TenantID, m.ConversationID, m.Role, m.Content,
		nullableString(m.AgentID), nullableString(m.HandoffFrom), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = $3 WHERE tenant_id = $1 AND id = $2
	`, m.TenantID, m.ConversationID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("update conversation last_message_at: %w", err)
	}
	return nil
}

func (p *Postgres) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, tenant_id, conversation_id, role, content, agent_id, handoff_from, created_at
		FROM messages WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY created_at DESC`
	args := []any{tenantID, conversationID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		var agentID, handoffFrom sql.NullString
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ConversationID, &m.Role, &m.Content,
			&agentID, &handoffFrom, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.AgentID = agentID.String
		m.HandoffFrom = handoffFrom.String
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// --- UsageStore ---

func (p *Postgres) AppendUsageRecord(ctx context.Context, r *domain.UsageRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, tenant_id, provider, model, usage_mode,
		                            input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		                            cost_usd, execution_id, task_order, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, r.ID, r.TenantID, r.Provider, r.Model, r.UsageMode,
		r.Usage.InputTokens, r.Usage.OutputTokens, r.Usage.CacheReadTokens, r.Usage.CacheWriteTokens,
		r.CostUSD, nullableString(r.ExecutionID), nullableString(r.TaskOrder), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

func (p *Postgres) ListUsageRecords(ctx context.Context, tenantID string, since time.Time) ([]*domain.UsageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, provider, model, usage_mode,
		       input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		       cost_usd, execution_id, task_order, created_at
		FROM usage_records WHERE tenant_id = $1 AND created_at >= $2 ORDER BY created_at
	`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	defer rows.Close()

	var out []*domain.UsageRecord
	for rows.Next() {
		var r domain.UsageRecord
		var executionID, taskOrder sql.NullString
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Provider, &r.Model, &r.UsageMode,
			&r.Usage.InputTokens, &r.Usage.OutputTokens, &r.Usage.CacheReadTokens, &r.Usage.CacheWriteTokens,
			&r.CostUSD, &executionID, &taskOrder, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		r.ExecutionID = executionID.String
		r.TaskOrder = taskOrder.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}

func nullInt64Ptr(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}
