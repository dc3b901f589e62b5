package domain

import "time"

// TriggerKind identifies how a workflow is started.
type TriggerKind string

const (
	TriggerManual TriggerKind = "manual"
	TriggerCron   TriggerKind = "cron"
	TriggerEvent  TriggerKind = "event"
)

// InputField declares one entry of a workflow's input schema.
type InputField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// Workflow is the declarative definition owned by one agent and tenant.
type Workflow struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	AgentID       string         `json:"agent_id"`
	Name          string         `json:"name"`
	Trigger       TriggerKind    `json:"trigger"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	InputSchema   []InputField   `json:"input_schema"`
	Active        bool           `json:"active"`
}

// TaskType enumerates the workflow task graph node kinds (§4.D).
type TaskType string

const (
	TaskPrompt        TaskType = "prompt"
	TaskMCPAction     TaskType = "mcp_action"
	TaskCondition     TaskType = "condition"
	TaskLoop          TaskType = "loop"
	TaskWait          TaskType = "wait"
	TaskParallel      TaskType = "parallel"
	TaskHumanApproval TaskType = "human_approval"
	TaskSetVariable   TaskType = "set_variable"
	TaskHTTPRequest   TaskType = "http_request"
)

// ErrorPolicyKind selects what happens when a task fails.
type ErrorPolicyKind string

const (
	OnErrorStop     ErrorPolicyKind = "stop"
	OnErrorContinue ErrorPolicyKind = "continue"
	OnErrorRetry    ErrorPolicyKind = "retry"
	OnErrorGoto     ErrorPolicyKind = "goto"
)

// ErrorPolicy is the per-task error handling directive.
type ErrorPolicy struct {
	Kind       ErrorPolicyKind `json:"kind"`
	RetryCount int             `json:"retry_count,omitempty"`
	GotoOrder  string          `json:"goto_order,omitempty"`
}

// DefaultErrorPolicy is "stop", the §4.D default.
func DefaultErrorPolicy() ErrorPolicy {
	return ErrorPolicy{Kind: OnErrorStop}
}

// WorkflowTask is one node of the task graph, addressed by its dotted-decimal
// Order key (see order.go).
type WorkflowTask struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenant_id"`
	Workflow string         `json:"workflow_id"`
	Order    string         `json:"order"`
	Type     TaskType       `json:"type"`
	Config   map[string]any `json:"config"`
	OnError  ErrorPolicy    `json:"on_error"`
}

// ExecutionStatus is the lifecycle state of one Workflow Execution.
type ExecutionStatus string

const (
	ExecPending          ExecutionStatus = "pending"
	ExecRunning          ExecutionStatus = "running"
	ExecWaitingApproval  ExecutionStatus = "waiting_approval"
	ExecCompleted        ExecutionStatus = "completed"
	ExecFailed           ExecutionStatus = "failed"
	ExecCancelled        ExecutionStatus = "cancelled"
)

// IsTerminal reports whether status never transitions again.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecCompleted, ExecFailed, ExecCancelled:
		return true
	default:
		return false
	}
}

// TaskResult is one entry of an execution's per-task results map.
type TaskResult struct {
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Status string `json:"status"`
}

// WorkflowExecution is the mutable state of one workflow run. It exclusively
// owns its Variables and TaskResults for its entire lifetime.
type WorkflowExecution struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      ExecutionStatus `json:"status"`
	InputData   map[string]any  `json:"input_data"`
	Variables   map[string]any  `json:"variables"`

	CurrentTaskOrder string          `json:"current_task_order"`
	TasksCompleted   []string        `json:"tasks_completed"`
	TaskResults      map[string]TaskResult `json:"task_results"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorTaskID  string `json:"error_task_id,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`

	OutputData map[string]any `json:"output_data,omitempty"`

	GotoCount int `json:"goto_count"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// ValidateInvariants checks the invariants from §3:
//   status=completed => completed_at set && error nil
//   status=failed    => error set && failing task order set
func (e *WorkflowExecution) ValidateInvariants() error {
	switch e.Status {
	case ExecCompleted:
		if e.CompletedAt.IsZero() || e.ErrorMessage != "" {
			return &ConfigError{Reason: "completed execution must have completed_at set and no error"}
		}
	case ExecFailed:
		if e.ErrorMessage == "" || e.ErrorTaskID == "" {
			return &ConfigError{Reason: "failed execution must carry error_message and error_task_id"}
		}
	}
	return nil
}

// ScheduledJob binds a workflow to a cron expression and timezone.
type ScheduledJob struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	WorkflowID  string    `json:"workflow_id"`
	CronExpr    string    `json:"cron_expr"`
	Timezone    string    `json:"timezone"`
	NextFireAt  time.Time `json:"next_fire_at"`
	LastFireAt  time.Time `json:"last_fire_at,omitempty"`
	LastExecID  string    `json:"last_execution_id,omitempty"`
	Active      bool      `json:"active"`
}
