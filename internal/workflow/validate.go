package workflow

import (
	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/workflow/expr"
)

// ValidateTask checks a task's shape against its declared type before it
// is ever persisted, so a malformed condition expression or a goto with no
// target fails at workflow-create time (ErrConfig) rather than mid-run.
func ValidateTask(task *domain.WorkflowTask) error {
	if _, err := domain.ParseOrder(task.Order); err != nil {
		return err
	}

	switch task.Type {
	case domain.TaskCondition:
		exprStr, _ := task.Config["expression"].(string)
		if exprStr == "" {
			return errs.New(errs.KindConfig, "condition task requires expression")
		}
		if _, err := expr.Parse(exprStr); err != nil {
			return errs.Wrap(errs.KindConfig, "invalid condition expression", err)
		}
		if _, ok := task.Config["true_branch"].(string); !ok {
			return errs.New(errs.KindConfig, "condition task requires true_branch")
		}
		if _, ok := task.Config["false_branch"].(string); !ok {
			return errs.New(errs.KindConfig, "condition task requires false_branch")
		}

	case domain.TaskLoop:
		if _, ok := task.Config["iterate_over"].(string); !ok {
			return errs.New(errs.KindConfig, "loop task requires iterate_over")
		}
		if _, ok := toStringSlice(task.Config["sub_tasks"]); !ok {
			return errs.New(errs.KindConfig, "loop task requires sub_tasks")
		}

	case domain.TaskParallel:
		if _, ok := toStringSlice(task.Config["branches"]); !ok {
			return errs.New(errs.KindConfig, "parallel task requires branches")
		}

	case domain.TaskHTTPRequest:
		if _, ok := task.Config["url"].(string); !ok {
			return errs.New(errs.KindConfig, "http_request task requires url")
		}

	case domain.TaskMCPAction:
		if _, ok := task.Config["tool_id"].(string); !ok {
			return errs.New(errs.KindConfig, "mcp_action task requires tool_id")
		}

	case domain.TaskSetVariable:
		if _, ok := task.Config["name"].(string); !ok {
			return errs.New(errs.KindConfig, "set_variable task requires name")
		}

	case domain.TaskPrompt:
		_, hasID := task.Config["prompt_id"].(string)
		_, hasInline := task.Config["prompt"].(string)
		if !hasID && !hasInline {
			return errs.New(errs.KindConfig, "prompt task requires prompt_id or prompt")
		}

	case domain.TaskWait:
		kind, _ := task.Config["type"].(string)
		if kind != "delay" && kind != "event" {
			return errs.New(errs.KindConfig, "wait task requires type=delay or type=event")
		}

	case domain.TaskHumanApproval:
		// message/timeout are both optional; nothing to validate structurally.

	default:
		return errs.New(errs.KindConfig, "unknown task type "+string(task.Type))
	}

	if task.OnError.Kind == domain.OnErrorGoto && task.OnError.GotoOrder == "" {
		return errs.New(errs.KindConfig, "on_error=goto requires goto_order")
	}
	if task.OnError.Kind == domain.OnErrorRetry && task.OnError.RetryCount <= 0 {
		return errs.New(errs.KindConfig, "on_error=retry requires a positive retry_count")
	}

	return nil
}
