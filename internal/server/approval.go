package server

import (
	"context"

	"github.com/agentrail/core/internal/domain"
)

// notifyIfWaitingApproval alerts the configured Slack channel when exec has
// just parked on a human_approval task. Failures are logged, never
// returned — a Slack outage shouldn't fail the request that paused the
// execution; the execution is already durably waiting.
func (s *Server) notifyIfWaitingApproval(ctx context.Context, tenantID string, exec *domain.WorkflowExecution) {
	if exec == nil || exec.Status != domain.ExecWaitingApproval || s.Notifier == nil {
		return
	}

	tasks, err := s.Interpreter.Store.ListWorkflowTasks(ctx, tenantID, exec.WorkflowID)
	if err != nil {
		s.logWarn("list workflow tasks for approval notification failed", "execution_id", exec.ID, "error", err)
		return
	}
	var task *domain.WorkflowTask
	for _, t := range tasks {
		if t.Order == exec.CurrentTaskOrder {
			task = t
			break
		}
	}
	if task == nil {
		s.logWarn("approval task not found", "execution_id", exec.ID, "task_order", exec.CurrentTaskOrder)
		return
	}

	if err := s.Notifier.NotifyApprovalPending(ctx, s.ApprovalRoute, exec, task); err != nil {
		s.logWarn("approval notification failed", "execution_id", exec.ID, "error", err)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Warn(msg, args...)
	}
}
