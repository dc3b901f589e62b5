package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/eventbus"
)

const (
	maxWaitDelay = 24 * time.Hour
	timeFormat   = time.RFC3339

	// waitingOnEventKey/waitDeadlineKey are reserved Variables entries used
	// to carry pause metadata for wait.event and human_approval tasks.
	// WorkflowExecution has no dedicated pause-metadata fields, and these
	// two keys are the only state a resume needs: what to wait for, and
	// when to give up.
	waitingOnEventKey = "__waiting_on_event"
	waitDeadlineKey   = "__wait_deadline"

	// waitDelayMarker is the waitingOnEventKey value a wait.delay task sets
	// (a plain timer has no event name to wait for). internal/store reads
	// this same literal to find due delays for the scheduler's resume poll.
	waitDelayMarker = "__wait_delay"

	// viaJumpKey records, across a pause/resume boundary, whether the task
	// about to run was reached via an explicit cursor relocation (a
	// condition branch or an on_error=goto) rather than ordinary sequential
	// advance. See defaultNext.
	viaJumpKey = "__via_jump"
)

// ErrMissingInput reports that a Start call's input_data did not satisfy
// the workflow's declared required input fields.
var ErrMissingInput = errs.New(errs.KindMissingInput, "workflow input missing required field")

// Start validates input against the workflow's input schema, creates a
// running execution, and runs it to its first pause or terminal state.
func (in *Interpreter) Start(ctx context.Context, tenantID, workflowID string, input map[string]any) (*domain.WorkflowExecution, error) {
	wf, err := in.Store.GetWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	for _, f := range wf.InputSchema {
		if !f.Required {
			continue
		}
		if _, ok := input[f.Name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, f.Name)
		}
	}

	tasks, err := in.Store.ListWorkflowTasks(ctx, tenantID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, errs.New(errs.KindConfig, "workflow has no tasks")
	}
	byOrder, orders := indexTasks(tasks)

	vars := make(map[string]any, len(input))
	for k, v := range input {
		vars[k] = v
	}

	exec := &domain.WorkflowExecution{
		ID:               newExecutionID(),
		TenantID:         tenantID,
		WorkflowID:       workflowID,
		Status:           domain.ExecRunning,
		InputData:        input,
		Variables:        vars,
		CurrentTaskOrder: orders[0],
		TaskResults:      map[string]domain.TaskResult{},
		StartedAt:        in.clock().UTC(),
	}

	if err := in.Store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	in.publish(ctx, eventbus.Event{
		Type: eventbus.TypeWorkflowStarted, TenantID: tenantID,
		Data: map[string]any{"execution_id": exec.ID, "workflow_id": workflowID},
	})

	return in.run(ctx, tenantID, exec, byOrder, orders)
}

// Resume re-enters the interpreter loop for an execution that is already
// running (e.g. a worker picking a job back up after a restart). Anything
// left in a waiting state when this is called is re-checked, not
// re-executed from scratch.
func (in *Interpreter) Resume(ctx context.Context, tenantID, executionID string) (*domain.WorkflowExecution, error) {
	exec, err := in.Store.GetExecution(ctx, tenantID, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if exec.Status.IsTerminal() {
		return exec, nil
	}
	tasks, err := in.Store.ListWorkflowTasks(ctx, tenantID, exec.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow tasks: %w", err)
	}
	byOrder, orders := indexTasks(tasks)

	if exec.Status == domain.ExecWaitingApproval {
		if deadline, ok := parseDeadline(exec.Variables[waitDeadlineKey]); ok && in.clock().After(deadline) {
			return in.terminalFail(ctx, tenantID, exec, exec.CurrentTaskOrder, errs.New(errs.KindTimeout, "human approval / wait.event timed out"))
		}
		return exec, nil
	}

	exec.Status = domain.ExecRunning
	return in.run(ctx, tenantID, exec, byOrder, orders)
}

// ResumeApproval advances an execution parked on a human_approval task.
// A rejection fails the workflow outright; approval records the task as
// completed and continues from the next order.
func (in *Interpreter) ResumeApproval(ctx context.Context, tenantID, executionID string, approved bool) (*domain.WorkflowExecution, error) {
	exec, err := in.Store.GetExecution(ctx, tenantID, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if exec.Status.IsTerminal() {
		return exec, nil
	}
	tasks, err := in.Store.ListWorkflowTasks(ctx, tenantID, exec.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow tasks: %w", err)
	}
	byOrder, orders := indexTasks(tasks)

	if !approved {
		exec.ErrorTaskID = exec.CurrentTaskOrder
		return in.terminalFail(ctx, tenantID, exec, exec.CurrentTaskOrder, errs.New(errs.KindConfig, "human approval rejected"))
	}

	exec.Status = domain.ExecRunning
	delete(exec.Variables, waitingOnEventKey)
	delete(exec.Variables, waitDeadlineKey)

	if task, ok := byOrder[exec.CurrentTaskOrder]; ok {
		viaJump := popViaJump(exec)
		in.recordCompletion(ctx, tenantID, exec, task, nil, "completed")
		exec.CurrentTaskOrder = defaultNext(task, orders, viaJump)
	}

	return in.run(ctx, tenantID, exec, byOrder, orders)
}

// ResumeEvent delivers a named event to an execution parked on a
// wait.event task. Events that don't match what the execution is waiting
// for are ignored (the execution stays parked).
func (in *Interpreter) ResumeEvent(ctx context.Context, tenantID, executionID, eventName string, payload any) (*domain.WorkflowExecution, error) {
	exec, err := in.Store.GetExecution(ctx, tenantID, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if exec.Status.IsTerminal() {
		return exec, nil
	}
	waiting, _ := exec.Variables[waitingOnEventKey].(string)
	if waiting == "" || waiting != eventName {
		return exec, nil
	}
	tasks, err := in.Store.ListWorkflowTasks(ctx, tenantID, exec.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow tasks: %w", err)
	}
	byOrder, orders := indexTasks(tasks)

	exec.Status = domain.ExecRunning
	delete(exec.Variables, waitingOnEventKey)
	delete(exec.Variables, waitDeadlineKey)
	exec.Variables["event_payload"] = payload

	if task, ok := byOrder[exec.CurrentTaskOrder]; ok {
		viaJump := popViaJump(exec)
		in.recordCompletion(ctx, tenantID, exec, task, payload, "completed")
		exec.CurrentTaskOrder = defaultNext(task, orders, viaJump)
	}

	return in.run(ctx, tenantID, exec, byOrder, orders)
}

// Cancel moves a pending/running/waiting execution to cancelled. The
// interpreter only ever observes cancellation at the next task boundary;
// this call does not attempt to interrupt a task already in flight beyond
// whatever ctx cancellation its caller wires up.
func (in *Interpreter) Cancel(ctx context.Context, tenantID, executionID string) (*domain.WorkflowExecution, error) {
	exec, err := in.Store.GetExecution(ctx, tenantID, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if exec.Status.IsTerminal() {
		return exec, nil
	}
	exec.Status = domain.ExecCancelled
	exec.CompletedAt = in.clock().UTC()
	if err := in.Store.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("persist cancelled execution: %w", err)
	}
	return exec, nil
}

// run is the cursor traversal loop: step one task at a time, persisting
// progress after every step so a worker crash never loses more than the
// task currently in flight.
func (in *Interpreter) run(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, byOrder map[string]*domain.WorkflowTask, orders []string) (*domain.WorkflowExecution, error) {
	for {
		if err := ctx.Err(); err != nil {
			exec.Status = domain.ExecCancelled
			exec.CompletedAt = in.clock().UTC()
			_ = in.Store.SaveExecution(context.WithoutCancel(ctx), exec)
			return exec, nil
		}
		if exec.CurrentTaskOrder == "" {
			return in.terminalComplete(ctx, tenantID, exec)
		}

		task, ok := byOrder[exec.CurrentTaskOrder]
		if !ok {
			return in.terminalFail(ctx, tenantID, exec, exec.CurrentTaskOrder, errs.New(errs.KindConfig, "unknown task order "+exec.CurrentTaskOrder))
		}

		next, paused, err := in.step(ctx, tenantID, exec, task, byOrder, orders)
		if err != nil {
			return in.terminalFail(ctx, tenantID, exec, task.Order, err)
		}
		if paused {
			if err := in.Store.SaveExecution(ctx, exec); err != nil {
				return nil, fmt.Errorf("persist paused execution: %w", err)
			}
			return exec, nil
		}

		exec.CurrentTaskOrder = next
		if err := in.Store.SaveExecution(ctx, exec); err != nil {
			return nil, fmt.Errorf("persist execution progress: %w", err)
		}
	}
}

// step executes one task to completion (or pause, or failure) and
// computes the next cursor position. Control-flow task types (condition)
// pick their own next order; everything else advances per defaultNext.
func (in *Interpreter) step(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, byOrder map[string]*domain.WorkflowTask, orders []string) (nextOrder string, paused bool, err error) {
	viaJump := popViaJump(exec)

	if task.Type == domain.TaskCondition {
		next, _, missing, cerr := in.runCondition(exec, task)
		in.warnMissing(ctx, tenantID, exec, task, missing)
		if cerr != nil {
			exec.TaskResults[task.Order] = domain.TaskResult{Error: cerr.Error(), Status: "failed"}
			return "", false, cerr
		}
		in.recordCompletion(ctx, tenantID, exec, task, next, "completed")
		setViaJump(exec, true)
		return next, false, nil
	}

	out, taskPaused, terr := in.attemptTask(ctx, tenantID, exec, task, byOrder)
	if terr != nil {
		if errs.Is(terr, errs.KindLoopBound) {
			// Loop/goto bound violations are fatal by definition (§3
			// ErrLoopBound) and never subject to retry/continue/goto.
			exec.TaskResults[task.Order] = domain.TaskResult{Error: terr.Error(), Status: "failed"}
			return "", false, terr
		}
		return in.applyErrorPolicy(ctx, tenantID, exec, task, byOrder, orders, terr, viaJump)
	}
	if taskPaused {
		in.markPaused(exec, task)
		setViaJump(exec, viaJump)
		return task.Order, true, nil
	}
	in.recordCompletion(ctx, tenantID, exec, task, out, "completed")
	next := defaultNext(task, orders, viaJump)
	setViaJump(exec, false)
	return next, false, nil
}

// popViaJump reads and clears the pending jump flag for the task about to
// run. setViaJump records it again for whichever task runs next.
func popViaJump(exec *domain.WorkflowExecution) bool {
	v, _ := exec.Variables[viaJumpKey].(bool)
	delete(exec.Variables, viaJumpKey)
	return v
}

func setViaJump(exec *domain.WorkflowExecution, jump bool) {
	if jump {
		exec.Variables[viaJumpKey] = true
		return
	}
	delete(exec.Variables, viaJumpKey)
}

// defaultNext computes the task that follows task's completion. A task
// config may set an explicit "next" order to keep chaining; absent that,
// a task reached by ordinary sequential advance continues to the next
// non-descendant order, but a task reached via an explicit jump (a
// condition branch or on_error=goto) is a terminal landing spot for that
// path and ends the run — matching a branch target being one of "an
// existing task or a terminal marker" with no further continuation
// implied.
func defaultNext(task *domain.WorkflowTask, orders []string, viaJump bool) string {
	if n, ok := task.Config["next"].(string); ok && n != "" {
		return n
	}
	if viaJump {
		return ""
	}
	return nextAfter(task.Order, orders)
}

// attemptTask performs a single, non-retried attempt of any task type that
// can appear at the top of the cursor (everything except condition, which
// step handles directly since it never pauses and never retries).
func (in *Interpreter) attemptTask(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, byOrder map[string]*domain.WorkflowTask) (out any, paused bool, err error) {
	switch task.Type {
	case domain.TaskPrompt, domain.TaskMCPAction, domain.TaskSetVariable, domain.TaskHTTPRequest:
		out, err = in.executeOne(ctx, tenantID, exec, task, byOrder)
		return out, false, err
	case domain.TaskLoop:
		var missing []MissingRef
		out, missing, err = in.runLoop(ctx, tenantID, exec, task, byOrder)
		in.warnMissing(ctx, tenantID, exec, task, missing)
		return out, false, err
	case domain.TaskParallel:
		out, err = in.runParallel(ctx, tenantID, exec, task, byOrder)
		return out, false, err
	case domain.TaskWait:
		paused, err = in.runWait(ctx, exec, task)
		return nil, paused, err
	case domain.TaskHumanApproval:
		paused, err = in.runHumanApproval(exec, task)
		return nil, paused, err
	default:
		return nil, false, errs.New(errs.KindConfig, "unsupported task type "+string(task.Type))
	}
}

func (in *Interpreter) markPaused(exec *domain.WorkflowExecution, task *domain.WorkflowTask) {
	status := "waiting"
	if task.Type == domain.TaskHumanApproval {
		exec.Status = domain.ExecWaitingApproval
		status = "waiting_approval"
	}
	exec.TaskResults[task.Order] = domain.TaskResult{Status: status}
}

func (in *Interpreter) recordCompletion(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, output any, status string) {
	exec.TaskResults[task.Order] = domain.TaskResult{Output: output, Status: status}
	exec.TasksCompleted = append(exec.TasksCompleted, task.Order)
	in.publish(ctx, eventbus.Event{
		Type: eventbus.TypeWorkflowStepCompleted, TenantID: tenantID,
		Data: map[string]any{"execution_id": exec.ID, "task_order": task.Order, "task_type": string(task.Type)},
	})
}

// applyErrorPolicy is the §4.D error-policy state machine: stop fails the
// execution, continue records the task as failed with its error and moves
// on, retry
// re-attempts with capped exponential backoff, goto relocates the cursor
// (counted against the 25-goto lifetime cap).
func (in *Interpreter) applyErrorPolicy(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, byOrder map[string]*domain.WorkflowTask, orders []string, taskErr error, viaJump bool) (string, bool, error) {
	policy := task.OnError
	if policy.Kind == "" {
		policy = domain.DefaultErrorPolicy()
	}

	switch policy.Kind {
	case domain.OnErrorRetry:
		return in.retryTask(ctx, tenantID, exec, task, byOrder, orders, policy.RetryCount, taskErr, viaJump)

	case domain.OnErrorContinue:
		exec.TaskResults[task.Order] = domain.TaskResult{Error: taskErr.Error(), Status: "failed"}
		exec.TasksCompleted = append(exec.TasksCompleted, task.Order)
		next := defaultNext(task, orders, viaJump)
		setViaJump(exec, false)
		return next, false, nil

	case domain.OnErrorGoto:
		if policy.GotoOrder == "" {
			return "", false, errs.New(errs.KindConfig, "on_error=goto requires goto_order")
		}
		exec.GotoCount++
		if exec.GotoCount > MaxGotos {
			return "", false, errs.New(errs.KindLoopBound, fmt.Sprintf("goto count exceeded %d", MaxGotos))
		}
		exec.TaskResults[task.Order] = domain.TaskResult{Error: taskErr.Error(), Status: "failed"}
		exec.TasksCompleted = append(exec.TasksCompleted, task.Order)
		setViaJump(exec, true)
		return policy.GotoOrder, false, nil

	default: // stop
		exec.TaskResults[task.Order] = domain.TaskResult{Error: taskErr.Error(), Status: "failed"}
		return "", false, taskErr
	}
}

// retryTask re-attempts task up to retryCount additional times with
// backoff 1s, 2s, 4s, ... capped at 30s between attempts.
func (in *Interpreter) retryTask(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, byOrder map[string]*domain.WorkflowTask, orders []string, retryCount int, firstErr error, viaJump bool) (string, bool, error) {
	backoff := time.Second
	lastErr := firstErr

	for attempt := 0; attempt < retryCount; attempt++ {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}

		out, paused, err := in.attemptTask(ctx, tenantID, exec, task, byOrder)
		if err == nil {
			if paused {
				in.markPaused(exec, task)
				setViaJump(exec, viaJump)
				return task.Order, true, nil
			}
			in.recordCompletion(ctx, tenantID, exec, task, out, "completed")
			next := defaultNext(task, orders, viaJump)
			setViaJump(exec, false)
			return next, false, nil
		}
		if errs.Is(err, errs.KindLoopBound) {
			// A loop/goto bound hit mid-retry is fatal the same as on
			// first attempt; don't spend remaining retries on it.
			exec.TaskResults[task.Order] = domain.TaskResult{Error: err.Error(), Status: "failed"}
			return "", false, err
		}
		lastErr = err
	}

	exec.TaskResults[task.Order] = domain.TaskResult{Error: lastErr.Error(), Status: "failed"}
	return "", false, fmt.Errorf("retry exhausted after %d attempts: %w", retryCount, lastErr)
}

func (in *Interpreter) terminalComplete(ctx context.Context, tenantID string, exec *domain.WorkflowExecution) (*domain.WorkflowExecution, error) {
	exec.Status = domain.ExecCompleted
	exec.CompletedAt = in.clock().UTC()
	exec.OutputData = buildOutput(exec)
	if err := in.Store.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("persist completed execution: %w", err)
	}
	in.publish(ctx, eventbus.Event{
		Type: eventbus.TypeWorkflowCompleted, TenantID: tenantID,
		Data: map[string]any{"execution_id": exec.ID, "output": exec.OutputData},
	})
	return exec, nil
}

func (in *Interpreter) terminalFail(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, taskOrder string, cause error) (*domain.WorkflowExecution, error) {
	exec.Status = domain.ExecFailed
	exec.ErrorTaskID = taskOrder
	exec.ErrorMessage = cause.Error()
	exec.ErrorKind = string(errs.KindOf(cause))
	exec.CompletedAt = in.clock().UTC()
	if err := in.Store.SaveExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("persist failed execution: %w", err)
	}
	in.publish(ctx, eventbus.Event{
		Type: eventbus.TypeWorkflowFailed, TenantID: tenantID,
		Data: map[string]any{"execution_id": exec.ID, "task_order": taskOrder, "error": exec.ErrorMessage},
	})
	return exec, nil
}

func buildOutput(exec *domain.WorkflowExecution) map[string]any {
	if len(exec.TasksCompleted) == 0 {
		return map[string]any{}
	}
	last := exec.TasksCompleted[len(exec.TasksCompleted)-1]
	res, ok := exec.TaskResults[last]
	if !ok {
		return map[string]any{}
	}
	if m, ok := res.Output.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": res.Output}
}

// nextAfter finds the next order in the sorted list strictly after order,
// skipping anything nested underneath it (a loop/parallel task's children
// are run internally by that task's own handler, never by the main
// cursor).
func nextAfter(order string, orders []string) string {
	cur, err := domain.ParseOrder(order)
	if err != nil {
		return ""
	}
	for _, candidate := range orders {
		ord, err := domain.ParseOrder(candidate)
		if err != nil {
			continue
		}
		if ord.Compare(cur) <= 0 {
			continue
		}
		if isDescendant(ord, cur) {
			continue
		}
		return candidate
	}
	return ""
}

func isDescendant(o, ancestor domain.Order) bool {
	if len(o) <= len(ancestor) {
		return false
	}
	for i := range ancestor {
		if o[i] != ancestor[i] {
			return false
		}
	}
	return true
}

func indexTasks(tasks []*domain.WorkflowTask) (map[string]*domain.WorkflowTask, []string) {
	byOrder := make(map[string]*domain.WorkflowTask, len(tasks))
	orders := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byOrder[t.Order] = t
		orders = append(orders, t.Order)
	}
	return byOrder, domain.SortOrders(orders)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func parseDeadline(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func newExecutionID() string { return "exec_" + uuid.NewString() }
