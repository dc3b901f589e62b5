package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/errs"
	"github.com/agentrail/core/internal/eventbus"
	"github.com/agentrail/core/internal/provider"
	"github.com/agentrail/core/internal/routing"
	"github.com/agentrail/core/internal/workflow/expr"
	"github.com/agentrail/core/internal/workflow/httptask"
)

// runPrompt renders the task's prompt (inline or by prompt_id), routes it
// through Routing & Policy, and calls the selected provider.
func (in *Interpreter) runPrompt(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask) (any, []MissingRef, error) {
	sc := &scope{exec: exec}

	var promptText string
	if promptID, ok := task.Config["prompt_id"].(string); ok && promptID != "" {
		tmpl, err := in.Store.GetPromptTemplate(ctx, tenantID, promptID)
		if err != nil {
			return nil, nil, fmt.Errorf("load prompt template %s: %w", promptID, err)
		}
		promptText = tmpl.Body
	} else if inline, ok := task.Config["prompt"].(string); ok {
		promptText = inline
	} else {
		return nil, nil, errs.New(errs.KindConfig, "prompt task requires prompt_id or prompt")
	}

	rendered, missing := interpolateString(promptText, sc)

	taskType := routing.TaskChat
	if tt, ok := task.Config["task_type"].(string); ok && tt != "" {
		taskType = routing.TaskType(tt)
	}

	tenant, err := in.Store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, missing, fmt.Errorf("load tenant: %w", err)
	}

	sel, err := in.Router.Select(tenant, taskType, routing.ScoreOptions{}, "")
	if err != nil {
		return nil, missing, fmt.Errorf("route prompt task: %w", err)
	}

	// Usage mode decides which credential serves the call (the tenant's own,
	// for byok/hybrid) and, below, whether the platform quota counter
	// applies at all: BYOK/hybrid usage is recorded for analytics but never
	// checked or decremented against the platform's monthly limit.
	// A tenant with no llm config row (the common case) simply has none on
	// file, not a load failure; fall through to platform mode.
	llmCfg, cerr := in.Store.GetTenantLLMConfig(ctx, tenantID)
	if cerr != nil {
		llmCfg = nil
	}
	usageMode := domain.UsageModePlatform
	if llmCfg != nil {
		usageMode = routing.ResolveUsageMode(llmCfg, sel.Provider)
	}

	backend, err := in.resolveBackend(llmCfg, usageMode, sel.Provider)
	if err != nil {
		return nil, missing, fmt.Errorf("resolve provider %s: %w", sel.Provider, err)
	}

	if in.Quota != nil && usageMode == domain.UsageModePlatform {
		estimated := int64(len(rendered))/4 + 1
		if err := in.Quota.CheckAndReserve(ctx, tenantID, estimated); err != nil {
			return nil, missing, err
		}
	}

	maxTokens := 0
	if mt, ok := toFloat(task.Config["max_tokens"]); ok {
		maxTokens = int(mt)
	}

	resp, err := backend.Complete(ctx, provider.Request{
		Model:     sel.Model.ID,
		Messages:  []provider.Message{{Role: provider.RoleUser, Content: rendered}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, missing, fmt.Errorf("provider completion: %w", err)
	}

	if in.Quota != nil && usageMode == domain.UsageModePlatform {
		_ = in.Quota.RecordUsage(ctx, tenantID, resp.Usage.InputTokens+resp.Usage.OutputTokens)
	}

	var costUSD float64
	if sel.Model != nil {
		costUSD = float64(resp.Usage.InputTokens)/1e6*sel.Model.InputPrice +
			float64(resp.Usage.OutputTokens)/1e6*sel.Model.OutputPrice
	}

	_ = in.Store.AppendUsageRecord(ctx, &domain.UsageRecord{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Provider:  string(sel.Provider),
		Model:     sel.Model.ID,
		UsageMode: usageMode,
		Usage: domain.TokenUsage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheReadTokens:  resp.Usage.CacheReadTokens,
			CacheWriteTokens: resp.Usage.CacheWriteTokens,
		},
		CostUSD:     costUSD,
		ExecutionID: exec.ID,
		TaskOrder:   task.Order,
		CreatedAt:   in.clock().UTC(),
	})

	return resp.Text, missing, nil
}

// resolveBackend picks the adapter a prompt task's Complete call goes
// through. Platform-mode (and hybrid tenants falling back to platform for
// this provider) use the fixed Registry built from the orchestrator's own
// config at startup; byok/hybrid tenants with a stored key for name get a
// one-off adapter built from their own decrypted credential instead, so
// the call — and its cost — is never attributed to the platform's key.
func (in *Interpreter) resolveBackend(cfg *domain.TenantLLMConfig, usageMode domain.UsageMode, name provider.Name) (provider.Provider, error) {
	if usageMode != domain.UsageModeBYOK || in.KeyVault == nil {
		return in.Providers.Get(name)
	}
	cred, err := in.KeyVault.ResolveCredential(cfg, name)
	if err != nil {
		return nil, err
	}
	return routing.BuildCredentialedProvider(cred)
}

// runMCPAction interpolates the tool call parameters and invokes the tool
// registry. Tools are addressed by ID; the registry itself enforces
// required_config and status gating (active/beta/disabled).
func (in *Interpreter) runMCPAction(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask) (any, []MissingRef, error) {
	toolID, _ := task.Config["tool_id"].(string)
	if toolID == "" {
		return nil, nil, errs.New(errs.KindConfig, "mcp_action task requires tool_id")
	}
	if in.Tools == nil {
		return nil, nil, errs.New(errs.KindConfig, "mcp_action task: no tool runner configured")
	}

	sc := &scope{exec: exec}
	rawParams, _ := task.Config["params"].(map[string]any)
	params, missing := interpolateParams(rawParams, sc)

	out, err := in.Tools.Run(ctx, tenantID, toolID, params)
	if err != nil {
		return nil, missing, fmt.Errorf("mcp_action %s: %w", toolID, err)
	}
	return out, missing, nil
}

// runCondition evaluates the restricted boolean grammar from
// internal/workflow/expr and reports which branch order the cursor should
// jump to. A malformed expression is a configuration defect rather than a
// transient failure, so it is never subject to retry/goto error policy —
// it always stops the execution immediately.
func (in *Interpreter) runCondition(exec *domain.WorkflowExecution, task *domain.WorkflowTask) (nextOrder string, result bool, missing []MissingRef, err error) {
	exprStr, _ := task.Config["expression"].(string)
	trueBranch, _ := task.Config["true_branch"].(string)
	falseBranch, _ := task.Config["false_branch"].(string)
	if exprStr == "" || trueBranch == "" || falseBranch == "" {
		return "", false, nil, errs.New(errs.KindConfig, "condition task requires expression, true_branch, false_branch")
	}

	compiled, err := expr.Parse(exprStr)
	if err != nil {
		return "", false, nil, errs.Wrap(errs.KindConfig, "parse condition expression", err)
	}

	sc := &scope{exec: exec}
	ok, missRefs, err := compiled.Eval(sc)
	if err != nil {
		return "", false, nil, fmt.Errorf("evaluate condition: %w", err)
	}

	missing = toMissing(missRefs)
	if ok {
		return trueBranch, true, missing, nil
	}
	return falseBranch, false, missing, nil
}

// runLoop resolves iterate_over to a list and runs the declared sub_tasks
// once per element, binding item_var (and item_var_index) in Variables for
// the duration of each iteration.
func (in *Interpreter) runLoop(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, byOrder map[string]*domain.WorkflowTask) (any, []MissingRef, error) {
	iterExpr, _ := task.Config["iterate_over"].(string)
	itemVar, _ := task.Config["item_var"].(string)
	if itemVar == "" {
		itemVar = "item"
	}
	subOrders, ok := toStringSlice(task.Config["sub_tasks"])
	if iterExpr == "" || !ok || len(subOrders) == 0 {
		return nil, nil, errs.New(errs.KindConfig, "loop task requires iterate_over and sub_tasks")
	}
	subOrders = domain.SortOrders(subOrders)

	sc := &scope{exec: exec}
	raw, resolved, missing := interpolateExact(iterExpr, sc)
	if !resolved {
		return nil, missing, errs.New(errs.KindConfig, "loop iterate_over did not resolve to a value")
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, missing, errs.New(errs.KindConfig, "loop iterate_over must resolve to a list")
	}
	if len(items) > MaxLoopIterations {
		return nil, missing, errs.New(errs.KindLoopBound, fmt.Sprintf("loop would run %d iterations, max %d", len(items), MaxLoopIterations))
	}

	indexKey := itemVar + "_index"
	defer delete(exec.Variables, itemVar)
	defer delete(exec.Variables, indexKey)

	results := make([]any, 0, len(items))
	for i, item := range items {
		exec.Variables[itemVar] = item
		exec.Variables[indexKey] = float64(i)
		for _, subOrder := range subOrders {
			subTask, ok := byOrder[subOrder]
			if !ok {
				return nil, missing, errs.New(errs.KindConfig, "loop sub_task order not found: "+subOrder)
			}
			out, err := in.executeOne(ctx, tenantID, exec, subTask, byOrder)
			if err != nil {
				return nil, missing, fmt.Errorf("loop iteration %d, task %s: %w", i, subOrder, err)
			}
			exec.TaskResults[subTask.Order] = domain.TaskResult{Output: out, Status: "completed"}
			exec.TasksCompleted = append(exec.TasksCompleted, subTask.Order)
			results = append(results, out)
		}
	}
	return results, missing, nil
}

// runParallel runs every branch order concurrently via an errgroup, never
// cancelling siblings when one fails — the task's own error policy decides
// whether an error here stops the workflow, matching the §4.D contract
// that only a stop policy should abort the others.
func (in *Interpreter) runParallel(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, byOrder map[string]*domain.WorkflowTask) (any, error) {
	branchOrders, ok := toStringSlice(task.Config["branches"])
	if !ok || len(branchOrders) == 0 {
		return nil, errs.New(errs.KindConfig, "parallel task requires branches")
	}

	var mu sync.Mutex
	results := make(map[string]any, len(branchOrders))
	failures := make(map[string]string, len(branchOrders))
	var firstErr error
	var firstErrOnce sync.Once

	branches := make([]*domain.WorkflowTask, 0, len(branchOrders))
	for _, order := range branchOrders {
		bt, ok := byOrder[order]
		if !ok {
			return nil, errs.New(errs.KindConfig, "parallel branch order not found: "+order)
		}
		branches = append(branches, bt)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, branchTask := range branches {
		branchTask := branchTask
		g.Go(func() error {
			out, err := in.executeOne(gctx, tenantID, exec, branchTask, byOrder)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[branchTask.Order] = err.Error()
				firstErrOnce.Do(func() {
					firstErr = fmt.Errorf("parallel branch %s: %w", branchTask.Order, err)
				})
				return nil
			}
			results[branchTask.Order] = out
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	defer mu.Unlock()
	for order, out := range results {
		exec.TaskResults[order] = domain.TaskResult{Output: out, Status: "completed"}
		exec.TasksCompleted = append(exec.TasksCompleted, order)
	}
	for order, msg := range failures {
		exec.TaskResults[order] = domain.TaskResult{Error: msg, Status: "failed"}
	}

	return results, firstErr
}

// runWait handles both wait.delay (records a deadline, capped at 24h, and
// parks the execution until a later Resume finds it past) and wait.event
// (parks the execution in a waiting state for an external ResumeEvent
// call, failing with a timeout once a later Resume finds its deadline past).
func (in *Interpreter) runWait(ctx context.Context, exec *domain.WorkflowExecution, task *domain.WorkflowTask) (paused bool, err error) {
	kind, _ := task.Config["type"].(string)
	switch kind {
	case "delay":
		seconds, ok := toFloat(task.Config["duration"])
		if !ok || seconds <= 0 {
			return false, errs.New(errs.KindConfig, "wait.delay requires a positive duration")
		}
		// A second visit to an already-parked delay (Resume called by the
		// scheduler's poll, or by a worker after a crash) checks the
		// deadline it already committed to instead of restarting the
		// timer from scratch.
		if marker, ok := exec.Variables[waitingOnEventKey].(string); ok && marker == waitDelayMarker {
			deadline, ok := parseDeadline(exec.Variables[waitDeadlineKey])
			if !ok || !in.clock().Before(deadline) {
				delete(exec.Variables, waitingOnEventKey)
				delete(exec.Variables, waitDeadlineKey)
				return false, nil
			}
			return true, nil
		}
		d := secondsToDuration(seconds)
		if d > maxWaitDelay {
			d = maxWaitDelay
		}
		exec.Variables[waitingOnEventKey] = waitDelayMarker
		exec.Variables[waitDeadlineKey] = in.clock().Add(d).Format(timeFormat)
		return true, nil
	case "event":
		eventName, _ := task.Config["event"].(string)
		if eventName == "" {
			return false, errs.New(errs.KindConfig, "wait.event requires an event name")
		}
		// A second visit to an already-parked wait.event keeps the deadline
		// it committed to and fails once that deadline has passed.
		if waiting, ok := exec.Variables[waitingOnEventKey].(string); ok && waiting == eventName {
			if deadline, ok := parseDeadline(exec.Variables[waitDeadlineKey]); ok && !in.clock().Before(deadline) {
				delete(exec.Variables, waitingOnEventKey)
				delete(exec.Variables, waitDeadlineKey)
				return false, errs.New(errs.KindTimeout, "wait.event timed out")
			}
			return true, nil
		}
		timeoutSeconds, ok := toFloat(task.Config["timeout"])
		if !ok || timeoutSeconds <= 0 {
			timeoutSeconds = maxWaitDelay.Seconds()
		}
		deadline := in.clock().Add(secondsToDuration(timeoutSeconds))
		exec.Variables[waitingOnEventKey] = eventName
		exec.Variables[waitDeadlineKey] = deadline.Format(timeFormat)
		return true, nil
	default:
		return false, errs.New(errs.KindConfig, "wait task requires type=delay or type=event")
	}
}

// runHumanApproval parks the execution until ResumeApproval is called,
// reusing the ExecWaitingApproval status the domain model already defines
// rather than adding a dedicated pause state.
func (in *Interpreter) runHumanApproval(exec *domain.WorkflowExecution, task *domain.WorkflowTask) (paused bool, err error) {
	timeoutSeconds, ok := toFloat(task.Config["timeout"])
	if !ok || timeoutSeconds <= 0 {
		timeoutSeconds = DefaultApprovalTimeout.Seconds()
	}
	deadline := in.clock().Add(secondsToDuration(timeoutSeconds))
	exec.Variables[waitingOnEventKey] = approvalEventName(task.Order)
	exec.Variables[waitDeadlineKey] = deadline.Format(timeFormat)
	return true, nil
}

func approvalEventName(order string) string { return "approval:" + order }

// runSetVariable assigns a resolved value (typed, not stringified, when
// the value is a single placeholder) to a named execution variable.
func (in *Interpreter) runSetVariable(exec *domain.WorkflowExecution, task *domain.WorkflowTask) (any, []MissingRef, error) {
	name, _ := task.Config["name"].(string)
	if name == "" {
		return nil, nil, errs.New(errs.KindConfig, "set_variable task requires name")
	}

	value, hasValue := task.Config["value"]
	if !hasValue {
		exec.Variables[name] = nil
		return nil, nil, nil
	}

	str, isString := value.(string)
	if !isString {
		exec.Variables[name] = value
		return value, nil, nil
	}

	sc := &scope{exec: exec}
	raw, _, missing := interpolateExact(str, sc)
	exec.Variables[name] = raw
	return raw, missing, nil
}

// runHTTPRequest interpolates method/url/headers/body and performs the
// bounded call via internal/workflow/httptask.
func (in *Interpreter) runHTTPRequest(ctx context.Context, exec *domain.WorkflowExecution, task *domain.WorkflowTask) (any, []MissingRef, error) {
	rawURL, _ := task.Config["url"].(string)
	if rawURL == "" {
		return nil, nil, errs.New(errs.KindConfig, "http_request task requires url")
	}
	method, _ := task.Config["method"].(string)
	body, _ := task.Config["body"].(string)

	sc := &scope{exec: exec}
	url, missing := interpolateString(rawURL, sc)
	renderedBody, miss := interpolateString(body, sc)
	missing = append(missing, miss...)

	headers := map[string]string{}
	if headersCfg, ok := task.Config["headers"].(map[string]any); ok {
		for k, v := range headersCfg {
			if s, ok := v.(string); ok {
				rv, miss := interpolateString(s, sc)
				headers[k] = rv
				missing = append(missing, miss...)
			}
		}
	}

	resp, err := httptask.Do(ctx, in.HTTPClient, httptask.Request{
		Method: method, URL: url, Headers: headers, Body: renderedBody,
	})
	if err != nil {
		return nil, missing, err
	}
	if resp.Parsed != nil {
		return resp.Parsed, missing, nil
	}
	return resp.Body, missing, nil
}

// executeOne dispatches a single leaf task type, with no further
// control-flow concern of its own. It is what loop iterations and parallel
// branches run — condition/loop/wait/parallel/human_approval cannot
// themselves appear nested this way, since their pause/branch semantics
// only make sense against the top-level cursor.
func (in *Interpreter) executeOne(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, byOrder map[string]*domain.WorkflowTask) (any, error) {
	var out any
	var missing []MissingRef
	var err error

	switch task.Type {
	case domain.TaskPrompt:
		out, missing, err = in.runPrompt(ctx, tenantID, exec, task)
	case domain.TaskMCPAction:
		out, missing, err = in.runMCPAction(ctx, tenantID, exec, task)
	case domain.TaskSetVariable:
		out, missing, err = in.runSetVariable(exec, task)
	case domain.TaskHTTPRequest:
		out, missing, err = in.runHTTPRequest(ctx, exec, task)
	default:
		return nil, errs.New(errs.KindConfig, fmt.Sprintf("task type %q cannot appear as a loop/parallel sub-task", task.Type))
	}

	in.warnMissing(ctx, tenantID, exec, task, missing)
	return out, err
}

// warnMissing publishes one notification event per unresolved {{scope.key}}
// reference, per the §4.D contract that a missing reference substitutes
// the empty string but must still surface a warning.
func (in *Interpreter) warnMissing(ctx context.Context, tenantID string, exec *domain.WorkflowExecution, task *domain.WorkflowTask, missing []MissingRef) {
	for _, m := range missing {
		in.publish(ctx, eventbus.Event{
			Type:     eventbus.TypeNotificationInfo,
			TenantID: tenantID,
			Data: map[string]any{
				"execution_id": exec.ID,
				"task_order":   task.Order,
				"warning":      "unresolved variable reference",
				"scope":        m.Scope,
				"key":          m.Key,
			},
		})
	}
}

func toMissing(refs []expr.MissingRef) []MissingRef {
	out := make([]MissingRef, len(refs))
	for i, r := range refs {
		out[i] = MissingRef{Scope: r.Scope, Key: r.Key}
	}
	return out
}

func toStringSlice(v any) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
