package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/workflow/expr"
)

// scope resolves {{scope.key}} references against one execution's state.
// It implements expr.Resolver for condition evaluation and also backs
// plain textual interpolation elsewhere in this package.
//
// scope ∈ {input, vars, prev, step}: input and vars index InputData and
// Variables by key; prev ignores key and returns the most recently
// completed task's raw output; step indexes TaskResults by the referenced
// task's order key (not its ID) — a workflow only ever needs to reach back
// to a specific prior step by its position in the graph, and keying by
// order avoids carrying a second order-to-ID index through the whole
// execution.
type scope struct {
	exec *domain.WorkflowExecution
}

func (s *scope) Resolve(sc, key string) (expr.Value, bool) {
	raw, ok := s.resolveRaw(sc, key)
	if !ok {
		return nil, false
	}
	return toExprValue(raw), true
}

func (s *scope) resolveRaw(sc, key string) (any, bool) {
	switch sc {
	case "input":
		v, ok := s.exec.InputData[key]
		return v, ok
	case "vars":
		v, ok := s.exec.Variables[key]
		return v, ok
	case "prev":
		return s.prevOutput()
	case "step":
		res, ok := s.exec.TaskResults[key]
		if !ok {
			return nil, false
		}
		return res.Output, true
	default:
		return nil, false
	}
}

func (s *scope) prevOutput() (any, bool) {
	if len(s.exec.TasksCompleted) == 0 {
		return nil, false
	}
	last := s.exec.TasksCompleted[len(s.exec.TasksCompleted)-1]
	res, ok := s.exec.TaskResults[last]
	if !ok {
		return nil, false
	}
	return res.Output, true
}

// toExprValue narrows an arbitrary stored value down to the four shapes
// expr.Value allows, JSON-encoding anything richer (an object or array
// output) to a string so comparisons against it still behave predictably.
func toExprValue(v any) expr.Value {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case string:
		return t
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
