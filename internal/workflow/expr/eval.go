package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type evaluator struct {
	resolver Resolver
	missing  []MissingRef
}

func (e *evaluator) eval(n node) (Value, error) {
	switch n.kind {
	case nodeLiteral:
		return n.literal, nil
	case nodePlaceholder:
		v, ok := e.resolver.Resolve(n.scope, n.key)
		if !ok {
			e.missing = append(e.missing, MissingRef{Scope: n.scope, Key: n.key})
			return "", nil
		}
		return v, nil
	case nodeNot:
		v, err := e.eval(*n.operand)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	case nodeAnd:
		l, err := e.eval(*n.left)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := e.eval(*n.right)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case nodeOr:
		l, err := e.eval(*n.left)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := e.eval(*n.right)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	case nodeCompare:
		l, err := e.eval(*n.left)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(*n.right)
		if err != nil {
			return nil, err
		}
		return compare(n.op, l, r)
	default:
		return nil, fmt.Errorf("unhandled expression node")
	}
}

func truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

func compare(op string, l, r Value) (Value, error) {
	switch op {
	case "==":
		return valuesEqual(l, r), nil
	case "!=":
		return !valuesEqual(l, r), nil
	case "<", "<=", ">", ">=":
		lf, lok := asFloat(l)
		rf, rok := asFloat(r)
		if !lok || !rok {
			return nil, fmt.Errorf("operator %q requires numeric operands", op)
		}
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	case "contains":
		ls, ok := asString(l)
		if !ok {
			return nil, fmt.Errorf("contains requires a string left operand")
		}
		rs, _ := asString(r)
		return strings.Contains(ls, rs), nil
	case "startswith":
		ls, ok := asString(l)
		if !ok {
			return nil, fmt.Errorf("startswith requires a string left operand")
		}
		rs, _ := asString(r)
		return strings.HasPrefix(ls, rs), nil
	case "endswith":
		ls, ok := asString(l)
		if !ok {
			return nil, fmt.Errorf("endswith requires a string left operand")
		}
		rs, _ := asString(r)
		return strings.HasSuffix(ls, rs), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

func valuesEqual(l, r Value) bool {
	if lf, lok := asFloat(l); lok {
		if rf, rok := asFloat(r); rok {
			return lf == rf
		}
	}
	ls, _ := asString(l)
	rs, _ := asString(r)
	return ls == rs
}

func asFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asString(v Value) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", true
	default:
		return "", false
	}
}
