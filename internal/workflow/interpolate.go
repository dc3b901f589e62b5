package workflow

import "strings"

// MissingRef is one {{scope.key}} placeholder a scope could not resolve.
// Per the interpolation contract the value still substitutes the empty
// string; callers surface these as warning events rather than failing the
// task outright.
type MissingRef struct {
	Scope string
	Key   string
}

// interpolateString replaces every {{scope.key}} placeholder in s with its
// resolved, stringified value. Unresolved placeholders become empty string
// and are reported in the returned slice.
func interpolateString(s string, sc *scope) (string, []MissingRef) {
	var out strings.Builder
	var missing []MissingRef
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		after := rest[start+2:]
		end := strings.Index(after, "}}")
		if end == -1 {
			out.WriteString(rest[start:])
			break
		}
		placeholder := strings.TrimSpace(after[:end])
		ps, key := splitScopeKey(placeholder)
		raw, ok := sc.resolveRaw(ps, key)
		if !ok {
			missing = append(missing, MissingRef{Scope: ps, Key: key})
		} else {
			out.WriteString(stringifyValue(raw))
		}
		rest = after[end+2:]
	}
	return out.String(), missing
}

// interpolateExact resolves s to a raw, typed value when s is (after
// trimming) exactly one placeholder and nothing else — used wherever a
// task needs the underlying value rather than a stringified rendering
// (loop.iterate_over, set_variable.value). Anything else falls back to
// ordinary textual interpolation and returns a string.
func interpolateExact(s string, sc *scope) (any, bool, []MissingRef) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Count(trimmed, "{{") == 1 {
		placeholder := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		ps, key := splitScopeKey(placeholder)
		raw, ok := sc.resolveRaw(ps, key)
		if !ok {
			return nil, false, []MissingRef{{Scope: ps, Key: key}}
		}
		return raw, true, nil
	}
	out, missing := interpolateString(s, sc)
	return out, true, missing
}

func splitScopeKey(placeholder string) (string, string) {
	idx := strings.Index(placeholder, ".")
	if idx == -1 {
		return placeholder, ""
	}
	return placeholder[:idx], placeholder[idx+1:]
}

// interpolateParams walks a tool/http parameter tree, interpolating every
// string leaf. Non-string leaves (numbers, bools, nested structures with
// no placeholders) pass through unchanged.
func interpolateParams(m map[string]any, sc *scope) (map[string]any, []MissingRef) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	var missing []MissingRef
	for k, v := range m {
		rv, miss := interpolateAny(v, sc)
		out[k] = rv
		missing = append(missing, miss...)
	}
	return out, missing
}

func interpolateAny(v any, sc *scope) (any, []MissingRef) {
	switch t := v.(type) {
	case string:
		raw, _, missing := interpolateExact(t, sc)
		return raw, missing
	case map[string]any:
		return interpolateParams(t, sc)
	case []any:
		out := make([]any, len(t))
		var missing []MissingRef
		for i, e := range t {
			rv, miss := interpolateAny(e, sc)
			out[i] = rv
			missing = append(missing, miss...)
		}
		return out, missing
	default:
		return v, nil
	}
}
