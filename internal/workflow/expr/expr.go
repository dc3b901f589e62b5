// Package expr implements the restricted boolean expression grammar used by
// workflow condition tasks: literals (string, number, bool, null),
// {{scope.key}} placeholders, comparisons (== != < <= > >=), boolean
// connectives (and or not), and the string operators contains/startswith/
// endswith. There is no eval, no function calls, and no attribute access —
// anything outside this grammar is rejected at parse time.
package expr

import "fmt"

// Value is a resolved placeholder or literal: one of nil, bool, float64, or
// string.
type Value any

// Resolver looks up a {{scope.key}} placeholder's current value. scope is
// one of "input", "prev", "vars", or "step" (with key further qualifying a
// step order for "step.<order>"). ok is false for an unresolved reference.
type Resolver interface {
	Resolve(scope, key string) (Value, bool)
}

// Expr is a parsed condition, ready to evaluate against any Resolver.
type Expr struct {
	root node
}

// Parse compiles source into an Expr, rejecting anything outside the
// grammar with a descriptive error.
func Parse(source string) (*Expr, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, fmt.Errorf("lex condition expression: %w", err)
	}
	p := &parser{tokens: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("parse condition expression: %w", err)
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("parse condition expression: unexpected trailing token %q", p.peek().text)
	}
	return &Expr{root: *n}, nil
}

// MissingRef is reported by Eval, alongside its boolean result, for every
// placeholder the resolver could not find — callers surface these as
// warnings on the event bus per the interpolation contract.
type MissingRef struct {
	Scope string
	Key   string
}

// Eval resolves every placeholder through resolver and evaluates the
// expression to a bool. Unresolved placeholders evaluate to the empty
// string and are reported in missing.
func (e *Expr) Eval(resolver Resolver) (result bool, missing []MissingRef, err error) {
	ev := &evaluator{resolver: resolver}
	v, err := ev.eval(e.root)
	if err != nil {
		return false, ev.missing, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, ev.missing, fmt.Errorf("condition expression did not evaluate to a boolean, got %T", v)
	}
	return b, ev.missing, nil
}
