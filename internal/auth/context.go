package auth

import "context"

type subjectContextKey struct{}

// WithSubject attaches the authenticated caller to the context.
func WithSubject(ctx context.Context, sub Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, sub)
}

// SubjectFromContext retrieves the authenticated caller from the context.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	sub, ok := ctx.Value(subjectContextKey{}).(Subject)
	return sub, ok
}
