package middleware

import "context"

type ctxKey int

const (
	traceIDKey ctxKey = iota
	subjectKey
	roleKey
)

// WithTraceID returns ctx carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID returns the request trace id, or "".
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// Subject returns the authenticated token subject, or "".
func Subject(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey).(string)
	return v
}

// Role returns the authenticated role, or "".
func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}
