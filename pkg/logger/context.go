package logger

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

// Context keys for request-scoped identity and tracing metadata.
const (
	UserIDKey  contextKey = "user_id"
	RoleKey    contextKey = "role"
	TraceIDKey contextKey = "trace_id"
)

// NewTraceID generates a fresh trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context, if any.
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// WithUserID stores the authenticated user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the authenticated user ID from the context, if any.
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// WithRole stores the authenticated role in the context.
func WithRole(ctx context.Context, role string) context.Context {
	if role == "" {
		return ctx
	}
	return context.WithValue(ctx, RoleKey, role)
}

// GetRole returns the authenticated role from the context, if any.
func GetRole(ctx context.Context) string {
	return stringValue(ctx, RoleKey)
}

// WithContext returns an entry enriched with whatever identity and tracing
// fields are present in the context.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Entry
	if v := GetTraceID(ctx); v != "" {
		entry = entry.WithField("trace_id", v)
	}
	if v := GetUserID(ctx); v != "" {
		entry = entry.WithField("user_id", v)
	}
	if v := GetRole(ctx); v != "" {
		entry = entry.WithField("role", v)
	}
	return entry
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
