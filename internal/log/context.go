package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	sessionIDKey ctxKey = "session_id"
	intentIDKey  ctxKey = "intent_id"
	cycleIDKey   ctxKey = "cycle_id"
)

// ContextWithSessionID stores the provided game session ID in the context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// ContextWithIntentID stores the provided reward intent ID in the context.
func ContextWithIntentID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, intentIDKey, id)
}

// ContextWithCycleID stores the provided reconcile cycle ID in the context.
func ContextWithCycleID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cycleIDKey, id)
}

// SessionIDFromContext extracts the session ID from context if present.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// IntentIDFromContext extracts the intent ID from context if present.
func IntentIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(intentIDKey).(string); ok {
		return v
	}
	return ""
}

// CycleIDFromContext extracts the reconcile cycle ID from context if present.
func CycleIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(cycleIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger from the context, or the base logger if not present.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		b := Base()
		return &b
	}
	return l
}

// WithComponentFromContext returns a logger that is annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	c := FromContext(ctx).With().Str(FieldComponent, component)
	if id := SessionIDFromContext(ctx); id != "" {
		c = c.Str(FieldSessionID, id)
	}
	if id := IntentIDFromContext(ctx); id != "" {
		c = c.Str(FieldIntentID, id)
	}
	if id := CycleIDFromContext(ctx); id != "" {
		c = c.Str(FieldCycleID, id)
	}
	return c.Logger()
}
