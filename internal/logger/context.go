package logger

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

type correlationKey struct{}

// WithCorrelationID returns a copy of ctx carrying the request correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id carried by ctx, if any.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// ForContext tags base with the correlation id of ctx. Detached contexts
// (context.WithoutCancel) keep the id.
func ForContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	id := CorrelationID(ctx)
	if id == "" {
		return base
	}
	return base.With().Str("correlation_id", id).Logger()
}
