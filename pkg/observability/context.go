package observability

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDKey is the log attribute key for the per-request ID.
const RequestIDKey = "request_id"

type contextKey string

const requestIDContextKey contextKey = "request_id"

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext extracts the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// NewRequestID generates a fresh request ID.
func NewRequestID() string {
	return uuid.NewString()
}
