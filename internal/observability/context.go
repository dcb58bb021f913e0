package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	requesterIDKey contextKey = "requester_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithRequesterID records the authenticated requester on the context.
func WithRequesterID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, requesterIDKey, userID)
}

// RequesterIDFromContext returns the requester id and whether one was set.
func RequesterIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(requesterIDKey).(int64)
	return id, ok
}
