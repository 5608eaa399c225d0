package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	userIDKey    ctxKey = "user_id"
	requestIDKey ctxKey = "request_id"
)

// WithUserID stores the acting user ID in the context.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx extracts the acting user ID from the context.
// Returns 0 and false if the value is missing, non-positive, or wrong type.
func UserIDFromCtx(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// EnsureRequestID returns ctx unchanged if it already carries a request ID,
// otherwise stores a fresh random one.
func EnsureRequestID(ctx context.Context) context.Context {
	if RequestIDFromCtx(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, uuid.NewString())
}

// RequestIDFromCtx extracts the request ID from the context.
// Returns an empty string if absent.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
