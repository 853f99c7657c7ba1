// Package requestctx carries request-scoped identity set by the HTTP auth
// middleware and read by handlers and MCP tools.
package requestctx

import "context"

type contextKey struct{ name string }

var (
	userIDKey        = &contextKey{"user_id"}
	correlationIDKey = &contextKey{"correlation_id"}
)

// SetUserID stores the authenticated user id in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user id, or "" if not set.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// SetCorrelationID stores the run correlation id in the context.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the run correlation id, or "" if not set.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
