package auth

import (
	"context"
	"strings"
)

type userIDContextKey struct{}

// ContextWithUserID records the authenticated identity id for log enrichment.
// Handlers receive the Session itself; this exists for audit and access logs.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext extracts the authenticated identity id from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(userIDContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
