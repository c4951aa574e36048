package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyOwner     contextKey = "owner"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithOwner adds the calling account reference to the context
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ContextKeyOwner, owner)
}

// OwnerFromContext extracts the calling account reference from context
func OwnerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(ContextKeyOwner).(string); ok {
		return owner
	}
	return ""
}

// ResolveOwner picks the account owning a request: the explicit reference when
// present, otherwise the shared anonymous owner if the policy allows it.
func ResolveOwner(explicit string, accounts AccountsConfig) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if accounts.AllowAnonymous && accounts.AnonymousOwner != "" {
		return accounts.AnonymousOwner, nil
	}
	return "", NewAppError(CodeUnauthorized, "account reference is required", ErrUnauthorized)
}
