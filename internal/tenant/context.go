package tenant

import (
	"context"
	"strings"
)

type contextKey struct{}

// With stores the tenant slug inside the context.
func With(ctx context.Context, slug string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, strings.ToLower(strings.TrimSpace(slug)))
}

// FromContext extracts the tenant slug from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	slug, ok := ctx.Value(contextKey{}).(string)
	if !ok || slug == "" {
		return "", false
	}
	return slug, true
}

// Scope returns the tenant stored in ctx, or "" for single-tenant deployments.
// Stores pass it verbatim as the tenant_id column value.
func Scope(ctx context.Context) string {
	slug, _ := FromContext(ctx)
	return slug
}

// PrefixKey namespaces a cache, lock or queue key per tenant.
func PrefixKey(slug, key string) string {
	if slug == "" {
		return key
	}
	return slug + ":" + key
}
