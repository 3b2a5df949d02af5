package middleware

import (
	"context"

	"github.com/toolyard/marketplace-backend/pkg/types"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// PrincipalFromContext returns the buyer attached by OptionalAuth. The zero Principal is an
// anonymous guest without a device id.
func PrincipalFromContext(ctx context.Context) types.Principal {
	if ctx == nil {
		return types.Principal{}
	}
	if v, ok := ctx.Value(ctxPrincipal).(types.Principal); ok {
		return v
	}
	return types.Principal{}
}

// WithPrincipal injects the principal into the context.
func WithPrincipal(ctx context.Context, principal types.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}
