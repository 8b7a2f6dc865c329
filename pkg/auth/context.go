package auth

import (
	"context"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

// NewContext returns ctx carrying p
func NewContext(ctx context.Context, p *Principal) context.Context {
	return contextkeys.WithPrincipal(ctx, p)
}

// FromContext returns the principal stored by NewContext, if any
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	return p, ok && p != nil
}
