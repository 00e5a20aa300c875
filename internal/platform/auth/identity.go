package auth

import (
	"context"
	"strings"

	"github.com/shopapp/api/internal/domain"
)

// Identity captures the buyer principal resolved for one request. Account
// fields are populated from headers asserted by the upstream auth proxy;
// SessionID identifies anonymous visitors.
type Identity struct {
	AccountID string
	Email     string
	Name      string
	SessionID string
}

// IsAuthenticated reports whether an account identity is present.
func (i *Identity) IsAuthenticated() bool {
	return i != nil && strings.TrimSpace(i.AccountID) != ""
}

// CartOwner resolves the cart owner for this identity, preferring the account
// over the anonymous session.
func (i *Identity) CartOwner() domain.Owner {
	if i == nil {
		return domain.Owner{}
	}
	if i.IsAuthenticated() {
		return domain.Owner{Kind: domain.OwnerKindAccount, ID: strings.TrimSpace(i.AccountID)}
	}
	if sess := strings.TrimSpace(i.SessionID); sess != "" {
		return domain.Owner{Kind: domain.OwnerKindSession, ID: sess}
	}
	return domain.Owner{}
}

// SessionOwner returns the anonymous-session owner even when the request also
// carries an account, used when merging carts after login.
func (i *Identity) SessionOwner() domain.Owner {
	if i == nil {
		return domain.Owner{}
	}
	if sess := strings.TrimSpace(i.SessionID); sess != "" {
		return domain.Owner{Kind: domain.OwnerKindSession, ID: sess}
	}
	return domain.Owner{}
}

type identityContextKey struct{}

// WithIdentity stores the identity on the request context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity placed by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
