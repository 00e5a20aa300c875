package auth

import (
	"net/http"
	"strings"

	"github.com/shopapp/api/internal/platform/httpx"
)

// Header names asserted by the upstream auth proxy. The proxy strips these
// from inbound traffic before forwarding, so their presence is trusted here.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderSessionID = "X-Session-ID"
)

// Middleware resolves the buyer identity from proxy headers and stores it on
// the request context. Requests with neither an account nor a session pass
// through with an empty identity; route guards decide what is required.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := &Identity{
				AccountID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
				Email:     strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
				Name:      strings.TrimSpace(r.Header.Get(HeaderUserName)),
				SessionID: strings.TrimSpace(r.Header.Get(HeaderSessionID)),
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireBuyer rejects requests carrying neither an account nor a session
// identity. Cart routes use this guard.
func RequireBuyer() func(http.Handler) http.Handler {
	return requireIdentity(func(identity *Identity) bool {
		return !identity.CartOwner().IsZero()
	})
}

// RequireAccount rejects requests without an authenticated account. Checkout
// and order-history routes use this guard.
func RequireAccount() func(http.Handler) http.Handler {
	return requireIdentity(func(identity *Identity) bool {
		return identity.IsAuthenticated()
	})
}

func requireIdentity(allowed func(*Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || !allowed(identity) {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
