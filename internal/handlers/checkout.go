package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopapp/api/internal/payments"
	"github.com/shopapp/api/internal/platform/auth"
	"github.com/shopapp/api/internal/platform/httpx"
	"github.com/shopapp/api/internal/services"
)

// CheckoutHandlers exposes checkout-session creation and the success-page
// session lookup. Checkout requires an authenticated account.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	gateway  payments.Provider
}

// NewCheckoutHandlers constructs handlers over the checkout service and gateway.
func NewCheckoutHandlers(checkout services.CheckoutService, gateway payments.Provider) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout, gateway: gateway}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireAccount())
	r.Post("/session", h.createSession)
	r.Get("/session/{sessionID}", h.getSession)
}

type checkoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireAccount(ctx, w)
	if !ok {
		return
	}

	redirect, err := h.checkout.CreateSession(ctx, services.CreateCheckoutSessionCommand{
		Owner:   identity.CartOwner(),
		BuyerID: identity.AccountID,
		Email:   identity.Email,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutSessionResponse{
		SessionID:   redirect.SessionID,
		RedirectURL: redirect.RedirectURL,
	})
}

func (h *CheckoutHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireAccount(ctx, w)
	if !ok {
		return
	}
	if h.gateway == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "payment gateway is unavailable", http.StatusServiceUnavailable))
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session id is required", http.StatusBadRequest))
		return
	}

	session, err := h.gateway.LookupSession(ctx, sessionID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found", http.StatusNotFound))
		return
	}
	// A session started by another buyer reads as absent.
	if buyer := strings.TrimSpace(session.Metadata["buyerId"]); buyer != "" && buyer != identity.AccountID {
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"session_id":   session.ID,
		"redirect_url": session.RedirectURL,
		"status":       session.Status,
		"expires_at":   formatTime(session.ExpiresAt),
	})
}

func (h *CheckoutHandlers) requireAccount(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || !identity.IsAuthenticated() {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutCartInvalid):
		// The corrected cart is already persisted; the storefront re-renders it.
		httpx.WriteError(ctx, w, httpx.NewError("cart_corrected", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutGateway):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", err.Error(), http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	}
}
