package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopapp/api/internal/platform/httpx"
	"github.com/shopapp/api/internal/services"
)

// WebhookHandlers receives payment gateway callbacks. The response status
// drives the gateway's redelivery: 2xx acknowledges, 4xx drops, 5xx retries.
type WebhookHandlers struct {
	reconciler services.ReconcileService
}

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodySize    = 1 << 20
)

// NewWebhookHandlers constructs handlers over the reconcile service.
func NewWebhookHandlers(reconciler services.ReconcileService) *WebhookHandlers {
	return &WebhookHandlers{reconciler: reconciler}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripeWebhook)
}

func (h *WebhookHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "reconciler is unavailable", http.StatusServiceUnavailable))
		return
	}

	// Signature verification needs the exact raw bytes; no JSON decoding
	// happens before the payload is verified.
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return
	}
	if len(payload) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	result, err := h.reconciler.HandleEvent(ctx, payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrReconcileVerification):
			httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "event verification failed", http.StatusBadRequest))
		case errors.Is(err, services.ErrReconcileInvalidEvent):
			httpx.WriteError(ctx, w, httpx.NewError("event_invalid", err.Error(), http.StatusBadRequest))
		default:
			// A 5xx keeps the delivery alive; the gateway retries until the
			// order is durably reconciled.
			httpx.WriteError(ctx, w, httpx.NewError("reconcile_failed", "event could not be processed", http.StatusServiceUnavailable))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"outcome":  string(result.Outcome),
		"order_id": result.OrderID,
	})
}
