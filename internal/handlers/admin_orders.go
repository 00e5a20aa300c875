package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopapp/api/internal/platform/httpx"
	"github.com/shopapp/api/internal/services"
)

// AdminOrderHandlers exposes the fulfilment transition and the
// account-deletion guard. Admin access control sits with the upstream proxy;
// these routes trust whatever middleware the router mounts on the group.
type AdminOrderHandlers struct {
	orders services.OrderService
}

const maxFulfilBodySize = 4 * 1024

// NewAdminOrderHandlers constructs the admin-side order handlers.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders}
}

// Routes wires the /admin/orders endpoints onto the provided router.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderID}/fulfill", h.fulfillOrder)
	r.Get("/orders/buyers/{buyerID}/deletable", h.buyerDeletable)
}

type fulfillOrderRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

func (h *AdminOrderHandlers) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxFulfilBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req fulfillOrderRequest
	if err := jsonUnmarshalStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.Fulfil(ctx, services.FulfilOrderCommand{
		OrderID:        strings.TrimSpace(chi.URLParam(r, "orderID")),
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) buyerDeletable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	buyerID := strings.TrimSpace(chi.URLParam(r, "buyerID"))
	pending, err := h.orders.HasPendingOrders(ctx, buyerID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"buyer_id":  buyerID,
		"deletable": !pending,
	})
}
