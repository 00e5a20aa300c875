package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/platform/auth"
	"github.com/shopapp/api/internal/platform/httpx"
	"github.com/shopapp/api/internal/platform/pagination"
	"github.com/shopapp/api/internal/services"
)

// OrderHandlers exposes the buyer's order history.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs handlers over the order service.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireAccount())
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
}

type orderLinePayload struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	Lines            []orderLinePayload `json:"lines"`
	Date             string             `json:"date"`
	TotalMinor       int64              `json:"total_minor"`
	Currency         string             `json:"currency"`
	Status           string             `json:"status"`
	TrackingNumber   string             `json:"tracking_number,omitempty"`
	ShippingName     string             `json:"shipping_name,omitempty"`
	ShippingCity     string             `json:"shipping_city,omitempty"`
	ShippingCountry  string             `json:"shipping_country,omitempty"`
	PaymentReference string             `json:"payment_reference,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:               order.ID,
		Lines:            []orderLinePayload{},
		Date:             formatTime(order.Date),
		TotalMinor:       order.Total,
		Currency:         order.Currency,
		Status:           string(order.Status),
		TrackingNumber:   order.TrackingNumber,
		ShippingName:     order.ShippingName,
		ShippingCity:     order.ShippingAddress.City,
		ShippingCountry:  order.ShippingAddress.Country,
		PaymentReference: order.PaymentReference,
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	return payload
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireAccount(ctx, w)
	if !ok {
		return
	}

	page, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: pagination.DefaultPageSize,
		MaxPageSize:     pagination.DefaultMaxPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return
	}

	list, err := h.orders.ListForBuyer(ctx, identity.AccountID, page)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payloads := make([]orderPayload, 0, len(list.Orders))
	for _, order := range list.Orders {
		payloads = append(payloads, buildOrderPayload(order))
	}
	body := map[string]any{"orders": payloads}
	if list.NextPageToken != "" {
		body["next_page_token"] = list.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, body)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireAccount(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetForBuyer(ctx, identity.AccountID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) requireAccount(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || !identity.IsAuthenticated() {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotPending):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_pending", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	}
}
