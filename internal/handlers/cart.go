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
	"github.com/shopapp/api/internal/services"
)

// CartHandlers exposes the buyer-facing cart endpoints. Both anonymous
// sessions and authenticated accounts may own a cart.
type CartHandlers struct {
	carts services.CartService
}

const maxCartBodySize = 4 * 1024

// NewCartHandlers constructs handlers over the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireBuyer())
	r.Get("/", h.getCart)
	r.Post("/items/{productID}", h.addItem)
	r.Patch("/items/{productID}", h.modifyItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Post("/merge", h.mergeCart)
}

type cartLinePayload struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Stock       int64   `json:"stock"`
	Discounted  bool    `json:"discounted"`
	LineTotal   int64   `json:"line_total_minor"`
	Description string  `json:"description,omitempty"`
}

type cartPayload struct {
	Items      []cartLinePayload `json:"items"`
	Length     int64             `json:"length"`
	TotalMinor int64             `json:"total_minor"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

func buildCartPayload(detail services.CartDetail) cartPayload {
	payload := cartPayload{
		Items:      []cartLinePayload{},
		Length:     detail.Cart.Length(),
		TotalMinor: detail.Total,
		UpdatedAt:  formatTime(detail.Cart.UpdatedAt),
	}
	for _, item := range detail.Items {
		unit := domain.MinorUnits(item.Product.EffectivePrice())
		payload.Items = append(payload.Items, cartLinePayload{
			ProductID:   item.Product.ID,
			Name:        item.Product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.Product.EffectivePrice(),
			Stock:       item.Product.Stock,
			Discounted:  item.Product.Discounted,
			LineTotal:   unit * item.Quantity,
			Description: item.Product.Description,
		})
	}
	return payload
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}

	detail, err := h.carts.Get(ctx, owner)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(detail))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))

	cart, err := h.carts.AddItem(ctx, owner, productID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.respondWithCart(ctx, w, cart, http.StatusOK)
}

type modifyItemRequest struct {
	Op string `json:"op"`
}

func (h *CartHandlers) modifyItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	req, err := parseModifyItemRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var direction services.QuantityDirection
	switch req.Op {
	case "increment":
		direction = services.QuantityIncrement
	case "decrement":
		direction = services.QuantityDecrement
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "op must be increment or decrement", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.ModifyItem(ctx, owner, productID, direction)
	if err != nil {
		// Clamp and removed-product corrections are persisted; answer with the
		// corrected cart and a condition code instead of a bare failure.
		if errors.Is(err, services.ErrCartLimitExceeded) || errors.Is(err, services.ErrCartProductRemoved) {
			writeCartCondition(ctx, w, cart, err)
			return
		}
		writeCartError(ctx, w, err)
		return
	}
	h.respondWithCart(ctx, w, cart, http.StatusOK)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireOwner(ctx, w)
	if !ok {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))

	cart, err := h.carts.RemoveItem(ctx, owner, productID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.respondWithCart(ctx, w, cart, http.StatusOK)
}

func (h *CartHandlers) mergeCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	session := identity.SessionOwner()
	if !identity.IsAuthenticated() || session.IsZero() {
		httpx.WriteError(ctx, w, httpx.NewError("merge_requires_both_identities", "merge requires both a session and an account identity", http.StatusBadRequest))
		return
	}
	account := domain.Owner{Kind: domain.OwnerKindAccount, ID: identity.AccountID}

	cart, err := h.carts.Merge(ctx, session, account)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.respondWithCart(ctx, w, cart, http.StatusOK)
}

func (h *CartHandlers) requireOwner(ctx context.Context, w http.ResponseWriter) (domain.Owner, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return domain.Owner{}, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Owner{}, false
	}
	owner := identity.CartOwner()
	if owner.IsZero() {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Owner{}, false
	}
	return owner, true
}

// respondWithCart re-populates the cart so mutation responses carry the same
// shape as GET /cart.
func (h *CartHandlers) respondWithCart(ctx context.Context, w http.ResponseWriter, cart domain.Cart, status int) {
	detail, err := h.carts.Get(ctx, cart.Owner)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, buildCartPayload(detail))
}

func writeCartCondition(ctx context.Context, w http.ResponseWriter, cart domain.Cart, err error) {
	code := "cart_limit_exceeded"
	if errors.Is(err, services.ErrCartProductRemoved) {
		code = "cart_product_removed"
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), http.StatusConflict))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartOutOfStock):
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartLimitExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("cart_limit_exceeded", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartQuantityReduced), errors.Is(err, services.ErrCartProductRemoved):
		httpx.WriteError(ctx, w, httpx.NewError("cart_corrected", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	}
}

func parseModifyItemRequest(data []byte) (modifyItemRequest, error) {
	var req modifyItemRequest
	if err := jsonUnmarshalStrict(data, &req); err != nil {
		return req, err
	}
	req.Op = strings.ToLower(strings.TrimSpace(req.Op))
	return req, nil
}
