package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/platform/httpx"
	"github.com/shopapp/api/internal/services"
)

// CatalogHandlers exposes the public product listing. No identity is required;
// the storefront renders the catalog before any cart exists.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs handlers over the catalog service.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /products endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
}

type productPayload struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	UnitPrice      float64 `json:"unit_price"`
	UnitPriceMinor int64   `json:"unit_price_minor"`
	Discounted     bool    `json:"discounted"`
	Stock          int64   `json:"stock"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	payload := make([]productPayload, 0, len(products))
	for _, product := range products {
		payload = append(payload, productPayload{
			ProductID:      product.ID,
			Name:           product.Name,
			Description:    product.Description,
			UnitPrice:      product.EffectivePrice(),
			UnitPriceMinor: domain.MinorUnits(product.EffectivePrice()),
			Discounted:     product.Discounted,
			Stock:          product.Stock,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": payload})
}
