package services

import (
	"context"
	"errors"

	"github.com/shopapp/api/internal/repositories"
)

var errCatalogProductsRequired = errors.New("catalog service: product repository is required")

// ErrCatalogUnavailable indicates the catalog backend failed.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// CatalogServiceDeps wires the collaborators for catalog reads.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
	Logger   func(context.Context, string, map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errCatalogProductsRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		logger:   logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context) ([]Product, error) {
	if s == nil || s.products == nil {
		return nil, ErrCatalogUnavailable
	}

	products, err := s.products.List(ctx)
	if err != nil {
		s.logger(ctx, "catalog.list.failed", map[string]any{"error": err.Error()})
		return nil, ErrCatalogUnavailable
	}
	return products, nil
}
