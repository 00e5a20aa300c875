package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartProductNotFound indicates the referenced product does not exist in the catalog.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrCartItemNotFound indicates the cart holds no line for the referenced product.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartOutOfStock indicates the product has no stock left to add.
var ErrCartOutOfStock = errors.New("cart service: out of stock")

// ErrCartLimitExceeded indicates the requested quantity exceeds current stock.
// When returned from ModifyItem or Validate the cart has been persisted with
// the quantity clamped to stock; the condition is reported, not fatal.
var ErrCartLimitExceeded = errors.New("cart service: quantity limit exceeded")

// ErrCartQuantityReduced indicates Validate clamped a line to current stock.
var ErrCartQuantityReduced = errors.New("cart service: quantity reduced")

// ErrCartProductRemoved indicates Validate dropped a line whose product vanished.
var ErrCartProductRemoved = errors.New("cart service: product removed")

// CartServiceDeps wires the repositories and ambient dependencies for cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	// MaxLineQuantity caps a single line regardless of stock. Zero disables the cap.
	MaxLineQuantity int64
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	maxLine  int64
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return deps.Clock().UTC() },
		maxLine:  deps.MaxLineQuantity,
		logger:   logger,
	}, nil
}

func (s *cartService) Get(ctx context.Context, owner Owner) (CartDetail, error) {
	if s == nil || s.carts == nil {
		return CartDetail{}, ErrCartUnavailable
	}
	if owner.IsZero() {
		return CartDetail{}, ErrCartInvalidInput
	}

	cart, err := s.loadOrEmpty(ctx, owner)
	if err != nil {
		return CartDetail{}, err
	}

	ids := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return CartDetail{}, s.translateRepoError(err)
	}

	detail := CartDetail{Cart: cart}
	for _, line := range cart.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			// Stale line; corrected by Validate before checkout, shown as-is here.
			continue
		}
		detail.Items = append(detail.Items, PopulatedCartLine{Product: product, Quantity: line.Quantity})
		detail.Total += domain.MinorUnits(product.EffectivePrice()) * line.Quantity
	}
	return detail, nil
}

func (s *cartService) AddItem(ctx context.Context, owner Owner, productID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	productID = strings.TrimSpace(productID)
	if owner.IsZero() || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, s.translateRepoError(err)
	}
	if product.Stock <= 0 {
		return Cart{}, ErrCartOutOfStock
	}

	cart, err := s.loadOrEmpty(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	if idx := cart.Find(productID); idx >= 0 {
		next := cart.Lines[idx].Quantity + 1
		if next > s.effectiveLimit(product.Stock) {
			// The cart is left untouched; the caller re-renders it unchanged.
			return cart, ErrCartLimitExceeded
		}
		cart.Lines[idx].Quantity = next
	} else {
		cart.Lines = append(cart.Lines, CartLine{ProductID: productID, Quantity: 1})
	}

	return s.persist(ctx, cart)
}

func (s *cartService) ModifyItem(ctx context.Context, owner Owner, productID string, direction QuantityDirection) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	productID = strings.TrimSpace(productID)
	if owner.IsZero() || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if direction != QuantityIncrement && direction != QuantityDecrement {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.loadOrEmpty(ctx, owner)
	if err != nil {
		return Cart{}, err
	}
	idx := cart.Find(productID)
	if idx < 0 {
		return cart, ErrCartItemNotFound
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			// The product vanished since it was added; drop the line.
			cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
			if cart, err = s.persist(ctx, cart); err != nil {
				return Cart{}, err
			}
			return cart, ErrCartProductRemoved
		}
		return Cart{}, s.translateRepoError(err)
	}

	next := cart.Lines[idx].Quantity
	if direction == QuantityIncrement {
		next++
	} else {
		next--
	}

	clamped := false
	if limit := s.effectiveLimit(product.Stock); next > limit {
		next = limit
		clamped = true
	}

	if next <= 0 {
		cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
	} else {
		cart.Lines[idx].Quantity = next
	}

	cart, err = s.persist(ctx, cart)
	if err != nil {
		return Cart{}, err
	}
	if clamped {
		// Persisted with the clamped value; reported so the caller can surface it.
		return cart, ErrCartLimitExceeded
	}
	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, owner Owner, productID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	productID = strings.TrimSpace(productID)
	if owner.IsZero() || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.loadOrEmpty(ctx, owner)
	if err != nil {
		return Cart{}, err
	}
	if idx := cart.Find(productID); idx >= 0 {
		cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
	}
	// Removing an absent line is a no-op but still persists, keeping the store
	// aligned with the in-memory view.
	return s.persist(ctx, cart)
}

func (s *cartService) Validate(ctx context.Context, owner Owner) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	if owner.IsZero() {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.loadOrEmpty(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	// Every line is corrected in one pass and the result persisted once, so a
	// second Validate with unchanged stock reports nothing.
	var issues []error
	corrected := cart.Lines[:0:0]
	for _, line := range cart.Lines {
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			if repositories.IsNotFound(err) {
				issues = append(issues, fmt.Errorf("%w: %s", ErrCartProductRemoved, line.ProductID))
				continue
			}
			return Cart{}, s.translateRepoError(err)
		}
		limit := s.effectiveLimit(product.Stock)
		if line.Quantity > limit {
			issues = append(issues, fmt.Errorf("%w: %s", ErrCartQuantityReduced, line.ProductID))
			line.Quantity = limit
		}
		if line.Quantity <= 0 {
			continue
		}
		corrected = append(corrected, line)
	}
	cart.Lines = corrected

	cart, err = s.persist(ctx, cart)
	if err != nil {
		return Cart{}, err
	}
	if len(issues) > 0 {
		s.logger(ctx, "cart.validate_corrected", map[string]any{
			"owner":  owner.Key(),
			"issues": len(issues),
		})
		return cart, errors.Join(issues...)
	}
	return cart, nil
}

func (s *cartService) Length(ctx context.Context, owner Owner) (int64, error) {
	if s == nil || s.carts == nil {
		return 0, ErrCartUnavailable
	}
	if owner.IsZero() {
		return 0, ErrCartInvalidInput
	}
	cart, err := s.loadOrEmpty(ctx, owner)
	if err != nil {
		return 0, err
	}
	return cart.Length(), nil
}

func (s *cartService) Merge(ctx context.Context, from, into Owner) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	if from.IsZero() || into.IsZero() || from == into {
		return Cart{}, ErrCartInvalidInput
	}

	source, err := s.loadOrEmpty(ctx, from)
	if err != nil {
		return Cart{}, err
	}
	target, err := s.loadOrEmpty(ctx, into)
	if err != nil {
		return Cart{}, err
	}

	for _, line := range source.Lines {
		if idx := target.Find(line.ProductID); idx >= 0 {
			target.Lines[idx].Quantity += line.Quantity
		} else {
			target.Lines = append(target.Lines, line)
		}
	}

	// Merged quantities may exceed stock; Validate clamps them before checkout.
	target, err = s.persist(ctx, target)
	if err != nil {
		return Cart{}, err
	}
	if err := s.carts.Delete(ctx, from); err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.merged", map[string]any{
		"from": from.Key(),
		"into": into.Key(),
	})
	return target, nil
}

func (s *cartService) Clear(ctx context.Context, owner Owner) error {
	if s == nil || s.carts == nil {
		return ErrCartUnavailable
	}
	if owner.IsZero() {
		return ErrCartInvalidInput
	}
	if err := s.carts.Delete(ctx, owner); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) loadOrEmpty(ctx context.Context, owner Owner) (Cart, error) {
	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Cart{Owner: owner, CreatedAt: s.now()}, nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

func (s *cartService) persist(ctx context.Context, cart Cart) (Cart, error) {
	cart.UpdatedAt = s.now()
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *cartService) effectiveLimit(stock int64) int64 {
	if s.maxLine > 0 && stock > s.maxLine {
		return s.maxLine
	}
	return stock
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrCartProductNotFound
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}
