package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/payments"
	"github.com/shopapp/api/internal/platform/textutil"
	"github.com/shopapp/api/internal/repositories"
)

var (
	errCheckoutCartServiceRequired = errors.New("checkout service: cart service is required")
	errCheckoutProductsRequired    = errors.New("checkout service: product repository is required")
	errCheckoutProviderRequired    = errors.New("checkout service: payment provider is required")
	errCheckoutClockRequired       = errors.New("checkout service: clock is required")
	errCheckoutURLsRequired        = errors.New("checkout service: success and cancel URLs are required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutEmptyCart indicates checkout was attempted with no purchasable lines.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// ErrCheckoutCartInvalid indicates validation corrected the cart; the buyer must
// review the updated cart before retrying checkout.
var ErrCheckoutCartInvalid = errors.New("checkout service: cart required corrections")

// ErrCheckoutGateway indicates the payment gateway rejected or failed the session request.
var ErrCheckoutGateway = errors.New("checkout service: payment gateway failure")

// ErrCheckoutUnavailable indicates a backend dependency failed.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// CheckoutServiceDeps wires the collaborators for creating gateway sessions.
type CheckoutServiceDeps struct {
	Carts      CartService
	Products   repositories.ProductRepository
	Provider   payments.Provider
	Clock      func() time.Time
	SuccessURL string
	CancelURL  string
	// Currency is the lowercase ISO 4217 code every session is priced in.
	Currency string
	Logger   func(context.Context, string, map[string]any)
}

type checkoutService struct {
	carts      CartService
	products   repositories.ProductRepository
	provider   payments.Provider
	now        func() time.Time
	successURL string
	cancelURL  string
	currency   string
	logger     func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartServiceRequired
	}
	if deps.Products == nil {
		return nil, errCheckoutProductsRequired
	}
	if deps.Provider == nil {
		return nil, errCheckoutProviderRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}
	if strings.TrimSpace(deps.SuccessURL) == "" || strings.TrimSpace(deps.CancelURL) == "" {
		return nil, errCheckoutURLsRequired
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "gbp"
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:      deps.Carts,
		products:   deps.Products,
		provider:   deps.Provider,
		now:        func() time.Time { return deps.Clock().UTC() },
		successURL: successURLWithSession(deps.SuccessURL),
		cancelURL:  deps.CancelURL,
		currency:   currency,
		logger:     logger,
	}, nil
}

func (s *checkoutService) CreateSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutRedirect, error) {
	if s == nil || s.provider == nil {
		return CheckoutRedirect{}, ErrCheckoutUnavailable
	}
	if cmd.Owner.IsZero() || strings.TrimSpace(cmd.BuyerID) == "" {
		return CheckoutRedirect{}, ErrCheckoutInvalidInput
	}

	// Stock is re-read at the gate; a cart that needed corrections goes back to
	// the buyer instead of into a session priced off stale lines.
	cart, err := s.carts.Validate(ctx, cmd.Owner)
	if err != nil {
		if errors.Is(err, ErrCartQuantityReduced) || errors.Is(err, ErrCartProductRemoved) {
			return CheckoutRedirect{}, fmt.Errorf("%w: %v", ErrCheckoutCartInvalid, err)
		}
		return CheckoutRedirect{}, ErrCheckoutUnavailable
	}
	if len(cart.Lines) == 0 {
		return CheckoutRedirect{}, ErrCheckoutEmptyCart
	}

	ids := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return CheckoutRedirect{}, ErrCheckoutUnavailable
	}

	items := make([]payments.CheckoutLineItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			// Validate just confirmed the line; losing the product between the
			// two reads is a race the buyer resolves by retrying.
			return CheckoutRedirect{}, fmt.Errorf("%w: %s", ErrCheckoutCartInvalid, line.ProductID)
		}
		items = append(items, payments.CheckoutLineItem{
			ProductID:   product.ID,
			Name:        product.Name,
			Description: product.Description,
			Quantity:    line.Quantity,
			UnitAmount:  domain.MinorUnits(product.EffectivePrice()),
			Currency:    s.currency,
		})
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		Currency:       s.currency,
		CustomerEmail:  cmd.Email,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		Metadata:       textutil.NormalizeStringMap(map[string]string{"buyerId": cmd.BuyerID}),
		IdempotencyKey: sessionFingerprint(cmd.Owner, items),
		Items:          items,
	})
	if err != nil {
		s.logger(ctx, "checkout.session.failed", map[string]any{
			"buyer_id": cmd.BuyerID,
			"error":    err.Error(),
		})
		return CheckoutRedirect{}, fmt.Errorf("%w: %v", ErrCheckoutGateway, err)
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"buyer_id":   cmd.BuyerID,
		"session_id": session.ID,
		"lines":      len(items),
	})
	return CheckoutRedirect{SessionID: session.ID, RedirectURL: session.RedirectURL}, nil
}

// sessionIDPlaceholder is substituted by the gateway with the real session id
// when it redirects the buyer, so the success page can look its session up.
const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

func successURLWithSession(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, sessionIDPlaceholder) {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "session_id=" + sessionIDPlaceholder
}

// sessionFingerprint derives a stable idempotency key from the owner and the
// priced line set, so retries of an unchanged cart reuse the gateway session.
func sessionFingerprint(owner domain.Owner, items []payments.CheckoutLineItem) string {
	parts := make([]string, 0, len(items)+1)
	parts = append(parts, owner.Key())
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s:%d:%d:%s", item.ProductID, item.Quantity, item.UnitAmount, item.Currency))
	}
	sort.Strings(parts[1:])
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
