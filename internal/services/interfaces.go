package services

import (
	"context"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/platform/pagination"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Owner              = domain.Owner
	Cart               = domain.Cart
	CartLine           = domain.CartLine
	Product            = domain.Product
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	Buyer              = domain.Buyer
	PopulatedCartLine  = domain.PopulatedCartLine
	SystemHealthReport = domain.SystemHealthReport
)

// QuantityDirection selects the sign of a single-step cart quantity change.
type QuantityDirection string

const (
	// QuantityIncrement raises the line quantity by one.
	QuantityIncrement QuantityDirection = "increment"
	// QuantityDecrement lowers the line quantity by one.
	QuantityDecrement QuantityDirection = "decrement"
)

// CartDetail pairs the stored cart with current catalog data for presentation.
type CartDetail struct {
	Cart  Cart
	Items []PopulatedCartLine
	// Total is the sum of effective unit prices times quantities, in minor units.
	Total int64
}

// CartService manages the mutable purchase list and its stock-validation protocol.
type CartService interface {
	// Get loads the cart with populated product data. An absent cart reads as empty.
	Get(ctx context.Context, owner Owner) (CartDetail, error)
	// AddItem inserts a product at quantity 1 or increments an existing line.
	AddItem(ctx context.Context, owner Owner, productID string) (Cart, error)
	// ModifyItem applies a single-step quantity change to an existing line.
	ModifyItem(ctx context.Context, owner Owner, productID string, direction QuantityDirection) (Cart, error)
	// RemoveItem deletes the product's line. Removing an absent line is a no-op.
	RemoveItem(ctx context.Context, owner Owner, productID string) (Cart, error)
	// Validate re-reads stock for every line, corrects the cart in one pass,
	// persists the corrected cart, and reports every correction made.
	Validate(ctx context.Context, owner Owner) (Cart, error)
	// Length returns the total unit count. An absent cart reads as zero.
	Length(ctx context.Context, owner Owner) (int64, error)
	// Merge folds the source cart into the destination cart, summing quantities,
	// then deletes the source. Used when an anonymous visitor authenticates.
	Merge(ctx context.Context, from, into Owner) (Cart, error)
	// Clear deletes the owner's cart.
	Clear(ctx context.Context, owner Owner) error
}

// CatalogService exposes read-only views of the product catalog. Catalog
// mutation is an administrative concern handled outside this service.
type CatalogService interface {
	// ListProducts returns the full catalog ordered by name.
	ListProducts(ctx context.Context) ([]Product, error)
}

// CheckoutRedirect is the gateway handoff returned to the client.
type CheckoutRedirect struct {
	SessionID   string
	RedirectURL string
}

// CreateCheckoutSessionCommand carries the authenticated buyer starting checkout.
type CreateCheckoutSessionCommand struct {
	Owner   Owner
	BuyerID string
	Email   string
}

// CheckoutService turns a validated cart into a gateway-hosted checkout session.
type CheckoutService interface {
	CreateSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutRedirect, error)
}

// ReconcileOutcomeKind classifies how the reconciler disposed of a webhook delivery.
type ReconcileOutcomeKind string

const (
	// ReconcileOutcomeReconciled marks a first delivery that created the order.
	ReconcileOutcomeReconciled ReconcileOutcomeKind = "reconciled"
	// ReconcileOutcomeDuplicate marks a redelivery of an already reconciled session.
	ReconcileOutcomeDuplicate ReconcileOutcomeKind = "duplicate"
	// ReconcileOutcomeIgnored marks an event type the reconciler does not act on.
	ReconcileOutcomeIgnored ReconcileOutcomeKind = "ignored"
)

// ReconcileResult reports the disposition of one webhook delivery.
type ReconcileResult struct {
	Outcome ReconcileOutcomeKind
	OrderID string
}

// ReconcileService converts verified payment events into durable orders, exactly once.
type ReconcileService interface {
	HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (ReconcileResult, error)
}

// FulfilOrderCommand records the shipment of a pending order.
type FulfilOrderCommand struct {
	OrderID        string
	TrackingNumber string
}

// OrderList is one page of a buyer's order history. An empty NextPageToken
// marks the final page.
type OrderList struct {
	Orders        []Order
	NextPageToken string
}

// OrderService exposes order reads and the single pending-to-fulfilled transition.
type OrderService interface {
	ListForBuyer(ctx context.Context, buyerID string, page pagination.Params) (OrderList, error)
	GetForBuyer(ctx context.Context, buyerID, orderID string) (Order, error)
	Fulfil(ctx context.Context, cmd FulfilOrderCommand) (Order, error)
	// HasPendingOrders guards account deletion: an account with pending orders
	// must not be removed.
	HasPendingOrders(ctx context.Context, buyerID string) (bool, error)
}

// OrderConfirmationCommand carries everything needed to notify a buyer of a new order.
type OrderConfirmationCommand struct {
	Email        string
	Name         string
	Order        Order
	ProductNames map[string]string
}

// OrderNotifier dispatches order confirmations. Implementations are fire-and-forget
// from the reconciler's point of view; failures are logged, never propagated.
type OrderNotifier interface {
	SendOrderConfirmation(ctx context.Context, cmd OrderConfirmationCommand) error
}

// SystemService provides health reports for liveness and readiness probes.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
