package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/platform/pagination"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err categorises as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err categorises as a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err categorises as a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// ProductRepository reads the catalog records the cart and reconciler consult for
// availability and pricing. Stock mutation happens only through the reconcile write.
type ProductRepository interface {
	// FindByID retrieves a single product. Returns a RepositoryError with IsNotFound
	// when the product does not exist.
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// FindByIDs retrieves the listed products in one pass. Missing IDs are simply
	// absent from the result map, not an error.
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// List returns the full catalog ordered by name.
	List(ctx context.Context) ([]domain.Product, error)
}

// CartRepository persists one cart document per owner key.
type CartRepository interface {
	// Get loads the cart for the owner. Returns IsNotFound when the owner has no cart yet.
	Get(ctx context.Context, owner domain.Owner) (domain.Cart, error)
	// Save writes the full line set for the owner, replacing any previous document.
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	// Delete removes the owner's cart document. Deleting an absent cart is a no-op.
	Delete(ctx context.Context, owner domain.Owner) error
}

// StockAdjustment describes one product-level side effect of a reconciled payment.
type StockAdjustment struct {
	ProductID string
	Quantity  int64
}

// ReconcileWrite groups every durable side effect of one payment event so the
// order repository can apply them in a single transaction.
type ReconcileWrite struct {
	Order       domain.Order
	Adjustments []StockAdjustment
	// ClearCart identifies the cart to empty alongside the order write. Zero value skips the clear.
	ClearCart domain.Owner
	Now       time.Time
}

// ReconcileOutcome reports whether the write created a new order or found the
// session already reconciled by an earlier delivery.
type ReconcileOutcome struct {
	Order             domain.Order
	AlreadyReconciled bool
}

// OrderPage is one slice of a buyer's order history plus the cursor token for
// the following slice. An empty NextPageToken marks the last page.
type OrderPage struct {
	Orders        []domain.Order
	NextPageToken string
}

// OrderRepository owns the order records and the correlation keys that make
// webhook reconciliation idempotent.
type OrderRepository interface {
	// CreateReconciled atomically claims the session correlation key, writes the
	// order, applies stock adjustments, clears the buyer cart, and appends the
	// order to the buyer's history. A previously claimed key yields
	// AlreadyReconciled with the existing order instead of an error.
	CreateReconciled(ctx context.Context, write ReconcileWrite) (ReconcileOutcome, error)
	// FindBySession returns the order correlated with the checkout session, if any.
	FindBySession(ctx context.Context, sessionID string) (domain.Order, error)
	// FindByID retrieves a single order.
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ListByBuyer returns one page of the buyer's orders, newest first.
	ListByBuyer(ctx context.Context, buyerID string, page pagination.Params) (OrderPage, error)
	// MarkFulfilled transitions a pending order to fulfilled and records the tracking number.
	MarkFulfilled(ctx context.Context, orderID, trackingNumber string, now time.Time) (domain.Order, error)
	// CountPending reports how many of the buyer's orders are still pending.
	CountPending(ctx context.Context, buyerID string) (int64, error)
}

// BuyerRepository stores the account profile the reconciler annotates with order history.
type BuyerRepository interface {
	Get(ctx context.Context, buyerID string) (domain.Buyer, error)
	Upsert(ctx context.Context, buyer domain.Buyer) (domain.Buyer, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
