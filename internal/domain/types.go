package domain

import (
	"math"
	"time"
)

// OwnerKind distinguishes session-bound anonymous carts from account carts.
type OwnerKind string

const (
	// OwnerKindSession marks a cart owned by an anonymous browser session.
	OwnerKindSession OwnerKind = "session"
	// OwnerKindAccount marks a cart owned by an authenticated account.
	OwnerKindAccount OwnerKind = "account"
)

// Owner identifies who a cart belongs to.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// Key returns the storage document identifier for the owner's cart.
func (o Owner) Key() string {
	switch o.Kind {
	case OwnerKindAccount:
		return "user_" + o.ID
	case OwnerKindSession:
		return "sess_" + o.ID
	}
	return o.ID
}

// IsZero reports whether the owner carries no identity.
func (o Owner) IsZero() bool {
	return o.ID == ""
}

// CartLine pairs a product reference with the desired quantity.
// A line present in a cart always has Quantity >= 1; zero or negative
// quantities are expressed by removing the line.
type CartLine struct {
	ProductID string
	Quantity  int64
}

// Cart is the mutable prospective purchase list for one owner. At most one
// line exists per product id.
type Cart struct {
	Owner     Owner
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Length returns the total number of units across all lines.
func (c Cart) Length() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// Find returns the index of the line holding productID, or -1.
func (c Cart) Find(productID string) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// Product is the catalog record referenced (not owned) by the cart core.
// Stock is the single source of truth for availability and is never cached
// beyond one validation pass.
type Product struct {
	ID              string
	Name            string
	Description     string
	Price           float64
	Discounted      bool
	DiscountedPrice float64
	Stock           int64
	Sales           int64
}

// EffectivePrice returns the discounted price when the discount flag is set.
func (p Product) EffectivePrice() float64 {
	if p.Discounted {
		return p.DiscountedPrice
	}
	return p.Price
}

// MinorUnits converts a major-unit price to integer minor currency units,
// rounding to the nearest unit to eliminate float multiplication drift.
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// OrderStatus tracks the two-state order lifecycle.
type OrderStatus string

const (
	// OrderStatusPending marks a reconciled order awaiting fulfilment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusFulfilled marks an order shipped with a tracking number.
	OrderStatusFulfilled OrderStatus = "fulfilled"
)

// OrderLine is one purchased product within an order.
type OrderLine struct {
	ProductID string
	Quantity  int64
}

// OrderAddress carries the shipping address confirmed by the payment gateway.
type OrderAddress struct {
	City       string
	Country    string
	Line1      string
	Line2      string
	PostalCode string
}

// Order is the durable record of a completed purchase. It is created only by
// webhook reconciliation and immutable afterwards except for the
// pending -> fulfilled transition.
type Order struct {
	ID               string
	BuyerID          string
	Lines            []OrderLine
	Date             time.Time
	Total            int64
	Currency         string
	ShippingName     string
	ShippingAddress  OrderAddress
	PaymentReference string
	SessionID        string
	Status           OrderStatus
	TrackingNumber   string
}

// Buyer holds the account-side order history the reconciler appends to.
type Buyer struct {
	ID       string
	Email    string
	Name     string
	OrderIDs []string
}

// PopulatedCartLine joins a cart line with its current product record for
// presentation.
type PopulatedCartLine struct {
	Product  Product
	Quantity int64
}
