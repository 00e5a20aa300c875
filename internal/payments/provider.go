package payments

import (
	"context"
	"errors"
	"time"
)

// ErrVerification is returned when an inbound webhook payload fails signature
// verification. Nothing derived from such a payload may be trusted.
var ErrVerification = errors.New("payments: event verification failed")

// CheckoutLineItem describes a single line item to include in a checkout session.
type CheckoutLineItem struct {
	ProductID   string
	Name        string
	Description string
	Quantity    int64
	// UnitAmount is the per-unit price in minor currency units.
	UnitAmount int64
	Currency   string
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// CheckoutSession represents the gateway session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	Status      string
	Metadata    map[string]string
	ExpiresAt   time.Time
}

// Address mirrors the shipping address confirmed by the gateway.
type Address struct {
	City       string
	Country    string
	Line1      string
	Line2      string
	PostalCode string
}

// CheckoutCompleted carries the fields of a completed checkout the reconciler
// consumes. AmountTotal is the gateway-confirmed charge in minor units and is
// authoritative over any locally recomputed total.
type CheckoutCompleted struct {
	SessionID        string
	AmountTotal      int64
	Currency         string
	Metadata         map[string]string
	CustomerEmail    string
	CustomerName     string
	PaymentReference string
	ShippingName     string
	ShippingAddress  Address
	CreatedAt        time.Time
}

// Event is a verified inbound gateway notification. CheckoutCompleted is nil
// for event types the reconciler ignores.
type Event struct {
	ID                string
	Type              string
	CheckoutCompleted *CheckoutCompleted
}

// EventLineItem is one purchased line derived from a checkout session.
type EventLineItem struct {
	ProductID string
	Quantity  int64
}

// Provider defines the contract the checkout and reconciliation services use
// to talk to the payment gateway.
type Provider interface {
	// CreateCheckoutSession creates a gateway-hosted checkout session. Failures
	// propagate unchanged; the caller does not retry.
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// VerifyEvent authenticates the raw webhook payload against the signature
	// header and parses it. Returns ErrVerification (wrapped) on any signature
	// or payload failure.
	VerifyEvent(payload []byte, signatureHeader string) (Event, error)
	// ListLineItems resolves the purchased lines for a checkout session.
	ListLineItems(ctx context.Context, sessionID string) ([]EventLineItem, error)
	// LookupSession retrieves the current state of a checkout session.
	LookupSession(ctx context.Context, sessionID string) (CheckoutSession, error)
}
