package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/payments"
	"github.com/shopapp/api/internal/repositories"
)

var (
	errReconcileProviderRequired = errors.New("reconcile service: payment provider is required")
	errReconcileOrdersRequired   = errors.New("reconcile service: order repository is required")
	errReconcileBuyersRequired   = errors.New("reconcile service: buyer repository is required")
	errReconcileProductsRequired = errors.New("reconcile service: product repository is required")
	errReconcileClockRequired    = errors.New("reconcile service: clock is required")
)

// ErrReconcileVerification indicates the webhook signature or payload failed
// verification. Handlers must answer with a client error so the gateway does
// not retry a forged or malformed delivery.
var ErrReconcileVerification = errors.New("reconcile service: event verification failed")

// ErrReconcileInvalidEvent indicates a verified event is missing the data the
// reconciler needs to build an order.
var ErrReconcileInvalidEvent = errors.New("reconcile service: invalid event")

// ErrReconcileUnavailable indicates persistence failed. Handlers must answer
// with a server error so the gateway redelivers the event.
var ErrReconcileUnavailable = errors.New("reconcile service: unavailable")

// ReconcileServiceDeps wires the collaborators that turn payment events into orders.
type ReconcileServiceDeps struct {
	Provider payments.Provider
	Orders   repositories.OrderRepository
	Buyers   repositories.BuyerRepository
	Products repositories.ProductRepository
	// Notifier may be nil; confirmations are then skipped.
	Notifier OrderNotifier
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type reconcileService struct {
	provider payments.Provider
	orders   repositories.OrderRepository
	buyers   repositories.BuyerRepository
	products repositories.ProductRepository
	notifier OrderNotifier
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewReconcileService constructs a ReconcileService enforcing dependency validation.
func NewReconcileService(deps ReconcileServiceDeps) (ReconcileService, error) {
	if deps.Provider == nil {
		return nil, errReconcileProviderRequired
	}
	if deps.Orders == nil {
		return nil, errReconcileOrdersRequired
	}
	if deps.Buyers == nil {
		return nil, errReconcileBuyersRequired
	}
	if deps.Products == nil {
		return nil, errReconcileProductsRequired
	}
	if deps.Clock == nil {
		return nil, errReconcileClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reconcileService{
		provider: deps.Provider,
		orders:   deps.Orders,
		buyers:   deps.Buyers,
		products: deps.Products,
		notifier: deps.Notifier,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *reconcileService) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (ReconcileResult, error) {
	if s == nil || s.orders == nil {
		return ReconcileResult{}, ErrReconcileUnavailable
	}

	event, err := s.provider.VerifyEvent(payload, signatureHeader)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("%w: %v", ErrReconcileVerification, err)
	}
	if event.CheckoutCompleted == nil {
		s.logger(ctx, "reconcile.event.ignored", map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
		})
		return ReconcileResult{Outcome: ReconcileOutcomeIgnored}, nil
	}

	completed := event.CheckoutCompleted
	if completed.SessionID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: missing session id", ErrReconcileInvalidEvent)
	}

	// Cheap duplicate check before any gateway round trip. The transaction
	// below still decides authoritatively; this only short-circuits the
	// common redelivery case.
	existing, err := s.orders.FindBySession(ctx, completed.SessionID)
	if err == nil {
		s.logger(ctx, "reconcile.event.duplicate", map[string]any{
			"event_id":   event.ID,
			"session_id": completed.SessionID,
			"order_id":   existing.ID,
		})
		return ReconcileResult{Outcome: ReconcileOutcomeDuplicate, OrderID: existing.ID}, nil
	}
	if !repositories.IsNotFound(err) {
		return ReconcileResult{}, fmt.Errorf("%w: %v", ErrReconcileUnavailable, err)
	}

	eventLines, err := s.provider.ListLineItems(ctx, completed.SessionID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("%w: %v", ErrReconcileUnavailable, err)
	}
	if len(eventLines) == 0 {
		return ReconcileResult{}, fmt.Errorf("%w: session %s has no line items", ErrReconcileInvalidEvent, completed.SessionID)
	}

	now := s.now()
	order := s.buildOrder(completed, eventLines, now)

	write := repositories.ReconcileWrite{
		Order: order,
		Now:   now,
	}
	for _, line := range order.Lines {
		write.Adjustments = append(write.Adjustments, repositories.StockAdjustment{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	if order.BuyerID != "" {
		write.ClearCart = domain.Owner{Kind: domain.OwnerKindAccount, ID: order.BuyerID}
		// A first-time buyer has no profile document yet; without one the
		// transactional history append and the confirmation mail both skip.
		s.ensureBuyerProfile(ctx, order.BuyerID, completed)
	}

	outcome, err := s.orders.CreateReconciled(ctx, write)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("%w: %v", ErrReconcileUnavailable, err)
	}
	if outcome.AlreadyReconciled {
		s.logger(ctx, "reconcile.event.duplicate", map[string]any{
			"event_id":   event.ID,
			"session_id": completed.SessionID,
			"order_id":   outcome.Order.ID,
		})
		return ReconcileResult{Outcome: ReconcileOutcomeDuplicate, OrderID: outcome.Order.ID}, nil
	}

	s.logger(ctx, "reconcile.order.created", map[string]any{
		"event_id":   event.ID,
		"session_id": completed.SessionID,
		"order_id":   outcome.Order.ID,
		"total":      outcome.Order.Total,
	})

	// The order is durable at this point. Notification failures are logged and
	// swallowed so a mail outage cannot force the gateway to redeliver.
	s.notify(ctx, outcome.Order)

	return ReconcileResult{Outcome: ReconcileOutcomeReconciled, OrderID: outcome.Order.ID}, nil
}

func (s *reconcileService) buildOrder(completed *payments.CheckoutCompleted, lines []payments.EventLineItem, now time.Time) domain.Order {
	date := completed.CreatedAt
	if date.IsZero() {
		date = now
	}

	order := domain.Order{
		ID:           ulid.Make().String(),
		BuyerID:      completed.Metadata["buyerId"],
		Date:         date,
		Total:        completed.AmountTotal,
		Currency:     completed.Currency,
		ShippingName: completed.ShippingName,
		ShippingAddress: domain.OrderAddress{
			City:       completed.ShippingAddress.City,
			Country:    completed.ShippingAddress.Country,
			Line1:      completed.ShippingAddress.Line1,
			Line2:      completed.ShippingAddress.Line2,
			PostalCode: completed.ShippingAddress.PostalCode,
		},
		PaymentReference: completed.PaymentReference,
		SessionID:        completed.SessionID,
		Status:           domain.OrderStatusPending,
	}
	for _, line := range lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	return order
}

// ensureBuyerProfile creates the buyer document on a first purchase, seeded
// from the gateway-confirmed customer details. Existing profiles are left
// untouched and failures never block the order write.
func (s *reconcileService) ensureBuyerProfile(ctx context.Context, buyerID string, completed *payments.CheckoutCompleted) {
	_, err := s.buyers.Get(ctx, buyerID)
	if err == nil {
		return
	}
	if !repositories.IsNotFound(err) {
		s.logger(ctx, "reconcile.buyer.read_failed", map[string]any{
			"buyer_id": buyerID,
			"error":    err.Error(),
		})
		return
	}
	if _, err := s.buyers.Upsert(ctx, domain.Buyer{
		ID:    buyerID,
		Email: completed.CustomerEmail,
		Name:  completed.CustomerName,
	}); err != nil {
		s.logger(ctx, "reconcile.buyer.upsert_failed", map[string]any{
			"buyer_id": buyerID,
			"error":    err.Error(),
		})
	}
}

func (s *reconcileService) notify(ctx context.Context, order domain.Order) {
	if s.notifier == nil || order.BuyerID == "" {
		return
	}

	buyer, err := s.buyers.Get(ctx, order.BuyerID)
	if err != nil {
		s.logger(ctx, "reconcile.notify.skipped", map[string]any{
			"order_id": order.ID,
			"buyer_id": order.BuyerID,
			"error":    err.Error(),
		})
		return
	}
	if buyer.Email == "" {
		return
	}

	names := map[string]string{}
	ids := make([]string, 0, len(order.Lines))
	for _, line := range order.Lines {
		ids = append(ids, line.ProductID)
	}
	if products, err := s.products.FindByIDs(ctx, ids); err == nil {
		for id, product := range products {
			names[id] = product.Name
		}
	}

	if err := s.notifier.SendOrderConfirmation(ctx, OrderConfirmationCommand{
		Email:        buyer.Email,
		Name:         buyer.Name,
		Order:        order,
		ProductNames: names,
	}); err != nil {
		s.logger(ctx, "reconcile.notify.failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
}
