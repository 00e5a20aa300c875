package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/payments"
	"github.com/shopapp/api/internal/platform/pagination"
	"github.com/shopapp/api/internal/repositories"
)

type stubOrderRepo struct {
	bySession map[string]domain.Order
	byID      map[string]domain.Order
	writes    []repositories.ReconcileWrite
	createErr error
	findErr   error

	markCalls []string
	markErr   error
	pending   int64
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{
		bySession: map[string]domain.Order{},
		byID:      map[string]domain.Order{},
	}
}

func (r *stubOrderRepo) CreateReconciled(_ context.Context, write repositories.ReconcileWrite) (repositories.ReconcileOutcome, error) {
	if r.createErr != nil {
		return repositories.ReconcileOutcome{}, r.createErr
	}
	if existing, ok := r.bySession[write.Order.SessionID]; ok {
		return repositories.ReconcileOutcome{Order: existing, AlreadyReconciled: true}, nil
	}
	r.writes = append(r.writes, write)
	r.bySession[write.Order.SessionID] = write.Order
	r.byID[write.Order.ID] = write.Order
	return repositories.ReconcileOutcome{Order: write.Order}, nil
}

func (r *stubOrderRepo) FindBySession(_ context.Context, sessionID string) (domain.Order, error) {
	if r.findErr != nil {
		return domain.Order{}, r.findErr
	}
	order, ok := r.bySession[sessionID]
	if !ok {
		return domain.Order{}, &stubRepoError{notFound: true}
	}
	return order, nil
}

func (r *stubOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, &stubRepoError{notFound: true}
	}
	return order, nil
}

func (r *stubOrderRepo) ListByBuyer(_ context.Context, buyerID string, _ pagination.Params) (repositories.OrderPage, error) {
	var page repositories.OrderPage
	for _, order := range r.byID {
		if order.BuyerID == buyerID {
			page.Orders = append(page.Orders, order)
		}
	}
	return page, nil
}

func (r *stubOrderRepo) MarkFulfilled(_ context.Context, orderID, trackingNumber string, _ time.Time) (domain.Order, error) {
	r.markCalls = append(r.markCalls, orderID)
	if r.markErr != nil {
		return domain.Order{}, r.markErr
	}
	order, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "missing", nil)
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidState, "not pending", nil)
	}
	order.Status = domain.OrderStatusFulfilled
	order.TrackingNumber = trackingNumber
	r.byID[orderID] = order
	return order, nil
}

func (r *stubOrderRepo) CountPending(_ context.Context, _ string) (int64, error) {
	return r.pending, nil
}

type stubBuyerRepo struct {
	buyers  map[string]domain.Buyer
	getErr  error
	upserts []domain.Buyer
}

func newStubBuyerRepo(buyers ...domain.Buyer) *stubBuyerRepo {
	repo := &stubBuyerRepo{buyers: map[string]domain.Buyer{}}
	for _, b := range buyers {
		repo.buyers[b.ID] = b
	}
	return repo
}

func (r *stubBuyerRepo) Get(_ context.Context, buyerID string) (domain.Buyer, error) {
	if r.getErr != nil {
		return domain.Buyer{}, r.getErr
	}
	buyer, ok := r.buyers[buyerID]
	if !ok {
		return domain.Buyer{}, &stubRepoError{notFound: true}
	}
	return buyer, nil
}

func (r *stubBuyerRepo) Upsert(_ context.Context, buyer domain.Buyer) (domain.Buyer, error) {
	r.upserts = append(r.upserts, buyer)
	r.buyers[buyer.ID] = buyer
	return buyer, nil
}

type stubNotifier struct {
	sent    []OrderConfirmationCommand
	sendErr error
}

func (n *stubNotifier) SendOrderConfirmation(_ context.Context, cmd OrderConfirmationCommand) error {
	n.sent = append(n.sent, cmd)
	return n.sendErr
}

func completedEvent(sessionID string) payments.Event {
	return payments.Event{
		ID:   "evt_1",
		Type: "checkout.session.completed",
		CheckoutCompleted: &payments.CheckoutCompleted{
			SessionID:        sessionID,
			AmountTotal:      4000,
			Currency:         "gbp",
			Metadata:         map[string]string{"buyerId": "buyer-1"},
			PaymentReference: "pi_1",
			ShippingName:     "Sam Buyer",
			ShippingAddress:  payments.Address{City: "London", Country: "GB", Line1: "1 High St", PostalCode: "E1 6AN"},
			CreatedAt:        time.Date(2024, time.April, 30, 9, 0, 0, 0, time.UTC),
		},
	}
}

func newTestReconcileService(t *testing.T, provider *stubPaymentProvider, orders *stubOrderRepo, buyers *stubBuyerRepo, notifier OrderNotifier) ReconcileService {
	t.Helper()
	svc, err := NewReconcileService(ReconcileServiceDeps{
		Provider: provider,
		Orders:   orders,
		Buyers:   buyers,
		Products: newStubProductRepo(domain.Product{ID: "p1", Name: "Mug"}, domain.Product{ID: "p2", Name: "Tee"}),
		Notifier: notifier,
		Clock:    fixedClock,
	})
	if err != nil {
		t.Fatalf("NewReconcileService returned error: %v", err)
	}
	return svc
}

func TestReconcileServiceCreatesOrderOnce(t *testing.T) {
	provider := &stubPaymentProvider{
		event: completedEvent("cs_1"),
		lineItems: []payments.EventLineItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	}
	orders := newStubOrderRepo()
	buyers := newStubBuyerRepo(domain.Buyer{ID: "buyer-1", Email: "buyer@example.com", Name: "Sam"})
	notifier := &stubNotifier{}
	svc := newTestReconcileService(t, provider, orders, buyers, notifier)

	result, err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if result.Outcome != ReconcileOutcomeReconciled || result.OrderID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(orders.writes) != 1 {
		t.Fatalf("expected one reconcile write, got %d", len(orders.writes))
	}
	write := orders.writes[0]
	if write.Order.Total != 4000 {
		t.Fatalf("total must come from the event, got %d", write.Order.Total)
	}
	if write.Order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %q", write.Order.Status)
	}
	if write.Order.SessionID != "cs_1" || write.Order.PaymentReference != "pi_1" {
		t.Fatalf("unexpected order linkage: %+v", write.Order)
	}
	if len(write.Adjustments) != 2 || write.Adjustments[0].Quantity != 2 {
		t.Fatalf("unexpected stock adjustments: %+v", write.Adjustments)
	}
	if write.ClearCart != (domain.Owner{Kind: domain.OwnerKindAccount, ID: "buyer-1"}) {
		t.Fatalf("expected buyer cart clear, got %+v", write.ClearCart)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one confirmation, got %d", len(notifier.sent))
	}
	if notifier.sent[0].Email != "buyer@example.com" || notifier.sent[0].ProductNames["p1"] != "Mug" {
		t.Fatalf("unexpected confirmation: %+v", notifier.sent[0])
	}

	// Redelivery of the same session must not create a second order or mail.
	result, err = svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("redelivered HandleEvent returned error: %v", err)
	}
	if result.Outcome != ReconcileOutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %+v", result)
	}
	if len(orders.writes) != 1 || len(notifier.sent) != 1 {
		t.Fatalf("redelivery produced side effects: writes=%d mails=%d", len(orders.writes), len(notifier.sent))
	}
}

func TestReconcileServiceCreatesFirstTimeBuyerProfile(t *testing.T) {
	event := completedEvent("cs_4")
	event.CheckoutCompleted.CustomerEmail = "new@example.com"
	event.CheckoutCompleted.CustomerName = "Newcomer"
	provider := &stubPaymentProvider{
		event:     event,
		lineItems: []payments.EventLineItem{{ProductID: "p1", Quantity: 1}},
	}
	orders := newStubOrderRepo()
	buyers := newStubBuyerRepo()
	notifier := &stubNotifier{}
	svc := newTestReconcileService(t, provider, orders, buyers, notifier)

	if _, err := svc.HandleEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(buyers.upserts) != 1 {
		t.Fatalf("expected one profile upsert, got %d", len(buyers.upserts))
	}
	created := buyers.upserts[0]
	if created.ID != "buyer-1" || created.Email != "new@example.com" || created.Name != "Newcomer" {
		t.Fatalf("unexpected created profile: %+v", created)
	}
	// The freshly created profile carries the email the confirmation needs.
	if len(notifier.sent) != 1 || notifier.sent[0].Email != "new@example.com" {
		t.Fatalf("expected confirmation to the new profile, got %+v", notifier.sent)
	}
}

func TestReconcileServiceLeavesExistingBuyerProfileAlone(t *testing.T) {
	event := completedEvent("cs_5")
	event.CheckoutCompleted.CustomerEmail = "stale@example.com"
	provider := &stubPaymentProvider{
		event:     event,
		lineItems: []payments.EventLineItem{{ProductID: "p1", Quantity: 1}},
	}
	orders := newStubOrderRepo()
	buyers := newStubBuyerRepo(domain.Buyer{ID: "buyer-1", Email: "buyer@example.com", OrderIDs: []string{"ord-0"}})
	svc := newTestReconcileService(t, provider, orders, buyers, nil)

	if _, err := svc.HandleEvent(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(buyers.upserts) != 0 {
		t.Fatalf("existing profile must not be rewritten, got %+v", buyers.upserts)
	}
}

func TestReconcileServiceIgnoresOtherEventTypes(t *testing.T) {
	provider := &stubPaymentProvider{event: payments.Event{ID: "evt_2", Type: "payment_intent.created"}}
	orders := newStubOrderRepo()
	svc := newTestReconcileService(t, provider, orders, newStubBuyerRepo(), nil)

	result, err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if result.Outcome != ReconcileOutcomeIgnored {
		t.Fatalf("expected ignored outcome, got %+v", result)
	}
	if len(orders.writes) != 0 {
		t.Fatal("ignored events must not write")
	}
}

func TestReconcileServiceRejectsBadSignature(t *testing.T) {
	provider := &stubPaymentProvider{verifyErr: fmt.Errorf("%w: bad signature", payments.ErrVerification)}
	svc := newTestReconcileService(t, provider, newStubOrderRepo(), newStubBuyerRepo(), nil)

	_, err := svc.HandleEvent(context.Background(), []byte("{}"), "bad")
	if !errors.Is(err, ErrReconcileVerification) {
		t.Fatalf("expected ErrReconcileVerification, got %v", err)
	}
}

func TestReconcileServicePropagatesPersistenceFailure(t *testing.T) {
	provider := &stubPaymentProvider{
		event:     completedEvent("cs_9"),
		lineItems: []payments.EventLineItem{{ProductID: "p1", Quantity: 1}},
	}
	orders := newStubOrderRepo()
	orders.createErr = &stubRepoError{unavailable: true}
	svc := newTestReconcileService(t, provider, orders, newStubBuyerRepo(), nil)

	_, err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	if !errors.Is(err, ErrReconcileUnavailable) {
		t.Fatalf("expected ErrReconcileUnavailable, got %v", err)
	}
}

func TestReconcileServiceSwallowsNotifierFailure(t *testing.T) {
	provider := &stubPaymentProvider{
		event:     completedEvent("cs_2"),
		lineItems: []payments.EventLineItem{{ProductID: "p1", Quantity: 1}},
	}
	orders := newStubOrderRepo()
	buyers := newStubBuyerRepo(domain.Buyer{ID: "buyer-1", Email: "buyer@example.com"})
	notifier := &stubNotifier{sendErr: errors.New("smtp down")}
	svc := newTestReconcileService(t, provider, orders, buyers, notifier)

	result, err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("notifier failure must not surface, got %v", err)
	}
	if result.Outcome != ReconcileOutcomeReconciled {
		t.Fatalf("expected reconciled outcome, got %+v", result)
	}
}

func TestReconcileServiceGuestOrderSkipsBuyerEffects(t *testing.T) {
	event := completedEvent("cs_3")
	event.CheckoutCompleted.Metadata = nil
	provider := &stubPaymentProvider{
		event:     event,
		lineItems: []payments.EventLineItem{{ProductID: "p1", Quantity: 1}},
	}
	orders := newStubOrderRepo()
	notifier := &stubNotifier{}
	svc := newTestReconcileService(t, provider, orders, newStubBuyerRepo(), notifier)

	result, err := svc.HandleEvent(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if result.Outcome != ReconcileOutcomeReconciled {
		t.Fatalf("expected reconciled outcome, got %+v", result)
	}
	if !orders.writes[0].ClearCart.IsZero() {
		t.Fatalf("guest order must not clear an account cart, got %+v", orders.writes[0].ClearCart)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("guest order must not send a confirmation")
	}
}
