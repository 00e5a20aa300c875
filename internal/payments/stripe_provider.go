package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	checkoutsession "github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const lineItemProductIDKey = "productId"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeLineItemAPI interface {
	ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error)
}

type stripeEventVerifier func(payload []byte, signatureHeader string) (stripe.Event, error)

type stripeClients struct {
	sessions  stripeSessionAPI
	lineItems stripeLineItemAPI
	verify    stripeEventVerifier
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey           string
	WebhookSecret    string
	WebhookTolerance time.Duration
	Backends         *stripe.Backends
	Logger           StripeLogger
	Clock            func() time.Time
	Clients          *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions:  sc.CheckoutSessions,
			lineItems: sessionLineItemLister{sessions: sc.CheckoutSessions},
		}
	}

	if clients.verify == nil {
		secret := strings.TrimSpace(cfg.WebhookSecret)
		if secret == "" {
			return nil, errors.New("stripe: webhook secret is required")
		}
		tolerance := cfg.WebhookTolerance
		if tolerance <= 0 {
			tolerance = webhook.DefaultTolerance
		}
		clients.verify = func(payload []byte, signatureHeader string) (stripe.Event, error) {
			return webhook.ConstructEventWithTolerance(payload, signatureHeader, secret, tolerance)
		}
	}

	if clients.sessions == nil || clients.lineItems == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api: clients,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a Stripe Checkout session in payment mode.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max64(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(defaultString(item.Currency, req.Currency))),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.Description != "" {
			line.PriceData.ProductData.Description = stripe.String(item.Description)
		}
		// The product id rides along as gateway-side metadata so the webhook
		// can map purchased lines back to catalog documents.
		if item.ProductID != "" {
			line.PriceData.ProductData.Metadata = map[string]string{
				lineItemProductIDKey: item.ProductID,
			}
		}
		lineItems = append(lineItems, line)
	}
	if len(lineItems) == 0 {
		return CheckoutSession{}, errors.New("stripe: checkout session requires at least one line item")
	}
	params.LineItems = lineItems

	session, err := p.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"currency":  session.Currency,
		"lines":     len(lineItems),
	})

	return p.toCheckoutSession(session), nil
}

// VerifyEvent authenticates the webhook payload and maps it into an Event.
func (p *StripeProvider) VerifyEvent(payload []byte, signatureHeader string) (Event, error) {
	if p == nil {
		return Event{}, errors.New("stripe: provider is nil")
	}

	stripeEvent, err := p.api.verify(payload, signatureHeader)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	event := Event{
		ID:   stripeEvent.ID,
		Type: string(stripeEvent.Type),
	}
	if stripeEvent.Type != stripe.EventTypeCheckoutSessionCompleted {
		return event, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(stripeEvent.Data.Raw, &session); err != nil {
		return Event{}, fmt.Errorf("%w: decode checkout session: %v", ErrVerification, err)
	}

	completed := &CheckoutCompleted{
		SessionID:   session.ID,
		AmountTotal: session.AmountTotal,
		Currency:    string(session.Currency),
		Metadata:    session.Metadata,
		CreatedAt:   time.Unix(session.Created, 0).UTC(),
	}
	if session.PaymentIntent != nil {
		completed.PaymentReference = session.PaymentIntent.ID
	}
	if details := session.CustomerDetails; details != nil {
		completed.CustomerEmail = details.Email
		completed.CustomerName = details.Name
	}
	if details := session.ShippingDetails; details != nil {
		completed.ShippingName = details.Name
		if addr := details.Address; addr != nil {
			completed.ShippingAddress = Address{
				City:       addr.City,
				Country:    addr.Country,
				Line1:      addr.Line1,
				Line2:      addr.Line2,
				PostalCode: addr.PostalCode,
			}
		}
	}
	event.CheckoutCompleted = completed
	return event, nil
}

// ListLineItems resolves the purchased lines for the session, mapping each
// back to a catalog product via the product metadata set at session creation.
func (p *StripeProvider) ListLineItems(ctx context.Context, sessionID string) ([]EventLineItem, error) {
	if p == nil {
		return nil, errors.New("stripe: provider is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("stripe: session id is required")
	}

	items, err := p.api.lineItems.ListLineItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("stripe: list line items for %s: %w", sessionID, err)
	}

	lines := make([]EventLineItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		productID := ""
		if item.Price != nil && item.Price.Product != nil {
			productID = item.Price.Product.Metadata[lineItemProductIDKey]
		}
		if productID == "" {
			p.logger(ctx, "payments.stripe.lineitem.unmapped", map[string]any{
				"sessionId":  sessionID,
				"lineItemId": item.ID,
			})
			continue
		}
		lines = append(lines, EventLineItem{ProductID: productID, Quantity: item.Quantity})
	}
	return lines, nil
}

// LookupSession retrieves the checkout session by id.
func (p *StripeProvider) LookupSession(ctx context.Context, sessionID string) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := p.api.sessions.Get(strings.TrimSpace(sessionID), params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: lookup checkout session: %w", err)
	}
	return p.toCheckoutSession(session), nil
}

func (p *StripeProvider) toCheckoutSession(session *stripe.CheckoutSession) CheckoutSession {
	if session == nil {
		return CheckoutSession{}
	}
	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return CheckoutSession{
		ID:          session.ID,
		Provider:    "stripe",
		RedirectURL: session.URL,
		Status:      string(session.Status),
		Metadata:    session.Metadata,
		ExpiresAt:   expiresAt,
	}
}

// sessionLineItemLister adapts the paginated Stripe iterator to a single slice.
type sessionLineItemLister struct {
	sessions *checkoutsession.Client
}

func (l sessionLineItemLister) ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx
	params.AddExpand("data.price.product")

	iter := l.sessions.ListLineItems(params)
	var items []*stripe.LineItem
	for iter.Next() {
		items = append(items, iter.LineItem())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

var _ Provider = (*StripeProvider)(nil)
