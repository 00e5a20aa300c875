package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/payments"
	"github.com/shopapp/api/internal/platform/auth"
	"github.com/shopapp/api/internal/platform/pagination"
	"github.com/shopapp/api/internal/services"
)

type stubCartService struct {
	detail    services.CartDetail
	cart      domain.Cart
	getErr    error
	addErr    error
	modifyErr error
	removeErr error
	mergeErr  error

	addCalls    []string
	modifyCalls []services.QuantityDirection
	removeCalls []string
	mergeFrom   domain.Owner
	mergeInto   domain.Owner
}

func (s *stubCartService) Get(_ context.Context, owner domain.Owner) (services.CartDetail, error) {
	if s.getErr != nil {
		return services.CartDetail{}, s.getErr
	}
	detail := s.detail
	detail.Cart.Owner = owner
	return detail, nil
}

func (s *stubCartService) AddItem(_ context.Context, owner domain.Owner, productID string) (domain.Cart, error) {
	s.addCalls = append(s.addCalls, productID)
	if s.addErr != nil {
		return domain.Cart{}, s.addErr
	}
	cart := s.cart
	cart.Owner = owner
	return cart, nil
}

func (s *stubCartService) ModifyItem(_ context.Context, owner domain.Owner, _ string, direction services.QuantityDirection) (domain.Cart, error) {
	s.modifyCalls = append(s.modifyCalls, direction)
	cart := s.cart
	cart.Owner = owner
	if s.modifyErr != nil {
		return cart, s.modifyErr
	}
	return cart, nil
}

func (s *stubCartService) RemoveItem(_ context.Context, owner domain.Owner, productID string) (domain.Cart, error) {
	s.removeCalls = append(s.removeCalls, productID)
	if s.removeErr != nil {
		return domain.Cart{}, s.removeErr
	}
	cart := s.cart
	cart.Owner = owner
	return cart, nil
}

func (s *stubCartService) Validate(_ context.Context, owner domain.Owner) (domain.Cart, error) {
	cart := s.cart
	cart.Owner = owner
	return cart, nil
}

func (s *stubCartService) Length(_ context.Context, _ domain.Owner) (int64, error) {
	return s.cart.Length(), nil
}

func (s *stubCartService) Merge(_ context.Context, from, into domain.Owner) (domain.Cart, error) {
	s.mergeFrom = from
	s.mergeInto = into
	if s.mergeErr != nil {
		return domain.Cart{}, s.mergeErr
	}
	cart := s.cart
	cart.Owner = into
	return cart, nil
}

func (s *stubCartService) Clear(_ context.Context, _ domain.Owner) error { return nil }

type stubCatalogService struct {
	products []domain.Product
	err      error
}

func (s *stubCatalogService) ListProducts(_ context.Context) ([]domain.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

type stubCheckoutService struct {
	redirect services.CheckoutRedirect
	err      error
	commands []services.CreateCheckoutSessionCommand
}

func (s *stubCheckoutService) CreateSession(_ context.Context, cmd services.CreateCheckoutSessionCommand) (services.CheckoutRedirect, error) {
	s.commands = append(s.commands, cmd)
	if s.err != nil {
		return services.CheckoutRedirect{}, s.err
	}
	return s.redirect, nil
}

type stubGateway struct {
	session   payments.CheckoutSession
	lookupErr error
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, _ payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	return g.session, nil
}

func (g *stubGateway) VerifyEvent(_ []byte, _ string) (payments.Event, error) {
	return payments.Event{}, nil
}

func (g *stubGateway) ListLineItems(_ context.Context, _ string) ([]payments.EventLineItem, error) {
	return nil, nil
}

func (g *stubGateway) LookupSession(_ context.Context, _ string) (payments.CheckoutSession, error) {
	if g.lookupErr != nil {
		return payments.CheckoutSession{}, g.lookupErr
	}
	return g.session, nil
}

type stubOrderService struct {
	orders    []domain.Order
	nextToken string
	order     domain.Order
	err       error
	pending   bool

	listPages []pagination.Params
}

func (s *stubOrderService) ListForBuyer(_ context.Context, _ string, page pagination.Params) (services.OrderList, error) {
	s.listPages = append(s.listPages, page)
	if s.err != nil {
		return services.OrderList{}, s.err
	}
	return services.OrderList{Orders: s.orders, NextPageToken: s.nextToken}, nil
}

func (s *stubOrderService) GetForBuyer(_ context.Context, _, _ string) (domain.Order, error) {
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

func (s *stubOrderService) Fulfil(_ context.Context, _ services.FulfilOrderCommand) (domain.Order, error) {
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

func (s *stubOrderService) HasPendingOrders(_ context.Context, _ string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.pending, nil
}

type stubReconcileService struct {
	result   services.ReconcileResult
	err      error
	payloads [][]byte
	sigs     []string
}

func (s *stubReconcileService) HandleEvent(_ context.Context, payload []byte, signatureHeader string) (services.ReconcileResult, error) {
	s.payloads = append(s.payloads, payload)
	s.sigs = append(s.sigs, signatureHeader)
	if s.err != nil {
		return services.ReconcileResult{}, s.err
	}
	return s.result, nil
}

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(_ context.Context) (domain.SystemHealthReport, error) {
	if s.err != nil {
		return domain.SystemHealthReport{}, s.err
	}
	return s.report, nil
}

func mountRoutes(path string, registrar RouteRegistrar) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.Middleware())
	r.Route(path, registrar)
	return r
}

func doRequest(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func asAccount(req *http.Request, accountID, email string) *http.Request {
	req.Header.Set(auth.HeaderUserID, accountID)
	if email != "" {
		req.Header.Set(auth.HeaderUserEmail, email)
	}
	return req
}

func asSession(req *http.Request, sessionID string) *http.Request {
	req.Header.Set(auth.HeaderSessionID, sessionID)
	return req
}
