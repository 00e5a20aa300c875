package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/shopapp/api/internal/domain"
	"github.com/shopapp/api/internal/services"
)

func testOrder() domain.Order {
	return domain.Order{
		ID:      "ord-1",
		BuyerID: "buyer-1",
		Lines:   []domain.OrderLine{{ProductID: "p1", Quantity: 2}},
		Date:    time.Date(2024, time.April, 30, 9, 0, 0, 0, time.UTC),
		Total:   4000,
		Currency: "gbp",
		Status:   domain.OrderStatusPending,
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	svc := &stubOrderService{orders: []domain.Order{testOrder()}}
	router := mountRoutes("/orders", NewOrderHandlers(svc).Routes)

	req := asAccount(httptest.NewRequest(http.MethodGet, "/orders", nil), "buyer-1", "")
	rec := doRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Orders []orderPayload `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(payload.Orders) != 1 || payload.Orders[0].TotalMinor != 4000 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestOrderHandlersListOrdersPagination(t *testing.T) {
	svc := &stubOrderService{orders: []domain.Order{testOrder()}, nextToken: "tok-2"}
	router := mountRoutes("/orders", NewOrderHandlers(svc).Routes)

	req := asAccount(httptest.NewRequest(http.MethodGet, "/orders?pageSize=5", nil), "buyer-1", "")
	rec := doRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		NextPageToken string `json:"next_page_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.NextPageToken != "tok-2" {
		t.Fatalf("expected next page token surfaced, got %q", payload.NextPageToken)
	}
	if len(svc.listPages) != 1 || svc.listPages[0].PageSize != 5 {
		t.Fatalf("expected page size forwarded to service, got %+v", svc.listPages)
	}
}

func TestOrderHandlersListOrdersRejectsBadPageToken(t *testing.T) {
	svc := &stubOrderService{}
	router := mountRoutes("/orders", NewOrderHandlers(svc).Routes)

	req := asAccount(httptest.NewRequest(http.MethodGet, "/orders?pageToken=%21%21", nil), "buyer-1", "")
	rec := doRequest(router, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed page token, got %d", rec.Code)
	}
	if len(svc.listPages) != 0 {
		t.Fatal("service must not be called with a malformed page token")
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{err: services.ErrOrderNotFound}
	router := mountRoutes("/orders", NewOrderHandlers(svc).Routes)

	req := asAccount(httptest.NewRequest(http.MethodGet, "/orders/ord-9", nil), "buyer-1", "")
	rec := doRequest(router, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestOrderHandlersRequireAccount(t *testing.T) {
	router := mountRoutes("/orders", NewOrderHandlers(&stubOrderService{}).Routes)

	req := asSession(httptest.NewRequest(http.MethodGet, "/orders", nil), "sess-1")
	rec := doRequest(router, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminOrderHandlersFulfill(t *testing.T) {
	fulfilled := testOrder()
	fulfilled.Status = domain.OrderStatusFulfilled
	fulfilled.TrackingNumber = "TRK123"
	svc := &stubOrderService{order: fulfilled}
	router := mountRoutes("/admin", NewAdminOrderHandlers(svc).Routes)

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord-1/fulfill", strings.NewReader(`{"tracking_number":"TRK123"}`))
	rec := doRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "TRK123") || !strings.Contains(rec.Body.String(), "fulfilled") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestAdminOrderHandlersFulfillConflict(t *testing.T) {
	svc := &stubOrderService{err: services.ErrOrderNotPending}
	router := mountRoutes("/admin", NewAdminOrderHandlers(svc).Routes)

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord-1/fulfill", strings.NewReader(`{"tracking_number":"TRK123"}`))
	rec := doRequest(router, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a non-pending order, got %d", rec.Code)
	}
}

func TestAdminOrderHandlersBuyerDeletable(t *testing.T) {
	svc := &stubOrderService{pending: true}
	router := mountRoutes("/admin", NewAdminOrderHandlers(svc).Routes)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/buyers/buyer-1/deletable", nil)
	rec := doRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		BuyerID   string `json:"buyer_id"`
		Deletable bool   `json:"deletable"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.Deletable {
		t.Fatal("buyer with pending orders must not be deletable")
	}
}
