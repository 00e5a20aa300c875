package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopapp/api/internal/platform/auth"
)

func testClock() time.Time {
	return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
}

func keyedRequest(method, path, body, key, accountID string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if accountID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{AccountID: accountID}))
	}
	return req
}

func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"session_id":"cs_1"}`))
	})
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(countingHandler(&calls))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest(http.MethodPost, "/checkout/session", `{"a":1}`, "key-1", "buyer-1"))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 on first delivery, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, keyedRequest(http.MethodPost, "/checkout/session", `{"a":1}`, "key-1", "buyer-1"))
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("expected replay marker header")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", second.Body.String(), first.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler must run once, ran %d times", calls)
	}
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(countingHandler(&calls))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/checkout/session", `{}`, "", "buyer-1"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("unkeyed requests must not be deduplicated, handler ran %d times", calls)
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(countingHandler(&calls))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest(http.MethodPost, "/checkout/session", `{"a":1}`, "key-1", "buyer-1"))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, keyedRequest(http.MethodPost, "/checkout/session", `{"a":2}`, "key-1", "buyer-1"))
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key with new payload, got %d", second.Code)
	}
	if calls != 1 {
		t.Fatalf("handler must not run for the conflicting request, ran %d times", calls)
	}
}

func TestMiddlewareScopesKeysPerBuyer(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(countingHandler(&calls))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest(http.MethodPost, "/checkout/session", `{"a":1}`, "key-1", "buyer-1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, keyedRequest(http.MethodPost, "/checkout/session", `{"a":1}`, "key-1", "buyer-2"))

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both buyers to proceed, got %d and %d", first.Code, second.Code)
	}
	if calls != 2 {
		t.Fatalf("distinct buyers sharing a key must not collide, handler ran %d times", calls)
	}
}

func TestMiddlewareIgnoresUnguardedMethods(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(countingHandler(&calls))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(http.MethodGet, "/checkout/session/cs_1", "", "key-1", "buyer-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected handler to run untouched, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestMemoryStoreExpiresReservations(t *testing.T) {
	store := NewMemoryStore()
	now := testClock()
	ctx := context.Background()

	res, err := store.Reserve(ctx, "key-1|buyer-1", "fp-1", now, time.Hour)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %v", res.State)
	}

	// A fresh fingerprint after expiry starts over instead of conflicting.
	res, err = store.Reserve(ctx, "key-1|buyer-1", "fp-2", now.Add(2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("Reserve after expiry returned error: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected expired record to be replaced, got %v", res.State)
	}

	removed, err := store.CleanupExpired(ctx, now.Add(4*time.Hour), 10)
	if err != nil {
		t.Fatalf("CleanupExpired returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed record, got %d", removed)
	}
}
