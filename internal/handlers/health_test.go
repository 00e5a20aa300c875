package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/shopapp/api/internal/domain"
)

func TestHealthHandlersHealthz(t *testing.T) {
	handlers := NewHealthHandlers(nil)

	rec := httptest.NewRecorder()
	handlers.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHealthHandlersReadyzSuccess(t *testing.T) {
	system := &stubSystemService{report: domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, Detail: "ok"},
		},
		Version: "1.4.0",
	}}
	handlers := NewHealthHandlers(system)

	rec := httptest.NewRecorder()
	handlers.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "firestore") || !strings.Contains(rec.Body.String(), "1.4.0") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHealthHandlersReadyzFailure(t *testing.T) {
	system := &stubSystemService{report: domain.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
		},
	}}
	handlers := NewHealthHandlers(system)

	rec := httptest.NewRecorder()
	handlers.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
