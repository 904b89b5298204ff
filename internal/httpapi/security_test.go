package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestMutatingRequestWithoutCSRFRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")

	body, _ := json.Marshal(domain.ShiftOpenRequest{StartingCash: 50})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts/open", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", res.Code)
	}
}

func TestLoginExemptFromCSRF(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// loginAs sends no X-CSRF-Token header, so a 200 proves the exemption.
	if token := loginAs(t, handler, "manager", "manager123"); token == "" {
		t.Fatal("expected login to succeed without a csrf token")
	}
}

func TestCSRFTokenValidAcrossHourBoundary(t *testing.T) {
	api := newTestAPI(t)

	// A token minted in the previous hour bucket must still validate, so a
	// register session does not break mid-transaction at the top of the hour.
	prevBucket := time.Now().UTC().Truncate(time.Hour).Unix() - 3600
	token := api.csrfTokenForHour(prevBucket)
	if !api.validateCSRFToken(token) {
		t.Fatal("expected previous-hour token to validate")
	}

	stale := api.csrfTokenForHour(prevBucket - 3600)
	if api.validateCSRFToken(stale) {
		t.Fatal("expected two-hour-old token to be rejected")
	}
}

func TestManagerPINWrongPINReturns403(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "manager", "manager123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cancellations", token, csrf, domain.ReversalRequest{
		SaleID:       "sale-nonexistent",
		Items:        []domain.ReversalLine{{ProductID: "prod-espresso", Qty: 1}},
		RefundMethod: domain.RefundMethodCard,
		Reason:       "wrong item",
		ManagerPIN:   "000000",
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", rec.Code)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}
