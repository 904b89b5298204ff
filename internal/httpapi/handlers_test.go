package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*")
}

// loginAs logs in through the real login endpoint and returns a bearer token.
func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

// csrfToken fetches a token from the csrf-token endpoint.
func csrfToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return body["csrf_token"]
}

// doJSON performs an authenticated JSON request with a CSRF token attached.
func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "manager", "manager123")
	if token == "" {
		t.Fatal("expected non-empty access token")
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "manager",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute.
	payload, _ := json.Marshal(map[string]string{
		"username": "manager",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "cashier", "cashier123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestHandleProductCreate_CashierForbidden(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, domain.ProductCreateRequest{
		SKU:   "SKU-NEW-01",
		Name:  "New Product",
		Price: 4.20,
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCheckoutFlow_EndToEnd(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "cashier", "cashier123")
	csrf := csrfToken(t, handler)

	// Checkout before a shift is open must be rejected.
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		Items:        []domain.CartLineRequest{{ProductID: "prod-espresso", Qty: 1}},
		CashReceived: 5,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without open shift, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/open", token, csrf, domain.ShiftOpenRequest{StartingCash: 100})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open shift: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, csrf, domain.CheckoutRequest{
		Items:        []domain.CartLineRequest{{ProductID: "prod-espresso", Qty: 2}},
		CashReceived: 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	if resp.Sale.ReceiptNo == "" {
		t.Fatal("expected a receipt number on the finalized sale")
	}
	if resp.Sale.Status != domain.SaleStatusPaid {
		t.Fatalf("expected status PAID, got %s", resp.Sale.Status)
	}
	if resp.ChangeDue < 0 {
		t.Fatalf("change due must not be negative, got %v", resp.ChangeDue)
	}

	// The sale must be retrievable afterwards.
	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/sales/"+resp.Sale.ID, nil)
	getReq.Header.Set("Authorization", "Bearer "+token)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get sale: expected 200, got %d", getRec.Code)
	}
}

func TestHandleReturns_InvalidPIN(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "manager", "manager123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/returns", token, csrf, domain.ReversalRequest{
		SaleID:       "sale-unknown",
		Items:        []domain.ReversalLine{{ProductID: "prod-espresso", Qty: 1}},
		RefundMethod: domain.RefundMethodCash,
		Reason:       "damaged",
		ManagerPIN:   "000000",
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleReturns_PINRateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "manager", "manager123")
	csrf := csrfToken(t, handler)

	// The pinLimiter allows 8 attempts per minute per client per endpoint.
	var lastCode int
	for i := 0; i < 9; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/returns", token, csrf, domain.ReversalRequest{
			SaleID:       fmt.Sprintf("sale-%d", i),
			Items:        []domain.ReversalLine{{ProductID: "prod-espresso", Qty: 1}},
			RefundMethod: domain.RefundMethodCash,
			Reason:       "damaged",
			ManagerPIN:   "999999",
		})
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 9 pin attempts, got %d", lastCode)
	}
}

func TestHandleSession(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	token := loginAs(t, handler, "cashier", "cashier123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if resp.Username != "cashier" || resp.Role != domain.RoleCashier {
		t.Fatalf("unexpected session identity: %+v", resp)
	}
	if resp.Shift != nil {
		t.Fatalf("expected no open shift, got %+v", resp.Shift)
	}
}
