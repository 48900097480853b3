package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pharmasys/internal/domain"
	"pharmasys/internal/store"
	"pharmasys/internal/store/memory"
)

type failingRepo struct {
	*memory.Store
}

func (failingRepo) ListProducts(context.Context) ([]domain.Product, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

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

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestCORSPreflightSkipsAuth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	req.Header.Set("Origin", "http://register.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code == http.StatusUnauthorized {
		t.Fatalf("expected preflight to bypass auth")
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected Access-Control-Allow-Origin on preflight")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPIWithRepo(t, memory.NewSeeded(), "counter-passphrase")
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
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

func TestUnknownJSONFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/categories", token, map[string]any{"name": "Skin Care", "color": "red"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestInternalErrorsAreScrubbed(t *testing.T) {
	api := newTestAPIWithRepo(t, failingRepo{Store: memory.NewSeeded()}, "")
	handler := api.Handler()
	token := loginToken(t, handler)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("expected internal detail to be hidden, got %s", rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "internal server error" {
		t.Fatalf("expected generic error body, got %q", body["error"])
	}
}

func TestStatusForMapsStoreErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad price", store.ErrInvalidInput), http.StatusBadRequest},
		{store.ProductNotFound(7), http.StatusNotFound},
		{&store.InsufficientStockError{ProductID: 1, Available: 0}, http.StatusConflict},
		{store.ErrEmptyCart, http.StatusConflict},
		{store.ErrDuplicateName, http.StatusConflict},
		{store.ErrCategoryInUse, http.StatusConflict},
		{store.ErrLastTaxRate, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList([]string{"low_stock, out_of_stock", "", "in_stock"})
	want := []string{"low_stock", "out_of_stock", "in_stock"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
