package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hazelbloom/storefront/internal/catalog"
	"github.com/hazelbloom/storefront/internal/checkout"
	"github.com/hazelbloom/storefront/internal/ratelimit"
	"github.com/hazelbloom/storefront/internal/validate"
)

const testProductID = "11111111-1111-4111-8111-111111111111"

type stubCatalog map[string]catalog.Product

func (c stubCatalog) GetProductsByIDs(_ context.Context, ids []string) (map[string]catalog.Product, error) {
	out := make(map[string]catalog.Product)
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func testCatalog() stubCatalog {
	return stubCatalog{
		testProductID: {ID: testProductID, Title: "Walnut Desk", Price: decimal.RequireFromString("25.00"), Inventory: 5},
	}
}

type stubProcessor struct {
	calls int
	err   error
}

func (s *stubProcessor) CreateSession(_ context.Context, _ checkout.SessionRequest) (checkout.Session, error) {
	s.calls++
	if s.err != nil {
		return checkout.Session{}, s.err
	}
	return checkout.Session{ID: "cs_test_123", URL: "https://checkout.stripe.com/c/pay/cs_test_123"}, nil
}

func newCheckoutRouter(proc *stubProcessor) http.Handler {
	r := NewRouter()
	h := &CheckoutHandler{
		Initiator: &checkout.Initiator{
			Catalog:   testCatalog(),
			Processor: proc,
			BaseURL:   "https://shop.example.com",
		},
		Limiter: ratelimit.New(ratelimit.NewMemory()),
		Log:     zap.NewNop(),
	}
	h.Register(r)
	return r
}

func checkoutBody(t *testing.T, qty int) string {
	t.Helper()
	b, err := json.Marshal(CheckoutRequest{
		Items: []validate.CartItem{{ProductID: testProductID, Quantity: qty}},
		Email: "jane@example.com",
		ShippingInfo: validate.ShippingInfo{
			Name:         "Jane Doe",
			Phone:        "(555) 123-4567",
			AddressLine1: "123 Main St",
			City:         "Portland",
			State:        "OR",
			PostalCode:   "97201",
			Country:      "US",
		},
	})
	require.NoError(t, err)
	return string(b)
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateCheckoutSessionOK(t *testing.T) {
	proc := &stubProcessor{}
	router := newCheckoutRouter(proc)

	rec := postJSON(router, "/api/create-checkout-session", checkoutBody(t, 2))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, proc.calls)

	var sess checkout.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "cs_test_123", sess.ID)
	assert.NotEmpty(t, sess.URL)

	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestCreateCheckoutSessionRequiresJSONContentType(t *testing.T) {
	router := newCheckoutRouter(&stubProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-checkout-session", strings.NewReader(checkoutBody(t, 1)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "Content-Type must be application/json", decodeError(t, rec).Error)
}

func TestCreateCheckoutSessionBodyTooLarge(t *testing.T) {
	router := newCheckoutRouter(&stubProcessor{})

	rec := postJSON(router, "/api/create-checkout-session", `{"email":"`+strings.Repeat("a", 60_000)+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", decodeError(t, rec).Error)
}

func TestCreateCheckoutSessionInvalidJSON(t *testing.T) {
	router := newCheckoutRouter(&stubProcessor{})

	rec := postJSON(router, "/api/create-checkout-session", `{"email":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON", decodeError(t, rec).Error)
}

func TestCreateCheckoutSessionValidationGates(t *testing.T) {
	proc := &stubProcessor{}
	router := newCheckoutRouter(proc)

	cases := []struct {
		name    string
		mutate  func(*CheckoutRequest)
		wantErr string
	}{
		{"bad email", func(r *CheckoutRequest) { r.Email = "nope" }, "Valid email address is required"},
		{"empty cart", func(r *CheckoutRequest) { r.Items = []validate.CartItem{} }, "Invalid cart items"},
		{"bad quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 0 }, "Invalid cart items"},
		{"bad shipping", func(r *CheckoutRequest) { r.ShippingInfo.Phone = "123" }, "Invalid shipping information"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req CheckoutRequest
			require.NoError(t, json.Unmarshal([]byte(checkoutBody(t, 1)), &req))
			tc.mutate(&req)
			b, err := json.Marshal(req)
			require.NoError(t, err)

			rec := postJSON(router, "/api/create-checkout-session", string(b))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tc.wantErr, resp.Error)
			assert.NotEmpty(t, resp.Details, "validation failures carry field-level details")
		})
	}
	assert.Equal(t, 0, proc.calls, "no outbound call while validation rejects")
}

func TestCreateCheckoutSessionInventoryRejection(t *testing.T) {
	proc := &stubProcessor{}
	router := newCheckoutRouter(proc)

	rec := postJSON(router, "/api/create-checkout-session", checkoutBody(t, 6)) // stock is 5
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "insufficient inventory")
	assert.Equal(t, 0, proc.calls)
}

func TestCreateCheckoutSessionUpstreamFailure(t *testing.T) {
	router := newCheckoutRouter(&stubProcessor{err: errors.New("stripe: connection reset")})

	rec := postJSON(router, "/api/create-checkout-session", checkoutBody(t, 1))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	// Internal detail never leaks to the client.
	assert.Equal(t, "Failed to create checkout session. Please try again.", decodeError(t, rec).Error)
}

func TestCreateCheckoutSessionRateLimited(t *testing.T) {
	proc := &stubProcessor{}
	router := newCheckoutRouter(proc)

	for i := 0; i < 10; i++ {
		rec := postJSON(router, "/api/create-checkout-session", checkoutBody(t, 1))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := postJSON(router, "/api/create-checkout-session", checkoutBody(t, 1))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests. Please try again later.", decodeError(t, rec).Error)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 10, proc.calls, "the throttled request never reaches the handler")
}
