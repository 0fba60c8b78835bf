package httpx

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"

	"github.com/hazelbloom/storefront/internal/fulfillment"
	"github.com/hazelbloom/storefront/internal/orders"
)

const webhookSecret = "whsec_test_secret"

type hookStore struct {
	bySession map[string]orders.Order
	items     map[string][]orders.LineItem
	insertErr error
}

func newHookStore() *hookStore {
	return &hookStore{
		bySession: make(map[string]orders.Order),
		items:     make(map[string][]orders.LineItem),
	}
}

func (m *hookStore) InsertOrder(_ context.Context, o orders.Order) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.bySession[o.SessionID]; ok {
		return orders.ErrDuplicateSession
	}
	m.bySession[o.SessionID] = o
	return nil
}

func (m *hookStore) InsertLineItems(_ context.Context, orderID string, items []orders.LineItem) error {
	m.items[orderID] = items
	return nil
}

type hookIdentity struct{}

func (hookIdentity) ResolveEmail(context.Context, string) (*string, error) { return nil, nil }

func newWebhookRouter(store *hookStore) http.Handler {
	r := NewRouter()
	h := &WebhookHandler{
		Fulfillment: &fulfillment.Service{
			Orders:   store,
			Catalog:  testCatalog(),
			Identity: hookIdentity{},
			Producer: "storefront-api",
			Log:      zap.NewNop(),
		},
		WebhookSecret: webhookSecret,
		Log:           zap.NewNop(),
	}
	h.Register(r)
	return r
}

func completedEventBody(t *testing.T, sessionID, email string, amountCents int64) []byte {
	t.Helper()
	obj, err := json.Marshal(map[string]any{
		"id":             sessionID,
		"customer_email": email,
		"amount_total":   amountCents,
		"metadata": map[string]string{
			"schemaVersion": "1",
			"items":         fmt.Sprintf(`[{"productId":%q,"quantity":2}]`, testProductID),
			"customerName":  "Jane Doe",
			"phone":         "(555) 123-4567",
			"addressLine1":  "123 Main St",
			"city":          "Portland",
			"state":         "OR",
			"postalCode":    "97201",
			"country":       "US",
		},
	})
	require.NoError(t, err)
	return eventBody(t, "checkout.session.completed", obj)
}

func eventBody(t *testing.T, eventType string, object json.RawMessage) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func signHeader(payload []byte, secret string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func postWebhook(h http.Handler, payload []byte, sigHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", bytes.NewReader(payload))
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookCreatesOrder(t *testing.T) {
	store := newHookStore()
	router := newWebhookRouter(store)

	payload := completedEventBody(t, "cs_1", "jane@example.com", 5000)
	rec := postWebhook(router, payload, signHeader(payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	order, ok := store.bySession["cs_1"]
	require.True(t, ok)
	assert.Equal(t, orders.StatusPaid, order.Status)
	assert.Equal(t, "jane@example.com", order.Email)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("50.00")))
	assert.Equal(t, "Jane Doe", order.CustomerName)

	items := store.items[order.ID]
	require.Len(t, items, 1)
	assert.Equal(t, "25.00", items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, 2, items[0].Quantity)
}

func TestWebhookDuplicateDeliveryAcknowledged(t *testing.T) {
	store := newHookStore()
	router := newWebhookRouter(store)

	payload := completedEventBody(t, "cs_1", "jane@example.com", 5000)
	first := postWebhook(router, payload, signHeader(payload, webhookSecret))
	require.Equal(t, http.StatusOK, first.Code)

	second := postWebhook(router, payload, signHeader(payload, webhookSecret))
	require.Equal(t, http.StatusOK, second.Code, "redelivery must be acknowledged, not retried")
	assert.Len(t, store.bySession, 1)
}

func TestWebhookMissingSignature(t *testing.T) {
	store := newHookStore()
	router := newWebhookRouter(store)

	rec := postWebhook(router, completedEventBody(t, "cs_1", "jane@example.com", 5000), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No signature", decodeError(t, rec).Error)
	assert.Empty(t, store.bySession)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	store := newHookStore()
	router := newWebhookRouter(store)
	payload := completedEventBody(t, "cs_1", "jane@example.com", 5000)

	t.Run("wrong secret", func(t *testing.T) {
		rec := postWebhook(router, payload, signHeader(payload, "whsec_other"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Webhook signature verification failed", decodeError(t, rec).Error)
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := signHeader(payload, webhookSecret)
		tampered := bytes.Replace(payload, []byte("5000"), []byte("1"), 1)
		rec := postWebhook(router, tampered, sig)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := time.Now().Add(-time.Hour)
		sig := fmt.Sprintf("t=%d,v1=%s", old.Unix(), hex.EncodeToString(webhook.ComputeSignature(old, payload, webhookSecret)))
		rec := postWebhook(router, payload, sig)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Empty(t, store.bySession)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	store := newHookStore()
	router := newWebhookRouter(store)

	payload := eventBody(t, "payment_intent.succeeded", json.RawMessage(`{"id":"pi_1"}`))
	rec := postWebhook(router, payload, signHeader(payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.bySession)
}

func TestWebhookMissingCustomerEmail(t *testing.T) {
	store := newHookStore()
	router := newWebhookRouter(store)

	payload := completedEventBody(t, "cs_1", "", 5000)
	rec := postWebhook(router, payload, signHeader(payload, webhookSecret))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.bySession)
}

func TestWebhookStoreFailureAsksForRedelivery(t *testing.T) {
	store := newHookStore()
	store.insertErr = errors.New("pg down")
	router := newWebhookRouter(store)

	payload := completedEventBody(t, "cs_1", "jane@example.com", 5000)
	rec := postWebhook(router, payload, signHeader(payload, webhookSecret))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to create order", decodeError(t, rec).Error)
}
