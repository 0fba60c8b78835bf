package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hazelbloom/storefront/internal/fulfillment"
	kafkax "github.com/hazelbloom/storefront/internal/kafka"
	"github.com/hazelbloom/storefront/internal/orders"
	"github.com/hazelbloom/storefront/internal/ratelimit"
	"github.com/hazelbloom/storefront/internal/validate"
)

const (
	ordersBudget      = 30
	adminUpdateBudget = 20
	ordersWindow      = time.Minute
)

// OrderStore is what the listing and admin endpoints need from the
// repo.
type OrderStore interface {
	ListByEmail(ctx context.Context, email string) ([]orders.OrderWithItems, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (updated orders.Order, from orders.Status, err error)
}

type OrdersHandler struct {
	Store   OrderStore
	Limiter *ratelimit.Limiter
	Log     *zap.Logger

	// Publisher, when set, fans successful status changes out on the
	// event bus.
	Publisher fulfillment.Publisher
	Producer  string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.With(RateLimit(h.Limiter, "orders", ordersBudget, ordersWindow)).
		Get("/api/orders", h.listOrders)
	r.With(
		RateLimit(h.Limiter, "admin-order-update", adminUpdateBudget, ordersWindow),
		RequireJSON,
	).Patch("/api/admin/orders/{id}", h.updateStatus)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if !validate.Email(email) {
		writeError(w, http.StatusBadRequest, "Valid email address is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Store.ListByEmail(ctx, email)
	if err != nil {
		h.Log.Error("list orders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}
	if list == nil {
		list = []orders.OrderWithItems{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

// updateStatus is the order-status mutation consumed by the admin
// surface. Authorization happens upstream of this service; here the
// contract is only the status machine.
func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if !validate.Identifier(orderID) {
		writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, 10_000, &req) {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "Status is required")
		return
	}

	status := orders.NormalizeStatus(validate.SanitizeString(req.Status, 50))
	if !status.Valid() {
		writeError(w, http.StatusBadRequest,
			"Invalid status. Must be one of: paid, processing, shipped, delivered, completed, cancelled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	updated, from, err := h.Store.UpdateStatus(ctx, orderID, status)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
		return
	case errors.Is(err, orders.ErrBadTransition):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.Log.Error("update order status failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update order status")
		return
	}

	h.publishStatusChanged(updated, from, getRequestID(r))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": updated})
}

func (h *OrdersHandler) publishStatusChanged(o orders.Order, from orders.Status, traceID string) {
	if h.Publisher == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Producer,
		TraceID:       traceID,
		CorrelationID: o.ID,
	}
	ev.Payload = kafkax.MustMarshal(orders.OrderStatusChangedPayload{
		OrderID: o.ID,
		From:    from,
		To:      o.Status,
	})
	h.Publisher.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
