package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hazelbloom/storefront/internal/checkout"
	"github.com/hazelbloom/storefront/internal/metrics"
	"github.com/hazelbloom/storefront/internal/ratelimit"
	"github.com/hazelbloom/storefront/internal/validate"
)

const (
	checkoutBodyLimit = 50_000
	checkoutBudget    = 10 // requests per window per IP
	checkoutWindow    = time.Minute
)

type CheckoutRequest struct {
	Items        []validate.CartItem   `json:"items"`
	Email        string                `json:"email"`
	ShippingInfo validate.ShippingInfo `json:"shippingInfo"`
}

type CheckoutHandler struct {
	Initiator *checkout.Initiator
	Limiter   *ratelimit.Limiter
	Log       *zap.Logger
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.With(
		RateLimit(h.Limiter, "checkout", checkoutBudget, checkoutWindow),
		RequireJSON,
	).Post("/api/create-checkout-session", h.createSession)
}

// createSession runs the validation gates in a fixed order (cheap and
// client-actionable first), prices the cart server-side, and requests
// the hosted payment session. Nothing durable is written here: orders
// exist only once the processor confirms payment.
func (h *CheckoutHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decodeBody(w, r, checkoutBodyLimit, &req) {
		metrics.CheckoutSessions.WithLabelValues("validation_rejected").Inc()
		return
	}

	if !validate.Email(req.Email) {
		metrics.CheckoutSessions.WithLabelValues("validation_rejected").Inc()
		writeError(w, http.StatusBadRequest, "Valid email address is required")
		return
	}
	if errs := validate.CartItemsErrors(req.Items); len(errs) > 0 {
		metrics.CheckoutSessions.WithLabelValues("validation_rejected").Inc()
		writeError(w, http.StatusBadRequest, "Invalid cart items", errs...)
		return
	}
	if errs := validate.ShippingInfoErrors(req.ShippingInfo); len(errs) > 0 {
		metrics.CheckoutSessions.WithLabelValues("validation_rejected").Inc()
		writeError(w, http.StatusBadRequest, "Invalid shipping information", errs...)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.Initiator.Create(ctx, req.Items, req.Email, req.ShippingInfo)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	metrics.CheckoutSessions.WithLabelValues("created").Inc()
	writeJSON(w, http.StatusOK, sess)
}

func (h *CheckoutHandler) respondCreateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, checkout.ErrInsufficientInventory),
		errors.Is(err, checkout.ErrInvalidProductPrice):
		// Client can act on these: adjust the cart and retry.
		metrics.CheckoutSessions.WithLabelValues("inventory_rejected").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		// Upstream or storage detail stays server-side.
		metrics.CheckoutSessions.WithLabelValues("upstream_error").Inc()
		h.Log.Error("checkout session creation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to create checkout session. Please try again.")
	}
}
