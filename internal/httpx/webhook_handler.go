package httpx

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"

	"github.com/hazelbloom/storefront/internal/fulfillment"
	"github.com/hazelbloom/storefront/internal/metrics"
)

// The processor retries deliveries until it sees 2xx, so this handler
// caps the body generously and never pre-parses it: the signature is
// computed over the raw bytes.
const webhookBodyLimit = 1 << 20

type WebhookHandler struct {
	Fulfillment   *fulfillment.Service
	WebhookSecret string
	Log           *zap.Logger
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	// No rate limit here: authentication is the signature, and the
	// processor owns the delivery rate.
	r.Post("/api/stripe-webhook", h.handle)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read body")
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		metrics.WebhookEvents.WithLabelValues("signature_failed").Inc()
		writeError(w, http.StatusBadRequest, "No signature")
		return
	}

	// Authentication first; event content is untrusted until this
	// passes.
	event, err := webhook.ConstructEvent(body, sig, h.WebhookSecret)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("signature_failed").Inc()
		h.Log.Warn("webhook signature verification failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Webhook signature verification failed")
		return
	}

	if err := h.Fulfillment.Process(r.Context(), event, getRequestID(r)); err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrMissingEmail), errors.Is(err, fulfillment.ErrMalformedEvent):
			metrics.WebhookEvents.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			// Storage failure: let the processor redeliver.
			metrics.WebhookEvents.WithLabelValues("error").Inc()
			h.Log.Error("webhook processing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to create order")
		}
		return
	}

	metrics.WebhookEvents.WithLabelValues("received").Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func getRequestID(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}
