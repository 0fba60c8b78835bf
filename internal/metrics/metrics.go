package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_sessions_total",
		Help: "Checkout-session creation attempts by outcome.",
	}, []string{"outcome"}) // created, validation_rejected, inventory_rejected, upstream_error

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_webhook_events_total",
		Help: "Fulfillment webhook deliveries by outcome.",
	}, []string{"outcome"}) // received, duplicate, ignored, signature_failed, rejected, error

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_rate_limited_total",
		Help: "Requests denied by admission control, by endpoint class.",
	}, []string{"class"})

	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_created_total",
		Help: "Orders durably materialized from paid checkouts.",
	})
)
