// Package fulfillment turns a verified "checkout completed" event from
// the payment processor into a durable order, exactly once. Delivery is
// at least once and may land on any instance, so deduplication lives in
// the order store's uniqueness constraint on the session id, never in
// memory.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"

	"github.com/hazelbloom/storefront/internal/catalog"
	"github.com/hazelbloom/storefront/internal/checkout"
	"github.com/hazelbloom/storefront/internal/identity"
	kafkax "github.com/hazelbloom/storefront/internal/kafka"
	"github.com/hazelbloom/storefront/internal/metrics"
	"github.com/hazelbloom/storefront/internal/orders"
)

// EventCheckoutCompleted is the only event type that triggers
// fulfillment; everything else is acknowledged and ignored.
const EventCheckoutCompleted = "checkout.session.completed"

var (
	// ErrMissingEmail: an order cannot be attributed without the paying
	// email. The handler surfaces this as 400 so the processor retries
	// once the session data is investigated.
	ErrMissingEmail = errors.New("no customer email in session")

	ErrMalformedEvent = errors.New("malformed event payload")
)

// OrderStore is the durable write surface fulfillment needs. The
// production implementation is orders.Repo; tests swap in memory.
type OrderStore interface {
	InsertOrder(ctx context.Context, o orders.Order) error
	InsertLineItems(ctx context.Context, orderID string, items []orders.LineItem) error
}

// Publisher fans the paid order out on the event bus. Fire and forget;
// fulfillment never fails because the bus is down.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Orders    OrderStore
	Catalog   catalog.Reader
	Identity  identity.Resolver
	Publisher Publisher
	Producer  string // event envelope producer name
	Log       *zap.Logger
}

// Process handles one authenticated event. Returning nil means the
// caller should acknowledge (200), including for duplicates and
// ignorable event types, since any other response makes the processor
// retry forever. The only non-nil returns are ErrMalformedEvent and
// ErrMissingEmail.
//
// Partial downstream failures (line items, identity, publish) are
// logged and swallowed: the order row is the authoritative record of
// payment, and missing line items is a degraded but recoverable state.
func (s *Service) Process(ctx context.Context, event stripe.Event, traceID string) error {
	if string(event.Type) != EventCheckoutCompleted {
		metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		s.Log.Debug("ignoring webhook event", zap.String("event_type", string(event.Type)))
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		s.Log.Error("failed to unmarshal checkout session", zap.Error(err))
		return ErrMalformedEvent
	}
	if sess.CustomerEmail == "" {
		s.Log.Error("no customer email in session", zap.String("session_id", sess.ID))
		return ErrMissingEmail
	}

	// Best effort only: a miss or a lookup error both mean guest
	// checkout.
	var userID *string
	if id, err := s.Identity.ResolveEmail(ctx, sess.CustomerEmail); err != nil {
		s.Log.Warn("identity resolution failed", zap.String("email", sess.CustomerEmail), zap.Error(err))
	} else {
		userID = id
	}

	shipping := checkout.ShippingFromMetadata(sess.Metadata)
	order := orders.Order{
		ID:           uuid.NewString(),
		SessionID:    sess.ID,
		UserID:       userID,
		Email:        sess.CustomerEmail,
		Amount:       decimal.New(sess.AmountTotal, -2),
		Status:       orders.StatusPaid,
		CustomerName: shipping.Name,
		Phone:        shipping.Phone,
		AddressLine1: shipping.AddressLine1,
		AddressLine2: shipping.AddressLine2,
		City:         shipping.City,
		State:        shipping.State,
		PostalCode:   shipping.PostalCode,
		Country:      shipping.Country,
		Metadata:     sess.Metadata,
	}

	if err := s.Orders.InsertOrder(ctx, order); err != nil {
		if errors.Is(err, orders.ErrDuplicateSession) {
			// Processor retry; the first delivery already won.
			metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
			s.Log.Info("duplicate webhook delivery",
				zap.String("session_id", sess.ID),
				zap.String("trace_id", traceID))
			return nil
		}
		return err
	}
	metrics.OrdersCreated.Inc()
	s.Log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("session_id", sess.ID),
		zap.String("amount", order.Amount.StringFixed(2)))

	items := s.materializeLineItems(ctx, order.ID, sess.Metadata)

	s.publishPaid(order, items, traceID)
	return nil
}

// materializeLineItems parses the metadata cart snapshot and prices it
// from the current catalog read. Any failure here degrades the order to
// item-less instead of failing it.
func (s *Service) materializeLineItems(ctx context.Context, orderID string, md map[string]string) []orders.ItemQty {
	cart, err := checkout.ParseMetadataItems(md)
	if err != nil {
		s.Log.Warn("skipping line items", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(cart))
	for _, it := range cart {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		s.Log.Error("product lookup for line items failed", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}

	lineItems := make([]orders.LineItem, 0, len(cart))
	published := make([]orders.ItemQty, 0, len(cart))
	for _, it := range cart {
		unitPrice := decimal.Zero
		if p, ok := products[it.ProductID]; ok {
			unitPrice = p.Price
		}
		lineItems = append(lineItems, orders.LineItem{
			OrderID:   orderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: unitPrice,
		})
		published = append(published, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}

	if err := s.Orders.InsertLineItems(ctx, orderID, lineItems); err != nil {
		s.Log.Error("failed to create order items", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}
	return published
}

func (s *Service) publishPaid(order orders.Order, items []orders.ItemQty, traceID string) {
	if s.Publisher == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPaid,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Producer,
		TraceID:       traceID,
		CorrelationID: order.ID,
	}
	ev.Payload = kafkax.MustMarshal(orders.OrderPaidPayload{
		OrderID:     order.ID,
		SessionID:   order.SessionID,
		Email:       order.Email,
		AmountCents: order.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Items:       items,
	})
	s.Publisher.Publish(orders.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPaid)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
