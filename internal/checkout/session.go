package checkout

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v80"
	stripesession "github.com/stripe/stripe-go/v80/checkout/session"

	"github.com/hazelbloom/storefront/internal/catalog"
	"github.com/hazelbloom/storefront/internal/validate"
)

// Session is the redirect handle returned to the client. The pipeline
// stores nothing durable at this point; ID is the idempotency key the
// fulfillment webhook will use later.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type SessionRequest struct {
	Lines      []PricedLine
	Email      string
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

// Processor is the outbound payment-session call, kept narrow so tests
// can count invocations on a stub.
type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// StripeProcessor requests hosted Checkout Sessions from Stripe.
type StripeProcessor struct{}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	stripe.Key = secretKey
	return &StripeProcessor{}
}

func (p *StripeProcessor) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines))
	for _, l := range req.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(l.Title),
		}
		if l.Description != "" {
			product.Description = stripe.String(l.Description)
		}
		if l.Image != "" {
			product.Images = stripe.StringSlice([]string{l.Image})
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				ProductData: product,
				UnitAmount:  stripe.Int64(l.UnitAmount),
			},
			Quantity: stripe.Int64(int64(l.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		CustomerEmail:      stripe.String(req.Email),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := stripesession.New(params)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: s.ID, URL: s.URL}, nil
}

// Initiator packages validated, server-priced line items and shipping
// metadata into a processor session request.
type Initiator struct {
	Catalog   catalog.Reader
	Processor Processor
	BaseURL   string
}

// Create prices the cart and requests a hosted payment session. The
// success URL carries the processor's session-id placeholder so the
// confirmation page can look the session up. Validation failures (and
// pricing failures) return before any outbound call is attempted.
func (i *Initiator) Create(ctx context.Context, items []validate.CartItem, email string, shipping validate.ShippingInfo) (Session, error) {
	lines, err := PriceCart(ctx, i.Catalog, items)
	if err != nil {
		return Session{}, err
	}

	sess, err := i.Processor.CreateSession(ctx, SessionRequest{
		Lines:      lines,
		Email:      email,
		Metadata:   BuildMetadata(items, validate.SanitizeShipping(shipping)),
		SuccessURL: fmt.Sprintf("%s/success?session_id={CHECKOUT_SESSION_ID}", i.BaseURL),
		CancelURL:  fmt.Sprintf("%s/cart", i.BaseURL),
	})
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return sess, nil
}
