// Package checkout implements the server side of checkout-session
// creation: pricing the cart from the authoritative catalog and handing
// the priced lines to the external payment processor. No durable writes
// happen here; the order only exists once payment is confirmed.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hazelbloom/storefront/internal/catalog"
	"github.com/hazelbloom/storefront/internal/validate"
)

var (
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidProductPrice   = errors.New("invalid product price")
)

var maxPrice = decimal.NewFromInt(999999)

// PricedLine is a server-priced cart line. UnitAmount is in minor units
// (cents); the client's own notion of price never reaches this struct.
type PricedLine struct {
	ProductID   string
	Title       string
	Description string
	Image       string
	UnitAmount  int64
	Quantity    int
}

// PriceCart resolves every cart line against the catalog in one batch
// read and computes canonical pricing. Any failing line aborts the
// whole attempt; no partial session is ever created.
//
// Inventory is only checked here, not reserved: two concurrent
// checkouts can both pass this gate for the last unit. Known gap,
// inventory reservation is out of scope.
func PriceCart(ctx context.Context, reader catalog.Reader, items []validate.CartItem) ([]PricedLine, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	products, err := reader.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}

	lines := make([]PricedLine, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		if p.Inventory < it.Quantity {
			return nil, fmt.Errorf("%w for product: %s", ErrInsufficientInventory, p.Title)
		}
		if p.Price.LessThanOrEqual(decimal.Zero) || p.Price.GreaterThan(maxPrice) {
			// Corrupted catalog data; refuse rather than charge it.
			return nil, fmt.Errorf("%w: %s", ErrInvalidProductPrice, it.ProductID)
		}

		lines = append(lines, PricedLine{
			ProductID:   it.ProductID,
			Title:       validate.SanitizeString(p.Title, 200),
			Description: validate.SanitizeString(p.Description, 500),
			Image:       p.Image,
			UnitAmount:  p.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
			Quantity:    it.Quantity,
		})
	}
	return lines, nil
}

// Total is the session total in minor units.
func Total(lines []PricedLine) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.UnitAmount * int64(l.Quantity)
	}
	return sum
}
