package checkout

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/hazelbloom/storefront/internal/validate"
)

// The metadata bag rides inside the payment processor's checkout
// session and comes back verbatim on the fulfillment webhook. It
// carries {productId, quantity} pairs plus the sanitized shipping
// snapshot. Prices are not part of it; they are re-derived from the
// catalog at fulfillment time. The schema is versioned so a future shape change
// does not break in-flight sessions.

const metadataVersion = 1

var (
	ErrNoLineItems      = errors.New("metadata carries no line items")
	ErrBadMetadataItems = errors.New("malformed items in metadata")
)

func BuildMetadata(items []validate.CartItem, shipping validate.ShippingInfo) map[string]string {
	pairs := make([]validate.CartItem, len(items))
	for i, it := range items {
		pairs[i] = validate.CartItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	b, _ := json.Marshal(pairs)

	return map[string]string{
		"schemaVersion": strconv.Itoa(metadataVersion),
		"items":         string(b),
		"customerName":  shipping.Name,
		"phone":         shipping.Phone,
		"addressLine1":  shipping.AddressLine1,
		"addressLine2":  shipping.AddressLine2,
		"city":          shipping.City,
		"state":         shipping.State,
		"postalCode":    shipping.PostalCode,
		"country":       shipping.Country,
	}
}

// ParseMetadataItems deserializes the cart snapshot defensively. A
// missing, non-array, or empty payload is an error the caller treats as
// "no line items", never as a reason to fail the order itself.
func ParseMetadataItems(md map[string]string) ([]validate.CartItem, error) {
	raw, ok := md["items"]
	if !ok || raw == "" {
		return nil, ErrNoLineItems
	}
	var items []validate.CartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, ErrBadMetadataItems
	}
	if len(items) == 0 {
		return nil, ErrNoLineItems
	}
	for _, it := range items {
		if !validate.Identifier(it.ProductID) || it.Quantity < 1 {
			return nil, ErrBadMetadataItems
		}
	}
	return items, nil
}

// ShippingFromMetadata rebuilds the shipping snapshot. Absent keys
// yield empty fields; the order record tolerates that.
func ShippingFromMetadata(md map[string]string) validate.ShippingInfo {
	return validate.ShippingInfo{
		Name:         md["customerName"],
		Phone:        md["phone"],
		AddressLine1: md["addressLine1"],
		AddressLine2: md["addressLine2"],
		City:         md["city"],
		State:        md["state"],
		PostalCode:   md["postalCode"],
		Country:      md["country"],
	}
}
