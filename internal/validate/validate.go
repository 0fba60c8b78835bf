// Package validate holds the pure input checks the checkout pipeline
// runs before any expensive work. Every function is total: malformed
// input yields a verdict, never a panic, and nothing here does I/O.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

const maxEmailLen = 254

var (
	// RFC 5322 simplified.
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

	uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	phoneRe = regexp.MustCompile(`^[\d\s\-\(\)\+\.]{10,25}$`)
	digitRe = regexp.MustCompile(`\D`)

	postalGenericRe = regexp.MustCompile(`(?i)^[A-Z0-9\s\-]{2,15}$`)
	postalUSRe      = regexp.MustCompile(`^\d{5}(-?\d{4})?$`)
	postalCARe      = regexp.MustCompile(`(?i)^[A-Z]\d[A-Z]\s*\d[A-Z]\d$`)
	postalUKRe      = regexp.MustCompile(`(?i)^[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}$`)

	jsSchemeRe     = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerRe = regexp.MustCompile(`(?i)on\w+\s*=`)
)

func Email(email string) bool {
	if email == "" || len(email) > maxEmailLen {
		return false
	}
	return emailRe.MatchString(email)
}

// Identifier reports whether s is a UUID-shaped key. Every product and
// order reference goes through this before it touches storage.
func Identifier(s string) bool {
	return s != "" && uuidRe.MatchString(s)
}

func PhoneNumber(phone string) bool {
	if phone == "" {
		return false
	}
	if len(digitRe.ReplaceAllString(phone, "")) < 10 {
		return false
	}
	return phoneRe.MatchString(phone)
}

// PostalCode applies the strict pattern for countries that have one and
// a lenient alphanumeric check everywhere else.
func PostalCode(code, country string) bool {
	code = strings.TrimSpace(code)
	if len(code) < 2 || len(code) > 15 {
		return false
	}
	switch country {
	case "US":
		return postalUSRe.MatchString(code)
	case "CA":
		return postalCARe.MatchString(code)
	case "UK", "GB":
		return postalUKRe.MatchString(code)
	}
	return postalGenericRe.MatchString(code)
}

type ShippingInfo struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

// ShippingInfoErrors aggregates the per-field checks. The order of
// checks is fixed so callers (and tests) can rely on exact messages.
func ShippingInfoErrors(info ShippingInfo) []string {
	var errs []string

	switch name := strings.TrimSpace(info.Name); {
	case name == "":
		errs = append(errs, "Full name is required")
	case len(name) < 2:
		errs = append(errs, "Name must be at least 2 characters")
	case len(info.Name) > 100:
		errs = append(errs, "Name must not exceed 100 characters")
	}

	if strings.TrimSpace(info.Phone) == "" {
		errs = append(errs, "Phone number is required")
	} else if !PhoneNumber(info.Phone) {
		errs = append(errs, "Phone number must be at least 10 digits (e.g., (555) 123-4567 or +1-555-123-4567)")
	}

	switch addr := strings.TrimSpace(info.AddressLine1); {
	case addr == "":
		errs = append(errs, "Street address is required")
	case len(addr) < 3:
		errs = append(errs, "Address must be at least 3 characters")
	case len(info.AddressLine1) > 200:
		errs = append(errs, "Address line 1 must not exceed 200 characters")
	}

	if len(info.AddressLine2) > 200 {
		errs = append(errs, "Address line 2 must not exceed 200 characters")
	}

	switch city := strings.TrimSpace(info.City); {
	case city == "":
		errs = append(errs, "City is required")
	case len(city) < 2:
		errs = append(errs, "City must be at least 2 characters")
	case len(info.City) > 100:
		errs = append(errs, "City must not exceed 100 characters")
	}

	switch state := strings.TrimSpace(info.State); {
	case state == "":
		errs = append(errs, "State/Province is required")
	case len(state) < 2:
		errs = append(errs, "State/Province must be at least 2 characters")
	case len(info.State) > 100:
		errs = append(errs, "State/Province must not exceed 100 characters")
	}

	if strings.TrimSpace(info.PostalCode) == "" {
		errs = append(errs, "Postal/ZIP code is required")
	} else if !PostalCode(info.PostalCode, info.Country) {
		errs = append(errs, "Postal/ZIP code must be 2-15 characters (e.g., 12345, 12345-6789, A1B 2C3)")
	}

	if strings.TrimSpace(info.Country) == "" {
		errs = append(errs, "Country is required")
	} else if len(strings.TrimSpace(info.Country)) != 2 {
		errs = append(errs, "Country must be a 2-letter code (e.g., US, CA, GB)")
	}

	return errs
}

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

const (
	maxCartItems = 100
	maxItemQty   = 999
	minItemQty   = 1
)

// CartItemsErrors checks the untrusted cart payload. Client-supplied
// prices are not part of the shape at all; quantity bounds and
// identifier format are the only things the client may assert.
func CartItemsErrors(items []CartItem) []string {
	if items == nil {
		return []string{"Cart items must be an array"}
	}
	if len(items) == 0 {
		return []string{"Cart is empty"}
	}
	if len(items) > maxCartItems {
		return []string{"Cart cannot contain more than 100 items"}
	}

	var errs []string
	for i, item := range items {
		if !Identifier(item.ProductID) {
			errs = append(errs, fmt.Sprintf("Item %d: Invalid product ID", i+1))
		}
		if item.Quantity < minItemQty {
			errs = append(errs, fmt.Sprintf("Item %d: Number must be at least %d", i+1, minItemQty))
		} else if item.Quantity > maxItemQty {
			errs = append(errs, fmt.Sprintf("Item %d: Number must not exceed %d", i+1, maxItemQty))
		}
	}
	return errs
}

// SanitizeString trims, truncates, and strips the substrings that would
// turn an echoed value into stored XSS (angle brackets, javascript:
// scheme, inline event handlers). Defense in depth for strings that end
// up in the processor's hosted UI or the admin UI; not an HTML
// sanitizer. Always returns a new value.
func SanitizeString(input string, maxLength int) string {
	s := strings.TrimSpace(input)
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = jsSchemeRe.ReplaceAllString(s, "")
	s = eventHandlerRe.ReplaceAllString(s, "")
	return s
}

// SanitizeShipping returns the bounded, scrubbed snapshot that rides in
// the checkout session metadata.
func SanitizeShipping(info ShippingInfo) ShippingInfo {
	return ShippingInfo{
		Name:         SanitizeString(info.Name, 100),
		Phone:        SanitizeString(info.Phone, 20),
		AddressLine1: SanitizeString(info.AddressLine1, 200),
		AddressLine2: SanitizeString(info.AddressLine2, 200),
		City:         SanitizeString(info.City, 100),
		State:        SanitizeString(info.State, 100),
		PostalCode:   SanitizeString(info.PostalCode, 20),
		Country:      strings.ToUpper(SanitizeString(info.Country, 2)),
	}
}
