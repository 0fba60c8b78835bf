package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the durable record of a paid checkout. Exactly one exists
// per payment-processor session id; that uniqueness is enforced in the
// database, not in memory.
type Order struct {
	ID        string          `json:"id"`
	SessionID string          `json:"stripe_session_id"`
	UserID    *string         `json:"user_id"` // nil for guest checkout
	Email     string          `json:"email"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`

	CustomerName string `json:"customer_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	AddressLine1 string `json:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// LineItem snapshots a product at fulfillment time. UnitPrice is what
// the catalog said when the order materialized, not a live reference.
type LineItem struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderWithItems is the shape the orders listing returns.
type OrderWithItems struct {
	Order
	Items []LineItem `json:"order_items"`
}
