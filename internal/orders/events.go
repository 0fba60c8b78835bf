package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPaid          = "OrderPaid"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"` // RFC3339
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// OrderPaidPayload fans a freshly materialized order out to downstream
// consumers (notifications, dashboards). Amount in minor units, same as
// the processor reports it.
type OrderPaidPayload struct {
	OrderID     string    `json:"order_id"`
	SessionID   string    `json:"session_id"`
	Email       string    `json:"email"`
	AmountCents int64     `json:"amount_cents"`
	Items       []ItemQty `json:"items,omitempty"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}
