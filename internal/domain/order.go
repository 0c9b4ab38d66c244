package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderFulfilled  OrderStatus = "fulfilled"
	OrderCancelled  OrderStatus = "cancelled"
)

// OrderStatusTransitions is the allowed-next-status table. Statuses absent
// from a slice are unreachable from that state; fulfilled and cancelled are
// terminal.
var OrderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped},
	OrderShipped:    {OrderDelivered},
	OrderDelivered:  {OrderFulfilled},
	OrderFulfilled:  {},
	OrderCancelled:  {},
}

// CanTransition reports whether from->to is an edge in the transition table.
// Self-transitions are never allowed.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range OrderStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidOrderStatus reports whether s names a known status at all.
func ValidOrderStatus(s OrderStatus) bool {
	_, ok := OrderStatusTransitions[s]
	return ok
}

// LineItem is a point-in-time snapshot of a product at order time. It is
// embedded in the order row as JSON and never mutated afterwards; later
// product edits do not reach back into existing orders.
type LineItem struct {
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// Validate guards the JSON column on the way out of the database.
func (li LineItem) Validate() error {
	if li.ProductID == uuid.Nil {
		return InvalidInput("line item missing product id")
	}
	if li.Quantity <= 0 {
		return InvalidInput("line item quantity must be positive")
	}
	if li.UnitPrice.IsNegative() {
		return InvalidInput("line item price must not be negative")
	}
	return nil
}

type Order struct {
	ID              uuid.UUID
	StoreID         uuid.UUID
	OrderNumber     string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	DeliveryAddress string
	Notes           string
	Items           []LineItem
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	ShippingFee     decimal.Decimal
	PlatformFee     decimal.Decimal
	Total           decimal.Decimal
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// IsCancellable mirrors the cancel rule: only orders that have not entered
// fulfillment may be cancelled.
func (o *Order) IsCancellable() bool {
	return o.Status == OrderPending || o.Status == OrderConfirmed
}

// TrackingEvent is one derived entry of a public tracking timeline.
type TrackingEvent struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}
