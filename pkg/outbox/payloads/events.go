package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mealicious/storefront-api/pkg/enums"
)

// OrderCreatedEvent signals a PENDING order backed by a gateway order.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID       `json:"order_id"`
	UserID         uuid.UUID       `json:"user_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	ItemCount      int             `json:"item_count"`
}

// OrderPaidEvent is emitted once per order when it first reaches PAID.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	Source           string    `json:"source"`
	PaidAt           time.Time `json:"paid_at"`
}

// OrderStatusChangedEvent records an admin-driven lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// GatewayOrderOrphanedEvent flags a gateway order with no local order so it can be reconciled.
type GatewayOrderOrphanedEvent struct {
	GatewayOrderID string    `json:"gateway_order_id"`
	UserID         uuid.UUID `json:"user_id"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency"`
	Receipt        string    `json:"receipt"`
	Reason         string    `json:"reason"`
}

type ReviewCreatedEvent struct {
	ReviewID  uuid.UUID `json:"review_id"`
	ProductID uuid.UUID `json:"product_id"`
	UserID    uuid.UUID `json:"user_id"`
	Rating    int       `json:"rating"`
}
