package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/pkg/enums"
)

// Order is a checkout attempt tied to exactly one gateway order.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Total            decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Currency         string            `gorm:"column:currency;not null"`
	ShippingAddress  string            `gorm:"column:shipping_address;not null"`
	Phone            string            `gorm:"column:phone;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	GatewayOrderID   string            `gorm:"column:gateway_order_id;not null;uniqueIndex"`
	GatewayPaymentID *string           `gorm:"column:gateway_payment_id"`
	PaidAt           *time.Time        `gorm:"column:paid_at"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
