package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/enums"
	"github.com/mealicious/storefront-api/pkg/pagination"
)

// OrderItemDTO is an immutable price snapshot line.
type OrderItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	Status           enums.OrderStatus `json:"status"`
	Total            decimal.Decimal   `json:"total"`
	Currency         string            `json:"currency"`
	ShippingAddress  string            `json:"shipping_address"`
	Phone            string            `json:"phone"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayPaymentID *string           `json:"gateway_payment_id,omitempty"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	Items            []OrderItemDTO    `json:"items,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// CreateInput is the checkout request. ClientTotal is a display hint only.
type CreateInput struct {
	UserID          uuid.UUID
	ShippingAddress string
	Phone           string
	ClientTotal     *decimal.Decimal
}

// GatewayOrderDTO carries what the client needs to open the payment sheet.
type GatewayOrderDTO struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// CreateResult pairs the local order with its gateway order.
type CreateResult struct {
	Order   OrderDTO        `json:"order"`
	Gateway GatewayOrderDTO `json:"gateway"`
}

// ListFilter scopes order listings. Nil fields are not applied.
type ListFilter struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
}

// ToMinorUnits converts a major-unit amount to paise, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromModel maps an order row, including any preloaded items.
func FromModel(m *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:               m.ID,
		UserID:           m.UserID,
		Status:           m.Status,
		Total:            m.Total,
		Currency:         m.Currency,
		ShippingAddress:  m.ShippingAddress,
		Phone:            m.Phone,
		GatewayOrderID:   m.GatewayOrderID,
		GatewayPaymentID: m.GatewayPaymentID,
		PaidAt:           m.PaidAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if len(m.Items) > 0 {
		dto.Items = make([]OrderItemDTO, 0, len(m.Items))
		for _, item := range m.Items {
			dto.Items = append(dto.Items, OrderItemDTO{
				ID:          item.ID,
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				LineTotal:   item.LineTotal,
			})
		}
	}
	return dto
}

func cursorOf(o OrderDTO) pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}
