package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/enums"
	"github.com/mealicious/storefront-api/pkg/outbox"
	"github.com/mealicious/storefront-api/pkg/pagination"
	"github.com/mealicious/storefront-api/pkg/razorpay"
)

// Repository defines the order persistence surface shared by checkout and payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error)
	FindByGatewayOrderIDForUser(ctx context.Context, gatewayOrderID string, userID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (int64, error)
	MarkPaidByID(ctx context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (bool, error)
	MarkPaidByGatewayOrder(ctx context.Context, gatewayOrderID, paymentID string, paidAt time.Time) ([]models.Order, error)
	HasDeliveredOrderWithProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

// Gateway creates payable orders with the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
	KeyID() string
}

type cartLoader interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type checkoutRecorder interface {
	IncOrderCreated()
	IncGatewayFailure(reason string)
	IncOrphanedGatewayOrder()
	ObserveGatewayLatency(d time.Duration)
}
