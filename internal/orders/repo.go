package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/enums"
	"github.com/mealicious/storefront-api/pkg/pagination"
)

// GatewayOrderUniqueIndex guards one local order per gateway order.
const GatewayOrderUniqueIndex = "ux_orders_gateway_order_id"

type repository struct {
	db *gorm.DB
}

// NewRepository constructs an order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its item snapshots.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND user_id = ?", id, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByGatewayOrderIDForUser(ctx context.Context, gatewayOrderID string, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ? AND user_id = ?", gatewayOrderID, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// List returns a newest-first page of orders without items.
func (r *repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	var rows []models.Order
	if err := pagination.Apply(query, "", cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionStatus moves the order only if it is still in from.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// MarkPaidByID moves a PENDING order to PAID. It reports false when the order
// was not PENDING, which callers treat as already reconciled.
func (r *repository) MarkPaidByID(ctx context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":             enums.OrderStatusPaid,
			"gateway_payment_id": paymentID,
			"paid_at":            paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaidByGatewayOrder applies MarkPaidByID to every PENDING order for the
// gateway order and returns the rows it moved. Zero rows is not an error.
func (r *repository) MarkPaidByGatewayOrder(ctx context.Context, gatewayOrderID, paymentID string, paidAt time.Time) ([]models.Order, error) {
	var candidates []models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_order_id = ? AND status = ?", gatewayOrderID, enums.OrderStatusPending).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	moved := make([]models.Order, 0, len(candidates))
	for _, order := range candidates {
		ok, err := r.MarkPaidByID(ctx, order.ID, paymentID, paidAt)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		order.Status = enums.OrderStatusPaid
		order.GatewayPaymentID = &paymentID
		order.PaidAt = &paidAt
		moved = append(moved, order)
	}
	return moved, nil
}

// HasDeliveredOrderWithProduct reports whether the user received the product.
func (r *repository) HasDeliveredOrderWithProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND orders.status = ? AND order_items.product_id = ?",
			userID, enums.OrderStatusDelivered, productID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
