package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/pkg/config"
	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/enums"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
	"github.com/mealicious/storefront-api/pkg/outbox"
	"github.com/mealicious/storefront-api/pkg/outbox/payloads"
	"github.com/mealicious/storefront-api/pkg/pagination"
	"github.com/mealicious/storefront-api/pkg/razorpay"
)

const receiptPrefix = "rcpt_"

// Service defines checkout and order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[OrderDTO], error)
	AdminList(ctx context.Context, status *enums.OrderStatus, params pagination.Params) (*pagination.Page[OrderDTO], error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*OrderDTO, error)
}

// ServiceParams groups the order service dependencies.
type ServiceParams struct {
	Repo     Repository
	Cart     cartLoader
	Gateway  Gateway
	Tx       txRunner
	Outbox   outboxPublisher
	Metrics  checkoutRecorder
	Checkout config.CheckoutConfig
	Logger   *logger.Logger
	// DB receives the best-effort orphan event when the order transaction fails.
	DB *gorm.DB
}

type service struct {
	repo     Repository
	cart     cartLoader
	gateway  Gateway
	tx       txRunner
	outbox   outboxPublisher
	metrics  checkoutRecorder
	checkout config.CheckoutConfig
	logg     *logger.Logger
	db       *gorm.DB
}

// NewService builds an order service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart loader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Metrics == nil {
		return nil, fmt.Errorf("checkout metrics required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if strings.TrimSpace(params.Checkout.Currency) == "" {
		return nil, fmt.Errorf("checkout currency required")
	}
	if params.Checkout.MinAmountMinor <= 0 {
		return nil, fmt.Errorf("checkout minimum amount must be positive")
	}
	return &service{
		repo:     params.Repo,
		cart:     params.Cart,
		gateway:  params.Gateway,
		tx:       params.Tx,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		checkout: params.Checkout,
		logg:     params.Logger,
		db:       params.DB,
	}, nil
}

// Create snapshots the server cart into a PENDING order backed by a gateway order.
// The gateway is called before any write, so a failure there leaves nothing behind.
func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	shipping := strings.TrimSpace(input.ShippingAddress)
	phone := strings.TrimSpace(input.Phone)
	if shipping == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}

	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	lines, err := s.cart.ListByUser(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	items, total, err := snapshotLines(lines)
	if err != nil {
		return nil, err
	}
	if input.ClientTotal != nil && !input.ClientTotal.Equal(total) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"client_total": input.ClientTotal.StringFixed(2),
			"server_total": total.StringFixed(2),
		}), "order.client_total_mismatch")
	}

	currency := s.checkout.Currency
	amountMinor := ToMinorUnits(total)
	if amountMinor < s.checkout.MinAmountMinor {
		return nil, pkgerrors.New(pkgerrors.CodeBelowMinimumAmount,
			fmt.Sprintf("order total %s %s is below the minimum of %s %s",
				total.StringFixed(2), currency, minorToMajor(s.checkout.MinAmountMinor), currency)).
			WithDetails(map[string]any{
				"minimum_amount": minorToMajor(s.checkout.MinAmountMinor),
				"current_amount": total.StringFixed(2),
				"currency":       currency,
			})
	}

	receipt := receiptPrefix + ulid.Make().String()
	started := time.Now()
	gwOrder, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Notes:    map[string]string{"user_id": input.UserID.String()},
	})
	s.metrics.ObserveGatewayLatency(time.Since(started))
	if err != nil {
		reason := gatewayFailureReason(err)
		s.metrics.IncGatewayFailure(reason)
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"amount_minor": amountMinor,
			"receipt":      receipt,
			"reason":       reason,
		}), "order.gateway_create_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway could not create the order")
	}

	order := &models.Order{
		UserID:          input.UserID,
		Total:           total,
		Currency:        currency,
		ShippingAddress: shipping,
		Phone:           phone,
		Status:          enums.OrderStatusPending,
		GatewayOrderID:  gwOrder.ID,
		Items:           items,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.RoleCustomer.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:        order.ID,
				UserID:         input.UserID,
				GatewayOrderID: gwOrder.ID,
				Total:          total,
				Currency:       currency,
				ItemCount:      len(items),
			},
		})
	})
	if err != nil {
		s.recordOrphan(ctx, input.UserID, gwOrder.ID, amountMinor, currency, receipt, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist order")
	}

	s.metrics.IncOrderCreated()
	s.logg.Info(s.logg.WithOrder(ctx, order.ID.String(), gwOrder.ID), "order.created")

	return &CreateResult{
		Order: FromModel(order),
		Gateway: GatewayOrderDTO{
			ID:       gwOrder.ID,
			Amount:   amountMinor,
			Currency: currency,
			KeyID:    s.gateway.KeyID(),
		},
	}, nil
}

// recordOrphan makes a gateway order without a local row visible for reconciliation.
func (s *service) recordOrphan(ctx context.Context, userID uuid.UUID, gatewayOrderID string, amountMinor int64, currency, receipt string, cause error) {
	s.metrics.IncOrphanedGatewayOrder()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"gateway_order_id": gatewayOrderID,
		"amount_minor":     amountMinor,
		"user_id":          userID.String(),
	})
	s.logg.Error(logCtx, "order.gateway_orphaned", cause)

	err := s.outbox.Emit(ctx, s.db.WithContext(ctx), outbox.DomainEvent{
		EventType:     enums.EventGatewayOrderOrphaned,
		AggregateType: enums.AggregateGatewayOrder,
		AggregateID:   uuid.NewSHA1(uuid.NameSpaceURL, []byte(gatewayOrderID)),
		Data: payloads.GatewayOrderOrphanedEvent{
			GatewayOrderID: gatewayOrderID,
			UserID:         userID,
			AmountMinor:    amountMinor,
			Currency:       currency,
			Receipt:        receipt,
			Reason:         cause.Error(),
		},
	})
	if err != nil {
		s.logg.Error(logCtx, "order.gateway_orphaned_event_failed", err)
	}
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.repo.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, mapOrderErr(err)
	}
	dto := FromModel(order)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return s.list(ctx, ListFilter{UserID: &userID}, params)
}

func (s *service) AdminList(ctx context.Context, status *enums.OrderStatus, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	return s.list(ctx, ListFilter{Status: status}, params)
}

func (s *service) list(ctx context.Context, filter ListFilter, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	items := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		items = append(items, FromModel(&rows[i]))
	}
	page := pagination.Build(items, params.Limit, cursorOf)
	return &page, nil
}

// UpdateStatus applies an admin transition. PAID is reserved for payment
// reconciliation and cannot be set here.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*OrderDTO, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderErr(err)
	}
	from := order.Status
	if next == enums.OrderStatusPaid || !from.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invalid order status transition").
			WithDetails(map[string]any{"from": from, "to": next})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).TransitionStatus(ctx, orderID, from, next)
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently").
				WithDetails(map[string]any{"from": from, "to": next})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{Role: enums.RoleAdmin.String()},
			Data:          payloads.OrderStatusChangedEvent{OrderID: orderID, From: from, To: next},
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrder(ctx, orderID.String(), order.GatewayOrderID), map[string]any{
		"from": from,
		"to":   next,
	}), "order.status_changed")

	order.Status = next
	dto := FromModel(order)
	return &dto, nil
}

// snapshotLines copies current prices into order items and sums the total.
func snapshotLines(lines []models.CartItem) ([]models.OrderItem, decimal.Decimal, error) {
	items := make([]models.OrderItem, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		if line.Product == nil {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		lineTotal := line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items = append(items, models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.Product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.Product.Price,
			LineTotal:   lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return items, total, nil
}

func minorToMajor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func gatewayFailureReason(err error) string {
	var apiErr *razorpay.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Code != "" {
			return strings.ToLower(apiErr.Code)
		}
		return "api_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

func mapOrderErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}
