package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/internal/orders"
	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/enums"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
	"github.com/mealicious/storefront-api/pkg/metrics"
	"github.com/mealicious/storefront-api/pkg/outbox"
	"github.com/mealicious/storefront-api/pkg/outbox/payloads"
	"github.com/mealicious/storefront-api/pkg/razorpay"
)

// WebhookConsumer names the dedupe scope for gateway deliveries.
const WebhookConsumer = "webhook:razorpay"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cartClearer interface {
	ClearCartTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
}

type deliveryGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, deliveryID string) (bool, error)
	Release(ctx context.Context, consumer, deliveryID string) error
}

type paymentRecorder interface {
	IncPaymentVerified(path string)
	IncDuplicateWebhook()
}

// Service reconciles gateway payments with local orders.
type Service interface {
	Verify(ctx context.Context, userID uuid.UUID, input VerifyInput) (*VerifyResult, error)
	HandleWebhook(ctx context.Context, input WebhookInput) (*WebhookResult, error)
}

// ServiceParams groups the payment service dependencies.
type ServiceParams struct {
	Orders        orders.Repository
	Cart          cartClearer
	Tx            txRunner
	Outbox        outboxPublisher
	Guard         deliveryGuard
	Metrics       paymentRecorder
	KeySecret     string
	WebhookSecret string
	SuccessURL    string
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	orders        orders.Repository
	cart          cartClearer
	tx            txRunner
	outbox        outboxPublisher
	guard         deliveryGuard
	metrics       paymentRecorder
	keySecret     string
	webhookSecret string
	successURL    string
	logg          *logger.Logger
	now           func() time.Time
}

// NewService builds a payment service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart clearer required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("webhook guard required")
	}
	if params.Metrics == nil {
		return nil, fmt.Errorf("payment metrics required")
	}
	if strings.TrimSpace(params.KeySecret) == "" {
		return nil, fmt.Errorf("razorpay key secret required")
	}
	if strings.TrimSpace(params.WebhookSecret) == "" {
		return nil, fmt.Errorf("razorpay webhook secret required")
	}
	if _, err := url.Parse(params.SuccessURL); err != nil || params.SuccessURL == "" {
		return nil, fmt.Errorf("checkout success url required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		orders:        params.Orders,
		cart:          params.Cart,
		tx:            params.Tx,
		outbox:        params.Outbox,
		guard:         params.Guard,
		metrics:       params.Metrics,
		keySecret:     params.KeySecret,
		webhookSecret: params.WebhookSecret,
		successURL:    params.SuccessURL,
		logg:          params.Logger,
		now:           now,
	}, nil
}

// Verify confirms a client-reported payment. Repeated calls for a paid order
// succeed without touching the order or the cart.
func (s *service) Verify(ctx context.Context, userID uuid.UUID, input VerifyInput) (*VerifyResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	gatewayOrderID := strings.TrimSpace(input.GatewayOrderID)
	paymentID := strings.TrimSpace(input.GatewayPaymentID)
	if gatewayOrderID == "" || paymentID == "" || strings.TrimSpace(input.Signature) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id, payment id and signature are required")
	}

	ctx = s.logg.WithOrder(s.logg.WithUserID(ctx, userID.String()), "", gatewayOrderID)
	if !razorpay.VerifyPaymentSignature(s.keySecret, gatewayOrderID, paymentID, input.Signature) {
		s.logg.Warn(ctx, "payment.signature_mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "payment signature verification failed")
	}

	order, err := s.orders.FindByGatewayOrderIDForUser(ctx, gatewayOrderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	ctx = s.logg.WithOrder(ctx, order.ID.String(), "")

	switch {
	case order.Status.IsPaid():
		s.logg.Info(ctx, "payment.already_verified")
		return s.result(order.ID), nil
	case order.Status == enums.OrderStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order was cancelled").
			WithDetails(map[string]any{"status": order.Status})
	}

	paidAt := s.now()
	var moved bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.orders.WithTx(tx).MarkPaidByID(ctx, order.ID, paymentID, paidAt)
		if err != nil || !ok {
			return err
		}
		moved = true
		return s.settle(ctx, tx, *order, paymentID, paidAt, metrics.VerifyPathClient)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
	}

	if moved {
		s.metrics.IncPaymentVerified(metrics.VerifyPathClient)
		s.logg.Info(ctx, "payment.verified")
	} else {
		s.logg.Info(ctx, "payment.verified_by_webhook_first")
	}
	return s.result(order.ID), nil
}

// HandleWebhook applies a signed gateway delivery at most once per event id.
func (s *service) HandleWebhook(ctx context.Context, input WebhookInput) (*WebhookResult, error) {
	if strings.TrimSpace(input.Signature) == "" ||
		!razorpay.VerifyWebhookSignature(s.webhookSecret, input.Body, input.Signature) {
		s.logg.Warn(ctx, "webhook.signature_mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "webhook signature verification failed")
	}

	event, err := razorpay.ParseWebhookEvent(input.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	eventID := event.DedupeID(strings.TrimSpace(input.EventID))
	if eventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event id is missing")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": eventID, "event": event.Event})
	result := &WebhookResult{EventID: eventID, Event: event.Event}

	duplicate, err := s.guard.CheckAndMarkProcessed(ctx, WebhookConsumer, eventID)
	guarded := err == nil
	switch {
	case err != nil:
		// The conditional update keeps processing safe without the guard.
		s.logg.Error(ctx, "webhook.guard_unavailable", err)
	case duplicate:
		s.metrics.IncDuplicateWebhook()
		s.logg.Info(ctx, "webhook.duplicate")
		result.Duplicate = true
		return result, nil
	}

	moved, err := s.dispatch(ctx, event)
	if err != nil {
		if guarded {
			if relErr := s.guard.Release(ctx, WebhookConsumer, eventID); relErr != nil {
				s.logg.Error(ctx, "webhook.guard_release_failed", relErr)
			}
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "process webhook")
	}
	result.OrdersMoved = moved
	return result, nil
}

func (s *service) dispatch(ctx context.Context, event *razorpay.WebhookEvent) (int, error) {
	if event.Event != razorpay.EventPaymentCaptured {
		s.logg.Info(ctx, "webhook.ignored")
		return 0, nil
	}
	payment, ok := event.PaymentEntity()
	if !ok || payment.OrderID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "payment.captured without payment entity")
	}
	ctx = s.logg.WithOrder(ctx, "", payment.OrderID)

	paidAt := s.now()
	var moved []models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		moved, err = s.orders.WithTx(tx).MarkPaidByGatewayOrder(ctx, payment.OrderID, payment.ID, paidAt)
		if err != nil {
			return err
		}
		for _, order := range moved {
			if err := s.settle(ctx, tx, order, payment.ID, paidAt, metrics.VerifyPathWebhook); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for range moved {
		s.metrics.IncPaymentVerified(metrics.VerifyPathWebhook)
	}
	s.logg.Info(s.logg.WithField(ctx, "orders_moved", len(moved)), "webhook.payment_captured")
	return len(moved), nil
}

// settle runs the side effects of a PENDING to PAID move inside its transaction.
func (s *service) settle(ctx context.Context, tx *gorm.DB, order models.Order, paymentID string, paidAt time.Time, source string) error {
	if _, err := s.cart.ClearCartTx(ctx, tx, order.UserID); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: enums.RoleCustomer.String()},
		OccurredAt:    paidAt,
		Data: payloads.OrderPaidEvent{
			OrderID:          order.ID,
			UserID:           order.UserID,
			GatewayOrderID:   order.GatewayOrderID,
			GatewayPaymentID: paymentID,
			Source:           source,
			PaidAt:           paidAt,
		},
	})
}

func (s *service) result(orderID uuid.UUID) *VerifyResult {
	return &VerifyResult{Success: true, OrderID: orderID, RedirectURL: redirectURL(s.successURL, orderID)}
}

func redirectURL(base string, orderID uuid.UUID) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("order_id", orderID.String())
	u.RawQuery = q.Encode()
	return u.String()
}
