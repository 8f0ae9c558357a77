package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/internal/cart"
	"github.com/mealicious/storefront-api/internal/orders"
	"github.com/mealicious/storefront-api/internal/products"
	"github.com/mealicious/storefront-api/pkg/db"
	"github.com/mealicious/storefront-api/pkg/db/dbtest"
	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/enums"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
	"github.com/mealicious/storefront-api/pkg/outbox"
	"github.com/mealicious/storefront-api/pkg/outbox/idempotency"
	"github.com/mealicious/storefront-api/pkg/razorpay"
)

const (
	testKeySecret     = "key_secret_test"
	testWebhookSecret = "whsec_test"
)

type memoryStore struct {
	values map[string]string
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "mealicious:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

type countingRecorder struct {
	verified   map[string]int
	duplicates int
}

func (r *countingRecorder) IncPaymentVerified(path string) {
	if r.verified == nil {
		r.verified = map[string]int{}
	}
	r.verified[path]++
}

func (r *countingRecorder) IncDuplicateWebhook() { r.duplicates++ }

// countingClearer records how many times a cart clear ran inside a settle.
type countingClearer struct {
	inner cartClearer
	calls int
	err   error
}

func (c *countingClearer) ClearCartTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return c.inner.ClearCartTx(ctx, tx, userID)
}

type paymentFixture struct {
	conn    *gorm.DB
	svc     Service
	store   *memoryStore
	metrics *countingRecorder
	clearer *countingClearer
	user    *models.User
	order   *models.Order
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.Nop()

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Repo:     cart.NewRepository(conn),
		Products: products.NewRepository(conn),
		Tx:       db.Wrap(conn),
		Logger:   logg,
	})
	require.NoError(t, err)

	store := newMemoryStore()
	guard, err := idempotency.NewManager(store, 24*time.Hour)
	require.NoError(t, err)

	rec := &countingRecorder{}
	clearer := &countingClearer{inner: cartSvc}
	svc, err := NewService(ServiceParams{
		Orders:        orders.NewRepository(conn),
		Cart:          clearer,
		Tx:            db.Wrap(conn),
		Outbox:        outbox.NewService(outbox.NewRepository(conn), logg),
		Guard:         guard,
		Metrics:       rec,
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
		SuccessURL:    "https://shop.test/checkout/success",
		Logger:        logg,
	})
	require.NoError(t, err)

	user := dbtest.SeedUser(t, conn, "payer@example.com")
	product := dbtest.SeedProduct(t, conn, "Chips", "25.00")
	require.NoError(t, conn.Create(&models.CartItem{UserID: user.ID, ProductID: product.ID, Quantity: 2}).Error)

	order := &models.Order{
		UserID:          user.ID,
		Total:           decimal.RequireFromString("50.00"),
		Currency:        "INR",
		ShippingAddress: "1 Park Street",
		Phone:           "+919811111111",
		Status:          enums.OrderStatusPending,
		GatewayOrderID:  "order_" + uuid.NewString()[:12],
	}
	require.NoError(t, conn.Create(order).Error)

	return &paymentFixture{conn: conn, svc: svc, store: store, metrics: rec, clearer: clearer, user: user, order: order}
}

func (f *paymentFixture) reload(t *testing.T) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", f.order.ID).Error)
	return order
}

func (f *paymentFixture) cartLines(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Where("user_id = ?", f.user.ID).Count(&n).Error)
	return n
}

func (f *paymentFixture) paidEvents(t *testing.T) int {
	t.Helper()
	events, err := outbox.NewRepository(f.conn).ListByAggregate(nil, f.order.ID)
	require.NoError(t, err)
	n := 0
	for _, e := range events {
		if e.EventType == enums.EventOrderPaid {
			n++
		}
	}
	return n
}

func signedVerify(orderID, paymentID string) VerifyInput {
	return VerifyInput{
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		Signature:        razorpay.Sign(testKeySecret, []byte(orderID+"|"+paymentID)),
	}
}

func capturedBody(t *testing.T, eventID, orderID, paymentID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":     eventID,
		"entity": "event",
		"event":  razorpay.EventPaymentCaptured,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id": paymentID, "order_id": orderID, "amount": 5000, "currency": "INR", "status": "captured",
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func signedWebhook(body []byte) WebhookInput {
	return WebhookInput{Body: body, Signature: razorpay.Sign(testWebhookSecret, body)}
}

func TestVerifyMarksPaidAndClearsCart(t *testing.T) {
	f := newPaymentFixture(t)

	res, err := f.svc.Verify(context.Background(), f.user.ID, signedVerify(f.order.GatewayOrderID, "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, f.order.ID, res.OrderID)

	redirect, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/checkout/success", redirect.Path)
	assert.Equal(t, f.order.ID.String(), redirect.Query().Get("order_id"))

	order := f.reload(t)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	require.NotNil(t, order.GatewayPaymentID)
	assert.Equal(t, "pay_1", *order.GatewayPaymentID)
	assert.NotNil(t, order.PaidAt)
	assert.Zero(t, f.cartLines(t))
	assert.Equal(t, 1, f.paidEvents(t))
	assert.Equal(t, 1, f.metrics.verified["client"])
}

func TestVerifyTwiceClearsCartOnce(t *testing.T) {
	f := newPaymentFixture(t)
	input := signedVerify(f.order.GatewayOrderID, "pay_1")

	_, err := f.svc.Verify(context.Background(), f.user.ID, input)
	require.NoError(t, err)

	// New items added after paying must survive a repeated verify.
	product := dbtest.SeedProduct(t, f.conn, "Nuts", "10.00")
	require.NoError(t, f.conn.Create(&models.CartItem{UserID: f.user.ID, ProductID: product.ID, Quantity: 1}).Error)

	res, err := f.svc.Verify(context.Background(), f.user.ID, input)
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, enums.OrderStatusPaid, f.reload(t).Status)
	assert.Equal(t, 1, f.clearer.calls)
	assert.Equal(t, int64(1), f.cartLines(t))
	assert.Equal(t, 1, f.paidEvents(t))
}

func TestVerifyTamperedSignatureLeavesPending(t *testing.T) {
	f := newPaymentFixture(t)
	input := signedVerify(f.order.GatewayOrderID, "pay_1")
	input.GatewayPaymentID = "pay_2"

	_, err := f.svc.Verify(context.Background(), f.user.ID, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))
	assert.Equal(t, enums.OrderStatusPending, f.reload(t).Status)
	assert.Equal(t, int64(1), f.cartLines(t))
	assert.Zero(t, f.clearer.calls)
}

func TestVerifyUnknownOrForeignOrder(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.Verify(context.Background(), f.user.ID, signedVerify("order_missing", "pay_1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	other := dbtest.SeedUser(t, f.conn, "thief@example.com")
	_, err = f.svc.Verify(context.Background(), other.ID, signedVerify(f.order.GatewayOrderID, "pay_1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, enums.OrderStatusPending, f.reload(t).Status)
}

func TestVerifyCancelledOrderConflicts(t *testing.T) {
	f := newPaymentFixture(t)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).
		UpdateColumn("status", enums.OrderStatusCancelled).Error)

	_, err := f.svc.Verify(context.Background(), f.user.ID, signedVerify(f.order.GatewayOrderID, "pay_1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestVerifyRollsBackWhenCartClearFails(t *testing.T) {
	f := newPaymentFixture(t)
	f.clearer.err = errors.New("locked")

	_, err := f.svc.Verify(context.Background(), f.user.ID, signedVerify(f.order.GatewayOrderID, "pay_1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
	assert.Equal(t, enums.OrderStatusPending, f.reload(t).Status)
	assert.Zero(t, f.paidEvents(t))
}

func TestWebhookCapturedMarksPaid(t *testing.T) {
	f := newPaymentFixture(t)

	res, err := f.svc.HandleWebhook(context.Background(), signedWebhook(capturedBody(t, "evt_1", f.order.GatewayOrderID, "pay_9")))
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrdersMoved)
	assert.False(t, res.Duplicate)

	order := f.reload(t)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.Equal(t, "pay_9", *order.GatewayPaymentID)
	assert.Zero(t, f.cartLines(t))
	assert.Equal(t, 1, f.metrics.verified["webhook"])
	assert.Contains(t, f.store.values, "mealicious:idempotency:webhook:razorpay:evt_1")
}

func TestWebhookDuplicateDeliveryIsNoop(t *testing.T) {
	f := newPaymentFixture(t)
	input := signedWebhook(capturedBody(t, "evt_1", f.order.GatewayOrderID, "pay_9"))

	_, err := f.svc.HandleWebhook(context.Background(), input)
	require.NoError(t, err)
	res, err := f.svc.HandleWebhook(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	assert.Equal(t, enums.OrderStatusPaid, f.reload(t).Status)
	assert.Equal(t, 1, f.metrics.duplicates)
	assert.Equal(t, 1, f.clearer.calls)
	assert.Equal(t, 1, f.paidEvents(t))
}

func TestWebhookAfterVerifyMovesNothing(t *testing.T) {
	f := newPaymentFixture(t)
	_, err := f.svc.Verify(context.Background(), f.user.ID, signedVerify(f.order.GatewayOrderID, "pay_1"))
	require.NoError(t, err)

	res, err := f.svc.HandleWebhook(context.Background(), signedWebhook(capturedBody(t, "evt_2", f.order.GatewayOrderID, "pay_1")))
	require.NoError(t, err)
	assert.Zero(t, res.OrdersMoved)
	assert.Equal(t, 1, f.paidEvents(t))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newPaymentFixture(t)
	body := capturedBody(t, "evt_1", f.order.GatewayOrderID, "pay_9")

	_, err := f.svc.HandleWebhook(context.Background(), WebhookInput{Body: body})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))

	_, err = f.svc.HandleWebhook(context.Background(), WebhookInput{Body: body, Signature: razorpay.Sign("wrong", body)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))

	assert.Equal(t, enums.OrderStatusPending, f.reload(t).Status)
	assert.Empty(t, f.store.values)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newPaymentFixture(t)
	body := []byte(`{"id":"evt_f","event":"payment.failed","payload":{}}`)

	res, err := f.svc.HandleWebhook(context.Background(), signedWebhook(body))
	require.NoError(t, err)
	assert.Equal(t, "payment.failed", res.Event)
	assert.Zero(t, res.OrdersMoved)
	assert.Equal(t, enums.OrderStatusPending, f.reload(t).Status)
}

func TestWebhookFailureReleasesGuard(t *testing.T) {
	f := newPaymentFixture(t)
	f.clearer.err = errors.New("locked")
	input := signedWebhook(capturedBody(t, "evt_1", f.order.GatewayOrderID, "pay_9"))
	input.EventID = "hdr_evt_1"

	_, err := f.svc.HandleWebhook(context.Background(), input)
	require.Error(t, err)
	assert.Empty(t, f.store.values)
	assert.Equal(t, enums.OrderStatusPending, f.reload(t).Status)

	f.clearer.err = nil
	res, err := f.svc.HandleWebhook(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "hdr_evt_1", res.EventID)
	assert.Equal(t, 1, res.OrdersMoved)
}

func TestWebhookProceedsWhenGuardUnavailable(t *testing.T) {
	f := newPaymentFixture(t)
	f.store.setErr = errors.New("connection refused")

	res, err := f.svc.HandleWebhook(context.Background(), signedWebhook(capturedBody(t, "evt_1", f.order.GatewayOrderID, "pay_9")))
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrdersMoved)
}
