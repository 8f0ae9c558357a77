package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/internal/cart"
	"github.com/mealicious/storefront-api/pkg/config"
	"github.com/mealicious/storefront-api/pkg/db"
	"github.com/mealicious/storefront-api/pkg/db/dbtest"
	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/enums"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
	"github.com/mealicious/storefront-api/pkg/outbox"
	"github.com/mealicious/storefront-api/pkg/pagination"
	"github.com/mealicious/storefront-api/pkg/razorpay"
)

type stubGateway struct {
	orderID string
	err     error
	calls   []razorpay.CreateOrderRequest
}

func (g *stubGateway) CreateOrder(_ context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	id := g.orderID
	if id == "" {
		id = "order_" + uuid.NewString()[:8]
	}
	return &razorpay.Order{ID: id, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

type stubRecorder struct {
	created        int
	orphaned       int
	gatewayReasons []string
	latencies      int
}

func (r *stubRecorder) IncOrderCreated() { r.created++ }

func (r *stubRecorder) IncGatewayFailure(reason string) {
	r.gatewayReasons = append(r.gatewayReasons, reason)
}

func (r *stubRecorder) IncOrphanedGatewayOrder() { r.orphaned++ }

func (r *stubRecorder) ObserveGatewayLatency(time.Duration) { r.latencies++ }

type orderFixture struct {
	conn    *gorm.DB
	svc     Service
	gateway *stubGateway
	metrics *stubRecorder
	user    *models.User
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	conn := dbtest.Open(t)
	gw := &stubGateway{}
	rec := &stubRecorder{}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Cart:     cart.NewRepository(conn),
		Gateway:  gw,
		Tx:       db.Wrap(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Metrics:  rec,
		Checkout: config.CheckoutConfig{Currency: "INR", MinAmountMinor: 100, SuccessURL: "https://shop.test/success"},
		Logger:   logger.Nop(),
		DB:       conn,
	})
	require.NoError(t, err)
	return &orderFixture{
		conn:    conn,
		svc:     svc,
		gateway: gw,
		metrics: rec,
		user:    dbtest.SeedUser(t, conn, "buyer@example.com"),
	}
}

func (f *orderFixture) addToCart(t *testing.T, product *models.Product, qty int) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.CartItem{UserID: f.user.ID, ProductID: product.ID, Quantity: qty}).Error)
}

func (f *orderFixture) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func validInput(userID uuid.UUID) CreateInput {
	return CreateInput{UserID: userID, ShippingAddress: "12 MG Road, Pune", Phone: "+919800000000"}
}

func TestToMinorUnitsRoundsHalfAwayFromZero(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{
		"19.99":  1999,
		"0.995":  100,
		"10.005": 1001,
		"10.004": 1000,
		"1":      100,
	}
	for in, want := range cases {
		if got := ToMinorUnits(decimal.RequireFromString(in)); got != want {
			t.Fatalf("ToMinorUnits(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestCreateBelowMinimumWritesNothing(t *testing.T) {
	f := newOrderFixture(t)
	f.addToCart(t, dbtest.SeedProduct(t, f.conn, "Mint", "0.50"), 1)

	_, err := f.svc.Create(context.Background(), validInput(f.user.ID))
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeBelowMinimumAmount, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.00", details["minimum_amount"])
	assert.Equal(t, "0.50", details["current_amount"])
	assert.Equal(t, "INR", details["currency"])

	assert.Empty(t, f.gateway.calls)
	assert.Zero(t, f.countRows(t, &models.Order{}))
	assert.Zero(t, f.countRows(t, &models.OrderItem{}))
}

func TestCreateEmptyCart(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.svc.Create(context.Background(), validInput(f.user.ID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))
	assert.Empty(t, f.gateway.calls)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.svc.Create(context.Background(), CreateInput{UserID: uuid.Nil})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.Create(context.Background(), CreateInput{UserID: f.user.ID, Phone: "1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(context.Background(), CreateInput{UserID: f.user.ID, ShippingAddress: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateSnapshotsPricesAndIgnoresClientTotal(t *testing.T) {
	f := newOrderFixture(t)
	chips := dbtest.SeedProduct(t, f.conn, "Masala Chips", "40.00")
	lassi := dbtest.SeedProduct(t, f.conn, "Mango Lassi", "55.25")
	f.addToCart(t, chips, 2)
	f.addToCart(t, lassi, 1)

	bogus := decimal.RequireFromString("1.00")
	input := validInput(f.user.ID)
	input.ClientTotal = &bogus

	res, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, f.gateway.calls, 1)
	call := f.gateway.calls[0]
	assert.Equal(t, int64(13525), call.Amount)
	assert.Equal(t, "INR", call.Currency)
	assert.Regexp(t, `^rcpt_[0-9A-Z]{26}$`, call.Receipt)

	assert.Equal(t, enums.OrderStatusPending, res.Order.Status)
	assert.True(t, res.Order.Total.Equal(decimal.RequireFromString("135.25")))
	assert.Equal(t, res.Gateway.ID, res.Order.GatewayOrderID)
	assert.Equal(t, int64(13525), res.Gateway.Amount)
	assert.Equal(t, "rzp_test_key", res.Gateway.KeyID)
	assert.Equal(t, 1, f.metrics.created)

	// Later price changes never touch the snapshot.
	require.NoError(t, f.conn.Model(chips).UpdateColumn("price", decimal.RequireFromString("99.00")).Error)

	got, err := f.svc.Get(context.Background(), f.user.ID, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	for _, item := range got.Items {
		if item.ProductID == chips.ID {
			assert.Equal(t, "Masala Chips", item.ProductName)
			assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("40")))
			assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("80")))
		}
	}
	assert.Equal(t, int64(1), f.countRows(t, &models.Order{}))

	events, err := outbox.NewRepository(f.conn).ListByAggregate(nil, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
}

func TestCreateGatewayFailureWritesNothing(t *testing.T) {
	f := newOrderFixture(t)
	f.addToCart(t, dbtest.SeedProduct(t, f.conn, "Chips", "10.00"), 1)
	f.gateway.err = &razorpay.APIError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "nope"}

	_, err := f.svc.Create(context.Background(), validInput(f.user.ID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.Equal(t, []string{"bad_request_error"}, f.metrics.gatewayReasons)
	assert.Zero(t, f.countRows(t, &models.Order{}))
	assert.Zero(t, f.countRows(t, &models.OutboxEvent{}))
}

func TestCreateTimeoutReason(t *testing.T) {
	f := newOrderFixture(t)
	f.addToCart(t, dbtest.SeedProduct(t, f.conn, "Chips", "10.00"), 1)
	f.gateway.err = errors.Join(errors.New("razorpay create order"), context.DeadlineExceeded)

	_, err := f.svc.Create(context.Background(), validInput(f.user.ID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.Equal(t, []string{"timeout"}, f.metrics.gatewayReasons)
}

func TestCreatePersistFailureRecordsOrphan(t *testing.T) {
	f := newOrderFixture(t)
	f.addToCart(t, dbtest.SeedProduct(t, f.conn, "Chips", "10.00"), 1)

	// A row already holding the gateway id forces the insert to fail.
	require.NoError(t, f.conn.Create(&models.Order{
		UserID: f.user.ID, Total: decimal.NewFromInt(1), Currency: "INR",
		ShippingAddress: "x", Phone: "y", Status: enums.OrderStatusPending, GatewayOrderID: "order_taken",
	}).Error)
	f.gateway.orderID = "order_taken"

	_, err := f.svc.Create(context.Background(), validInput(f.user.ID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
	assert.Equal(t, 1, f.metrics.orphaned)
	assert.Zero(t, f.metrics.created)
	assert.Equal(t, int64(1), f.countRows(t, &models.Order{}))
	assert.Zero(t, f.countRows(t, &models.OrderItem{}))

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventGatewayOrderOrphaned, events[0].EventType)
	assert.Equal(t, enums.AggregateGatewayOrder, events[0].AggregateType)
}

func TestGetIsOwnerScoped(t *testing.T) {
	f := newOrderFixture(t)
	f.addToCart(t, dbtest.SeedProduct(t, f.conn, "Chips", "10.00"), 1)
	res, err := f.svc.Create(context.Background(), validInput(f.user.ID))
	require.NoError(t, err)

	other := dbtest.SeedUser(t, f.conn, "other@example.com")
	_, err = f.svc.Get(context.Background(), other.ID, res.Order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListAndAdminList(t *testing.T) {
	f := newOrderFixture(t)
	product := dbtest.SeedProduct(t, f.conn, "Chips", "10.00")
	for i := 0; i < 3; i++ {
		f.addToCart(t, product, 1)
		_, err := f.svc.Create(context.Background(), validInput(f.user.ID))
		require.NoError(t, err)
		require.NoError(t, f.conn.Where("user_id = ?", f.user.ID).Delete(&models.CartItem{}).Error)
	}

	page, err := f.svc.List(context.Background(), f.user.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)

	next, err := f.svc.List(context.Background(), f.user.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, next.Items, 1)

	pending := enums.OrderStatusPending
	all, err := f.svc.AdminList(context.Background(), &pending, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 3)

	delivered := enums.OrderStatusDelivered
	none, err := f.svc.AdminList(context.Background(), &delivered, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	f := newOrderFixture(t)
	f.addToCart(t, dbtest.SeedProduct(t, f.conn, "Chips", "10.00"), 1)
	res, err := f.svc.Create(context.Background(), validInput(f.user.ID))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.svc.UpdateStatus(ctx, res.Order.ID, enums.OrderStatusShipped)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.Equal(t, map[string]any{"from": enums.OrderStatusPending, "to": enums.OrderStatusShipped}, typed.Details())

	_, err = f.svc.UpdateStatus(ctx, res.Order.ID, enums.OrderStatusPaid)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	updated, err := f.svc.UpdateStatus(ctx, res.Order.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, updated.Status)

	events, err := outbox.NewRepository(f.conn).ListByAggregate(nil, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	_, err = f.svc.UpdateStatus(ctx, uuid.New(), enums.OrderStatusCancelled)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.conn.Where("user_id = ?", f.user.ID).Delete(&models.CartItem{}).Error)
	f.addToCart(t, dbtest.SeedProduct(t, f.conn, "Makhana", "20.00"), 1)
	paid, err := f.svc.Create(ctx, validInput(f.user.ID))
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", paid.Order.ID).
		UpdateColumn("status", enums.OrderStatusPaid).Error)

	_, err = f.svc.UpdateStatus(ctx, paid.Order.ID, enums.OrderStatusCancelled)
	require.Error(t, err)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.Equal(t, map[string]any{"from": enums.OrderStatusPaid, "to": enums.OrderStatusCancelled}, typed.Details())

	confirmed, err := f.svc.UpdateStatus(ctx, paid.Order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)
}
