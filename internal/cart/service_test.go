package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/internal/products"
	"github.com/mealicious/storefront-api/pkg/db"
	"github.com/mealicious/storefront-api/pkg/db/dbtest"
	"github.com/mealicious/storefront-api/pkg/db/models"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
)

type cartFixture struct {
	conn *gorm.DB
	svc  Service
	user *models.User
	p1   *models.Product
	p2   *models.Product
}

func newCartFixture(t *testing.T, wrap func(CartRepository) CartRepository) *cartFixture {
	t.Helper()
	conn := dbtest.Open(t)
	var repo CartRepository = NewRepository(conn)
	if wrap != nil {
		repo = wrap(repo)
	}
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Products: products.NewRepository(conn),
		Tx:       db.Wrap(conn),
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	return &cartFixture{
		conn: conn,
		svc:  svc,
		user: dbtest.SeedUser(t, conn, "shopper@example.com"),
		p1:   dbtest.SeedProduct(t, conn, "Masala Chips", "40.00"),
		p2:   dbtest.SeedProduct(t, conn, "Mango Lassi", "55.50"),
	}
}

func (f *cartFixture) rows(t *testing.T) []models.CartItem {
	t.Helper()
	var rows []models.CartItem
	require.NoError(t, f.conn.Where("user_id = ?", f.user.ID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func (f *cartFixture) quantityOf(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	for _, row := range f.rows(t) {
		if row.ProductID == productID {
			return row.Quantity
		}
	}
	return 0
}

// failingRepo fails the nth write issued inside a transaction.
type failingRepo struct {
	CartRepository
	failOn int
	writes *int
}

func (r *failingRepo) WithTx(tx *gorm.DB) CartRepository {
	return &failingRepo{CartRepository: r.CartRepository.WithTx(tx), failOn: r.failOn, writes: r.writes}
}

func (r *failingRepo) tick() error {
	*r.writes++
	if *r.writes == r.failOn {
		return errors.New("disk full")
	}
	return nil
}

func (r *failingRepo) Create(ctx context.Context, item *models.CartItem) error {
	if err := r.tick(); err != nil {
		return err
	}
	return r.CartRepository.Create(ctx, item)
}

func (r *failingRepo) IncrementQuantity(ctx context.Context, id uuid.UUID, delta int) error {
	if err := r.tick(); err != nil {
		return err
	}
	return r.CartRepository.IncrementQuantity(ctx, id, delta)
}

func TestAddItemTwiceKeepsOneRow(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 1)
	require.NoError(t, err)
	item, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 2)
	require.NoError(t, err)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Quantity)
	assert.Equal(t, 3, item.Quantity)
	require.NotNil(t, item.Product)
	assert.Equal(t, "Masala Chips", item.Product.Name)
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("120")))
}

// staleReadRepo hides existing lines from the first `misses` lookups, as if a
// concurrent writer committed between the lookup and the insert.
type staleReadRepo struct {
	CartRepository
	misses  *int
	creates *int
}

func (r *staleReadRepo) WithTx(tx *gorm.DB) CartRepository {
	return &staleReadRepo{CartRepository: r.CartRepository.WithTx(tx), misses: r.misses, creates: r.creates}
}

func (r *staleReadRepo) FindByUserAndProduct(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error) {
	if *r.misses > 0 {
		*r.misses--
		return nil, gorm.ErrRecordNotFound
	}
	return r.CartRepository.FindByUserAndProduct(ctx, userID, productID)
}

func (r *staleReadRepo) Create(ctx context.Context, item *models.CartItem) error {
	*r.creates++
	return r.CartRepository.Create(ctx, item)
}

func TestAddItemRetriesAfterConcurrentInsert(t *testing.T) {
	misses, creates := 1, 0
	f := newCartFixture(t, func(repo CartRepository) CartRepository {
		return &staleReadRepo{CartRepository: repo, misses: &misses, creates: &creates}
	})
	require.NoError(t, f.conn.Create(&models.CartItem{UserID: f.user.ID, ProductID: f.p1.ID, Quantity: 2}).Error)

	item, err := f.svc.AddItem(context.Background(), f.user.ID, f.p1.ID, 3)
	require.NoError(t, err)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].Quantity)
	assert.Equal(t, 5, item.Quantity)
	assert.Equal(t, 1, creates, "second attempt must increment, not insert")
}

func TestAddItemGivesUpAfterRepeatedInsertConflicts(t *testing.T) {
	misses, creates := maxInsertAttempts, 0
	f := newCartFixture(t, func(repo CartRepository) CartRepository {
		return &staleReadRepo{CartRepository: repo, misses: &misses, creates: &creates}
	})
	require.NoError(t, f.conn.Create(&models.CartItem{UserID: f.user.ID, ProductID: f.p1.ID, Quantity: 2}).Error)

	_, err := f.svc.AddItem(context.Background(), f.user.ID, f.p1.ID, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
	assert.Equal(t, maxInsertAttempts, creates)
	assert.Equal(t, 2, f.quantityOf(t, f.p1.ID))
}

func TestAddItemValidation(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, f.user.ID, uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.AddItem(ctx, uuid.Nil, f.p1.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	assert.Empty(t, f.rows(t))
}

func TestUpdateItemRejectsNonPositiveAndLeavesQuantity(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 2)
	require.NoError(t, err)

	for _, qty := range []int{0, -1} {
		_, err := f.svc.UpdateItem(ctx, f.user.ID, item.ID, qty)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "qty %d", qty)
	}
	assert.Equal(t, 2, f.quantityOf(t, f.p1.ID))

	updated, err := f.svc.UpdateItem(ctx, f.user.ID, item.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Quantity)
}

func TestUpdateAndRemoveAreOwnershipScoped(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()
	other := dbtest.SeedUser(t, f.conn, "other@example.com")

	item, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.UpdateItem(ctx, other.ID, item.ID, 5)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	err = f.svc.RemoveItem(ctx, other.ID, item.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	err = f.svc.RemoveItem(ctx, f.user.ID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 1, f.quantityOf(t, f.p1.ID))

	require.NoError(t, f.svc.RemoveItem(ctx, f.user.ID, item.ID))
	assert.Empty(t, f.rows(t))
}

func TestClearCartIsIdempotent(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.ClearCart(ctx, f.user.ID))
	_, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.user.ID, f.p2.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearCart(ctx, f.user.ID))
	assert.Empty(t, f.rows(t))

	var removed int64
	require.NoError(t, db.Wrap(f.conn).WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		removed, err = f.svc.ClearCartTx(ctx, tx, f.user.ID)
		return err
	}))
	assert.Zero(t, removed)
}

func TestGetCartTotals(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.user.ID, f.p2.ID, 1)
	require.NoError(t, err)

	cart, err := f.svc.GetCart(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.ItemCount)
	assert.True(t, cart.Subtotal.Equal(decimal.RequireFromString("135.50")), cart.Subtotal.String())
}

func TestMergeSumsOverlap(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 2)
	require.NoError(t, err)

	cart, err := f.svc.Merge(ctx, f.user.ID, []GuestCartItem{
		{ProductID: f.p1.ID, Quantity: 3},
		{ProductID: f.p2.ID, Quantity: 1},
		{ProductID: f.p2.ID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 5, f.quantityOf(t, f.p1.ID))
	assert.Equal(t, 2, f.quantityOf(t, f.p2.ID))
	assert.Equal(t, 7, cart.ItemCount)
}

func TestMergeEmptyReturnsCurrentCart(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 1)
	require.NoError(t, err)

	cart, err := f.svc.Merge(ctx, f.user.ID, nil)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestMergeFailureMidwayRollsBackEverything(t *testing.T) {
	writes := 0
	f := newCartFixture(t, func(inner CartRepository) CartRepository {
		return &failingRepo{CartRepository: inner, failOn: 4, writes: &writes}
	})
	ctx := context.Background()

	// Two writes outside the merge set up existing lines.
	_, err := f.svc.AddItem(ctx, f.user.ID, f.p1.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.user.ID, f.p2.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Merge(ctx, f.user.ID, []GuestCartItem{
		{ProductID: f.p1.ID, Quantity: 5},
		{ProductID: f.p2.ID, Quantity: 5},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))

	assert.Equal(t, 1, f.quantityOf(t, f.p1.ID), "first entry must be rolled back")
	assert.Equal(t, 1, f.quantityOf(t, f.p2.ID))
}

func TestMergeValidatesBeforeWriting(t *testing.T) {
	f := newCartFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Merge(ctx, f.user.ID, []GuestCartItem{
		{ProductID: f.p1.ID, Quantity: 2},
		{ProductID: f.p2.ID, Quantity: 0},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Merge(ctx, f.user.ID, []GuestCartItem{
		{ProductID: f.p1.ID, Quantity: 2},
		{ProductID: uuid.New(), Quantity: 1},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Merge(ctx, uuid.Nil, []GuestCartItem{{ProductID: f.p1.ID, Quantity: 1}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	assert.Empty(t, f.rows(t))
}

func TestDescribeGuestPricesKnownProducts(t *testing.T) {
	f := newCartFixture(t, nil)

	cart, err := f.svc.DescribeGuest(context.Background(), []GuestCartItem{
		{ProductID: f.p2.ID, Quantity: 2},
		{ProductID: uuid.New(), Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Subtotal.Equal(decimal.RequireFromString("111")))
}
