package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/pkg/db"
	"github.com/mealicious/storefront-api/pkg/db/models"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
)

// maxInsertAttempts bounds retries when a concurrent insert wins the unique index.
const maxInsertAttempts = 2

// Service exposes server cart mutation and the guest merge.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*ItemDTO, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*ItemDTO, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
	ClearCart(ctx context.Context, userID uuid.UUID) error
	ClearCartTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	Merge(ctx context.Context, userID uuid.UUID, entries []GuestCartItem) (*CartDTO, error)
	DescribeGuest(ctx context.Context, entries []GuestCartItem) (*CartDTO, error)
}

// ServiceParams groups the cart service dependencies.
type ServiceParams struct {
	Repo     CartRepository
	Products productLookup
	Tx       txRunner
	Logger   *logger.Logger
}

type service struct {
	repo     CartRepository
	products productLookup
	tx       txRunner
	logg     *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		products: params.Products,
		tx:       params.Tx,
		logg:     params.Logger,
	}, nil
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return BuildCart(rows), nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*ItemDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if err := s.ensureProducts(ctx, []uuid.UUID{productID}); err != nil {
		return nil, err
	}

	var itemID uuid.UUID
	err := s.withInsertRetry(ctx, func(tx *gorm.DB) error {
		id, err := s.upsertLine(ctx, s.repo.WithTx(tx), userID, productID, qty)
		itemID = id
		return err
	})
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByIDForUser(ctx, itemID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload cart item")
	}
	dto := itemFromModel(item)
	return &dto, nil
}

func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, qty int) (*ItemDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	affected, err := s.repo.SetQuantity(ctx, itemID, userID, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart item")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	item, err := s.repo.FindByIDForUser(ctx, itemID, userID)
	if err != nil {
		return nil, mapItemErr(err)
	}
	dto := itemFromModel(item)
	return &dto, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	affected, err := s.repo.Delete(ctx, itemID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart item")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return nil
}

func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if _, err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}

// ClearCartTx clears the cart inside the caller's transaction and reports how
// many lines were removed.
func (s *service) ClearCartTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("transaction required")
	}
	return s.repo.WithTx(tx).DeleteByUser(ctx, userID)
}

// Merge folds guest entries into the server cart in a single transaction.
// Validation runs before any write; any write failure rolls back every entry.
func (s *service) Merge(ctx context.Context, userID uuid.UUID, entries []GuestCartItem) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	normalized, err := NormalizeEntries(entries)
	if err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		return s.GetCart(ctx, userID)
	}

	ids := make([]uuid.UUID, 0, len(normalized))
	for _, e := range normalized {
		ids = append(ids, e.ProductID)
	}
	if err := s.ensureProducts(ctx, ids); err != nil {
		return nil, err
	}

	err = s.withInsertRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, entry := range normalized {
			if _, err := s.upsertLine(ctx, repo, userID, entry.ProductID, entry.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"user_id":     userID.String(),
			"entry_count": len(normalized),
		}), "cart.merge_failed", err)
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":     userID.String(),
		"entry_count": len(normalized),
	}), "cart.merged")
	return s.GetCart(ctx, userID)
}

// DescribeGuest prices guest entries against the catalog. Unknown products are dropped.
func (s *service) DescribeGuest(ctx context.Context, entries []GuestCartItem) (*CartDTO, error) {
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ProductID)
	}
	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	rows := make([]models.CartItem, 0, len(entries))
	for _, e := range entries {
		product, ok := found[e.ProductID]
		if !ok {
			continue
		}
		rows = append(rows, models.CartItem{ProductID: e.ProductID, Quantity: e.Quantity, Product: &product})
	}
	return BuildCart(rows), nil
}

// upsertLine increments the existing (user, product) line or inserts a new one.
func (s *service) upsertLine(ctx context.Context, repo CartRepository, userID, productID uuid.UUID, qty int) (uuid.UUID, error) {
	existing, err := repo.FindByUserAndProduct(ctx, userID, productID)
	switch {
	case err == nil:
		if err := repo.IncrementQuantity(ctx, existing.ID, qty); err != nil {
			return uuid.Nil, err
		}
		return existing.ID, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		item := &models.CartItem{UserID: userID, ProductID: productID, Quantity: qty}
		if err := repo.Create(ctx, item); err != nil {
			return uuid.Nil, err
		}
		return item.ID, nil
	default:
		return uuid.Nil, err
	}
}

// withInsertRetry reruns fn in a fresh transaction when a concurrent writer
// created the same (user, product) line first. The rerun sees that row and
// increments it.
func (s *service) withInsertRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxInsertAttempts; attempt++ {
		err = s.tx.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, CartItemUniqueIndex) {
			break
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "cart.insert_conflict_retry")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart")
}

func (s *service) ensureProducts(ctx context.Context, ids []uuid.UUID) error {
	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_ids": missing})
	}
	return nil
}

func mapItemErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart item")
}
