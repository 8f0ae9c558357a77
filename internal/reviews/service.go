package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealicious/storefront-api/pkg/db"
	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/enums"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
	"github.com/mealicious/storefront-api/pkg/outbox"
	"github.com/mealicious/storefront-api/pkg/outbox/payloads"
	"github.com/mealicious/storefront-api/pkg/pagination"
)

const (
	MinRating        = 1
	MaxRating        = 5
	maxCommentLength = 2000
)

// ReviewDTO is the API shape of a review.
type ReviewDTO struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Rating        int       `json:"rating"`
	Comment       *string   `json:"comment,omitempty"`
	IsPublished   bool      `json:"is_published"`
	AdminResponse *string   `json:"admin_response,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateInput carries a customer review.
type CreateInput struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	Rating    int
	Comment   *string
}

// AdminUpdateInput changes moderation fields; nil fields are left untouched.
type AdminUpdateInput struct {
	IsPublished   *bool   `json:"is_published"`
	AdminResponse *string `json:"admin_response"`
}

type productFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type purchaseChecker interface {
	HasDeliveredOrderWithProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes review submission and moderation.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*ReviewDTO, error)
	ListForProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*pagination.Page[ReviewDTO], error)
	AdminUpdate(ctx context.Context, reviewID uuid.UUID, input AdminUpdateInput) (*ReviewDTO, error)
}

// ServiceParams groups the review service dependencies.
type ServiceParams struct {
	Repo      *Repository
	Products  productFinder
	Purchases purchaseChecker
	Tx        txRunner
	Outbox    outboxPublisher
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	products  productFinder
	purchases purchaseChecker
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
}

// NewService builds a review service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("review repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product finder required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase checker required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		products:  params.Products,
		purchases: params.Purchases,
		tx:        params.Tx,
		outbox:    params.Outbox,
		logg:      params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*ReviewDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.Rating < MinRating || input.Rating > MaxRating {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	comment := normalizeComment(input.Comment)
	if comment != nil && len(*comment) > maxCommentLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment is too long")
	}

	if _, err := s.products.FindByID(ctx, input.ProductID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}

	delivered, err := s.purchases.HasDeliveredOrderWithProduct(ctx, input.UserID, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check purchase")
	}
	if !delivered {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "review requires a delivered order")
	}

	exists, err := s.repo.ExistsForUserProduct(ctx, input.UserID, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing review")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already reviewed")
	}

	review := &models.Review{
		UserID:    input.UserID,
		ProductID: input.ProductID,
		Rating:    input.Rating,
		Comment:   comment,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, review); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReviewCreated,
			AggregateType: enums.AggregateReview,
			AggregateID:   review.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.RoleCustomer.String()},
			Data: payloads.ReviewCreatedEvent{
				ReviewID:  review.ID,
				ProductID: input.ProductID,
				UserID:    input.UserID,
				Rating:    input.Rating,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, ReviewUniqueIndex) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product already reviewed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create review")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"review_id":  review.ID.String(),
		"product_id": input.ProductID.String(),
	}), "review.created")
	dto := fromModel(review)
	return &dto, nil
}

func (s *service) ListForProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*pagination.Page[ReviewDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListPublished(ctx, productID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reviews")
	}
	items := make([]ReviewDTO, 0, len(rows))
	for i := range rows {
		items = append(items, fromModel(&rows[i]))
	}
	page := pagination.Build(items, params.Limit, func(r ReviewDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return &page, nil
}

func (s *service) AdminUpdate(ctx context.Context, reviewID uuid.UUID, input AdminUpdateInput) (*ReviewDTO, error) {
	fields := map[string]any{}
	if input.IsPublished != nil {
		fields["is_published"] = *input.IsPublished
	}
	if input.AdminResponse != nil {
		fields["admin_response"] = normalizeComment(input.AdminResponse)
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	if _, err := s.repo.FindByID(ctx, reviewID); err != nil {
		return nil, mapReviewErr(err)
	}
	if err := s.repo.UpdateModeration(ctx, reviewID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update review")
	}
	review, err := s.repo.FindByID(ctx, reviewID)
	if err != nil {
		return nil, mapReviewErr(err)
	}
	dto := fromModel(review)
	return &dto, nil
}

func fromModel(m *models.Review) ReviewDTO {
	return ReviewDTO{
		ID:            m.ID,
		UserID:        m.UserID,
		ProductID:     m.ProductID,
		Rating:        m.Rating,
		Comment:       m.Comment,
		IsPublished:   m.IsPublished,
		AdminResponse: m.AdminResponse,
		CreatedAt:     m.CreatedAt,
	}
}

// normalizeComment trims text and maps blank input to nil.
func normalizeComment(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func mapReviewErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load review")
}
