package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mealicious/storefront-api/pkg/db/models"
	"github.com/mealicious/storefront-api/pkg/pagination"
)

// ProductDTO is the public catalog shape.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	ImageURL    *string         `json:"image_url,omitempty"`
	Price       decimal.Decimal `json:"price"`
	InStock     bool            `json:"in_stock"`
	Category    string          `json:"category"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListFilters narrows the catalog listing.
type ListFilters struct {
	Category    string
	InStockOnly bool
	Query       string
}

// ListInput carries filters and cursor pagination for the browse endpoint.
type ListInput struct {
	Filters    ListFilters
	Pagination pagination.Params
}

// FromModel maps a product row to its DTO.
func FromModel(m *models.Product) ProductDTO {
	return ProductDTO{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		ImageURL:    m.ImageURL,
		Price:       m.Price,
		InStock:     m.InStock,
		Category:    m.Category,
		CreatedAt:   m.CreatedAt,
	}
}

func cursorOf(p ProductDTO) pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}
