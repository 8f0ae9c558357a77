package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mealicious/storefront-api/pkg/db/models"
)

// ProductSummary is the product slice shown on a cart line.
type ProductSummary struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL *string         `json:"image_url,omitempty"`
	InStock  bool            `json:"in_stock"`
}

// ItemDTO is one cart line with product details.
type ItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Product   *ProductSummary `json:"product,omitempty"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartDTO is the full server cart view.
type CartDTO struct {
	Items     []ItemDTO       `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count"`
}

func summaryFromProduct(p *models.Product) *ProductSummary {
	if p == nil {
		return nil
	}
	return &ProductSummary{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		ImageURL: p.ImageURL,
		InStock:  p.InStock,
	}
}

func itemFromModel(m *models.CartItem) ItemDTO {
	item := ItemDTO{
		ID:        m.ID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		Product:   summaryFromProduct(m.Product),
		LineTotal: decimal.Zero,
	}
	if m.Product != nil {
		item.LineTotal = m.Product.Price.Mul(decimal.NewFromInt(int64(m.Quantity)))
	}
	return item
}

// BuildCart totals the lines. Subtotal is the sum of price times quantity and
// ItemCount is the sum of quantities.
func BuildCart(rows []models.CartItem) *CartDTO {
	out := &CartDTO{Items: make([]ItemDTO, 0, len(rows)), Subtotal: decimal.Zero}
	for i := range rows {
		item := itemFromModel(&rows[i])
		out.Items = append(out.Items, item)
		out.Subtotal = out.Subtotal.Add(item.LineTotal)
		out.ItemCount += item.Quantity
	}
	return out
}
