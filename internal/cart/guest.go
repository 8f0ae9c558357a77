package cart

import (
	"github.com/google/uuid"

	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
)

// GuestCartItem is a pre-login cart entry. It never reaches Postgres until merged.
type GuestCartItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required"`
}

// GuestCart mirrors the server cart surface for anonymous shoppers.
type GuestCart struct {
	entries []GuestCartItem
}

// NewGuestCart seeds a guest cart from stored entries, summing duplicates.
func NewGuestCart(entries []GuestCartItem) *GuestCart {
	g := &GuestCart{}
	for _, e := range entries {
		if e.ProductID == uuid.Nil || e.Quantity <= 0 {
			continue
		}
		g.merge(e.ProductID, e.Quantity)
	}
	return g
}

// Add increments an existing entry or appends a new one. There is no upper bound.
func (g *GuestCart) Add(productID uuid.UUID, qty int) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	g.merge(productID, qty)
	return nil
}

// Update overwrites the quantity of an existing entry.
func (g *GuestCart) Update(productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	idx := g.indexOf(productID)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	g.entries[idx].Quantity = qty
	return nil
}

// Remove drops the entry for productID.
func (g *GuestCart) Remove(productID uuid.UUID) error {
	idx := g.indexOf(productID)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	g.entries = append(g.entries[:idx], g.entries[idx+1:]...)
	return nil
}

// Items returns a copy of the entries in insertion order.
func (g *GuestCart) Items() []GuestCartItem {
	out := make([]GuestCartItem, len(g.entries))
	copy(out, g.entries)
	return out
}

func (g *GuestCart) Clear() {
	g.entries = nil
}

func (g *GuestCart) Len() int {
	return len(g.entries)
}

func (g *GuestCart) merge(productID uuid.UUID, qty int) {
	if idx := g.indexOf(productID); idx >= 0 {
		g.entries[idx].Quantity += qty
		return
	}
	g.entries = append(g.entries, GuestCartItem{ProductID: productID, Quantity: qty})
}

func (g *GuestCart) indexOf(productID uuid.UUID) int {
	for i, e := range g.entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}

// NormalizeEntries sums duplicate products, preserving first-seen order. Any
// non-positive quantity or missing product id rejects the whole batch.
func NormalizeEntries(entries []GuestCartItem) ([]GuestCartItem, error) {
	g := &GuestCart{}
	for _, e := range entries {
		if e.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if e.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"product_id": e.ProductID})
		}
		g.merge(e.ProductID, e.Quantity)
	}
	return g.Items(), nil
}
