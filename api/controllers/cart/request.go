package cart

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	cartsvc "github.com/mealicious/storefront-api/internal/cart"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
)

// GuestCartHeader carries the anonymous cart id between the browser and the API.
const GuestCartHeader = "X-Guest-Cart-Id"

type addItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type mergeRequest struct {
	Items []cartsvc.GuestCartItem `json:"items" validate:"omitempty,dive"`
}

type guestCartResponse struct {
	GuestCartID string `json:"guest_cart_id,omitempty"`
	*cartsvc.CartDTO
}

// guestIDFromRequest returns the header value, or "" when absent. A malformed id is rejected.
func guestIDFromRequest(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get(GuestCartHeader))
	if raw == "" {
		return "", nil
	}
	if !cartsvc.ValidGuestID(raw) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid guest cart id").WithDetails(map[string]any{"header": GuestCartHeader})
	}
	return raw, nil
}
