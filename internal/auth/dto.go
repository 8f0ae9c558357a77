package auth

import (
	"github.com/mealicious/storefront-api/internal/cart"
	"github.com/mealicious/storefront-api/internal/users"
)

// SignupRequest creates a customer account. GuestCart carries entries held client-side.
type SignupRequest struct {
	Email     string               `json:"email" validate:"required,email"`
	Password  string               `json:"password" validate:"required"`
	Name      string               `json:"name" validate:"required"`
	GuestCart []cart.GuestCartItem `json:"guest_cart,omitempty" validate:"omitempty,dive"`
}

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email     string               `json:"email" validate:"required,email"`
	Password  string               `json:"password" validate:"required"`
	GuestCart []cart.GuestCartItem `json:"guest_cart,omitempty" validate:"omitempty,dive"`
}

// RefreshRequest carries the refresh token paired with the presented access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse is returned by signup and login. GuestCartMerged is false when a
// pending guest cart could not be merged and should be retried.
type AuthResponse struct {
	AccessToken     string         `json:"access_token"`
	RefreshToken    string         `json:"refresh_token"`
	User            *users.UserDTO `json:"user"`
	GuestCartMerged bool           `json:"guest_cart_merged"`
	Cart            *cart.CartDTO  `json:"cart,omitempty"`
}

// TokenPair is returned by refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
