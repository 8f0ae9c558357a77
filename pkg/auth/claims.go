package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mealicious/storefront-api/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Email  string     `json:"email"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the resolved caller carried through request contexts.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	Role     enums.Role
	AccessID string
}

// Identity projects the verified claims into the request identity.
func (c *AccessTokenClaims) Identity() Identity {
	return Identity{
		UserID:   c.UserID,
		Email:    c.Email,
		Role:     c.Role,
		AccessID: c.ID,
	}
}
