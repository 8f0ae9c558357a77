package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgAuth "github.com/mealicious/storefront-api/pkg/auth"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
)

type contextKey string

const ctxClaims contextKey = "access_claims"

// WithClaims injects verified token claims into the context.
func WithClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClaims, claims)
}

func ClaimsFromContext(ctx context.Context) *pkgAuth.AccessTokenClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxClaims).(*pkgAuth.AccessTokenClaims); ok {
		return v
	}
	return nil
}

// IdentityFromContext reports the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (pkgAuth.Identity, bool) {
	claims := ClaimsFromContext(ctx)
	if claims == nil || claims.UserID == uuid.Nil {
		return pkgAuth.Identity{}, false
	}
	return claims.Identity(), true
}

func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return string(id.Role)
	}
	return ""
}

// RequireUserID returns the caller's id or an Unauthorized error for anonymous requests.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return id.UserID, nil
}
