package cart

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mealicious/storefront-api/api/responses"
	"github.com/mealicious/storefront-api/api/validators"
	cartsvc "github.com/mealicious/storefront-api/internal/cart"
	pkgerrors "github.com/mealicious/storefront-api/pkg/errors"
	"github.com/mealicious/storefront-api/pkg/logger"
)

// GuestCartCreate issues a fresh guest cart id.
func GuestCartCreate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := cartsvc.NewGuestID()
		w.Header().Set(GuestCartHeader, id)
		responses.WriteSuccessStatus(w, http.StatusCreated, guestCartResponse{
			GuestCartID: id,
			CartDTO:     cartsvc.BuildCart(nil),
		})
	}
}

// GuestCartFetch prices the stored guest cart. A missing id yields an empty cart.
func GuestCartFetch(svc cartsvc.Service, guests GuestStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || guests == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "guest cart unavailable"))
			return
		}

		guestID, err := guestIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if guestID == "" {
			responses.WriteSuccess(w, guestCartResponse{CartDTO: cartsvc.BuildCart(nil)})
			return
		}

		writeGuestCart(w, r, svc, guests, logg, guestID, nil)
	}
}

// GuestCartItems returns the raw stored entries without pricing.
func GuestCartItems(guests GuestStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if guests == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "guest cart unavailable"))
			return
		}

		guestID, err := guestIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if guestID == "" {
			responses.WriteSuccess(w, []cartsvc.GuestCartItem{})
			return
		}

		cart, err := guests.Load(r.Context(), guestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load guest cart"))
			return
		}
		responses.WriteSuccess(w, cart.Items())
	}
}

// GuestCartAddItem adds to the guest cart, allocating an id when the caller has none.
func GuestCartAddItem(svc cartsvc.Service, guests GuestStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || guests == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "guest cart unavailable"))
			return
		}

		guestID, err := guestIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if guestID == "" {
			guestID = cartsvc.NewGuestID()
		}

		var body addItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeGuestCart(w, r, svc, guests, logg, guestID, func(cart *cartsvc.GuestCart) error {
			return cart.Add(body.ProductID, body.Quantity)
		})
	}
}

func GuestCartUpdateItem(svc cartsvc.Service, guests GuestStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || guests == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "guest cart unavailable"))
			return
		}

		guestID, productID, ok := guestLineTarget(w, r, logg)
		if !ok {
			return
		}

		var body updateItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeGuestCart(w, r, svc, guests, logg, guestID, func(cart *cartsvc.GuestCart) error {
			return cart.Update(productID, body.Quantity)
		})
	}
}

func GuestCartRemoveItem(svc cartsvc.Service, guests GuestStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || guests == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "guest cart unavailable"))
			return
		}

		guestID, productID, ok := guestLineTarget(w, r, logg)
		if !ok {
			return
		}

		writeGuestCart(w, r, svc, guests, logg, guestID, func(cart *cartsvc.GuestCart) error {
			return cart.Remove(productID)
		})
	}
}

func guestLineTarget(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, uuid.UUID, bool) {
	guestID, err := guestIDFromRequest(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return "", uuid.Nil, false
	}
	if guestID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, GuestCartHeader+" header required"))
		return "", uuid.Nil, false
	}
	productID, err := validators.ParseUUIDParam(r, "productId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return "", uuid.Nil, false
	}
	return guestID, productID, true
}

// writeGuestCart loads the cart, applies mutate when given, persists, and responds with the priced cart.
func writeGuestCart(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, guests GuestStore, logg *logger.Logger, guestID string, mutate func(*cartsvc.GuestCart) error) {
	ctx := r.Context()
	cart, err := guests.Load(ctx, guestID)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load guest cart"))
		return
	}

	if mutate != nil {
		if err := mutate(cart); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guests.Save(ctx, guestID, cart); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save guest cart"))
			return
		}
	}

	priced, err := svc.DescribeGuest(ctx, cart.Items())
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	w.Header().Set(GuestCartHeader, guestID)
	responses.WriteSuccess(w, guestCartResponse{GuestCartID: guestID, CartDTO: priced})
}
