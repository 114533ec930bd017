package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/artisanalley/marketplace-backend/api/middleware"
	"github.com/artisanalley/marketplace-backend/api/responses"
	"github.com/artisanalley/marketplace-backend/api/validators"
	"github.com/artisanalley/marketplace-backend/internal/purchases"
	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/pagination"
)

func ListPurchases(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	var list listFunc
	if svc != nil {
		list = svc.ListPurchases
	}
	return listHandler(list, logg)
}

// ListSales returns purchases of the caller's artworks.
func ListSales(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	var list listFunc
	if svc != nil {
		list = svc.ListSales
	}
	return listHandler(list, logg)
}

type listFunc func(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error)

func listHandler(list listFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if list == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		userID := middleware.CurrentUserID(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := list(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

type dropOffRequest struct {
	DropOffLocation *string `json:"drop_off_location"`
}

// UpdateDropOff records where the buyer wants the artwork left.
func UpdateDropOff(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		userID := middleware.CurrentUserID(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		purchaseID, err := validators.ParseUUID(chi.URLParam(r, "purchaseId"), "purchaseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload dropOffRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchase, err := svc.UpdateDropOff(r.Context(), purchases.UpdateDropOffInput{
			PurchaseID: purchaseID,
			BuyerID:    userID,
			Location:   payload.DropOffLocation,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, purchase)
	}
}
