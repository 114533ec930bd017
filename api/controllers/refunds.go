package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/artisanalley/marketplace-backend/api/middleware"
	"github.com/artisanalley/marketplace-backend/api/responses"
	"github.com/artisanalley/marketplace-backend/api/validators"
	"github.com/artisanalley/marketplace-backend/internal/refunds"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
)

type refundRequest struct {
	PurchaseID string `json:"purchase_id" validate:"required,uuid"`
}

// RequestRefund lets a buyer refund their own completed purchase.
func RequestRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		userID := middleware.CurrentUserID(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purchaseID, err := validators.ParseUUID(payload.PurchaseID, "purchase_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPurchaseID(ctx, purchaseID.String())
		}

		purchase, err := svc.RequestRefund(ctx, purchaseID, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, purchase)
	}
}
