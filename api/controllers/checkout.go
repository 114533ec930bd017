package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artisanalley/marketplace-backend/api/middleware"
	"github.com/artisanalley/marketplace-backend/api/responses"
	"github.com/artisanalley/marketplace-backend/api/validators"
	checkoutsvc "github.com/artisanalley/marketplace-backend/internal/checkout"
	"github.com/artisanalley/marketplace-backend/internal/verification"
	pricing "github.com/artisanalley/marketplace-backend/pkg/checkout"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
)

type checkoutItemRequest struct {
	ArtworkID uuid.UUID       `json:"artwork_id"`
	ArtistID  uuid.UUID       `json:"artist_id"`
	Title     string          `json:"title" validate:"max=200"`
	Image     string          `json:"image" validate:"omitempty,url"`
	Price     decimal.Decimal `json:"price"`
}

type checkoutRequest struct {
	Items []checkoutItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
}

func (r checkoutRequest) lineItems() []pricing.LineItem {
	items := make([]pricing.LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, pricing.LineItem{
			ArtworkID: item.ArtworkID,
			ArtistID:  item.ArtistID,
			Title:     strings.TrimSpace(item.Title),
			Image:     strings.TrimSpace(item.Image),
			Price:     item.Price,
		})
	}
	return items
}

// CreateCheckoutSession opens a hosted payment page for the buyer's cart.
func CreateCheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID := middleware.CurrentUserID(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateSession(r.Context(), checkoutsvc.CreateSessionInput{
			BuyerID:        buyerID,
			BuyerEmail:     middleware.EmailFromContext(r.Context()),
			Items:          payload.lineItems(),
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// SessionVerifier waits for the webhook to record a checkout session.
type SessionVerifier interface {
	Verify(ctx context.Context, sessionID string, buyerID uuid.UUID) (*verification.Result, error)
}

// VerifyCheckoutSession backs the success page. A delayed confirmation answers
// 202 so the client keeps the "payment received" state.
func VerifyCheckoutSession(poller SessionVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if poller == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "verification unavailable"))
			return
		}

		buyerID := middleware.CurrentUserID(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		sessionID, err := validators.RequireQueryString(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := poller.Verify(r.Context(), sessionID, buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Status == verification.StatusDelayed {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}
