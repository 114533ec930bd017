package purchases

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	"github.com/artisanalley/marketplace-backend/pkg/enums"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/pagination"
)

const maxDropOffLength = 500

// Service exposes the buyer and artist views over purchases.
type Service interface {
	ListPurchases(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error)
	ListSales(ctx context.Context, artistID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error)
	UpdateDropOff(ctx context.Context, input UpdateDropOffInput) (*models.Purchase, error)
}

// UpdateDropOffInput carries a buyer's fulfilment note. A nil or blank
// location clears it.
type UpdateDropOffInput struct {
	PurchaseID uuid.UUID
	BuyerID    uuid.UUID
	Location   *string
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) ListPurchases(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error) {
	if buyerID == uuid.Nil {
		return pagination.Page[models.Purchase]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	query, err := listQuery(params)
	if err != nil {
		return pagination.Page[models.Purchase]{}, err
	}
	page, err := s.repo.ListByBuyer(ctx, buyerID, query)
	if err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list purchases")
	}
	return page, nil
}

func (s *service) ListSales(ctx context.Context, artistID uuid.UUID, params pagination.Params) (pagination.Page[models.Purchase], error) {
	if artistID == uuid.Nil {
		return pagination.Page[models.Purchase]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	query, err := listQuery(params)
	if err != nil {
		return pagination.Page[models.Purchase]{}, err
	}
	page, err := s.repo.ListByArtist(ctx, artistID, query)
	if err != nil {
		return page, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list sales")
	}
	return page, nil
}

func listQuery(params pagination.Params) (ListQuery, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return ListQuery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return ListQuery{Limit: pagination.NormalizeLimit(params.Limit), Cursor: cursor}, nil
}

func (s *service) UpdateDropOff(ctx context.Context, input UpdateDropOffInput) (*models.Purchase, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.PurchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase_id is required")
	}
	location := normalizeLocation(input.Location)
	if location != nil && len(*location) > maxDropOffLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "drop_off_location is too long")
	}

	purchase, err := s.repo.FindByID(ctx, input.PurchaseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load purchase")
	}
	if purchase == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	if purchase.BuyerID != input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "purchase belongs to another buyer")
	}
	if purchase.Status != enums.PurchaseStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "drop-off can only change on completed purchases")
	}

	at := s.now().UTC()
	updated, err := s.repo.UpdateDropOffLocation(ctx, purchase.ID, input.BuyerID, location, at)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "update drop-off location")
	}
	if !updated {
		// refunded between the read and the write
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "drop-off can only change on completed purchases")
	}
	purchase.DropOffLocation = location
	purchase.UpdatedAt = at
	return purchase, nil
}

func normalizeLocation(location *string) *string {
	if location == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*location)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
