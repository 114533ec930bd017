package purchases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/artisanalley/marketplace-backend/pkg/db"
	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	"github.com/artisanalley/marketplace-backend/pkg/enums"
	"github.com/artisanalley/marketplace-backend/pkg/pagination"
)

const checkoutSessionConstraint = "ux_purchases_checkout_session_id"

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchases repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateIfAbsent inserts the purchase unless a row with the same checkout
// session already exists. created is false when the row was already there.
func (r *repository) CreateIfAbsent(ctx context.Context, purchase *models.Purchase) (bool, error) {
	if purchase == nil {
		return false, errors.New("purchase is required")
	}
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	now := time.Now().UTC()
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}
	if purchase.UpdatedAt.IsZero() {
		purchase.UpdatedAt = purchase.CreatedAt
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checkout_session_id"}},
			DoNothing: true,
		}).
		Create(purchase)
	if res.Error != nil {
		if dbpkg.IsUniqueViolation(res.Error, checkoutSessionConstraint) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	return r.findOne(ctx, "checkout_session_id = ?", sessionID)
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Purchase, error) {
	return r.findOne(ctx, "payment_intent_id = ?", paymentIntentID)
}

func (r *repository) findOne(ctx context.Context, where string, arg any) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).Where(where, arg).Take(&purchase).Error
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

// MarkRefunded moves a completed purchase to refunded with a single
// conditional update. Zero affected rows are disambiguated with a re-read.
func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) (RefundTransition, error) {
	at = at.UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, enums.PurchaseStatusCompleted).
		Updates(map[string]any{
			"status":      enums.PurchaseStatusRefunded,
			"refunded_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 1 {
		return Transitioned, nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	switch {
	case current == nil:
		return NotFound, nil
	case current.Status == enums.PurchaseStatusRefunded:
		return AlreadyRefunded, nil
	default:
		return 0, ErrNotRefundable
	}
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, query ListQuery) (pagination.Page[models.Purchase], error) {
	return r.list(ctx, "buyer_id = ?", buyerID, query)
}

func (r *repository) ListByArtist(ctx context.Context, artistID uuid.UUID, query ListQuery) (pagination.Page[models.Purchase], error) {
	return r.list(ctx, "artist_id = ?", artistID, query)
}

func (r *repository) list(ctx context.Context, where string, owner uuid.UUID, query ListQuery) (pagination.Page[models.Purchase], error) {
	q := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where(where, owner)
	if query.Cursor != nil {
		at := query.Cursor.CreatedAt.UTC()
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, query.Cursor.ID)
	}

	var rows []models.Purchase
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(query.Limit)).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[models.Purchase]{}, err
	}
	return pagination.BuildPage(rows, query.Limit, cursorOf), nil
}

func cursorOf(p models.Purchase) pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// UpdateDropOffLocation sets the buyer-supplied fulfilment note. Only the
// buyer's own completed purchases match.
func (r *repository) UpdateDropOffLocation(ctx context.Context, id, buyerID uuid.UUID, location *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND buyer_id = ? AND status = ?", id, buyerID, enums.PurchaseStatusCompleted).
		Updates(map[string]any{
			"drop_off_location": location,
			"updated_at":        at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
