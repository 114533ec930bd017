package purchases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	"github.com/artisanalley/marketplace-backend/pkg/pagination"
)

// RefundTransition reports what the conditional refund update observed.
type RefundTransition int

const (
	// Transitioned means this call moved the row from completed to refunded.
	Transitioned RefundTransition = iota + 1
	// AlreadyRefunded means another writer got there first.
	AlreadyRefunded
	NotFound
)

func (t RefundTransition) String() string {
	switch t {
	case Transitioned:
		return "transitioned"
	case AlreadyRefunded:
		return "already_refunded"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ErrNotRefundable is returned by MarkRefunded when the row exists in a status
// that cannot move to refunded.
var ErrNotRefundable = errors.New("purchase is not in a refundable status")

// ListQuery selects one newest-first page.
type ListQuery struct {
	Limit  int
	Cursor *pagination.Cursor
}

// Repository defines persistence operations for the purchases table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, purchase *models.Purchase) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Purchase, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) (RefundTransition, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, query ListQuery) (pagination.Page[models.Purchase], error)
	ListByArtist(ctx context.Context, artistID uuid.UUID, query ListQuery) (pagination.Page[models.Purchase], error)
	UpdateDropOffLocation(ctx context.Context, id, buyerID uuid.UUID, location *string, at time.Time) (bool, error)
}
