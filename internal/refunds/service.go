package refunds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/artisanalley/marketplace-backend/internal/purchases"
	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	"github.com/artisanalley/marketplace-backend/pkg/enums"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/metrics"
	"github.com/artisanalley/marketplace-backend/pkg/outbox"
	"github.com/artisanalley/marketplace-backend/pkg/outbox/payloads"
	pkgstripe "github.com/artisanalley/marketplace-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type refundCreator interface {
	CreateRefund(ctx context.Context, req pkgstripe.RefundRequest) (*pkgstripe.Refund, error)
}

// Service lets a buyer refund their own completed purchase.
type Service interface {
	RequestRefund(ctx context.Context, purchaseID, actingUserID uuid.UUID) (*models.Purchase, error)
}

type ServiceParams struct {
	Repository        purchases.Repository
	TransactionRunner txRunner
	Stripe            refundCreator
	Outbox            outbox.Emitter
	Logger            *logger.Logger
	Metrics           *metrics.PurchaseMetrics
}

type service struct {
	repo    purchases.Repository
	tx      txRunner
	stripe  refundCreator
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.PurchaseMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:    params.Repository,
		tx:      params.TransactionRunner,
		stripe:  params.Stripe,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// IdempotencyKey is the processor idempotency key for a purchase refund, so
// repeated requests for the same purchase collapse into one refund.
func IdempotencyKey(purchaseID uuid.UUID) string {
	return "refund-" + purchaseID.String()
}

func (s *service) RequestRefund(ctx context.Context, purchaseID, actingUserID uuid.UUID) (*models.Purchase, error) {
	if actingUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if purchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase_id is required")
	}

	purchase, err := s.repo.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load purchase")
	}
	if purchase == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	if purchase.BuyerID != actingUserID {
		s.metrics.Refund(outbox.SourceUser, metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can refund this purchase")
	}
	if !purchase.Status.Refundable() {
		s.metrics.Refund(outbox.SourceUser, metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase is %s", purchase.Status))
	}
	if purchase.PaymentIntentID == nil || *purchase.PaymentIntentID == "" {
		s.metrics.Refund(outbox.SourceUser, metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase has no payment to refund")
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithPurchaseID(ctx, purchase.ID.String())
	}

	started := time.Now()
	refund, err := s.stripe.CreateRefund(ctx, pkgstripe.RefundRequest{
		PaymentIntentID: *purchase.PaymentIntentID,
		IdempotencyKey:  IdempotencyKey(purchase.ID),
		Metadata: map[string]string{
			"purchase_id": purchase.ID.String(),
			"buyer_id":    purchase.BuyerID.String(),
		},
	})
	s.metrics.ObserveProvider("refund_create", started, err)
	if err != nil {
		s.metrics.Refund(outbox.SourceUser, metrics.OutcomeProviderError)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, pkgstripe.ErrorMessage(err))
	}

	at := s.now().UTC()
	var transition purchases.RefundTransition
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		transition, err = s.repo.WithTx(tx).MarkRefunded(ctx, purchase.ID, at)
		if err != nil || transition != purchases.Transitioned {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseRefunded,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchase.ID,
			Actor:         &outbox.ActorRef{UserID: &actingUserID, Source: outbox.SourceUser},
			OccurredAt:    at,
			Data: payloads.PurchaseRefundedEvent{
				PurchaseID:      purchase.ID,
				BuyerID:         purchase.BuyerID,
				ArtworkID:       purchase.ArtworkID,
				ArtistID:        purchase.ArtistID,
				PaymentIntentID: *purchase.PaymentIntentID,
				AmountMinor:     purchase.AmountMinor,
				RefundedAt:      at,
				Source:          outbox.SourceUser,
			},
		})
	})
	switch {
	case errors.Is(err, purchases.ErrNotRefundable):
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "purchase can no longer be refunded")
	case err != nil:
		// the processor refund stands; the charge.refunded webhook will converge the row
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record refund")
	case transition == purchases.NotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}

	outcome := metrics.OutcomeRefunded
	if transition == purchases.AlreadyRefunded {
		outcome = metrics.OutcomeAlreadyDone
	}
	s.metrics.Refund(outbox.SourceUser, outcome)
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"refund_id":  refund.ID,
			"transition": transition.String(),
		}), "refund requested")
	}

	refreshed, err := s.repo.FindByID(ctx, purchase.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reload purchase")
	}
	if refreshed == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	return refreshed, nil
}
