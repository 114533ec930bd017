package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/artisanalley/marketplace-backend/api/responses"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
)

const defaultMaxBodyBytes int64 = 64 << 10

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (string, error)
}

// EventGuard skips redeliveries of events already applied. Optional.
type EventGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// EventVerifier checks the signature over the raw body and decodes the event.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

// StripeWebhook verifies and applies payment processor events. Storage failures
// answer 500 so the processor redelivers; rejections answer 400.
func StripeWebhook(svc StripeWebhookService, verifier EventVerifier, guard EventGuard, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := verifier.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, err, "verify signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithStripeEvent(ctx, event.ID, string(event.Type))
		}

		if guard != nil {
			seen, guardErr := guard.Seen(ctx, event.ID)
			switch {
			case guardErr != nil:
				// the unique constraint still dedupes, so keep going
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", guardErr.Error()), "stripe.webhook.guard_unavailable")
				}
			case seen:
				if logg != nil {
					logg.Info(ctx, "stripe.webhook.duplicate")
				}
				responses.WriteSuccess(w, map[string]string{"outcome": "duplicate"})
				return
			}
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// the writes are committed; a hung-up sender must not stop the record
		if guard != nil {
			if markErr := guard.MarkProcessed(context.WithoutCancel(ctx), event.ID); markErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", markErr.Error()), "stripe.webhook.guard_record_failed")
			}
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", outcome), "stripe.webhook.processed")
		}
		responses.WriteSuccess(w, map[string]string{"outcome": outcome})
	}
}
