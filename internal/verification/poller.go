package verification

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/metrics"
)

const (
	defaultAttempts = 5
	defaultInterval = time.Second

	// DelayedMessage is shown when the webhook has not landed within the poll budget.
	DelayedMessage = "payment received; confirmation is delayed"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusDelayed   Status = "delayed"
)

// Clock abstracts waiting so tests can drive the poll loop.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type purchaseFinder interface {
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
}

// Policy bounds how long a buyer waits on the success page.
type Policy struct {
	Attempts int
	Interval time.Duration
}

func PolicyFromConfig(cfg config.VerificationConfig) Policy {
	return Policy{Attempts: cfg.Attempts, Interval: cfg.Interval}
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = defaultAttempts
	}
	if p.Interval <= 0 {
		p.Interval = defaultInterval
	}
	return p
}

type Result struct {
	Status   Status           `json:"status"`
	Purchase *models.Purchase `json:"purchase,omitempty"`
	Attempts int              `json:"attempts"`
	Message  string           `json:"message,omitempty"`
}

type Option func(*Poller)

func WithClock(clock Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(p *Poller) { p.logg = logg }
}

func WithMetrics(m *metrics.PurchaseMetrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// Poller waits for the webhook-created purchase behind a checkout session.
type Poller struct {
	repo    purchaseFinder
	policy  Policy
	clock   Clock
	logg    *logger.Logger
	metrics *metrics.PurchaseMetrics
}

func NewPoller(repo purchaseFinder, policy Policy, opts ...Option) *Poller {
	p := &Poller{
		repo:   repo,
		policy: policy.normalized(),
		clock:  realClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Verify polls for the purchase created from sessionID. Running out of
// attempts is a soft outcome: the payment may still be confirmed later.
func (p *Poller) Verify(ctx context.Context, sessionID string, buyerID uuid.UUID) (*Result, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}

	logCtx := ctx
	if p.logg != nil {
		logCtx = p.logg.WithField(ctx, "checkout_session_id", sessionID)
	}

	for attempt := 1; attempt <= p.policy.Attempts; attempt++ {
		purchase, err := p.repo.FindByCheckoutSessionID(ctx, sessionID)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				p.metrics.Verification(metrics.OutcomeCanceled, attempt)
				return nil, ctxErr
			}
			if p.logg != nil {
				p.logg.Warn(p.logg.WithFields(logCtx, map[string]any{
					"attempt": attempt,
					"error":   err.Error(),
				}), "purchase lookup failed; retrying")
			}
		case purchase != nil:
			if purchase.BuyerID != buyerID {
				p.metrics.Verification(metrics.OutcomeRejected, attempt)
				return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to another buyer")
			}
			p.metrics.Verification(metrics.OutcomeConfirmed, attempt)
			return &Result{Status: StatusConfirmed, Purchase: purchase, Attempts: attempt}, nil
		}

		if attempt == p.policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			p.metrics.Verification(metrics.OutcomeCanceled, attempt)
			return nil, ctx.Err()
		case <-p.clock.After(p.policy.Interval):
		}
	}

	p.metrics.Verification(metrics.OutcomeDelayed, p.policy.Attempts)
	if p.logg != nil {
		p.logg.Info(logCtx, "purchase not visible yet; reporting delayed confirmation")
	}
	return &Result{Status: StatusDelayed, Attempts: p.policy.Attempts, Message: DelayedMessage}, nil
}
