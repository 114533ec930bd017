package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pricing "github.com/artisanalley/marketplace-backend/pkg/checkout"
	"github.com/artisanalley/marketplace-backend/pkg/config"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/metrics"
	pkgstripe "github.com/artisanalley/marketplace-backend/pkg/stripe"
)

// Correlation keys echoed back on checkout.session.completed.
const (
	MetadataBuyerID   = "buyer_id"
	MetadataArtworkID = "artwork_id"
	MetadataArtistID  = "artist_id"
)

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.CheckoutSession, error)
}

// Service opens hosted payment sessions for a buyer's cart.
type Service interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
}

// CreateSessionInput is the validated request from the cart page. Redirect URLs
// default to the configured storefront routes.
type CreateSessionInput struct {
	BuyerID        uuid.UUID
	BuyerEmail     string
	Items          []pricing.LineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// Session is what the client needs to redirect the buyer.
type Session struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	AmountMinor int64  `json:"amount_minor"`
}

type service struct {
	stripe   sessionCreator
	cfg      config.CheckoutConfig
	currency string
	logg     *logger.Logger
	metrics  *metrics.PurchaseMetrics
}

// NewService builds the checkout session initiator.
func NewService(stripe sessionCreator, cfg config.CheckoutConfig, currency string, logg *logger.Logger, m *metrics.PurchaseMetrics) (Service, error) {
	if stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		return nil, fmt.Errorf("checkout public base url required")
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		stripe:   stripe,
		cfg:      cfg,
		currency: currency,
		logg:     logg,
		metrics:  m,
	}, nil
}

// CreateSession validates and prices the cart, then asks the processor for a
// hosted session. No purchase row is written here; the webhook does that.
func (s *service) CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	priced, err := pricing.PriceItems(input.Items)
	if err != nil {
		return nil, err
	}

	first := priced[0]
	metadata := map[string]string{
		MetadataBuyerID:   input.BuyerID.String(),
		MetadataArtworkID: first.ArtworkID.String(),
		MetadataArtistID:  first.ArtistID.String(),
	}

	lineItems := make([]pkgstripe.LineItem, 0, len(priced))
	for _, item := range priced {
		lineItems = append(lineItems, pkgstripe.LineItem{
			Name:       strings.TrimSpace(item.Title),
			ImageURL:   strings.TrimSpace(item.Image),
			UnitAmount: item.UnitAmount,
			Quantity:   1,
		})
	}

	req := pkgstripe.CheckoutSessionRequest{
		Currency:          s.currency,
		LineItems:         lineItems,
		SuccessURL:        firstNonEmpty(input.SuccessURL, s.cfg.SuccessURL()),
		CancelURL:         firstNonEmpty(input.CancelURL, s.cfg.CancelURL()),
		ClientReferenceID: input.BuyerID.String(),
		CustomerEmail:     strings.TrimSpace(input.BuyerEmail),
		Metadata:          metadata,
		IdempotencyKey:    strings.TrimSpace(input.IdempotencyKey),
	}

	started := time.Now()
	session, err := s.stripe.CreateCheckoutSession(ctx, req)
	s.metrics.ObserveProvider("checkout_session_create", started, err)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, pkgstripe.ErrorMessage(err))
	}

	amount := session.AmountTotal
	if amount == 0 {
		amount = pricing.Total(priced)
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"checkout_session_id": session.ID,
			"artwork_id":          first.ArtworkID.String(),
			"amount_minor":        amount,
			"line_items":          len(lineItems),
		})
		s.logg.Info(logCtx, "checkout session created")
	}

	return &Session{
		SessionID:   session.ID,
		URL:         session.URL,
		AmountMinor: amount,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
