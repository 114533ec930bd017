package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	pricing "github.com/artisanalley/marketplace-backend/pkg/checkout"
	"github.com/artisanalley/marketplace-backend/pkg/config"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	pkgstripe "github.com/artisanalley/marketplace-backend/pkg/stripe"
)

type fakeSessions struct {
	requests []pkgstripe.CheckoutSessionRequest
	session  *pkgstripe.CheckoutSession
	err      error
}

func (f *fakeSessions) CreateCheckoutSession(_ context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.CheckoutSession, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func newTestService(t *testing.T, sessions *fakeSessions) Service {
	t.Helper()
	svc, err := NewService(sessions, config.CheckoutConfig{
		PublicBaseURL: "https://artisan.example/",
		SuccessPath:   "/checkout/success",
		CancelPath:    "/checkout",
	}, "USD", nil, nil)
	require.NoError(t, err)
	return svc
}

func cartItem(price string) pricing.LineItem {
	return pricing.LineItem{
		ArtworkID: uuid.New(),
		ArtistID:  uuid.New(),
		Title:     "Harbor at Dusk",
		Image:     "https://cdn.example/harbor.jpg",
		Price:     decimal.RequireFromString(price),
	}
}

func TestCreateSessionBuildsProcessorRequest(t *testing.T) {
	sessions := &fakeSessions{session: &pkgstripe.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1", AmountTotal: 4599}}
	svc := newTestService(t, sessions)
	buyer := uuid.New()
	item := cartItem("45.99")

	session, err := svc.CreateSession(context.Background(), CreateSessionInput{
		BuyerID:        buyer,
		BuyerEmail:     " collector@example.com ",
		Items:          []pricing.LineItem{item},
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	require.Equal(t, &Session{SessionID: "cs_test_1", URL: "https://pay.example/cs_test_1", AmountMinor: 4599}, session)

	require.Len(t, sessions.requests, 1)
	req := sessions.requests[0]
	require.Equal(t, "usd", req.Currency)
	require.Equal(t, "https://artisan.example/checkout/success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	require.Equal(t, "https://artisan.example/checkout", req.CancelURL)
	require.Equal(t, buyer.String(), req.ClientReferenceID)
	require.Equal(t, "collector@example.com", req.CustomerEmail)
	require.Equal(t, "idem-1", req.IdempotencyKey)
	require.Equal(t, map[string]string{
		MetadataBuyerID:   buyer.String(),
		MetadataArtworkID: item.ArtworkID.String(),
		MetadataArtistID:  item.ArtistID.String(),
	}, req.Metadata)
	require.Equal(t, []pkgstripe.LineItem{{
		Name:       "Harbor at Dusk",
		ImageURL:   "https://cdn.example/harbor.jpg",
		UnitAmount: 4599,
		Quantity:   1,
	}}, req.LineItems)
}

func TestCreateSessionRoundsHalfUp(t *testing.T) {
	sessions := &fakeSessions{session: &pkgstripe.CheckoutSession{ID: "cs_round"}}
	svc := newTestService(t, sessions)

	session, err := svc.CreateSession(context.Background(), CreateSessionInput{
		BuyerID: uuid.New(),
		Items:   []pricing.LineItem{cartItem("19.999")},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2000), sessions.requests[0].LineItems[0].UnitAmount)
	require.Equal(t, int64(2000), session.AmountMinor)
}

func TestCreateSessionValidation(t *testing.T) {
	cases := map[string]struct {
		input CreateSessionInput
		code  pkgerrors.Code
	}{
		"no buyer": {
			input: CreateSessionInput{Items: []pricing.LineItem{cartItem("10")}},
			code:  pkgerrors.CodeUnauthorized,
		},
		"empty cart": {
			input: CreateSessionInput{BuyerID: uuid.New()},
			code:  pkgerrors.CodeValidation,
		},
		"zero price": {
			input: CreateSessionInput{BuyerID: uuid.New(), Items: []pricing.LineItem{cartItem("0")}},
			code:  pkgerrors.CodeValidation,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			sessions := &fakeSessions{}
			svc := newTestService(t, sessions)
			_, err := svc.CreateSession(context.Background(), tc.input)
			require.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
			require.Empty(t, sessions.requests)
		})
	}
}

func TestCreateSessionSurfacesProviderMessage(t *testing.T) {
	sessions := &fakeSessions{err: &stripe.Error{Msg: "Your card was declined."}}
	svc := newTestService(t, sessions)

	_, err := svc.CreateSession(context.Background(), CreateSessionInput{
		BuyerID: uuid.New(),
		Items:   []pricing.LineItem{cartItem("12.00")},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodePaymentProvider, typed.Code())
	require.Equal(t, "Your card was declined.", typed.Message())
	require.Len(t, sessions.requests, 1)

	var stripeErr *stripe.Error
	require.True(t, errors.As(err, &stripeErr))
}

func TestNewServiceRequiresBaseURL(t *testing.T) {
	_, err := NewService(&fakeSessions{}, config.CheckoutConfig{}, "usd", nil, nil)
	require.Error(t, err)
}
