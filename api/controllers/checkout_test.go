package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	checkoutsvc "github.com/artisanalley/marketplace-backend/internal/checkout"
	"github.com/artisanalley/marketplace-backend/internal/verification"
	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
)

type stubCheckoutService struct {
	input checkoutsvc.CreateSessionInput
	calls int
	err   error
}

func (s *stubCheckoutService) CreateSession(_ context.Context, input checkoutsvc.CreateSessionInput) (*checkoutsvc.Session, error) {
	s.calls++
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &checkoutsvc.Session{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1", AmountMinor: 2000}, nil
}

func TestCreateCheckoutSession(t *testing.T) {
	svc := &stubCheckoutService{}
	buyer := uuid.New()
	artwork, artist := uuid.New(), uuid.New()
	body := `{"items":[{"artwork_id":"` + artwork.String() + `","artist_id":"` + artist.String() + `","title":" Blue Heron ","image":"https://cdn.example.com/heron.jpg","price":"19.999"}]}`

	req := authedRequest(http.MethodPost, "/api/v1/checkout/sessions", strings.NewReader(body), buyer)
	req.Header.Set("Idempotency-Key", "cart-42")
	rec := httptest.NewRecorder()
	CreateCheckoutSession(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session checkoutsvc.Session
	decodeData(t, rec, &session)
	require.Equal(t, "cs_1", session.SessionID)
	require.EqualValues(t, 2000, session.AmountMinor)

	require.Equal(t, buyer, svc.input.BuyerID)
	require.Equal(t, testEmail, svc.input.BuyerEmail)
	require.Equal(t, "cart-42", svc.input.IdempotencyKey)
	require.Len(t, svc.input.Items, 1)
	require.Equal(t, "Blue Heron", svc.input.Items[0].Title)
	require.Equal(t, artwork, svc.input.Items[0].ArtworkID)
	require.Equal(t, "19.999", svc.input.Items[0].Price.String())
}

func TestCreateCheckoutSessionAcceptsNumericPrice(t *testing.T) {
	svc := &stubCheckoutService{}
	body := `{"items":[{"artwork_id":"` + uuid.NewString() + `","artist_id":"` + uuid.NewString() + `","title":"Heron","price":45.99}]}`

	rec := httptest.NewRecorder()
	CreateCheckoutSession(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/", strings.NewReader(body), uuid.New()))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "45.99", svc.input.Items[0].Price.String())
}

func TestCreateCheckoutSessionRejections(t *testing.T) {
	tests := []struct {
		name   string
		user   uuid.UUID
		body   string
		status int
	}{
		{"anonymous", uuid.Nil, `{"items":[]}`, http.StatusUnauthorized},
		{"empty cart", uuid.New(), `{"items":[]}`, http.StatusBadRequest},
		{"unknown field", uuid.New(), `{"items":[{"title":"x"}],"coupon":"FREE"}`, http.StatusBadRequest},
		{"bad image", uuid.New(), `{"items":[{"title":"x","image":"not a url","price":"1"}]}`, http.StatusBadRequest},
		{"not json", uuid.New(), `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubCheckoutService{}
			rec := httptest.NewRecorder()
			CreateCheckoutSession(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/", strings.NewReader(tt.body), tt.user))
			require.Equal(t, tt.status, rec.Code)
			require.Zero(t, svc.calls)
		})
	}
}

func TestCreateCheckoutSessionSurfacesProviderError(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.Wrap(pkgerrors.CodePaymentProvider, errors.New("card_declined"), "Your card was declined.")}
	body := `{"items":[{"artwork_id":"` + uuid.NewString() + `","artist_id":"` + uuid.NewString() + `","title":"Heron","price":"10"}]}`

	rec := httptest.NewRecorder()
	CreateCheckoutSession(svc, nil).ServeHTTP(rec, authedRequest(http.MethodPost, "/", strings.NewReader(body), uuid.New()))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, string(pkgerrors.CodePaymentProvider), errorCode(t, rec))
}

type stubVerifier struct {
	result    *verification.Result
	err       error
	sessionID string
	buyerID   uuid.UUID
}

func (s *stubVerifier) Verify(_ context.Context, sessionID string, buyerID uuid.UUID) (*verification.Result, error) {
	s.sessionID = sessionID
	s.buyerID = buyerID
	return s.result, s.err
}

func TestVerifyCheckoutSessionConfirmed(t *testing.T) {
	buyer := uuid.New()
	poller := &stubVerifier{result: &verification.Result{
		Status:   verification.StatusConfirmed,
		Purchase: &models.Purchase{ID: uuid.New(), BuyerID: buyer, CheckoutSessionID: "cs_1"},
		Attempts: 2,
	}}

	rec := httptest.NewRecorder()
	VerifyCheckoutSession(poller, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/checkout/verify?session_id=cs_1", nil, buyer))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cs_1", poller.sessionID)
	require.Equal(t, buyer, poller.buyerID)
	var result verification.Result
	decodeData(t, rec, &result)
	require.Equal(t, verification.StatusConfirmed, result.Status)
	require.Equal(t, 2, result.Attempts)
}

func TestVerifyCheckoutSessionDelayedIsAccepted(t *testing.T) {
	poller := &stubVerifier{result: &verification.Result{
		Status:   verification.StatusDelayed,
		Attempts: 5,
		Message:  verification.DelayedMessage,
	}}

	rec := httptest.NewRecorder()
	VerifyCheckoutSession(poller, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/?session_id=cs_1", nil, uuid.New()))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), verification.DelayedMessage)
}

func TestVerifyCheckoutSessionValidation(t *testing.T) {
	poller := &stubVerifier{}

	rec := httptest.NewRecorder()
	VerifyCheckoutSession(poller, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/", nil, uuid.New()))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	VerifyCheckoutSession(poller, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/?session_id=cs_1", nil, uuid.Nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, poller.sessionID)
}

func TestVerifyCheckoutSessionForbidden(t *testing.T) {
	poller := &stubVerifier{err: pkgerrors.New(pkgerrors.CodeForbidden, "purchase belongs to another buyer")}

	rec := httptest.NewRecorder()
	VerifyCheckoutSession(poller, nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/?session_id=cs_1", nil, uuid.New()))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
