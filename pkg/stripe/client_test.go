package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/stripe/stripetest"
)

func testConfig() config.StripeConfig {
	return config.StripeConfig{
		APIKey:         "sk_test_123",
		Secret:         "whsec_test",
		Env:            "test",
		RequestTimeout: 2 * time.Second,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), testConfig(), nil, WithBaseURL(server.URL))
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	_, err := NewClient(context.Background(), cfg, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	cfg = testConfig()
	cfg.Secret = " "
	_, err = NewClient(context.Background(), cfg, nil)
	require.ErrorIs(t, err, errSecretRequired)

	cfg = testConfig()
	cfg.Env = "live"
	_, err = NewClient(context.Background(), cfg, nil)
	require.ErrorIs(t, err, errKeyEnvMismatch)

	cfg = testConfig()
	cfg.Env = "staging"
	_, err = NewClient(context.Background(), cfg, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, "test", client.Environment())
	require.Equal(t, "whsec_test", client.SigningSecret())
	require.NotNil(t, client.API())
}

func TestCreateCheckoutSession(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "checkout-key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())

		require.Equal(t, "payment", r.PostForm.Get("mode"))
		require.Equal(t, "card", r.PostForm.Get("payment_method_types[0]"))
		require.Equal(t, "usd", r.PostForm.Get("line_items[0][price_data][currency]"))
		require.Equal(t, "2000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		require.Equal(t, "Blue Heron", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		require.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		require.Equal(t, "buyer-1", r.PostForm.Get("metadata[buyer_id]"))
		require.Equal(t, "buyer-1", r.PostForm.Get("payment_intent_data[metadata][buyer_id]"))
		require.Equal(t, "buyer-1", r.PostForm.Get("client_reference_id"))
		require.Equal(t, "collector@example.com", r.PostForm.Get("customer_email"))
		require.Equal(t, "https://shop.test/checkout", r.PostForm.Get("cancel_url"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           "cs_test_1",
			"object":       "checkout.session",
			"url":          "https://checkout.stripe.com/c/pay/cs_test_1",
			"amount_total": 2000,
		})
	})

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:          "usd",
		LineItems:         []LineItem{{Name: "Blue Heron", ImageURL: "https://img.test/heron.png", UnitAmount: 2000, Quantity: 1}},
		SuccessURL:        "https://shop.test/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         "https://shop.test/checkout",
		ClientReferenceID: "buyer-1",
		CustomerEmail:     "collector@example.com",
		Metadata:          map[string]string{"buyer_id": "buyer-1", "artwork_id": "art-1", "artist_id": "artist-1"},
		IdempotencyKey:    "checkout-key-1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "cs_test_1", session.ID)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.URL)
	require.EqualValues(t, 2000, session.AmountTotal)
}

func TestCreateCheckoutSessionSurfacesProviderMessage(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"parameter_invalid_integer","message":"Invalid integer: -1"}}`))
	})

	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:  "usd",
		LineItems: []LineItem{{Name: "x", UnitAmount: -1}},
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "no automatic retries")
	require.Equal(t, "Invalid integer: -1", ErrorMessage(err))
	require.Equal(t, "parameter_invalid_integer", ErrorCode(err))
}

func TestCreateCheckoutSessionRequiresItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called")
	})
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{})
	require.Error(t, err)
}

func TestCreateRefund(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		require.Equal(t, "refund-p1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "re_1",
			"object": "refund",
			"status": "succeeded",
			"amount": 4599,
		})
	})

	refund, err := client.CreateRefund(context.Background(), RefundRequest{PaymentIntentID: "pi_123", IdempotencyKey: "refund-p1"})
	require.NoError(t, err)
	require.Equal(t, "re_1", refund.ID)
	require.Equal(t, "succeeded", refund.Status)
	require.EqualValues(t, 4599, refund.Amount)

	_, err = client.CreateRefund(context.Background(), RefundRequest{})
	require.Error(t, err)
}

func TestVerifyEvent(t *testing.T) {
	payload, err := stripetest.Event("evt_1", "checkout.session.completed",
		stripetest.CheckoutSessionCompleted("cs_1", "pi_1", 4599, map[string]string{"buyer_id": "b"}))
	require.NoError(t, err)

	header := stripetest.SignatureHeader(payload, "whsec_test", time.Now())
	event, err := VerifyEvent(payload, header, "whsec_test")
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, "checkout.session.completed", string(event.Type))
	require.NotEmpty(t, event.Data.Raw)

	_, err = VerifyEvent(payload, header, "whsec_other")
	require.Error(t, err)

	_, err = VerifyEvent(payload, "", "whsec_test")
	require.ErrorIs(t, err, ErrMissingSignature)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	_, err = VerifyEvent(tampered, header, "whsec_test")
	require.Error(t, err)
}

func TestErrorMessageFallsBack(t *testing.T) {
	require.Equal(t, "", ErrorMessage(nil))
	require.Equal(t, "boom", ErrorMessage(errors.New("boom")))
	require.Equal(t, "", ErrorCode(errors.New("boom")))
}
