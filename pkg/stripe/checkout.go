package stripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
)

// LineItem is a single priced row on a hosted checkout page.
type LineItem struct {
	Name       string
	ImageURL   string
	UnitAmount int64
	Quantity   int64
}

// CheckoutSessionRequest describes a payment-mode checkout session.
type CheckoutSessionRequest struct {
	Currency          string
	LineItems         []LineItem
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	CustomerEmail     string
	Metadata          map[string]string
	IdempotencyKey    string
}

// CheckoutSession is the subset of the provider session callers need.
type CheckoutSession struct {
	ID          string
	URL         string
	AmountTotal int64
}

// CreateCheckoutSession opens a hosted, card-only checkout session. Metadata is
// attached to both the session and its payment intent.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not initialized")
	}
	if len(req.LineItems) == 0 {
		return nil, errors.New("at least one line item is required")
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		Metadata:           req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, item := range req.LineItems {
		product := &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.ImageURL != "" {
			product.Images = stripe.StringSlice([]string{item.ImageURL})
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(quantity),
		})
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	callCtx, cancel := c.withDeadline(ctx)
	defer cancel()

	session, err := c.api.V1CheckoutSessions.Create(callCtx, params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{
		ID:          session.ID,
		URL:         session.URL,
		AmountTotal: session.AmountTotal,
	}, nil
}
