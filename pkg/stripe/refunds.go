package stripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
)

type RefundRequest struct {
	PaymentIntentID string
	IdempotencyKey  string
	Metadata        map[string]string
}

type Refund struct {
	ID     string
	Status string
	Amount int64
}

// CreateRefund refunds the full amount captured by a payment intent.
func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not initialized")
	}
	if req.PaymentIntentID == "" {
		return nil, errors.New("payment intent id is required")
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Metadata:      req.Metadata,
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	callCtx, cancel := c.withDeadline(ctx)
	defer cancel()

	refund, err := c.api.V1Refunds.Create(callCtx, params)
	if err != nil {
		return nil, err
	}
	return &Refund{
		ID:     refund.ID,
		Status: string(refund.Status),
		Amount: refund.Amount,
	}, nil
}
