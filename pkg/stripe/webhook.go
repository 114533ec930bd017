package stripe

import (
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

var ErrMissingSignature = errors.New("missing stripe signature header")

// VerifyEvent checks the Stripe-Signature header against the exact raw body and
// decodes the event. API version mismatches are tolerated.
func VerifyEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	if signature == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	return webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// VerifyEvent verifies using the client's configured signing secret.
func (c *Client) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	return VerifyEvent(payload, signature, c.SigningSecret())
}
