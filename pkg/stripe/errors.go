package stripe

import (
	"errors"

	"github.com/stripe/stripe-go/v84"
)

// ErrorMessage extracts the provider's human readable message, falling back to err.Error().
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}

// ErrorCode returns the provider error code when available.
func ErrorCode(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return string(stripeErr.Code)
	}
	return ""
}
