// Package stripetest builds signed Stripe webhook payloads for tests.
package stripetest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SignatureHeader computes a Stripe-Signature header value for payload.
func SignatureHeader(payload []byte, secret string, ts time.Time) string {
	unix := ts.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", unix, payload)))
	return fmt.Sprintf("t=%d,v1=%s", unix, hex.EncodeToString(mac.Sum(nil)))
}

// Event renders an event envelope around object the way Stripe delivers it.
func Event(id, eventType string, object any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":       id,
		"object":   "event",
		"type":     eventType,
		"created":  time.Now().Unix(),
		"livemode": false,
		"data": map[string]any{
			"object": object,
		},
	})
}

// CheckoutSessionCompleted returns a checkout.session object payload.
func CheckoutSessionCompleted(sessionID, paymentIntentID string, amountTotal int64, metadata map[string]string) map[string]any {
	obj := map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"mode":           "payment",
		"payment_status": "paid",
		"status":         "complete",
		"amount_total":   amountTotal,
		"currency":       "usd",
		"metadata":       metadata,
	}
	if paymentIntentID != "" {
		obj["payment_intent"] = paymentIntentID
	}
	return obj
}

// ChargeRefunded returns a charge object payload for a fully refunded charge.
func ChargeRefunded(chargeID, paymentIntentID string, amount int64) map[string]any {
	obj := map[string]any{
		"id":              chargeID,
		"object":          "charge",
		"amount":          amount,
		"amount_refunded": amount,
		"refunded":        true,
		"currency":        "usd",
	}
	if paymentIntentID != "" {
		obj["payment_intent"] = paymentIntentID
	}
	return obj
}
