package payloads

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseCompletedEvent is emitted the first time a paid checkout session is recorded.
type PurchaseCompletedEvent struct {
	PurchaseID        uuid.UUID `json:"purchase_id"`
	BuyerID           uuid.UUID `json:"buyer_id"`
	ArtworkID         uuid.UUID `json:"artwork_id"`
	ArtistID          uuid.UUID `json:"artist_id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	AmountMinor       int64     `json:"amount_minor"`
	Currency          string    `json:"currency"`
	CompletedAt       time.Time `json:"completed_at"`
}

// PurchaseRefundedEvent is emitted once per purchase, by whichever writer moved it to refunded.
type PurchaseRefundedEvent struct {
	PurchaseID      uuid.UUID `json:"purchase_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	ArtworkID       uuid.UUID `json:"artwork_id"`
	ArtistID        uuid.UUID `json:"artist_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	AmountMinor     int64     `json:"amount_minor"`
	RefundedAt      time.Time `json:"refunded_at"`
	Source          string    `json:"source"`
}
