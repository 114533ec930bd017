package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/artisanalley/marketplace-backend/pkg/enums"
)

// Purchase is the durable record of a paid checkout session.
type Purchase struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BuyerID           uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	ArtworkID         uuid.UUID            `gorm:"column:artwork_id;type:uuid;not null" json:"artwork_id"`
	ArtistID          uuid.UUID            `gorm:"column:artist_id;type:uuid;not null" json:"artist_id"`
	CheckoutSessionID string               `gorm:"column:checkout_session_id;not null;uniqueIndex:ux_purchases_checkout_session_id" json:"checkout_session_id"`
	PaymentIntentID   *string              `gorm:"column:payment_intent_id;index" json:"payment_intent_id,omitempty"`
	AmountMinor       int64                `gorm:"column:amount_minor;not null" json:"amount_minor"`
	Currency          string               `gorm:"column:currency;not null" json:"currency"`
	Status            enums.PurchaseStatus `gorm:"column:status;type:purchase_status;not null" json:"status"`
	DropOffLocation   *string              `gorm:"column:drop_off_location" json:"drop_off_location,omitempty"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	RefundedAt        *time.Time           `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
}

func (Purchase) TableName() string { return "purchases" }
