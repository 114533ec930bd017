package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
)

// LineItem is one artwork in the buyer's cart. Quantity is always one.
type LineItem struct {
	ArtworkID uuid.UUID
	ArtistID  uuid.UUID
	Title     string
	Image     string
	Price     decimal.Decimal
}

// PricedItem is a validated LineItem with its amount in minor units.
type PricedItem struct {
	LineItem
	UnitAmount int64
}

// ItemViolation describes why a cart line was rejected.
type ItemViolation struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// PriceItems validates every line and converts prices to minor units. All
// violations are reported together.
func PriceItems(items []LineItem) ([]PricedItem, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	var violations []ItemViolation
	priced := make([]PricedItem, 0, len(items))
	for i, item := range items {
		if item.ArtworkID == uuid.Nil {
			violations = append(violations, ItemViolation{Index: i, Field: "artwork_id", Reason: "required"})
		}
		if item.ArtistID == uuid.Nil {
			violations = append(violations, ItemViolation{Index: i, Field: "artist_id", Reason: "required"})
		}
		if strings.TrimSpace(item.Title) == "" {
			violations = append(violations, ItemViolation{Index: i, Field: "title", Reason: "required"})
		}
		if !item.Price.IsPositive() {
			violations = append(violations, ItemViolation{Index: i, Field: "price", Reason: "must be greater than zero"})
			continue
		}

		amount, err := ToMinorUnits(item.Price)
		if err != nil {
			violations = append(violations, ItemViolation{Index: i, Field: "price", Reason: err.Error()})
			continue
		}
		if amount <= 0 {
			violations = append(violations, ItemViolation{Index: i, Field: "price", Reason: "rounds to zero"})
			continue
		}
		priced = append(priced, PricedItem{LineItem: item, UnitAmount: amount})
	}

	if len(violations) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid cart: %d problem(s)", len(violations))).WithDetails(map[string]any{
			"violations": violations,
		})
	}
	return priced, nil
}

// Total sums the minor-unit amounts of priced items.
func Total(items []PricedItem) int64 {
	var total int64
	for _, item := range items {
		total += item.UnitAmount
	}
	return total
}
