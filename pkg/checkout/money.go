package checkout

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	minorUnitShift = int32(2)
	maxMinorUnits  = decimal.NewFromInt(math.MaxInt64)
)

// ToMinorUnits converts a major-unit price into integer minor units, rounding
// half away from zero: 19.999 becomes 2000 and 45.985 becomes 4599.
func ToMinorUnits(price decimal.Decimal) (int64, error) {
	minor := price.Shift(minorUnitShift).Round(0)
	if minor.GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("price %s overflows minor units", price.String())
	}
	return minor.IntPart(), nil
}

// FromMinorUnits renders minor units back into a major-unit decimal for display.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Shift(-minorUnitShift)
}
