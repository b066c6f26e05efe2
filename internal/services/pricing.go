package services

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceBreakdown is the result of applying a coupon percentage and a flat discount
type PriceBreakdown struct {
	// Discounted is the price after the percentage discount only
	Discounted float64
	// Final is the payable amount after both discounts
	Final float64
}

// Price computes the payable amount for a course. Both stages are rounded to
// two decimals (half away from zero) and floored at zero.
func Price(basePrice, discountPercent, flatDiscount float64) PriceBreakdown {
	discounted := applyPercent(decimal.NewFromFloat(basePrice), discountPercent)
	final := floorZero(discounted.Sub(decimal.NewFromFloat(flatDiscount)).Round(2))

	return PriceBreakdown{
		Discounted: discounted.InexactFloat64(),
		Final:      final.InexactFloat64(),
	}
}

// Round2 rounds an amount to two decimals, half away from zero
func Round2(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// matchesDiscountedPrice reports whether amount equals the course price after
// a percentage discount, within tolerance
func matchesDiscountedPrice(amount, basePrice, discountPercent, tolerance float64) bool {
	expected := applyPercent(decimal.NewFromFloat(basePrice), discountPercent)
	diff := decimal.NewFromFloat(amount).Sub(expected).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(tolerance))
}

func applyPercent(base decimal.Decimal, percent float64) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(percent).Div(hundred))
	return floorZero(base.Mul(factor).Round(2))
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
