// Package money holds the decimal arithmetic used for cart and order amounts.
// Amounts stay decimal.Decimal everywhere; integer minor units exist only at the gateway boundary.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Breakdown is the priced summary of a set of lines.
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Line is the minimum a priced line must expose.
type Line interface {
	LineTotal() decimal.Decimal
}

// Round rounds half-up to cents.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// LineTotal returns unitPrice × quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Sum adds line totals.
func Sum[L Line](lines []L) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// EstimateTax applies the flat rate and rounds half-up to cents.
func EstimateTax(subtotal, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() || subtotal.IsZero() {
		return decimal.Zero
	}
	return Round(subtotal.Mul(rate))
}

// Price builds the subtotal/tax/total breakdown for a subtotal.
func Price(subtotal, rate decimal.Decimal) Breakdown {
	subtotal = Round(subtotal)
	tax := EstimateTax(subtotal, rate)
	return Breakdown{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// ToMinorUnits converts a dollar amount to integer cents, rounding half-up.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", amount)
	}
	cents := amount.Shift(2).Round(0)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %s cannot be represented in cents", amount)
	}
	return cents.IntPart(), nil
}

// FromMinorUnits converts integer cents to a dollar amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}
