// Package pricing computes order totals. It is pure: no clock, no I/O, no
// configuration lookups. The fee percentage is an explicit argument.
package pricing

import (
	"storefront/internal/domain"

	"github.com/shopspring/decimal"
)

// Line is one priced input pair.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals carries the computed amounts. Subtotal and PlatformFee keep full
// precision; Total is rounded half-up to 2 decimal places.
type Totals struct {
	Subtotal    decimal.Decimal
	PlatformFee decimal.Decimal
	Total       decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// ComputeTotals returns subtotal = sum(price*qty), platform fee =
// subtotal * feePct/100 and total = subtotal - discount + shipping + fee.
// Rounding happens once, at the final total.
func ComputeTotals(items []Line, discount, shippingFee, feePct decimal.Decimal) (Totals, error) {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return Totals{}, domain.InvalidInput("line item quantity must be positive")
		}
		if it.UnitPrice.IsNegative() {
			return Totals{}, domain.InvalidInput("line item price must not be negative")
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	fee := subtotal.Mul(feePct).Div(oneHundred)
	total := subtotal.Sub(discount).Add(shippingFee).Add(fee).Round(2)

	return Totals{Subtotal: subtotal, PlatformFee: fee, Total: total}, nil
}
