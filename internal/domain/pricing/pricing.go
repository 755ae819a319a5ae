// Package pricing computes order prices from the photo count and an
// optional coupon. Everything here is pure; lookups and redemption live in
// the application layer.
package pricing

import (
	"github.com/shopspring/decimal"
)

// DiscountType selects how a coupon's value is applied.
type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// CouponTerms is the part of a coupon the price depends on.
// Value is a percentage (1-100) for PERCENTAGE and cents for FIXED.
type CouponTerms struct {
	Type      DiscountType
	Value     int64
	FreeUnits int
}

// Quote is a fully computed price. Amounts are in currency units with two
// decimal places.
type Quote struct {
	Units     int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
}

type tier struct {
	minUnits int
	price    int64
}

// Ordered from the largest threshold down.
var tiers = []tier{
	{minUnits: 20, price: 9},
	{minUnits: 10, price: 10},
	{minUnits: 5, price: 15},
	{minUnits: 0, price: 20},
}

var hundred = decimal.NewFromInt(100)

// UnitPrice returns the per-photo price for an order of n photos.
func UnitPrice(n int) decimal.Decimal {
	for _, t := range tiers {
		if n >= t.minUnits {
			return decimal.NewFromInt(t.price)
		}
	}
	return decimal.NewFromInt(tiers[len(tiers)-1].price)
}

// Calculate prices n photos with optional coupon terms. A nil coupon means
// no discount. The discount never exceeds the subtotal.
func Calculate(n int, terms *CouponTerms) Quote {
	if n < 0 {
		n = 0
	}
	unit := UnitPrice(n)
	subtotal := unit.Mul(decimal.NewFromInt(int64(n))).Round(2)

	discount := decimal.Zero
	if terms != nil {
		switch terms.Type {
		case DiscountPercentage:
			discount = subtotal.Mul(decimal.NewFromInt(terms.Value)).Div(hundred)
		case DiscountFixed:
			discount = FromCents(terms.Value)
		}
		if terms.FreeUnits > 0 {
			free := terms.FreeUnits
			if free > n {
				free = n
			}
			discount = discount.Add(unit.Mul(decimal.NewFromInt(int64(free))))
		}
		discount = discount.Round(2)
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		Units:     n,
		UnitPrice: unit,
		Subtotal:  subtotal,
		Discount:  discount,
		Total:     total.Round(2),
	}
}

// ToCents converts a currency amount to integer cents, rounding half up.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromCents converts integer cents to a currency amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// IsFree reports whether nothing is left to pay.
func (q Quote) IsFree() bool {
	return q.Total.IsZero()
}
