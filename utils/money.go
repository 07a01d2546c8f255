package utils

import (
	"github.com/shopspring/decimal"
)

// CurrencyPlaces - все денежные суммы хранятся с точностью до цента.
const CurrencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundCurrency rounds half away from zero to two places. For the non-negative
// amounts the settlement flow deals with this is round-half-up.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// PercentOf returns amount × percent / 100 rounded to cents.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return RoundCurrency(amount.Mul(percent).Div(hundred))
}

// ToMinorUnits converts a 2-decimal currency amount into integer cents,
// rounding to the nearest cent first.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return RoundCurrency(amount).Mul(hundred).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -CurrencyPlaces)
}
