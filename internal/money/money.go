package money

import (
	"github.com/shopspring/decimal"
)

// Scale is the monetary scale every stored balance, cost, and fee is
// rounded to. Intermediate products are kept exact and only rounded once.
const Scale = 16

// QtyScale is the display scale for order book quantities and quoted prices.
const QtyScale = 10

// Round rounds to the monetary scale, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// FeeRate converts a percentage fee to a multiplier fraction. The shift is
// exact, no division takes place.
func FeeRate(feePct decimal.Decimal) decimal.Decimal {
	return feePct.Shift(-2)
}

// Cost is the fee-inclusive cost of buying units at price with a
// percentage fee: round(price * units * (1 + fee/100), Scale).
func Cost(price, units, feePct decimal.Decimal) decimal.Decimal {
	gross := price.Mul(units)
	return Round(gross.Add(gross.Mul(FeeRate(feePct))))
}

// FeeAmount is the fee charged on a gross amount of price * units.
func FeeAmount(price, units, feePct decimal.Decimal) decimal.Decimal {
	return Round(price.Mul(units).Mul(FeeRate(feePct)))
}

// Proceeds is the fee-adjusted net of selling amount at rate:
// round(rate * amount * (1 - fee/100), Scale).
func Proceeds(rate, amount, feePct decimal.Decimal) decimal.Decimal {
	gross := rate.Mul(amount)
	return Round(gross.Sub(gross.Mul(FeeRate(feePct))))
}

// FormatQty renders a quantity with exactly QtyScale fractional digits.
func FormatQty(d decimal.Decimal) string {
	return d.StringFixed(QtyScale)
}
