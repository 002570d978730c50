// Package money provides decimal-safe arithmetic for prices, notionals, and
// cash ledgers. Chinese-market cost calculations (§4.2) require two-decimal
// quantization with half-even rounding; float64 accumulates drift across the
// thousands of fee computations a backtest runs, so every monetary value in
// the engine is a decimal.Decimal from construction onward.
package money

import (
	"github.com/shopspring/decimal"
)

// TwoDP is the engine-wide monetary precision: yuan and fen, half-even rounded.
const TwoDP = 2

// Zero is the zero decimal value, exported to avoid repeated decimal.NewFromInt(0) calls.
var Zero = decimal.Zero

// FromFloat builds a decimal from a float64 literal (config defaults, test fixtures).
// Never use this to convert values computed at runtime from other decimals.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// Round quantizes d to two decimal places using banker's rounding (half to even),
// matching the cost model's "banker-safe rounding" requirement.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(TwoDP)
}

// RoundTick rounds a price to the exchange tick size (0.01) using half-up,
// the convention the market simulator uses for fill prices (distinct from the
// cost model's half-even quantization).
func RoundTick(d decimal.Decimal) decimal.Decimal {
	return d.Round(TwoDP)
}

// Mul multiplies and rounds to two decimal places.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Mul(b))
}

// Max returns the larger of two decimals.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of two decimals.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
