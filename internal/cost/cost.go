// Package cost computes the deterministic fee and slippage schedule a
// Chinese A-share/ETF trade incurs: commission, stamp tax (sell-side only),
// transfer fee, and a market-impact proxy. Every cost function here is pure
// — no I/O, no clock, same inputs always produce the same outputs — so
// backtests are reproducible and the figures are auditable line by line.
package cost

import (
	"github.com/ashare/tradeengine/internal/money"
	"github.com/shopspring/decimal"
)

// ImpactModel selects how market-impact slippage scales with order size.
type ImpactModel string

const (
	ImpactLinear ImpactModel = "linear"
	ImpactSqrt   ImpactModel = "sqrt"
)

// Side mirrors order.Side without importing the order package, keeping cost
// a leaf (L0) dependency with no upward edges.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// Config holds the rate schedule. Zero-value fields are NOT valid; always
// construct via DefaultConfig and override only what differs.
type Config struct {
	CommissionRate   decimal.Decimal // default 0.0003
	MinCommission    decimal.Decimal // default 5
	StampTaxRate     decimal.Decimal // default 0.001, SELL only
	TransferFeeRate  decimal.Decimal // default 0.00002, both sides
	MarketImpactRate decimal.Decimal // default 0.0001-0.0005 depending on model
	ImpactModel      ImpactModel
}

// DefaultConfig returns the documented defaults from the configuration surface.
func DefaultConfig() Config {
	return Config{
		CommissionRate:   decimal.NewFromFloat(0.0003),
		MinCommission:    decimal.NewFromInt(5),
		StampTaxRate:     decimal.NewFromFloat(0.001),
		TransferFeeRate:  decimal.NewFromFloat(0.00002),
		MarketImpactRate: decimal.NewFromFloat(0.0001),
		ImpactModel:      ImpactLinear,
	}
}

// Breakdown is the itemized result of a cost computation.
type Breakdown struct {
	Commission   decimal.Decimal
	StampTax     decimal.Decimal
	TransferFee  decimal.Decimal
	MarketImpact decimal.Decimal
	Total        decimal.Decimal
}

// Model is a configured CostModel instance.
type Model struct {
	cfg Config
}

// New constructs a cost Model from the given configuration.
func New(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// Compute returns the full fee/slippage breakdown for an order of the given
// quantity and price. All amounts are quantized to two decimal places with
// banker's (half-even) rounding.
func (m *Model) Compute(quantity int, price decimal.Decimal, side Side) Breakdown {
	notional := price.Mul(decimal.NewFromInt(int64(quantity)))

	commission := money.Round(money.Max(
		notional.Mul(m.cfg.CommissionRate),
		m.cfg.MinCommission,
	))

	var stampTax decimal.Decimal
	if side == SideSell {
		stampTax = money.Round(notional.Mul(m.cfg.StampTaxRate))
	}

	transferFee := money.Round(notional.Mul(m.cfg.TransferFeeRate))
	marketImpact := money.Round(notional.Mul(m.cfg.MarketImpactRate))

	total := commission.Add(stampTax).Add(transferFee).Add(marketImpact)

	return Breakdown{
		Commission:   commission,
		StampTax:     stampTax,
		TransferFee:  transferFee,
		MarketImpact: marketImpact,
		Total:        money.Round(total),
	}
}

// BuyCost is the all-in amount debited from cash for a BUY: notional plus
// every fee component (stamp tax is zero on a buy).
func (m *Model) BuyCost(quantity int, price decimal.Decimal) decimal.Decimal {
	notional := price.Mul(decimal.NewFromInt(int64(quantity)))
	b := m.Compute(quantity, price, SideBuy)
	return money.Round(notional.Add(b.Total))
}

// SellProceeds is the all-in amount credited to cash for a SELL: notional
// minus every fee component (including stamp tax).
func (m *Model) SellProceeds(quantity int, price decimal.Decimal) decimal.Decimal {
	notional := price.Mul(decimal.NewFromInt(int64(quantity)))
	b := m.Compute(quantity, price, SideSell)
	return money.Round(notional.Sub(b.Total))
}
