// Package simulator is the single decision point for whether an order fills
// against a given bar: it enforces daily price limits, lot size, trading
// session hours, and a liquidity participation cap, then returns a fill
// price and quantity or nothing. Deterministic on bar data — same order,
// same bar, same clock always produce the same answer — so backtests are
// reproducible and "fills that couldn't happen" are structurally excluded.
package simulator

import (
	"math"
	"time"

	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/money"
	"github.com/shopspring/decimal"
)

// Side and Type mirror the order package's vocabulary without importing it;
// the simulator is a leaf (L1) dependency and must not depend upward on L2.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

type OrderType int

const (
	TypeMarket OrderType = iota
	TypeLimit
)

// Request is the minimal shape the simulator needs to evaluate a fill.
type Request struct {
	Symbol   string
	Side     Side
	Type     OrderType
	Quantity int
	// LimitPrice is only read when Type == TypeLimit.
	LimitPrice decimal.Decimal
}

// Fill is the simulator's decision: a concrete quantity filled at a
// concrete price. A Request that does not fill returns (Fill{}, false).
type Fill struct {
	Quantity int
	Price    decimal.Decimal
}

// Config holds the tunables from the configuration surface's "market" block.
type Config struct {
	IgnoreTradingHours  bool
	ImpactModel         string // "linear" | "sqrt"
	BaseImpact          decimal.Decimal
	MaxParticipationRate decimal.Decimal // default 0.10
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ImpactModel:          "linear",
		BaseImpact:           decimal.NewFromFloat(0.001),
		MaxParticipationRate: decimal.NewFromFloat(0.10),
	}
}

// Simulator evaluates order requests against bars and the trading calendar.
type Simulator struct {
	cfg Config
	cal *market.Calendar
}

// New constructs a Simulator bound to a trading calendar.
func New(cfg Config, cal *market.Calendar) *Simulator {
	return &Simulator{cfg: cfg, cal: cal}
}

// Evaluate applies the fill algorithm (spec §4.3) to req against bar at
// clock "now". ok is false whenever the order does not fill at all: outside
// session, a suspended/missing bar, blocked by a price limit, or a liquidity
// cap that rounds the fillable quantity to zero.
func (s *Simulator) Evaluate(req Request, sym market.Symbol, bar event.Bar, now time.Time) (Fill, bool) {
	if !s.cfg.IgnoreTradingHours && !s.cal.IsMarketOpen(now) {
		return Fill{}, false
	}
	if bar.Volume == 0 && bar.Close.IsZero() {
		return Fill{}, false // missing/suspended bar
	}

	upper, lower, hasLimit := priceLimits(sym, bar)

	switch req.Type {
	case TypeMarket:
		return s.evaluateMarket(req, bar, upper, lower, hasLimit)
	case TypeLimit:
		return s.evaluateLimit(req, bar, upper, lower, hasLimit)
	default:
		return Fill{}, false
	}
}

func priceLimits(sym market.Symbol, bar event.Bar) (upper, lower decimal.Decimal, applies bool) {
	pct, applies := sym.PriceLimitPct()
	if !applies || bar.PreClose.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	band := bar.PreClose.Mul(decimal.NewFromFloat(pct))
	upper = money.RoundTick(bar.PreClose.Add(band))
	lower = money.RoundTick(bar.PreClose.Sub(band))
	return upper, lower, true
}

func (s *Simulator) evaluateMarket(req Request, bar event.Bar, upper, lower decimal.Decimal, hasLimit bool) (Fill, bool) {
	if hasLimit {
		// BUY cannot fill on a limit-up bar; SELL cannot fill on a limit-down bar.
		if req.Side == SideBuy && bar.Close.GreaterThanOrEqual(upper) {
			return Fill{}, false
		}
		if req.Side == SideSell && bar.Close.LessThanOrEqual(lower) {
			return Fill{}, false
		}
	}

	price := s.applyImpact(bar.Close, req.Side, req.Quantity, bar.Volume)
	if hasLimit {
		price = clamp(price, lower, upper)
	}
	price = money.RoundTick(price)

	qty := s.cappedQuantity(req.Quantity, bar.Volume)
	if qty == 0 {
		return Fill{}, false
	}
	return Fill{Quantity: qty, Price: price}, true
}

func (s *Simulator) evaluateLimit(req Request, bar event.Bar, upper, lower decimal.Decimal, hasLimit bool) (Fill, bool) {
	if hasLimit && (req.LimitPrice.GreaterThan(upper) || req.LimitPrice.LessThan(lower)) {
		return Fill{}, false // reject silently: limit price outside daily band
	}

	var fills bool
	switch req.Side {
	case SideBuy:
		fills = req.LimitPrice.GreaterThanOrEqual(bar.Low)
	case SideSell:
		fills = req.LimitPrice.LessThanOrEqual(bar.High)
	}
	if !fills {
		return Fill{}, false
	}

	qty := s.cappedQuantity(req.Quantity, bar.Volume)
	if qty == 0 {
		return Fill{}, false
	}
	return Fill{Quantity: qty, Price: money.RoundTick(req.LimitPrice)}, true
}

// cappedQuantity applies the liquidity participation cap, rounded down to a
// whole lot.
func (s *Simulator) cappedQuantity(requested int, barVolume int64) int {
	const lot = 100
	maxFill := int(decimal.NewFromInt(barVolume).
		Mul(s.cfg.MaxParticipationRate).
		Div(decimal.NewFromInt(lot)).
		Floor().
		IntPart()) * lot
	if requested < maxFill {
		return requested
	}
	return maxFill
}

// applyImpact nudges the market-order fill price away from the bar close in
// the direction that disadvantages the order (buys pay up, sells give up
// price), using either a linear or square-root function of participation.
func (s *Simulator) applyImpact(close decimal.Decimal, side Side, qty int, barVolume int64) decimal.Decimal {
	if barVolume == 0 {
		return close
	}
	participation := decimal.NewFromInt(int64(qty)).Div(decimal.NewFromInt(barVolume))

	var impactRate decimal.Decimal
	switch s.cfg.ImpactModel {
	case "sqrt":
		f, _ := participation.Float64()
		impactRate = s.cfg.BaseImpact.Mul(decimal.NewFromFloat(math.Sqrt(f)))
	default: // linear
		impactRate = s.cfg.BaseImpact.Mul(participation)
	}

	delta := close.Mul(impactRate)
	if side == SideBuy {
		return close.Add(delta)
	}
	return close.Sub(delta)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
