// Package portfolio owns the cash and positions ledger: marking positions
// to market on every bar, sizing orders from strategy signals, applying
// fills, and keeping the equity curve and trade tape analytics reads from.
package portfolio

import (
	"sync"
	"time"

	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/money"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/shopspring/decimal"
)

// Lot is one BUY fill's worth of shares, tracked separately from its
// siblings so the T+1 settlement lockbox can release them independently:
// shares bought on trade date D may not be sold until the next trading
// session's open.
type Lot struct {
	Quantity  int
	BoughtOn  time.Time
	Available bool // becomes true once released at the next session open
}

// Position is one open holding: quantity, weighted-average cost, the
// trailing-stop high-water mark used by checkTrailingStop, and the lots
// backing the T+1 available-quantity calculation.
type Position struct {
	Symbol        string
	Quantity      int
	AvgCost       decimal.Decimal
	LastPrice     decimal.Decimal
	EntryDate     time.Time
	HighWater     decimal.Decimal // highest LastPrice seen since entry
	TrailingArmed bool
	Lots          []Lot
}

// AvailableQuantity returns the shares settled and eligible to sell as of
// now: lots already marked available, plus any lot whose T+1 release point
// has passed.
func (p Position) AvailableQuantity(now time.Time, cal *market.Calendar) int {
	n := 0
	for _, l := range p.Lots {
		if l.Available || lotReleased(l.BoughtOn, now, cal) {
			n += l.Quantity
		}
	}
	return n
}

// lotReleased reports whether a lot bought on boughtOn has crossed its T+1
// release point (the next trading session's open) as of now.
func lotReleased(boughtOn, now time.Time, cal *market.Calendar) bool {
	nextDay := cal.NextTradingDay(boughtOn)
	releaseAt := time.Date(nextDay.Year(), nextDay.Month(), nextDay.Day(),
		market.Morning.OpenHour, market.Morning.OpenMin, 0, 0, market.CST)
	return !now.Before(releaseAt)
}

// consumeLots removes qty shares FIFO from the available, then released,
// lots of p. Sells are sized against AvailableQuantity by the risk gate, so
// this never needs to draw down a still-locked lot under normal operation.
func consumeLots(p *Position, qty int, now time.Time, cal *market.Calendar) {
	remaining := qty
	kept := p.Lots[:0]
	for _, l := range p.Lots {
		if remaining == 0 {
			kept = append(kept, l)
			continue
		}
		avail := l.Available || lotReleased(l.BoughtOn, now, cal)
		if !avail {
			kept = append(kept, l)
			continue
		}
		if l.Quantity <= remaining {
			remaining -= l.Quantity
			continue
		}
		l.Quantity -= remaining
		remaining = 0
		kept = append(kept, l)
	}
	p.Lots = kept
}

// MarketValue is Quantity * LastPrice.
func (p Position) MarketValue() decimal.Decimal {
	return p.LastPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// UnrealizedPnL is MarketValue - (AvgCost * Quantity).
func (p Position) UnrealizedPnL() decimal.Decimal {
	cost := p.AvgCost.Mul(decimal.NewFromInt(int64(p.Quantity)))
	return p.MarketValue().Sub(cost)
}

// EquitySample is one point on the equity curve: at most one per processed
// MarketData event per symbol, monotonic in time.
type EquitySample struct {
	Ts         time.Time
	TotalValue decimal.Decimal
	Cash       decimal.Decimal
	Holdings   decimal.Decimal
}

// Trade is one closed (SELL that reduces a position to zero, or partial
// reduction) round-trip recorded for analytics.
type Trade struct {
	Symbol      string
	StrategyID  string
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	Quantity    int
	EntryDate   time.Time
	ExitDate    time.Time
	RealizedPnL decimal.Decimal
	Commission  decimal.Decimal
}

// SizingConfig controls the fraction of available cash/holding committed to
// a single signal.
type SizingConfig struct {
	MaxPositionPct float64 // fraction of available cash one BUY signal may commit, scaled by strength
	LotSize        int
}

// DefaultSizingConfig returns the documented defaults (10% of available
// cash per full-strength signal, 100-share A-share lot).
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{MaxPositionPct: 0.10, LotSize: 100}
}

// Ledger is the cash/positions/equity-curve/trade-tape state owned by
// Portfolio. It is the event-driven successor to a reference backtest
// engine's plain position dict: every mutation goes through MarketData/
// Signal/Fill handlers instead of being poked directly by strategy code.
type Ledger struct {
	mu sync.Mutex

	cash      decimal.Decimal
	positions map[string]*Position
	equity    []EquitySample
	trades    []Trade

	lastSampleTs map[string]time.Time

	sizing SizingConfig
	risk   config.RiskConfig
	cal    *market.Calendar
}

// New constructs a Ledger seeded with starting cash. cal resolves each BUY
// lot's T+1 settlement release point.
func New(startingCash decimal.Decimal, sizing SizingConfig, risk config.RiskConfig, cal *market.Calendar) *Ledger {
	return &Ledger{
		cash:         startingCash,
		positions:    make(map[string]*Position),
		lastSampleTs: make(map[string]time.Time),
		sizing:       sizing,
		risk:         risk,
		cal:          cal,
	}
}

// Cash returns current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// TotalValue returns cash + sum of position market values.
func (l *Ledger) TotalValue() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalValueLocked()
}

func (l *Ledger) totalValueLocked() decimal.Decimal {
	total := l.cash
	for _, p := range l.positions {
		total = total.Add(p.MarketValue())
	}
	return total
}

// Position returns the current position for symbol, and whether one exists.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns a snapshot of every open position.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out
}

// EquityCurve returns the recorded equity samples.
func (l *Ledger) EquityCurve() []EquitySample {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EquitySample, len(l.equity))
	copy(out, l.equity)
	return out
}

// Trades returns the closed-trade tape.
func (l *Ledger) Trades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// OnMarketData marks the symbol's position to the bar's close, then appends
// at most one equity-curve sample for (symbol, bar.TradeDate) — repeat bars
// for a timestamp already sampled are silently deduplicated, preserving the
// monotonic-in-time guarantee.
func (l *Ledger) OnMarketData(b event.Bar) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.positions[b.Symbol]; ok {
		p.LastPrice = b.Close
		if b.Close.GreaterThan(p.HighWater) {
			p.HighWater = b.Close
		}
	}

	if last, seen := l.lastSampleTs[b.Symbol]; seen && !b.TradeDate.After(last) {
		return
	}
	l.lastSampleTs[b.Symbol] = b.TradeDate

	holdings := decimal.Zero
	for _, p := range l.positions {
		holdings = holdings.Add(p.MarketValue())
	}
	l.equity = append(l.equity, EquitySample{
		Ts:         b.TradeDate,
		TotalValue: l.cash.Add(holdings),
		Cash:       l.cash,
		Holdings:   holdings,
	})
}

// SizeBuy computes the BUY quantity for a signal: floor(available_cash *
// max_position_pct * strength / price / lot) * lot. Returns 0 if the sized
// quantity is below one lot.
func (l *Ledger) SizeBuy(price decimal.Decimal, strength float64) int {
	l.mu.Lock()
	available := l.cash
	l.mu.Unlock()

	maxInvestment := available.
		Mul(decimal.NewFromFloat(l.sizing.MaxPositionPct)).
		Mul(decimal.NewFromFloat(strength))
	if price.IsZero() {
		return 0
	}
	rawQty := maxInvestment.Div(price).IntPart()
	lot := int64(l.sizing.LotSize)
	lots := rawQty / lot
	qty := int(lots * lot)
	if qty < l.sizing.LotSize {
		return 0
	}
	return qty
}

// SizeSell computes the SELL quantity for a signal: floor(available *
// strength / lot) * lot, capped to the T+1-settled AvailableQuantity rather
// than the raw (possibly same-day-bought) Quantity.
func (l *Ledger) SizeSell(symbol string, strength float64, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok || p.Quantity <= 0 {
		return 0
	}
	available := p.AvailableQuantity(now, l.cal)
	if available <= 0 {
		return 0
	}
	lot := int64(l.sizing.LotSize)
	rawQty := decimal.NewFromInt(int64(available)).Mul(decimal.NewFromFloat(strength)).IntPart()
	lots := rawQty / lot
	qty := int(lots * lot)
	if qty > available {
		qty = available
	}
	return qty
}

// AvailableQuantity returns symbol's T+1-settled, sellable share count as
// of now. Returns 0 if there is no open position.
func (l *Ledger) AvailableQuantity(symbol string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return 0
	}
	return p.AvailableQuantity(now, l.cal)
}

// HoldingsValue returns the sum of every open position's market value,
// excluding cash. Used by the risk gate's total-exposure check.
func (l *Ledger) HoldingsValue() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.MarketValue())
	}
	return total
}

// ApplyFill updates cash and the position ledger for a fill, recording a
// closed Trade once the fill reduces a position to (or toward) zero.
func (l *Ledger) ApplyFill(f event.FillSnapshot, strategyID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	notional := f.Price.Mul(decimal.NewFromInt(int64(f.Quantity)))

	switch order.Side(f.Side) {
	case order.SideBuy:
		l.cash = l.cash.Sub(notional).Sub(f.Commission)
		p, ok := l.positions[f.Symbol]
		if !ok {
			p = &Position{Symbol: f.Symbol, EntryDate: f.Timestamp, HighWater: f.Price}
			l.positions[f.Symbol] = p
		}
		totalNotional := p.AvgCost.Mul(decimal.NewFromInt(int64(p.Quantity))).Add(notional)
		p.Quantity += f.Quantity
		p.AvgCost = money.Round(totalNotional.Div(decimal.NewFromInt(int64(p.Quantity))))
		p.LastPrice = f.Price
		p.Lots = append(p.Lots, Lot{Quantity: f.Quantity, BoughtOn: f.Timestamp})

	case order.SideSell:
		l.cash = l.cash.Add(notional).Sub(f.Commission)
		p, ok := l.positions[f.Symbol]
		if !ok {
			return // defensive: a sell fill without a tracked position is a bookkeeping bug upstream
		}
		realized := f.Price.Sub(p.AvgCost).Mul(decimal.NewFromInt(int64(f.Quantity))).Sub(f.Commission)
		l.trades = append(l.trades, Trade{
			Symbol:      f.Symbol,
			StrategyID:  strategyID,
			EntryPrice:  p.AvgCost,
			ExitPrice:   f.Price,
			Quantity:    f.Quantity,
			EntryDate:   p.EntryDate,
			ExitDate:    f.Timestamp,
			RealizedPnL: money.Round(realized),
			Commission:  f.Commission,
		})
		consumeLots(p, f.Quantity, f.Timestamp, l.cal)
		p.Quantity -= f.Quantity
		p.LastPrice = f.Price
		if p.Quantity <= 0 {
			delete(l.positions, f.Symbol)
		}
	}
}

// CheckTrailingStop reports whether symbol's trailing stop has been
// breached: arms once unrealized gain exceeds ActivationPct, then fires if
// price retreats more than TrailPct off the post-arm high-water mark.
func (l *Ledger) CheckTrailingStop(cfg config.TrailingStopConfig, symbol string) bool {
	if !cfg.Enabled {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok || p.AvgCost.IsZero() {
		return false
	}

	gainPct := p.HighWater.Sub(p.AvgCost).Div(p.AvgCost).Mul(decimal.NewFromInt(100))
	if !p.TrailingArmed && gainPct.GreaterThanOrEqual(decimal.NewFromFloat(cfg.ActivationPct)) {
		p.TrailingArmed = true
	}
	if !p.TrailingArmed {
		return false
	}

	drawdownPct := p.HighWater.Sub(p.LastPrice).Div(p.HighWater).Mul(decimal.NewFromInt(100))
	return drawdownPct.GreaterThanOrEqual(decimal.NewFromFloat(cfg.TrailPct))
}

// AvailableCapital returns the ledger's cash. No amount is set aside for
// unfilled BUY orders, here or in MockBroker; SignalExecutor passes this
// value to the risk check as available cash.
func (l *Ledger) AvailableCapital() decimal.Decimal {
	return l.Cash()
}
