// Package strategy defines the strategy framework.
//
// Design rules:
//   - A strategy is a decision engine driven by market data, one bar at a
//     time, not a pure function over a whole history slice.
//   - A strategy may carry state (a grid ladder, a T+1 lockbox) because the
//     engine never reaches into it — all observable effects happen through
//     emitted Signals.
//   - A strategy never places orders. It emits Signals; Portfolio/
//     SignalExecutor size and route them, and RiskManager gates them before
//     they become orders.
package strategy

import (
	"sync"
	"time"

	"github.com/ashare/tradeengine/internal/event"
)

// PublishFunc is the non-blocking emission hook injected into every
// strategy. A strategy calls it zero or more times per OnMarketData call;
// the engine is responsible for routing the Signal onward and must never
// block the strategy's own goroutine doing so.
type PublishFunc func(event.Signal)

// Strategy is the interface every trading strategy implements. The engine
// calls OnMarketData for every bar on every symbol the strategy is
// subscribed to, and OnFill whenever one of its own orders fills.
type Strategy interface {
	// ID returns the unique identifier for this strategy, used to tag
	// Signals and to route Fills back to the originating strategy.
	ID() string

	// Name returns a human-readable name for this strategy.
	Name() string

	// OnMarketData is called once per bar. Implementations may emit
	// signals via publish; they must not block or perform I/O.
	OnMarketData(bar event.Bar, publish PublishFunc)

	// OnFill is called when an order this strategy's signal produced
	// fills, so stateful strategies (grid, T+1) can update their ladder
	// or lockbox without the engine knowing their internals.
	OnFill(fill event.FillSnapshot)
}

// History is a bounded per-symbol bar buffer shared by strategies that need
// a rolling window of candles to compute indicators from. It is the
// event-driven analogue of the candle slice a pure-function strategy would
// have received as an argument.
type History struct {
	mu      sync.Mutex
	bars    map[string][]event.Bar
	maxBars int
}

// NewHistory creates a History retaining at most maxBars per symbol.
func NewHistory(maxBars int) *History {
	if maxBars <= 0 {
		maxBars = 500
	}
	return &History{bars: make(map[string][]event.Bar), maxBars: maxBars}
}

// Push appends bar to its symbol's window, trimming the oldest entry once
// the window exceeds maxBars.
func (h *History) Push(bar event.Bar) []event.Bar {
	h.mu.Lock()
	defer h.mu.Unlock()
	bars := append(h.bars[bar.Symbol], bar)
	if len(bars) > h.maxBars {
		bars = bars[len(bars)-h.maxBars:]
	}
	h.bars[bar.Symbol] = bars
	return bars
}

// Bars returns the current window for symbol (most recent last). The
// returned slice must be treated as read-only.
func (h *History) Bars(symbol string) []event.Bar {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bars[symbol]
}

// Position tracks a strategy's own view of its holding in a symbol, fed
// exclusively through OnFill — strategies never read Portfolio directly,
// keeping the dependency DAG one-directional (Portfolio sits above
// Strategy).
type Position struct {
	Quantity   int
	EntryPrice float64
	EntryTime  time.Time
}

// Open reports whether the position is non-flat.
func (p Position) Open() bool { return p.Quantity > 0 }
