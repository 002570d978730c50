// Package engine implements the single FIFO event loop shared by backtest
// and live trading: one dispatcher routes MarketData/Signal/Order/Fill
// events to strategies, the portfolio ledger, and a mode-specific signal
// handler (MarketSimulator via an in-process router for backtest,
// SignalExecutor/OrderManager for live), generalizing the reference's
// cmd/engine main loop into a reusable, mode-agnostic core.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/portfolio"
	"github.com/ashare/tradeengine/internal/risk"
	"github.com/ashare/tradeengine/internal/strategy"
	"github.com/shopspring/decimal"
)

// queueCapacity bounds the engine's event queue. Publish retries with a
// short blocking send on overflow instead of dropping the event.
const queueCapacity = 4096

// Publisher is the non-blocking publish capability handed to OrderManager
// and the signal-routing collaborators; Engine itself satisfies it.
type Publisher interface {
	Publish(e event.Event)
}

// SignalHandler is the mode-specific collaborator that turns a Signal into
// an order: a backtestRouter (MarketSimulator-backed) in backtest mode, or
// *signalexecutor.SignalExecutor (OrderManager-backed) in live mode. It
// returns the constructed order's ID so the engine can remember which
// strategy to route the matching Fill back to; an empty orderID means the
// signal was sized to zero, rejected by risk, or otherwise dropped.
type SignalHandler interface {
	Execute(ctx context.Context, sig event.Signal) (orderID string, err error)
}

// Engine is the shared event loop. Event dispatch is serialized: exactly
// one handler runs at a time, on the goroutine that calls dispatchLoop or
// drainQueue, so strategy/portfolio/risk observe a total order of events.
type Engine struct {
	cfg    config.Config
	logger *log.Logger

	queue chan event.Event

	strategies []strategy.Strategy
	ledger     *portfolio.Ledger

	signalHandler SignalHandler

	mu         sync.Mutex
	lastBar    map[string]event.Bar
	orderOwner map[string]string // orderID -> strategyID, for Fill routing
}

func newEngine(cfg config.Config, ledger *portfolio.Ledger, strategies []strategy.Strategy, logger *log.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		logger:     logger,
		queue:      make(chan event.Event, queueCapacity),
		strategies: strategies,
		ledger:     ledger,
		lastBar:    make(map[string]event.Bar),
		orderOwner: make(map[string]string),
	}
}

// Publish enqueues an event. A full queue is logged and retried with a
// blocking send rather than silently dropping the event.
func (e *Engine) Publish(ev event.Event) {
	select {
	case e.queue <- ev:
	default:
		e.logger.Printf("engine: queue full, retrying publish of %s event for %s", ev.Kind, ev.Symbol)
		e.queue <- ev
	}
}

// dispatchLoop blocks, dispatching events as they arrive until ctx is done.
// Used by the live driver, which runs until an external stop signal.
func (e *Engine) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			e.dispatch(ctx, ev)
		}
	}
}

// drainQueue dispatches every event currently queued and returns as soon as
// the queue is empty, without waiting for more. Used by the backtest
// driver to bring the engine to quiescence before advancing the clock.
func (e *Engine) drainQueue(ctx context.Context) {
	for {
		select {
		case ev := <-e.queue:
			e.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev event.Event) {
	switch ev.Kind {
	case event.KindMarketData:
		e.handleMarketData(ev.MarketData)
	case event.KindSignal:
		e.handleSignal(ctx, *ev.SignalData)
	case event.KindOrder:
		// Order events are observability snapshots only; no further engine
		// routing is needed, they were published by the signal handler for
		// the same reason a live broker's postback would be.
	case event.KindFill:
		e.handleFill(*ev.FillData)
	}
}

// handleMarketData marks the symbol to market on the ledger, remembers the
// bar as the latest for the symbol (the backtest signal router evaluates
// fills against it), and feeds every strategy via its OnMarketData
// contract. Strategies publish signals through a non-blocking closure
// rather than touching the bus directly.
func (e *Engine) handleMarketData(bar *event.Bar) {
	e.mu.Lock()
	e.lastBar[bar.Symbol] = *bar
	e.mu.Unlock()

	e.ledger.OnMarketData(*bar)

	publish := func(sig event.Signal) {
		e.Publish(event.NewSignalEvent(bar.TradeDate, sig))
	}
	for _, s := range e.strategies {
		s.OnMarketData(*bar, publish)
	}
}

func (e *Engine) handleSignal(ctx context.Context, sig event.Signal) {
	orderID, err := e.signalHandler.Execute(ctx, sig)
	if err != nil {
		e.logger.Printf("engine: signal execution failed for %s: %v", sig.Symbol, err)
		return
	}
	if orderID == "" {
		return
	}
	e.mu.Lock()
	e.orderOwner[orderID] = sig.StrategyID
	e.mu.Unlock()
}

// handleFill applies the fill to the ledger and, if the originating order
// is still remembered, to the strategy that emitted the signal behind it.
func (e *Engine) handleFill(f event.FillSnapshot) {
	strategyID := e.strategyFor(f.OrderID)
	e.ledger.ApplyFill(f, strategyID)

	for _, s := range e.strategies {
		if s.ID() == strategyID {
			s.OnFill(f)
			break
		}
	}
}

func (e *Engine) strategyFor(orderID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderOwner[orderID]
}

func (e *Engine) lookupBar(symbol string) (event.Bar, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.lastBar[symbol]
	return b, ok
}

// openPositionInfos reduces the ledger's open positions to the narrow view
// risk.Manager needs, with no dependency on the full Ledger type. now
// resolves each position's T+1-settled AvailableQuantity.
func openPositionInfos(ledger *portfolio.Ledger, now time.Time) []risk.PositionInfo {
	positions := ledger.Positions()
	out := make([]risk.PositionInfo, 0, len(positions))
	for _, p := range positions {
		out = append(out, risk.PositionInfo{
			Symbol:            p.Symbol,
			Quantity:          p.Quantity,
			AvailableQuantity: ledger.AvailableQuantity(p.Symbol, now),
			EntryPrice:        p.AvgCost,
			LastPrice:         p.LastPrice,
			EntryDate:         p.EntryDate,
		})
	}
	return out
}

// computeDailyPnL sums realized P&L for trades closed "today" plus every
// open position's current unrealized P&L.
func computeDailyPnL(ledger *portfolio.Ledger, now time.Time) risk.DailyPnL {
	realized := decimal.Zero
	for _, t := range ledger.Trades() {
		if sameDay(t.ExitDate, now) {
			realized = realized.Add(t.RealizedPnL)
		}
	}
	unrealized := decimal.Zero
	for _, p := range ledger.Positions() {
		unrealized = unrealized.Add(p.UnrealizedPnL())
	}
	return risk.DailyPnL{Date: now, RealizedPnL: realized, UnrealizedPnL: unrealized}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// stopLossPct reads an optional per-signal stop-loss override from
// Metadata["stop_loss_pct"], falling back to defaultStopLossPct. No
// concrete strategy sets this yet, but the knob is wired so one can without
// touching the engine or risk package.
const defaultStopLossPct = 0.05

func stopLossPct(sig event.Signal) float64 {
	raw, ok := sig.Metadata["stop_loss_pct"]
	if !ok {
		return defaultStopLossPct
	}
	var pct float64
	if _, err := fmt.Sscanf(raw, "%f", &pct); err != nil || pct <= 0 {
		return defaultStopLossPct
	}
	return pct
}
