package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/cost"
	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/ashare/tradeengine/internal/portfolio"
	"github.com/ashare/tradeengine/internal/risk"
	"github.com/ashare/tradeengine/internal/simulator"
	"github.com/ashare/tradeengine/internal/strategy"
	"github.com/shopspring/decimal"
)

// DataProvider supplies the historical candles a backtest replays. Bound to
// datasource.Chain in production; a fixture in tests.
type DataProvider interface {
	FetchBulkDailyCandles(ctx context.Context, symbols []string, from, to time.Time) (map[string][]event.Bar, error)
}

// BacktestEngine drives the shared Engine over a historical calendar range,
// synthesizing one MarketData event per symbol per trading day and draining
// the queue to quiescence before advancing to the next day. Signals are
// routed through an in-process router backed by MarketSimulator rather than
// a real broker, since a backtest has none.
type BacktestEngine struct {
	core    *Engine
	cal     *market.Calendar
	symbols []string
}

// NewBacktestEngine wires a fresh Ledger, RiskManager, and MarketSimulator
// around the given strategies.
func NewBacktestEngine(
	cfg *config.Config,
	cal *market.Calendar,
	strategies []strategy.Strategy,
	simCfg simulator.Config,
	costCfg cost.Config,
	logger *log.Logger,
) *BacktestEngine {
	capital := decimal.NewFromFloat(cfg.Capital)
	ledger := portfolio.New(capital, portfolio.DefaultSizingConfig(), cfg.Risk, cal)
	riskMgr := risk.NewManager(cfg.Risk, capital)
	sim := simulator.New(simCfg, cal)
	costModel := cost.New(costCfg)

	core := newEngine(*cfg, ledger, strategies, logger)
	core.signalHandler = &backtestRouter{
		accountID: "backtest",
		engine:    core,
		ledger:    ledger,
		riskMgr:   riskMgr,
		sim:       sim,
		costModel: costModel,
		logger:    logger,
	}

	return &BacktestEngine{core: core, cal: cal, symbols: cfg.Symbols}
}

// Ledger returns the ledger the run accumulated into, for reporting once
// Run returns.
func (b *BacktestEngine) Ledger() *portfolio.Ledger { return b.core.ledger }

// Run replays every trading day in [start, end]. For each day it publishes
// a MarketData event per symbol with a bar on that day, then drains the
// queue to quiescence (every strategy reaction, signal, order, and fill
// that day's bars provoke) before moving the clock to the next day.
func (b *BacktestEngine) Run(ctx context.Context, provider DataProvider, start, end time.Time) error {
	bars, err := provider.FetchBulkDailyCandles(ctx, b.symbols, start, end)
	if err != nil {
		return fmt.Errorf("backtest: fetch candles: %w", err)
	}
	byDate := indexBarsByDate(bars)

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if !b.cal.IsTradingDay(day) {
			continue
		}
		key := day.Format("20060102")
		for _, bar := range byDate[key] {
			b.core.Publish(event.NewMarketData(bar))
		}
		b.core.drainQueue(ctx)
	}
	return nil
}

func indexBarsByDate(bars map[string][]event.Bar) map[string][]event.Bar {
	out := make(map[string][]event.Bar)
	for _, series := range bars {
		for _, bar := range series {
			key := bar.TradeDate.Format("20060102")
			out[key] = append(out[key], bar)
		}
	}
	return out
}

// backtestRouter implements SignalHandler for backtest mode: it sizes the
// signal against the ledger the same way the live SignalExecutor sizes
// against the broker, attaches the same default stop loss, validates with
// risk.Manager, and resolves the resulting order against MarketSimulator
// using the symbol's latest bar instead of a broker round trip.
type backtestRouter struct {
	accountID string
	engine    *Engine
	ledger    *portfolio.Ledger
	riskMgr   *risk.Manager
	sim       *simulator.Simulator
	costModel *cost.Model
	logger    *log.Logger
}

func (r *backtestRouter) Execute(_ context.Context, sig event.Signal) (string, error) {
	bar, ok := r.engine.lookupBar(sig.Symbol)
	if !ok {
		r.logger.Printf("backtest: no bar yet for %s, dropping signal", sig.Symbol)
		return "", nil
	}

	switch sig.Kind {
	case event.SignalBuy:
		return r.executeBuy(sig, bar)
	case event.SignalSell:
		return r.executeSell(sig, bar)
	default:
		return "", nil
	}
}

func (r *backtestRouter) executeBuy(sig event.Signal, bar event.Bar) (string, error) {
	price := bar.Close
	qty := r.ledger.SizeBuy(price, sig.Strength)
	if qty <= 0 {
		return "", nil
	}

	stopLoss := price.Mul(decimal.NewFromFloat(1 - stopLossPct(sig)))
	intent := risk.Intent{
		Symbol:   sig.Symbol,
		Side:     order.SideBuy,
		Quantity: qty,
		Price:    price,
		StopLoss: stopLoss,
		Sector:   sig.Metadata["sector"],
	}
	account := risk.AccountState{AvailableCash: r.ledger.AvailableCapital(), StockValue: r.ledger.HoldingsValue()}
	result := r.riskMgr.Validate(intent, openPositionInfos(r.ledger, bar.TradeDate), computeDailyPnL(r.ledger, bar.TradeDate), account)
	if !result.Approved {
		r.logger.Printf("backtest: BUY %s rejected by risk: %v", sig.Symbol, result.Rejections)
		return "", nil
	}

	return r.resolve(sig, order.SideBuy, qty, bar)
}

func (r *backtestRouter) executeSell(sig event.Signal, bar event.Bar) (string, error) {
	qty := r.ledger.SizeSell(sig.Symbol, sig.Strength, bar.TradeDate)
	if qty <= 0 {
		return "", nil
	}

	intent := risk.Intent{
		Symbol:   sig.Symbol,
		Side:     order.SideSell,
		Quantity: qty,
		Price:    bar.Close,
		Sector:   sig.Metadata["sector"],
	}
	account := risk.AccountState{AvailableCash: r.ledger.AvailableCapital(), StockValue: r.ledger.HoldingsValue()}
	result := r.riskMgr.Validate(intent, openPositionInfos(r.ledger, bar.TradeDate), computeDailyPnL(r.ledger, bar.TradeDate), account)
	if !result.Approved {
		r.logger.Printf("backtest: SELL %s rejected by risk: %v", sig.Symbol, result.Rejections)
		return "", nil
	}

	return r.resolve(sig, order.SideSell, qty, bar)
}

// resolve constructs the order, walks it through the same state machine a
// broker round trip would, and hands it to MarketSimulator for a fill.
func (r *backtestRouter) resolve(sig event.Signal, side order.Side, qty int, bar event.Bar) (string, error) {
	o := order.New(r.accountID, sig.Symbol, side, order.TypeMarket, qty, decimal.Zero, order.TIFDay)
	o.Metadata["strategy_id"] = sig.StrategyID
	o.Metadata["reason"] = sig.Reason

	if err := o.Validate(); err != nil {
		r.publishOrder(o, bar.TradeDate)
		return "", nil
	}
	if err := o.Accept(); err != nil {
		r.publishOrder(o, bar.TradeDate)
		return "", nil
	}
	r.publishOrder(o, bar.TradeDate)

	sym, err := market.ParseSymbol(sig.Symbol)
	if err != nil {
		r.logger.Printf("backtest: parse symbol %s: %v", sig.Symbol, err)
		return o.OrderID, nil
	}

	simSide := simulator.SideBuy
	if side == order.SideSell {
		simSide = simulator.SideSell
	}
	simFill, ok := r.sim.Evaluate(simulator.Request{
		Symbol: sig.Symbol, Side: simSide, Type: simulator.TypeMarket, Quantity: qty,
	}, sym, bar, bar.TradeDate)
	if !ok {
		if err := o.Expire(); err != nil {
			r.logger.Printf("backtest: expire %s: %v", o.OrderID, err)
		}
		r.publishOrder(o, bar.TradeDate)
		return o.OrderID, nil
	}

	costs := r.costModel.Compute(simFill.Quantity, simFill.Price, costSide(side))
	fill := order.Fill{
		OrderID:    o.OrderID,
		Symbol:     sig.Symbol,
		Quantity:   simFill.Quantity,
		Price:      simFill.Price,
		Commission: costs.Total,
		Timestamp:  bar.TradeDate,
	}
	if err := o.ApplyFill(fill); err != nil {
		r.logger.Printf("backtest: apply fill to %s: %v", o.OrderID, err)
		return o.OrderID, nil
	}
	r.publishOrder(o, bar.TradeDate)
	r.engine.Publish(event.NewFillEvent(bar.TradeDate, event.FillSnapshot{
		OrderID:    o.OrderID,
		Symbol:     sig.Symbol,
		Side:       string(side),
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Commission: fill.Commission,
		Timestamp:  bar.TradeDate,
	}))
	return o.OrderID, nil
}

func (r *backtestRouter) publishOrder(o *order.Order, ts time.Time) {
	r.engine.Publish(event.NewOrderEvent(ts, event.OrderSnapshot{
		OrderID:        o.OrderID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Status:         string(o.Status),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		RejectReason:   o.RejectReason,
	}))
}

func costSide(s order.Side) cost.Side {
	if s == order.SideSell {
		return cost.SideSell
	}
	return cost.SideBuy
}
