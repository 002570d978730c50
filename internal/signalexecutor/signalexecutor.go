// Package signalexecutor bridges Signal semantics to Order semantics for
// live (and paper) trading: it reads the broker's current quote and
// position state, sizes the trade the same way Portfolio sizes a backtest
// fill, attaches a mandatory stop loss, and hands the resulting Order to
// OrderManager. Generalized from the reference's signal-to-order
// translation (account/position lookup, per-signal sizing, MARKET-order
// default) onto this module's decimal Order/Manager types.
package signalexecutor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ashare/tradeengine/internal/broker"
	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/ashare/tradeengine/internal/portfolio"
	"github.com/ashare/tradeengine/internal/risk"
	"github.com/shopspring/decimal"
)

// defaultStopLossPct is the entry stop loss applied when a strategy signal
// carries no stop_loss_pct in its Metadata. Every concrete strategy today
// emits signals via event.NewSignal, which does not set Metadata, so this
// default is what risk.Manager's mandatory-stop-loss rule currently sees
// for every BUY; a strategy can opt into a tighter or wider stop by setting
// Metadata["stop_loss_pct"] (parsed as a float string) once one needs to.
const defaultStopLossPct = 0.05

// Submitter is the one OrderManager call this package needs.
type Submitter interface {
	Submit(ctx context.Context, o *order.Order) error
}

// RiskContext supplies the open-position and daily-P&L views risk.Manager
// needs to validate an intent; the engine wires this to the live portfolio
// snapshot plus broker-reported positions.
type RiskContext interface {
	OpenPositions(ctx context.Context) ([]risk.PositionInfo, error)
	DailyPnL(ctx context.Context) (risk.DailyPnL, error)
}

// SignalExecutor converts a strategy's Signal into an Order and submits it,
// or drops the signal with a logged reason if sizing, risk, or quote
// lookup fails.
type SignalExecutor struct {
	accountID string
	broker    broker.Adapter
	orders    Submitter
	ledger    *portfolio.Ledger
	riskMgr   *risk.Manager
	riskCtx   RiskContext
	orderType order.Type
	logger    *log.Logger
}

// New constructs a SignalExecutor. orderType selects MARKET or LIMIT order
// construction; the reference defaults to MARKET and so does this.
func New(
	accountID string,
	b broker.Adapter,
	orders Submitter,
	ledger *portfolio.Ledger,
	riskMgr *risk.Manager,
	riskCtx RiskContext,
	orderType order.Type,
	logger *log.Logger,
) *SignalExecutor {
	return &SignalExecutor{
		accountID: accountID,
		broker:    b,
		orders:    orders,
		ledger:    ledger,
		riskMgr:   riskMgr,
		riskCtx:   riskCtx,
		orderType: orderType,
		logger:    logger,
	}
}

// Execute routes a signal to the BUY/SELL handler, or no-ops on HOLD. The
// returned orderID is empty whenever the signal was dropped rather than
// turned into an order, so the caller knows not to expect a matching Fill.
func (e *SignalExecutor) Execute(ctx context.Context, sig event.Signal) (string, error) {
	switch sig.Kind {
	case event.SignalBuy:
		return e.handleBuy(ctx, sig)
	case event.SignalSell:
		return e.handleSell(ctx, sig)
	case event.SignalHold:
		return "", nil
	default:
		e.logger.Printf("signalexecutor: unknown signal kind for %s, dropping", sig.Symbol)
		return "", nil
	}
}

func (e *SignalExecutor) handleBuy(ctx context.Context, sig event.Signal) (string, error) {
	price, ok := e.broker.GetQuote(ctx, sig.Symbol)
	if !ok {
		e.logger.Printf("signalexecutor: no quote for %s, dropping BUY signal", sig.Symbol)
		return "", nil
	}

	qty := e.ledger.SizeBuy(price, sig.Strength)
	if qty <= 0 {
		e.logger.Printf("signalexecutor: BUY signal for %s sized to zero, dropping", sig.Symbol)
		return "", nil
	}

	positions, err := e.riskCtx.OpenPositions(ctx)
	if err != nil {
		return "", fmt.Errorf("signalexecutor: open positions: %w", err)
	}
	dailyPnL, err := e.riskCtx.DailyPnL(ctx)
	if err != nil {
		return "", fmt.Errorf("signalexecutor: daily pnl: %w", err)
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

	account := risk.AccountState{AvailableCash: e.ledger.AvailableCapital(), StockValue: e.ledger.HoldingsValue()}
	result := e.riskMgr.Validate(intent, positions, dailyPnL, account)
	if !result.Approved {
		e.logger.Printf("signalexecutor: BUY %s rejected by risk: %v", sig.Symbol, result.Rejections)
		return "", nil
	}

	o := e.newOrder(sig, order.SideBuy, qty, price)
	if err := e.orders.Submit(ctx, o); err != nil {
		return "", err
	}
	return o.OrderID, nil
}

func (e *SignalExecutor) handleSell(ctx context.Context, sig event.Signal) (string, error) {
	price, ok := e.broker.GetQuote(ctx, sig.Symbol)
	if !ok {
		e.logger.Printf("signalexecutor: no quote for %s, dropping SELL signal", sig.Symbol)
		return "", nil
	}

	qty := e.ledger.SizeSell(sig.Symbol, sig.Strength, time.Now())
	if qty <= 0 {
		e.logger.Printf("signalexecutor: SELL signal for %s has no sizeable (settled) position, dropping", sig.Symbol)
		return "", nil
	}

	positions, err := e.riskCtx.OpenPositions(ctx)
	if err != nil {
		return "", fmt.Errorf("signalexecutor: open positions: %w", err)
	}
	dailyPnL, err := e.riskCtx.DailyPnL(ctx)
	if err != nil {
		return "", fmt.Errorf("signalexecutor: daily pnl: %w", err)
	}

	intent := risk.Intent{
		Symbol:   sig.Symbol,
		Side:     order.SideSell,
		Quantity: qty,
		Price:    price,
		Sector:   sig.Metadata["sector"],
	}
	account := risk.AccountState{AvailableCash: e.ledger.AvailableCapital(), StockValue: e.ledger.HoldingsValue()}
	result := e.riskMgr.Validate(intent, positions, dailyPnL, account)
	if !result.Approved {
		e.logger.Printf("signalexecutor: SELL %s rejected by risk: %v", sig.Symbol, result.Rejections)
		return "", nil
	}

	o := e.newOrder(sig, order.SideSell, qty, price)
	if err := e.orders.Submit(ctx, o); err != nil {
		return "", err
	}
	return o.OrderID, nil
}

func (e *SignalExecutor) newOrder(sig event.Signal, side order.Side, qty int, price decimal.Decimal) *order.Order {
	o := order.New(e.accountID, sig.Symbol, side, e.orderType, qty, price, order.TIFDay)
	o.Metadata["strategy_id"] = sig.StrategyID
	o.Metadata["reason"] = sig.Reason
	return o
}

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
