package engine

import (
	"context"
	"log"
	"time"

	"github.com/ashare/tradeengine/internal/broker"
	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/ashare/tradeengine/internal/portfolio"
	"github.com/ashare/tradeengine/internal/risk"
	"github.com/ashare/tradeengine/internal/signalexecutor"
	"github.com/ashare/tradeengine/internal/strategy"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// QuoteFetcher supplies realtime quotes to poll in place of a streaming
// feed. Bound to datasource.Chain in production.
type QuoteFetcher interface {
	FetchRealtimeQuote(ctx context.Context, symbol string) (event.Quote, error)
}

// CacheJanitor purges expired cache rows. Bound to *cache.Cache.
type CacheJanitor interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Resumer reloads non-terminal orders from the last run. Bound to
// *order.Manager.
type Resumer interface {
	Resume(ctx context.Context) error
}

// Breaker gates all signals (BUY and SELL) on recent failure history. Bound to
// *risk.CircuitBreaker.
type Breaker interface {
	IsTripped() bool
	RecordFailure(reason string)
	RecordSuccess()
}

// breakerHandler wraps a SignalHandler so that every Execute call is
// gated on the breaker's tripped state and feeds its outcome back in,
// without signalexecutor itself needing to know the breaker exists.
type breakerHandler struct {
	next    SignalHandler
	breaker Breaker
	logger  *log.Logger
}

func (h *breakerHandler) Execute(ctx context.Context, sig event.Signal) (string, error) {
	if h.breaker.IsTripped() {
		h.logger.Printf("engine: circuit breaker tripped, dropping signal %s %s", sig.Symbol, sig.Kind)
		return "", nil
	}
	orderID, err := h.next.Execute(ctx, sig)
	if err != nil {
		h.breaker.RecordFailure(err.Error())
		return "", err
	}
	h.breaker.RecordSuccess()
	return orderID, nil
}

// LiveEngine drives the shared Engine with a realtime feed poller, routing
// signals through SignalExecutor and OrderManager instead of a simulator.
// Three background tasks (feed poller, cache janitor, order-manager resume)
// run under a shared errgroup.Group: any one of them returning a non-nil
// error cancels the shared context, which drains the dispatch loop and
// unwinds Run instead of leaving an orphaned goroutine behind.
type LiveEngine struct {
	core            *Engine
	feed            QuoteFetcher
	janitor         CacheJanitor
	orderMgr        Resumer
	symbols         []string
	pollInterval    time.Duration
	janitorInterval time.Duration
}

// NewLiveEngine wires a fresh Ledger, RiskManager, and SignalExecutor
// around the given strategies, broker, and order manager.
func NewLiveEngine(
	cfg *config.Config,
	cal *market.Calendar,
	strategies []strategy.Strategy,
	b broker.Adapter,
	orderMgr *order.Manager,
	feed QuoteFetcher,
	janitor CacheJanitor,
	breaker Breaker,
	logger *log.Logger,
) *LiveEngine {
	capital := decimal.NewFromFloat(cfg.Capital)
	ledger := portfolio.New(capital, portfolio.DefaultSizingConfig(), cfg.Risk, cal)
	riskMgr := risk.NewManager(cfg.Risk, capital)

	core := newEngine(*cfg, ledger, strategies, logger)
	executor := signalexecutor.New(
		cfg.ActiveBroker, b, orderMgr, ledger, riskMgr,
		&ledgerRiskContext{ledger: ledger}, order.TypeMarket, logger,
	)
	if breaker != nil {
		core.signalHandler = &breakerHandler{next: executor, breaker: breaker, logger: logger}
	} else {
		core.signalHandler = executor
	}

	pollInterval := time.Second
	if cfg.PollingIntervalMinutes > 0 {
		pollInterval = time.Duration(cfg.PollingIntervalMinutes) * time.Minute
	}

	return &LiveEngine{
		core:            core,
		feed:            feed,
		janitor:         janitor,
		orderMgr:        orderMgr,
		symbols:         cfg.Symbols,
		pollInterval:    pollInterval,
		janitorInterval: 10 * time.Minute,
	}
}

// Ledger returns the ledger the live run is accumulating into.
func (l *LiveEngine) Ledger() *portfolio.Ledger { return l.core.ledger }

// Publisher exposes the engine's bus so a webhook server or broker
// subscription can push events (e.g. a faster order-status postback) onto
// the same queue the dispatch loop drains.
func (l *LiveEngine) Publisher() Publisher { return l.core }

// Run starts the background tasks and blocks the dispatch loop until ctx is
// canceled (an external stop) or a background task fails irrecoverably. On
// return, in-flight orders already submitted to the broker are left for
// OrderManager's own monitor goroutines and Resume on the next start to
// reconcile; Run does not attempt to cancel them.
func (l *LiveEngine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.orderMgr.Resume(gctx) })
	g.Go(func() error { return l.pollRealtimeFeed(gctx) })
	g.Go(func() error { return l.runCacheJanitor(gctx) })

	go func() {
		<-gctx.Done()
		cancel()
	}()

	l.core.dispatchLoop(ctx)
	cancel()
	return g.Wait()
}

func (l *LiveEngine) pollRealtimeFeed(ctx context.Context) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, sym := range l.symbols {
				q, err := l.feed.FetchRealtimeQuote(ctx, sym)
				if err != nil {
					l.core.logger.Printf("engine: realtime feed fetch %s: %v", sym, err)
					continue
				}
				l.core.Publish(event.NewMarketData(quoteToBar(q)))
			}
		}
	}
}

func (l *LiveEngine) runCacheJanitor(ctx context.Context) error {
	ticker := time.NewTicker(l.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := l.janitor.CleanupExpired(ctx)
			if err != nil {
				l.core.logger.Printf("engine: cache janitor: %v", err)
				continue
			}
			if n > 0 {
				l.core.logger.Printf("engine: cache janitor purged %d expired entries", n)
			}
		}
	}
}

// quoteToBar flattens a realtime tick into a degenerate single-point bar so
// it can travel through the same MarketData event strategies already
// consume; Open/High/Low/Close all collapse to the traded price.
func quoteToBar(q event.Quote) event.Bar {
	return event.Bar{
		Symbol:    q.Symbol,
		TradeDate: q.Timestamp,
		Frequency: "tick",
		Open:      q.Price,
		High:      q.Price,
		Low:       q.Price,
		Close:     q.Price,
		Volume:    q.Volume,
		PreClose:  q.PrevClose,
	}
}

// ledgerRiskContext adapts the live ledger to signalexecutor.RiskContext.
// Position and P&L bookkeeping is sourced from the local ledger (kept in
// sync via Fill events) rather than a second reconciliation pass against
// the broker, so both modes share one position ledger of truth.
type ledgerRiskContext struct {
	ledger *portfolio.Ledger
}

func (c *ledgerRiskContext) OpenPositions(context.Context) ([]risk.PositionInfo, error) {
	return openPositionInfos(c.ledger, time.Now()), nil
}

func (c *ledgerRiskContext) DailyPnL(context.Context) (risk.DailyPnL, error) {
	return computeDailyPnL(c.ledger, time.Now()), nil
}
