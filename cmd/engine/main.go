// Package main is the entry point for the trading engine.
//
// The engine:
//  1. Loads configuration
//  2. Initializes all components (broker, storage, calendar, strategies, risk)
//  3. Builds the strategy roster and the shared event engine
//  4. Routes signals through risk validation to order execution
//  5. Logs every action for auditability
//
// Modes:
//   - "status":   print current system and market status, then exit
//   - "backtest": replay historical daily bars through the engine and print
//     a performance report
//   - "run":      drive the engine live against the realtime feed (paper or
//     live trading, per trading_mode in the config file)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashare/tradeengine/internal/analytics"
	"github.com/ashare/tradeengine/internal/broker"
	"github.com/ashare/tradeengine/internal/cache"
	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/cost"
	"github.com/ashare/tradeengine/internal/datasource"
	"github.com/ashare/tradeengine/internal/engine"
	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/eventlog"
	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/ashare/tradeengine/internal/risk"
	"github.com/ashare/tradeengine/internal/simulator"
	"github.com/ashare/tradeengine/internal/storage"
	"github.com/ashare/tradeengine/internal/strategy"
	"github.com/ashare/tradeengine/internal/webhook"
	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	mode := flag.String("mode", "status", "run mode: status | backtest | run")
	confirmLive := flag.Bool("confirm-live", false, "required safety flag to run in live trading mode")
	startFlag := flag.String("start", "", "backtest start date (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "backtest end date (YYYY-MM-DD)")
	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Printf("config loaded: broker=%s mode=%s capital=%.2f symbols=%d",
		cfg.ActiveBroker, cfg.TradingMode, cfg.Capital, len(cfg.Symbols))

	cal, err := market.NewCalendar(cfg.MarketCalendarPath)
	if err != nil {
		logger.Fatalf("failed to load market calendar: %v", err)
	}

	switch *mode {
	case "status":
		runStatus(logger, cal, cfg)
	case "backtest":
		runBacktest(logger, cal, cfg, *startFlag, *endFlag)
	case "run":
		runLive(logger, cal, cfg, *confirmLive)
	default:
		logger.Fatalf("unknown mode: %s (expected: status, backtest, run)", *mode)
	}
}

// runStatus prints the current state of the system and exits.
func runStatus(logger *log.Logger, cal *market.Calendar, cfg *config.Config) {
	now := time.Now()
	logger.Println("=== System Status ===")
	logger.Printf("Time: %s", now.Format("2006-01-02 15:04:05 MST"))
	logger.Printf("Trading day: %v", cal.IsTradingDay(now))
	logger.Printf("Market open: %v", cal.IsMarketOpen(now))
	logger.Printf("Next session in: %v", cal.TimeUntilNextSession(now).Round(time.Minute))
	logger.Printf("Mode: %s", cfg.TradingMode)
	logger.Printf("Broker: %s", cfg.ActiveBroker)
	if reason := cal.HolidayReason(now); reason != "" {
		logger.Printf("Holiday: %s", reason)
	}
}

// runBacktest replays historical daily bars from the file-backed data
// source through a BacktestEngine and prints a performance report.
func runBacktest(logger *log.Logger, cal *market.Calendar, cfg *config.Config, startFlag, endFlag string) {
	start, end, err := parseBacktestWindow(startFlag, endFlag)
	if err != nil {
		logger.Fatalf("invalid backtest window: %v", err)
	}

	strategies := buildStrategies(cfg, logger)
	bt := engine.NewBacktestEngine(cfg, cal, strategies, simulatorConfigFromJSON(cfg), costConfigFromJSON(cfg), logger)

	provider := datasource.NewFileProvider(cfg.Paths.MarketDataDir)
	chain := datasource.New([]datasource.Provider{provider}, nil)

	ctx := context.Background()
	if err := bt.Run(ctx, chain, start, end); err != nil {
		logger.Fatalf("backtest run failed: %v", err)
	}

	report := analytics.Analyze(bt.Ledger().Trades(), decimal.NewFromFloat(cfg.Capital))
	fmt.Println(analytics.FormatReport(report))
}

func parseBacktestWindow(startFlag, endFlag string) (time.Time, time.Time, error) {
	if startFlag == "" || endFlag == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("both --start and --end are required")
	}
	start, err := time.Parse("2006-01-02", startFlag)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse --start: %w", err)
	}
	end, err := time.Parse("2006-01-02", endFlag)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse --end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end is before --start")
	}
	return start, end, nil
}

// runLive wires the broker, order manager, cache, storage, and webhook
// server, then drives a LiveEngine until an interrupt signal arrives.
func runLive(logger *log.Logger, cal *market.Calendar, cfg *config.Config, confirmLive bool) {
	if cfg.TradingMode == config.ModeLive {
		// config.Load already refused to return a live-mode config unless
		// ALGOTRADE_LIVE_CONFIRMED=true was set in the environment; the CLI
		// flag is the second, independent confirmation.
		if !confirmLive {
			printLiveModeBlocked()
			os.Exit(1)
		}
		logger.Println("LIVE MODE ACTIVE — real orders will be placed on the exchange")
	} else {
		logger.Println("PAPER MODE — simulated orders only, no real money at risk")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	capital := decimal.NewFromFloat(cfg.Capital)

	var activeBroker broker.Adapter
	if cfg.TradingMode == config.ModePaper {
		activeBroker = broker.NewMockBroker(capital, broker.DefaultMockConfig(), cal)
		logger.Println("using in-process MockBroker (paper mode)")
	} else {
		brokerCfg, ok := cfg.BrokerConfig[cfg.ActiveBroker]
		if !ok {
			logger.Fatalf("no broker config found for %q", cfg.ActiveBroker)
		}
		b, err := broker.New(cfg.ActiveBroker, brokerCfg)
		if err != nil {
			logger.Fatalf("failed to initialize broker %q: %v", cfg.ActiveBroker, err)
		}
		activeBroker = b
		logger.Printf("using live broker: %s", cfg.ActiveBroker)
	}
	if err := activeBroker.Connect(ctx); err != nil {
		logger.Fatalf("broker connect failed: %v", err)
	}
	defer activeBroker.Disconnect(context.Background())

	var cacheStore *cache.Cache
	var store *storage.PostgresStore
	if cfg.DatabaseURL != "" {
		c, err := cache.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Printf("WARNING: persistent cache unavailable: %v", err)
		} else {
			cacheStore = c
			defer cacheStore.Close()
		}

		s, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Printf("WARNING: order/trade store unavailable: %v — orders will not survive a restart", err)
		} else {
			store = s
			defer store.Close()
			logger.Println("database connected — order persistence and trade archival enabled")
		}
	}

	feedProvider := datasource.NewFileProvider(cfg.Paths.MarketDataDir)
	chain := datasource.New([]datasource.Provider{feedProvider}, cacheStore)

	bus := &busProxy{}
	limiter := order.NewRateLimiter(10)
	var orderStore order.Store
	if store != nil {
		orderStore = store
	}
	orderMgr := order.NewManager(activeBroker, orderStore, limiter, bus, logger)
	defer limiter.Stop()

	strategies := buildStrategies(cfg, logger)
	cb := risk.NewCircuitBreaker(cfg.Risk.CircuitBreaker, logger)

	live := engine.NewLiveEngine(cfg, cal, strategies, activeBroker, orderMgr, chain, chainJanitor{cacheStore}, cb, logger)
	bus.target = live.Publisher()

	var whServer *webhook.Server
	if cfg.Webhook.Enabled {
		whServer = webhook.NewServer(webhook.Config{
			Port:    cfg.Webhook.Port,
			Path:    cfg.Webhook.Path,
			Enabled: cfg.Webhook.Enabled,
		}, logger)
		whServer.OnOrderUpdate(func(u webhook.OrderUpdate) {
			logger.Printf("webhook: order %s status=%s filled=%d", u.OrderID, u.Status, u.FilledQty)
		})
		if err := whServer.Start(); err != nil {
			logger.Fatalf("failed to start webhook server: %v", err)
		}
		defer whServer.Shutdown(context.Background())
	}

	var listener *eventlog.Listener
	if cfg.DatabaseURL != "" {
		listener = eventlog.NewListener(cfg.DatabaseURL, logger, "orders", "fills")
		listener.Start(ctx)
		defer listener.Stop()
	}

	logger.Println("engine starting — press Ctrl+C to stop")
	if err := live.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("engine run failed: %v", err)
	}

	report := analytics.Analyze(live.Ledger().Trades(), capital)
	fmt.Println(analytics.FormatReport(report))
}

func printLiveModeBlocked() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "  ╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "  ║                    ⚠  LIVE MODE BLOCKED  ⚠                 ║")
	fmt.Fprintln(os.Stderr, "  ╠═══════════════════════════════════════════════════════════╣")
	fmt.Fprintln(os.Stderr, "  ║  Live trading requires TWO explicit confirmations:         ║")
	fmt.Fprintln(os.Stderr, "  ║                                                             ║")
	fmt.Fprintln(os.Stderr, "  ║  1. Env var:  ALGOTRADE_LIVE_CONFIRMED=true                 ║")
	fmt.Fprintln(os.Stderr, "  ║  2. CLI flag: --confirm-live                                ║")
	fmt.Fprintln(os.Stderr, "  ║                                                             ║")
	fmt.Fprintln(os.Stderr, "  ║  The environment variable is checked at config load; this   ║")
	fmt.Fprintln(os.Stderr, "  ║  run reached main() with it already set, but is still       ║")
	fmt.Fprintln(os.Stderr, "  ║  missing --confirm-live on the command line.                ║")
	fmt.Fprintln(os.Stderr, "  ╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(os.Stderr, "")
}

// buildStrategies constructs the configured strategy roster by ID. Unknown
// IDs are a fatal misconfiguration rather than a silently skipped strategy.
func buildStrategies(cfg *config.Config, logger *log.Logger) []strategy.Strategy {
	out := make([]strategy.Strategy, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		s, err := newStrategyByID(sc.ID)
		if err != nil {
			logger.Fatalf("config: %v", err)
		}
		out = append(out, s)
	}
	logger.Printf("loaded %d strategies", len(out))
	return out
}

func newStrategyByID(id string) (strategy.Strategy, error) {
	switch id {
	case "bollinger_breakout_v1":
		return strategy.NewBollingerStrategy(strategy.BollingerBreakout), nil
	case "bollinger_reversion_v1":
		return strategy.NewBollingerStrategy(strategy.BollingerReversion), nil
	case "etf_t1_rotation_v1":
		return strategy.NewETFIntradayRotationStrategy(), nil
	case "macd_kdj_v1":
		return strategy.NewMACDKDJStrategy(), nil
	case "mean_reversion_v1":
		return strategy.NewMeanReversionStrategy(), nil
	case "rsi_reversal_v1":
		return strategy.NewRSIReversalStrategy(), nil
	case "bollinger_rsi_combo_v1":
		return strategy.NewBollingerRSIComboStrategy(), nil
	case "ma_crossover_v1":
		return strategy.NewMACrossoverStrategy(), nil
	case "grid_trading_v1":
		return strategy.NewGridStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown strategy id %q", id)
	}
}

// simulatorConfigFromJSON converts the JSON-friendly SimulatorConfig into
// internal/simulator's decimal-typed Config.
func simulatorConfigFromJSON(cfg *config.Config) simulator.Config {
	return simulator.Config{
		IgnoreTradingHours:   true,
		ImpactModel:          cfg.Simulator.ImpactModel,
		BaseImpact:           decimal.NewFromFloat(cfg.Simulator.BaseImpact),
		MaxParticipationRate: decimal.NewFromFloat(cfg.Simulator.MaxParticipationRate),
	}
}

// costConfigFromJSON converts the JSON-friendly CostConfig into
// internal/cost's decimal-typed Config.
func costConfigFromJSON(cfg *config.Config) cost.Config {
	return cost.Config{
		CommissionRate:   decimal.NewFromFloat(cfg.Cost.CommissionRate),
		MinCommission:    decimal.NewFromFloat(cfg.Cost.MinCommission),
		StampTaxRate:     decimal.NewFromFloat(cfg.Cost.StampTaxRate),
		TransferFeeRate:  decimal.NewFromFloat(cfg.Cost.TransferFeeRate),
		MarketImpactRate: decimal.NewFromFloat(cfg.Cost.MarketImpactRate),
		ImpactModel:      cost.ImpactModel(cfg.Simulator.ImpactModel),
	}
}

// busProxy lets order.Manager be constructed before the Engine it will
// eventually publish onto exists: NewLiveEngine needs the Manager, and the
// Manager needs a bus, so the bus target is filled in once the engine is
// built instead of resolving the cycle with an interface upcast.
type busProxy struct {
	target engine.Publisher
}

func (p *busProxy) Publish(e event.Event) {
	if p.target != nil {
		p.target.Publish(e)
	}
}

// chainJanitor adapts *cache.Cache to engine.CacheJanitor, tolerating a nil
// cache (no database configured) by treating cleanup as a no-op.
type chainJanitor struct {
	cache *cache.Cache
}

func (j chainJanitor) CleanupExpired(ctx context.Context) (int64, error) {
	if j.cache == nil {
		return 0, nil
	}
	return j.cache.CleanupExpired(ctx)
}
