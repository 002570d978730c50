package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/cost"
	"github.com/ashare/tradeengine/internal/datasource"
	"github.com/ashare/tradeengine/internal/engine"
	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/simulator"
	"github.com/ashare/tradeengine/internal/strategy"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[engine-test] ", log.LstdFlags)
}

func fmtPrice(f float64) string { return fmt.Sprintf("%.2f", f) }
func fmtInt(n int64) string     { return strconv.FormatInt(n, 10) }

func TestNewStrategyByID_AllKnownIDs(t *testing.T) {
	ids := []string{
		"bollinger_breakout_v1",
		"bollinger_reversion_v1",
		"etf_t1_rotation_v1",
		"macd_kdj_v1",
		"mean_reversion_v1",
		"rsi_reversal_v1",
		"bollinger_rsi_combo_v1",
		"ma_crossover_v1",
		"grid_trading_v1",
	}
	for _, id := range ids {
		s, err := newStrategyByID(id)
		if err != nil {
			t.Fatalf("newStrategyByID(%q): %v", id, err)
		}
		if s.ID() != id {
			t.Errorf("newStrategyByID(%q).ID() = %q, want %q", id, s.ID(), id)
		}
	}
}

func TestNewStrategyByID_Unknown(t *testing.T) {
	if _, err := newStrategyByID("not_a_real_strategy"); err == nil {
		t.Fatal("expected error for unknown strategy id, got nil")
	}
}

func TestParseBacktestWindow(t *testing.T) {
	t.Run("missing flags", func(t *testing.T) {
		if _, _, err := parseBacktestWindow("", "2024-01-01"); err == nil {
			t.Fatal("expected error when --start is missing")
		}
		if _, _, err := parseBacktestWindow("2024-01-01", ""); err == nil {
			t.Fatal("expected error when --end is missing")
		}
	})

	t.Run("bad date", func(t *testing.T) {
		if _, _, err := parseBacktestWindow("not-a-date", "2024-01-01"); err == nil {
			t.Fatal("expected error for malformed --start")
		}
	})

	t.Run("end before start", func(t *testing.T) {
		if _, _, err := parseBacktestWindow("2024-06-01", "2024-01-01"); err == nil {
			t.Fatal("expected error when --end precedes --start")
		}
	})

	t.Run("valid window", func(t *testing.T) {
		start, end, err := parseBacktestWindow("2024-01-01", "2024-03-01")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("start = %v", start)
		}
		if !end.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("end = %v", end)
		}
	})
}

func TestBusProxy_DropsUntilTargetSet(t *testing.T) {
	p := &busProxy{}
	// Publishing with no target set must not panic.
	p.Publish(event.NewMarketData(event.Bar{Symbol: "600000.SH"}))
}

type stubPublisher struct{ received []event.Event }

func (s *stubPublisher) Publish(e event.Event) { s.received = append(s.received, e) }

func TestBusProxy_ForwardsOnceTargetSet(t *testing.T) {
	p := &busProxy{}
	stub := &stubPublisher{}
	p.target = stub
	bar := event.Bar{Symbol: "600519.SH"}
	p.Publish(event.NewMarketData(bar))
	if len(stub.received) != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", len(stub.received))
	}
}

func TestChainJanitor_NilCacheIsNoop(t *testing.T) {
	j := chainJanitor{cache: nil}
	n, err := j.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 purged entries for a nil cache, got %d", n)
	}
}

func TestSimulatorConfigFromJSON(t *testing.T) {
	cfg := &config.Config{
		Simulator: config.SimulatorConfig{
			ImpactModel:          "sqrt",
			BaseImpact:           0.002,
			MaxParticipationRate: 0.15,
		},
	}
	simCfg := simulatorConfigFromJSON(cfg)
	if !simCfg.IgnoreTradingHours {
		t.Error("backtest simulator config must ignore trading hours (daily bars carry no intraday clock)")
	}
	if simCfg.ImpactModel != "sqrt" {
		t.Errorf("ImpactModel = %q, want sqrt", simCfg.ImpactModel)
	}
	if f, _ := simCfg.BaseImpact.Float64(); f != 0.002 {
		t.Errorf("BaseImpact = %v, want 0.002", f)
	}
}

func TestCostConfigFromJSON(t *testing.T) {
	cfg := &config.Config{
		Cost: config.CostConfig{
			CommissionRate:   0.0003,
			MinCommission:    5,
			StampTaxRate:     0.001,
			TransferFeeRate:  0.00002,
			MarketImpactRate: 0.0001,
		},
		Simulator: config.SimulatorConfig{ImpactModel: "linear"},
	}
	costCfg := costConfigFromJSON(cfg)
	if costCfg.ImpactModel != cost.ImpactLinear {
		t.Errorf("ImpactModel = %v, want %v", costCfg.ImpactModel, cost.ImpactLinear)
	}
	if f, _ := costCfg.MinCommission.Float64(); f != 5 {
		t.Errorf("MinCommission = %v, want 5", f)
	}
}

// TestBacktest_EndToEnd replays a synthetic uptrend through a real
// BacktestEngine: flat prices long enough to seed the MA crossover's slow
// window, then a sustained ramp that drives the fast SMA above the slow
// one. The assertion is deliberately loose (no crash, a non-negative
// ending equity) rather than an exact
// trade count, since the precise crossover bar depends on SMA arithmetic
// this test does not reimplement.
func TestBacktest_EndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	symbol := "600000.SH"
	writeFlatThenRampingCandles(t, dataDir, symbol, 35, 20, 100.0)

	cfg := &config.Config{
		ActiveBroker: "mock",
		TradingMode:  config.ModePaper,
		Capital:      1000000,
		Symbols:      []string{symbol},
		Risk: config.RiskConfig{
			MaxRiskPerTradePct:      2.0,
			MaxOpenPositions:        5,
			MaxDailyLossPct:         10.0,
			MaxCapitalDeploymentPct: 90.0,
			MaxPositionPct:          0.50,
			MaxTotalExposure:        0.95,
			MaxOrderValue:           1000000,
			MinOrderValue:           100,
		},
	}

	cal := market.NewCalendarFromHolidays(map[string]string{})
	strategies := []strategy.Strategy{strategy.NewMACrossoverStrategy()}

	bt := engine.NewBacktestEngine(cfg, cal, strategies, simulator.DefaultConfig(), cost.DefaultConfig(), testLogger())

	provider := datasource.NewFileProvider(dataDir)
	chain := datasource.New([]datasource.Provider{provider}, nil)

	start := time.Now().AddDate(0, 0, -90)
	end := time.Now()

	if err := bt.Run(context.Background(), chain, start, end); err != nil {
		t.Fatalf("backtest run failed: %v", err)
	}

	ledger := bt.Ledger()
	if ledger.TotalValue().IsNegative() {
		t.Fatalf("ending equity went negative: %s", ledger.TotalValue())
	}
}

func writeFlatThenRampingCandles(t *testing.T, dir, symbol string, flatDays, rampDays int, basePrice float64) {
	t.Helper()
	lines := "date,open,high,low,close,volume,amount,pre_close\n"

	today := time.Now()
	total := flatDays + rampDays
	dates := make([]time.Time, 0, total)
	d := today
	for len(dates) < total {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dates = append([]time.Time{d}, dates...)
		}
		d = d.AddDate(0, 0, -1)
	}

	prevClose := basePrice
	for i, date := range dates {
		price := basePrice
		if i >= flatDays {
			price = basePrice + float64(i-flatDays+1)*3.0
		}
		open := prevClose
		high := price + 1.0
		low := price - 1.0
		close := price
		volume := int64(1000000)
		amount := close * float64(volume)

		lines += date.Format("2006-01-02") + "," +
			fmtPrice(open) + "," + fmtPrice(high) + "," + fmtPrice(low) + "," +
			fmtPrice(close) + "," + fmtInt(volume) + "," + fmtPrice(amount) + "," + fmtPrice(prevClose) + "\n"
		prevClose = close
	}

	path := filepath.Join(dir, symbol+".csv")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
}
