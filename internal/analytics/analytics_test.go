package analytics

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ashare/tradeengine/internal/portfolio"
	"github.com/shopspring/decimal"
)

func makeClosedTrade(strategyID, symbol string, entryPrice, exitPrice float64, qty int, holdDays int) portfolio.Trade {
	entry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exit := entry.Add(time.Duration(holdDays) * 24 * time.Hour)
	pnl := decimal.NewFromFloat(float64(qty) * (exitPrice - entryPrice))
	return portfolio.Trade{
		Symbol:      symbol,
		StrategyID:  strategyID,
		EntryPrice:  decimal.NewFromFloat(entryPrice),
		ExitPrice:   decimal.NewFromFloat(exitPrice),
		Quantity:    qty,
		EntryDate:   entry,
		ExitDate:    exit,
		RealizedPnL: pnl,
	}
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestAnalyze_EmptyTrades(t *testing.T) {
	report := Analyze(nil, dec(500000))
	if report == nil {
		t.Fatal("expected non-nil report")
	}
	if report.TotalTrades != 0 {
		t.Errorf("expected 0 trades, got %d", report.TotalTrades)
	}
	if report.WinRate != 0 {
		t.Errorf("expected 0 win rate, got %.2f", report.WinRate)
	}
}

func TestAnalyze_AllWins(t *testing.T) {
	trades := []portfolio.Trade{
		makeClosedTrade("trend_follow_v1", "600000.SH", 100, 110, 10, 5),
		makeClosedTrade("trend_follow_v1", "600519.SH", 200, 220, 5, 3),
		makeClosedTrade("trend_follow_v1", "000858.SZ", 150, 160, 8, 7),
	}

	report := Analyze(trades, dec(500000))

	if report.TotalTrades != 3 {
		t.Errorf("expected 3 trades, got %d", report.TotalTrades)
	}
	if report.WinningTrades != 3 {
		t.Errorf("expected 3 winning trades, got %d", report.WinningTrades)
	}
	if report.LosingTrades != 0 {
		t.Errorf("expected 0 losing trades, got %d", report.LosingTrades)
	}
	if report.WinRate != 100 {
		t.Errorf("expected 100%% win rate, got %.2f%%", report.WinRate)
	}
	// 10*(110-100) + 5*(220-200) + 8*(160-150) = 100 + 100 + 80 = 280
	if !report.TotalPnL.Equal(dec(280)) {
		t.Errorf("expected TotalPnL=280, got %s", report.TotalPnL)
	}
	if !report.MaxDrawdown.IsZero() {
		t.Errorf("expected 0 drawdown for all wins, got %s", report.MaxDrawdown)
	}
}

func TestAnalyze_AllLosses(t *testing.T) {
	trades := []portfolio.Trade{
		makeClosedTrade("trend_follow_v1", "600000.SH", 100, 90, 10, 5),
		makeClosedTrade("trend_follow_v1", "600519.SH", 200, 180, 5, 3),
	}

	report := Analyze(trades, dec(500000))

	if report.WinRate != 0 {
		t.Errorf("expected 0%% win rate, got %.2f%%", report.WinRate)
	}
	if report.TotalPnL.Sign() >= 0 {
		t.Errorf("expected negative PnL, got %s", report.TotalPnL)
	}
	// 10*(90-100) + 5*(180-200) = -100 + -100 = -200
	if !report.TotalPnL.Equal(dec(-200)) {
		t.Errorf("expected TotalPnL=-200, got %s", report.TotalPnL)
	}
	if !report.MaxDrawdown.Equal(dec(200)) {
		t.Errorf("expected MaxDrawdown=200, got %s", report.MaxDrawdown)
	}
	if report.ProfitFactor != 0 {
		t.Errorf("expected ProfitFactor=0 (no profits), got %.2f", report.ProfitFactor)
	}
}

func TestAnalyze_MixedTrades(t *testing.T) {
	trades := []portfolio.Trade{
		makeClosedTrade("trend_follow_v1", "WIN1.SH", 100, 120, 10, 5),  // +200
		makeClosedTrade("trend_follow_v1", "LOSS1.SH", 100, 90, 10, 3),  // -100
		makeClosedTrade("trend_follow_v1", "WIN2.SH", 100, 115, 10, 7),  // +150
		makeClosedTrade("trend_follow_v1", "LOSS2.SH", 100, 85, 10, 2),  // -150
	}

	report := Analyze(trades, dec(500000))

	if report.TotalTrades != 4 {
		t.Errorf("expected 4 trades, got %d", report.TotalTrades)
	}
	if report.WinningTrades != 2 {
		t.Errorf("expected 2 wins, got %d", report.WinningTrades)
	}
	if report.WinRate != 50 {
		t.Errorf("expected 50%% win rate, got %.2f%%", report.WinRate)
	}
	// Total PnL = 200 - 100 + 150 - 150 = 100
	if !report.TotalPnL.Equal(dec(100)) {
		t.Errorf("expected TotalPnL=100, got %s", report.TotalPnL)
	}
	// GrossProfit = 200 + 150 = 350, GrossLoss = 100 + 150 = 250
	if !report.GrossProfit.Equal(dec(350)) {
		t.Errorf("expected GrossProfit=350, got %s", report.GrossProfit)
	}
	if !report.GrossLoss.Equal(dec(250)) {
		t.Errorf("expected GrossLoss=250, got %s", report.GrossLoss)
	}
	// ProfitFactor = 350 / 250 = 1.4
	if math.Abs(report.ProfitFactor-1.4) > 0.01 {
		t.Errorf("expected ProfitFactor=1.4, got %.2f", report.ProfitFactor)
	}
}

func TestAnalyze_MaxDrawdown(t *testing.T) {
	// Sequence: +100, -200, -100, +500
	// Equity: 500000 -> 500100 -> 499900 -> 499800 -> 500300
	// Peak = 500100, lowest after = 499800, drawdown = 300
	trades := []portfolio.Trade{
		makeClosedTrade("s1", "A.SH", 100, 110, 10, 1),
		makeClosedTrade("s1", "B.SH", 100, 80, 10, 2),
		makeClosedTrade("s1", "C.SH", 100, 90, 10, 3),
		makeClosedTrade("s1", "D.SH", 100, 150, 10, 4),
	}

	report := Analyze(trades, dec(500000))

	if !report.MaxDrawdown.Equal(dec(300)) {
		t.Errorf("expected MaxDrawdown=300, got %s", report.MaxDrawdown)
	}
}

func TestAnalyze_SharpeRatio(t *testing.T) {
	// All same P&L -> stddev=0 -> Sharpe=0
	trades := []portfolio.Trade{
		makeClosedTrade("s1", "A.SH", 100, 110, 10, 1),
		makeClosedTrade("s1", "B.SH", 100, 110, 10, 2),
		makeClosedTrade("s1", "C.SH", 100, 110, 10, 3),
	}

	report := Analyze(trades, dec(500000))

	if report.SharpeRatio != 0 {
		t.Errorf("expected Sharpe=0 for zero stddev, got %.2f", report.SharpeRatio)
	}
}

func TestAnalyze_SharpeRatio_Varied(t *testing.T) {
	trades := []portfolio.Trade{
		makeClosedTrade("s1", "A.SH", 100, 120, 10, 1), // +200
		makeClosedTrade("s1", "B.SH", 100, 90, 10, 2),  // -100
		makeClosedTrade("s1", "C.SH", 100, 130, 10, 3), // +300
		makeClosedTrade("s1", "D.SH", 100, 95, 10, 4),  // -50
	}

	report := Analyze(trades, dec(500000))

	if report.SharpeRatio <= 0 {
		t.Errorf("expected positive Sharpe for net positive returns, got %.2f", report.SharpeRatio)
	}
}

func TestAnalyze_StrategyBreakdown(t *testing.T) {
	trades := []portfolio.Trade{
		makeClosedTrade("trend_follow_v1", "A.SH", 100, 110, 10, 5),
		makeClosedTrade("trend_follow_v1", "B.SH", 100, 120, 10, 3),
		makeClosedTrade("mean_reversion_v1", "C.SH", 100, 105, 10, 7),
		makeClosedTrade("mean_reversion_v1", "D.SH", 100, 90, 10, 4),
	}

	report := Analyze(trades, dec(500000))

	if len(report.StrategyReports) != 2 {
		t.Errorf("expected 2 strategy reports, got %d", len(report.StrategyReports))
	}

	tf := report.StrategyReports["trend_follow_v1"]
	if tf == nil {
		t.Fatal("missing trend_follow_v1 report")
	}
	if tf.TotalTrades != 2 {
		t.Errorf("expected 2 trend follow trades, got %d", tf.TotalTrades)
	}
	if tf.WinRate != 100 {
		t.Errorf("expected 100%% win rate for trend follow, got %.2f%%", tf.WinRate)
	}

	mr := report.StrategyReports["mean_reversion_v1"]
	if mr == nil {
		t.Fatal("missing mean_reversion_v1 report")
	}
	if mr.TotalTrades != 2 {
		t.Errorf("expected 2 mean reversion trades, got %d", mr.TotalTrades)
	}
	if mr.WinRate != 50 {
		t.Errorf("expected 50%% win rate for mean reversion, got %.2f%%", mr.WinRate)
	}
}

func TestAnalyze_AverageHoldTime(t *testing.T) {
	trades := []portfolio.Trade{
		makeClosedTrade("s1", "A.SH", 100, 110, 10, 4),
		makeClosedTrade("s1", "B.SH", 100, 120, 10, 6),
		makeClosedTrade("s1", "C.SH", 100, 105, 10, 8),
	}

	report := Analyze(trades, dec(500000))

	// Average: (4 + 6 + 8) / 3 = 6.0
	if math.Abs(report.AverageHoldDays-6.0) > 0.1 {
		t.Errorf("expected AverageHoldDays=6.0, got %.1f", report.AverageHoldDays)
	}
	if report.MinHoldDays != 4 {
		t.Errorf("expected MinHoldDays=4, got %d", report.MinHoldDays)
	}
	if report.MaxHoldDays != 8 {
		t.Errorf("expected MaxHoldDays=8, got %d", report.MaxHoldDays)
	}
}

func TestEquityCurve(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []portfolio.EquitySample{
		{Ts: base, TotalValue: dec(500000)},
		{Ts: base.AddDate(0, 0, 1), TotalValue: dec(500100)},
		{Ts: base.AddDate(0, 0, 2), TotalValue: dec(499900)},
		{Ts: base.AddDate(0, 0, 3), TotalValue: dec(500300)},
	}

	curve := EquityCurve(samples)
	if len(curve) != 4 {
		t.Fatalf("expected 4 points, got %d", len(curve))
	}
	if !curve[0].Equity.Equal(dec(500000)) {
		t.Errorf("expected first point equity=500000, got %s", curve[0].Equity)
	}
	last := curve[len(curve)-1]
	if !last.Equity.Equal(dec(500300)) {
		t.Errorf("expected last equity=500300, got %s", last.Equity)
	}
	// Peak after day 1 is 500100; day 2's drawdown is 500100-499900=200.
	if !curve[2].Drawdown.Equal(dec(200)) {
		t.Errorf("expected drawdown=200 at day 2, got %s", curve[2].Drawdown)
	}
}

func TestFormatReport_EmptyTrades(t *testing.T) {
	report := Analyze(nil, dec(500000))
	formatted := FormatReport(report)
	if !strings.Contains(formatted, "No closed trades") {
		t.Errorf("expected 'No closed trades' message, got: %s", formatted)
	}
}

func TestFormatReport_WithTrades(t *testing.T) {
	trades := []portfolio.Trade{
		makeClosedTrade("trend_follow_v1", "A.SH", 100, 110, 10, 5),
		makeClosedTrade("mean_reversion_v1", "B.SH", 100, 90, 10, 3),
	}

	report := Analyze(trades, dec(500000))
	formatted := FormatReport(report)

	if !strings.Contains(formatted, "PERFORMANCE REPORT") {
		t.Error("expected report header")
	}
	if !strings.Contains(formatted, "Total trades") {
		t.Error("expected total trades in report")
	}
	if !strings.Contains(formatted, "STRATEGY BREAKDOWN") {
		t.Error("expected strategy breakdown for multi-strategy report")
	}
}
