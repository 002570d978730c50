// Package analytics computes performance metrics from a ledger's closed
// trade tape.
//
// It provides:
//   - Win rate, total P&L, average P&L
//   - Maximum drawdown (absolute and percentage)
//   - Sharpe ratio (annualized, assuming 252 trading days)
//   - Profit factor (gross profits / gross losses)
//   - Average hold time, min/max hold days
//   - Per-strategy breakdown
//   - Human-readable formatted report
//
// All functions are stateless and work on slices of portfolio.Trade.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/portfolio"
	"github.com/shopspring/decimal"
)

// PerformanceReport holds all computed performance metrics. Money fields
// are decimal to stay cent-exact through the whole pipeline; ratios and
// percentages are float64 since they carry no currency precision to lose.
type PerformanceReport struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percentage (0-100)

	TotalPnL    decimal.Decimal
	AveragePnL  decimal.Decimal
	GrossProfit decimal.Decimal
	GrossLoss   decimal.Decimal

	MaxDrawdown    decimal.Decimal
	MaxDrawdownPct float64
	SharpeRatio    float64 // annualized
	ProfitFactor   float64 // gross profit / gross loss

	AverageHoldDays float64
	MaxHoldDays     int
	MinHoldDays     int

	StrategyReports map[string]*StrategyReport
}

// StrategyReport holds per-strategy performance metrics.
type StrategyReport struct {
	StrategyID      string
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64
	TotalPnL        decimal.Decimal
	AveragePnL      decimal.Decimal
	AverageHoldDays float64
}

// EquityCurvePoint annotates one of the ledger's own equity samples with
// running drawdown from the peak seen so far.
type EquityCurvePoint struct {
	Date     time.Time
	Equity   decimal.Decimal
	Drawdown decimal.Decimal
}

// EquityCurve annotates the ledger's equity samples (already monotonic in
// time, one per processed MarketData) with running drawdown from the peak.
func EquityCurve(samples []portfolio.EquitySample) []EquityCurvePoint {
	if len(samples) == 0 {
		return nil
	}

	points := make([]EquityCurvePoint, 0, len(samples))
	peak := samples[0].TotalValue
	for _, s := range samples {
		if s.TotalValue.GreaterThan(peak) {
			peak = s.TotalValue
		}
		points = append(points, EquityCurvePoint{
			Date:     s.Ts,
			Equity:   s.TotalValue,
			Drawdown: peak.Sub(s.TotalValue),
		})
	}
	return points
}

// Analyze computes the full performance report from a ledger's closed trade
// tape. initialCapital is the starting equity. Returns an empty (not nil)
// report if no trades are provided.
func Analyze(trades []portfolio.Trade, initialCapital decimal.Decimal) *PerformanceReport {
	report := &PerformanceReport{StrategyReports: make(map[string]*StrategyReport)}
	if len(trades) == 0 {
		return report
	}

	sorted := make([]portfolio.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExitDate.Before(sorted[j].ExitDate) })

	pnls := make([]decimal.Decimal, 0, len(sorted))
	var totalHoldDays float64
	report.MinHoldDays = math.MaxInt32

	for _, t := range sorted {
		pnl := t.RealizedPnL
		pnls = append(pnls, pnl)
		report.TotalTrades++
		report.TotalPnL = report.TotalPnL.Add(pnl)

		switch pnl.Sign() {
		case 1:
			report.WinningTrades++
			report.GrossProfit = report.GrossProfit.Add(pnl)
		case -1:
			report.LosingTrades++
			report.GrossLoss = report.GrossLoss.Add(pnl.Abs())
		}

		holdDays := holdDaysForTrade(t)
		totalHoldDays += float64(holdDays)
		if holdDays > report.MaxHoldDays {
			report.MaxHoldDays = holdDays
		}
		if holdDays < report.MinHoldDays {
			report.MinHoldDays = holdDays
		}

		sr, ok := report.StrategyReports[t.StrategyID]
		if !ok {
			sr = &StrategyReport{StrategyID: t.StrategyID}
			report.StrategyReports[t.StrategyID] = sr
		}
		sr.TotalTrades++
		sr.TotalPnL = sr.TotalPnL.Add(pnl)
		sr.AverageHoldDays += float64(holdDays)
		switch pnl.Sign() {
		case 1:
			sr.WinningTrades++
		case -1:
			sr.LosingTrades++
		}
	}

	if report.TotalTrades == 0 {
		report.MinHoldDays = 0
		return report
	}

	report.WinRate = float64(report.WinningTrades) / float64(report.TotalTrades) * 100
	report.AveragePnL = report.TotalPnL.Div(decimal.NewFromInt(int64(report.TotalTrades)))
	report.AverageHoldDays = totalHoldDays / float64(report.TotalTrades)

	if report.GrossLoss.Sign() > 0 {
		f, _ := report.GrossProfit.Div(report.GrossLoss).Float64()
		report.ProfitFactor = f
	} else if report.GrossProfit.Sign() > 0 {
		report.ProfitFactor = math.Inf(1)
	}

	equity := initialCapital
	peak := equity
	for _, pnl := range pnls {
		equity = equity.Add(pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		dd := peak.Sub(equity)
		if dd.GreaterThan(report.MaxDrawdown) {
			report.MaxDrawdown = dd
			if peak.Sign() > 0 {
				pct, _ := dd.Div(peak).Float64()
				report.MaxDrawdownPct = pct * 100
			}
		}
	}

	report.SharpeRatio = computeSharpeRatio(pnls)

	for _, sr := range report.StrategyReports {
		if sr.TotalTrades > 0 {
			sr.WinRate = float64(sr.WinningTrades) / float64(sr.TotalTrades) * 100
			sr.AveragePnL = sr.TotalPnL.Div(decimal.NewFromInt(int64(sr.TotalTrades)))
			sr.AverageHoldDays = sr.AverageHoldDays / float64(sr.TotalTrades)
		}
	}

	return report
}

// FormatReport returns a human-readable text summary of the performance
// report, with money amounts rendered CNY-grouped via internal/market.
func FormatReport(report *PerformanceReport) string {
	if report == nil || report.TotalTrades == 0 {
		return "No closed trades to analyze."
	}

	var b strings.Builder

	b.WriteString("═══════════════════════════════════════════════════\n")
	b.WriteString("              PERFORMANCE REPORT\n")
	b.WriteString("═══════════════════════════════════════════════════\n\n")

	b.WriteString("── TRADE SUMMARY ──\n")
	fmt.Fprintf(&b, "  Total trades:    %d\n", report.TotalTrades)
	fmt.Fprintf(&b, "  Winning trades:  %d (%.1f%%)\n", report.WinningTrades, report.WinRate)
	fmt.Fprintf(&b, "  Losing trades:   %d\n", report.LosingTrades)
	b.WriteString("\n")

	b.WriteString("── PROFIT & LOSS ──\n")
	fmt.Fprintf(&b, "  Total P&L:       %s\n", market.FormatCNY(report.TotalPnL))
	fmt.Fprintf(&b, "  Average P&L:     %s\n", market.FormatCNY(report.AveragePnL))
	fmt.Fprintf(&b, "  Gross profit:    %s\n", market.FormatCNY(report.GrossProfit))
	fmt.Fprintf(&b, "  Gross loss:      %s\n", market.FormatCNY(report.GrossLoss))
	fmt.Fprintf(&b, "  Profit factor:   %.2f\n", report.ProfitFactor)
	b.WriteString("\n")

	b.WriteString("── RISK METRICS ──\n")
	fmt.Fprintf(&b, "  Max drawdown:    %s (%.2f%%)\n", market.FormatCNY(report.MaxDrawdown), report.MaxDrawdownPct)
	fmt.Fprintf(&b, "  Sharpe ratio:    %.2f\n", report.SharpeRatio)
	b.WriteString("\n")

	b.WriteString("── HOLD TIME ──\n")
	fmt.Fprintf(&b, "  Average:         %.1f days\n", report.AverageHoldDays)
	fmt.Fprintf(&b, "  Min:             %d days\n", report.MinHoldDays)
	fmt.Fprintf(&b, "  Max:             %d days\n", report.MaxHoldDays)
	b.WriteString("\n")

	if len(report.StrategyReports) > 1 {
		b.WriteString("── STRATEGY BREAKDOWN ──\n")
		for _, sr := range report.StrategyReports {
			fmt.Fprintf(&b, "  [%s]\n", sr.StrategyID)
			fmt.Fprintf(&b, "    Trades: %d | Win rate: %.1f%% | P&L: %s | Avg hold: %.1f days\n",
				sr.TotalTrades, sr.WinRate, market.FormatCNY(sr.TotalPnL), sr.AverageHoldDays)
		}
		b.WriteString("\n")
	}

	b.WriteString("═══════════════════════════════════════════════════\n")

	return b.String()
}

// holdDaysForTrade calculates the number of calendar days a trade was held.
func holdDaysForTrade(t portfolio.Trade) int {
	days := int(t.ExitDate.Sub(t.EntryDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days
}

// computeSharpeRatio calculates the annualized Sharpe ratio from a slice of
// P&L values. Assumes zero risk-free rate and 252 trading days per year.
func computeSharpeRatio(pnls []decimal.Decimal) float64 {
	if len(pnls) < 2 {
		return 0
	}

	floats := make([]float64, len(pnls))
	var sum float64
	for i, p := range pnls {
		f, _ := p.Float64()
		floats[i] = f
		sum += f
	}
	mean := sum / float64(len(floats))

	var variance float64
	for _, f := range floats {
		diff := f - mean
		variance += diff * diff
	}
	variance /= float64(len(floats) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0
	}

	return (mean / stdDev) * math.Sqrt(252)
}
