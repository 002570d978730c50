// Package risk implements hard risk guardrails for the trading system.
//
// Design rules:
//   - Risk rules are implemented in Go and cannot be overridden by a strategy.
//   - Every BUY intent must carry a stop loss.
//   - Capital preservation outranks returns: prefer rejecting a trade over
//     taking a bad one.
package risk

import (
	"fmt"
	"time"

	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/shopspring/decimal"
)

// RejectionReason explains why an intent was rejected by risk management.
type RejectionReason struct {
	Rule    string
	Message string
}

func (r RejectionReason) Error() string {
	return fmt.Sprintf("risk rejected [%s]: %s", r.Rule, r.Message)
}

// Intent is the sizing proposal Portfolio hands to the risk gate before an
// order is ever constructed: a symbol, a side, a quantity, an intended
// entry price, and (for BUY) a mandatory stop loss.
//
// Price may be zero when the caller has no live quote (e.g. the feed is
// stale); Validate then falls back to the matching PositionInfo's LastPrice
// and, failing that, to fallbackPrice.
type Intent struct {
	Symbol   string
	Side     order.Side
	Quantity int
	Price    decimal.Decimal
	StopLoss decimal.Decimal
	Sector   string // CSRC/SW industry code, empty if unknown
}

// PositionInfo is the minimal open-position view the risk gate needs: no
// dependency on the full portfolio ledger type.
type PositionInfo struct {
	Symbol            string
	Quantity          int
	AvailableQuantity int // T+1-settled shares eligible to sell today
	EntryPrice        decimal.Decimal
	LastPrice         decimal.Decimal
	EntryDate         time.Time
	Sector            string
}

// AccountState is the account-level view Validate needs beyond the open
// positions: available cash for the affordability check and current stock
// value for the total-exposure check. TotalAssets is not carried here — it
// is the Manager's own totalCapital, set at construction and changed only
// through UpdateCapital.
type AccountState struct {
	AvailableCash decimal.Decimal
	StockValue    decimal.Decimal
}

// fallbackPrice is used only when an intent carries no price and no
// PositionInfo for the symbol carries a LastPrice either — an order placed
// before any quote has ever been seen for that symbol. It is a fixed,
// documented placeholder, not a per-call estimate: risk checks should lean
// toward rejecting an improperly-priced order rather than sizing it against
// a guess, so the placeholder is set high enough that percentage-of-assets
// checks are more likely to reject than silently wave the order through.
var fallbackPrice = decimal.NewFromInt(9999)

// effectivePrice resolves the price Validate should value an intent at:
// the intent's own price if it carries one, else the symbol's last known
// market price, else fallbackPrice.
func effectivePrice(intentPrice, lastKnown decimal.Decimal) decimal.Decimal {
	if intentPrice.IsPositive() {
		return intentPrice
	}
	if lastKnown.IsPositive() {
		return lastKnown
	}
	return fallbackPrice
}

// ValidationResult holds the outcome of risk validation.
type ValidationResult struct {
	Approved   bool
	Intent     Intent
	Rejections []RejectionReason
}

// DailyPnL tracks realized and unrealized P&L for the trading day.
type DailyPnL struct {
	Date          time.Time
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Manager enforces all risk rules. It is the final gatekeeper before any
// order reaches OrderManager. Deliberately strict: any violated rule
// rejects the whole intent, regardless of strategy confidence.
type Manager struct {
	config       config.RiskConfig
	totalCapital decimal.Decimal
}

// NewManager creates a risk Manager with the given configuration and total
// capital base.
func NewManager(riskCfg config.RiskConfig, totalCapital decimal.Decimal) *Manager {
	return &Manager{
		config:       riskCfg,
		totalCapital: totalCapital,
	}
}

// UpdateCapital updates the capital base used for percentage-based limits.
// Non-positive values are ignored. Neither engine calls it, so the base
// stays at the value given to NewManager unless a caller updates it.
func (m *Manager) UpdateCapital(newCapital decimal.Decimal) {
	if newCapital.IsPositive() {
		m.totalCapital = newCapital
	}
}

// UpdateRiskConfig replaces the risk configuration atomically, used by
// config hot-reload to adjust limits without restarting the engine.
func (m *Manager) UpdateRiskConfig(newCfg config.RiskConfig) {
	m.config = newCfg
}

// Validate checks an Intent against every applicable risk rule. BUY and
// SELL intents run disjoint rule sets: a SELL can only ever be blocked by
// the available-quantity and order-notional checks below, never by the
// capital-preservation rules (stop loss, risk-per-trade, daily loss,
// deployment, position/exposure caps, sector concentration) that exist to
// keep new entries sane — the gate still lets a position be exited. Returns
// a ValidationResult with the approval flag and every violated rule, not
// just the first.
func (m *Manager) Validate(
	intent Intent,
	openPositions []PositionInfo,
	dailyPnL DailyPnL,
	account AccountState,
) ValidationResult {
	result := ValidationResult{Approved: true, Intent: intent}

	if intent.Side == order.SideSell {
		m.checkOrderNotionalBounds(&result, intent, openPositions)
		m.checkSellAvailableQuantity(&result, intent, openPositions)
		return result
	}

	m.checkStopLoss(&result, intent)
	m.checkMaxRiskPerTrade(&result, intent)
	m.checkMaxOpenPositions(&result, intent, openPositions)
	m.checkMaxDailyLoss(&result, dailyPnL)
	m.checkMaxCapitalDeployment(&result, intent, openPositions, account.AvailableCash)
	m.checkOrderNotionalBounds(&result, intent, openPositions)
	m.checkPositionValueCap(&result, intent, openPositions)
	m.checkCashSufficiency(&result, intent, account)
	m.checkTotalExposure(&result, intent, openPositions, account)
	m.checkSectorConcentration(&result, intent, openPositions)
	m.checkMaxHoldDays(&result, openPositions)

	return result
}

// lastKnownPrice returns the LastPrice carried on the matching PositionInfo,
// or the zero Decimal if the symbol has no open position.
func lastKnownPrice(symbol string, positions []PositionInfo) decimal.Decimal {
	for _, pos := range positions {
		if pos.Symbol == symbol {
			return pos.LastPrice
		}
	}
	return decimal.Zero
}

// checkStopLoss ensures every BUY intent carries a stop loss strictly below
// the entry price.
func (m *Manager) checkStopLoss(result *ValidationResult, intent Intent) {
	if !intent.StopLoss.IsPositive() {
		m.reject(result, "MANDATORY_STOP_LOSS", "every trade must have a stop loss")
		return
	}
	if intent.StopLoss.GreaterThanOrEqual(intent.Price) {
		m.reject(result, "INVALID_STOP_LOSS", fmt.Sprintf(
			"stop loss %s must be below entry price %s", intent.StopLoss, intent.Price,
		))
	}
}

// checkMaxRiskPerTrade ensures the risk amount (entry - stop) * qty doesn't
// exceed max_risk_per_trade_pct of total capital.
func (m *Manager) checkMaxRiskPerTrade(result *ValidationResult, intent Intent) {
	riskPerShare := intent.Price.Sub(intent.StopLoss)
	totalRisk := riskPerShare.Mul(decimal.NewFromInt(int64(intent.Quantity)))
	maxAllowedRisk := m.totalCapital.Mul(decimal.NewFromFloat(m.config.MaxRiskPerTradePct / 100.0))

	if totalRisk.GreaterThan(maxAllowedRisk) {
		m.reject(result, "MAX_RISK_PER_TRADE", fmt.Sprintf(
			"trade risk %s exceeds max allowed %s (%.1f%% of %s)",
			totalRisk, maxAllowedRisk, m.config.MaxRiskPerTradePct, m.totalCapital,
		))
	}
}

// checkMaxOpenPositions enforces both the no-duplicate-position rule and the
// overall position count limit.
func (m *Manager) checkMaxOpenPositions(result *ValidationResult, intent Intent, positions []PositionInfo) {
	for _, pos := range positions {
		if pos.Symbol == intent.Symbol {
			m.reject(result, "DUPLICATE_POSITION", fmt.Sprintf(
				"already have an open position in %s", intent.Symbol,
			))
			return
		}
	}

	if len(positions) >= m.config.MaxOpenPositions {
		m.reject(result, "MAX_OPEN_POSITIONS", fmt.Sprintf(
			"at position limit: %d/%d", len(positions), m.config.MaxOpenPositions,
		))
	}
}

// checkMaxDailyLoss halts new entries once the day's combined realized and
// unrealized loss reaches the configured cap.
func (m *Manager) checkMaxDailyLoss(result *ValidationResult, dailyPnL DailyPnL) {
	total := dailyPnL.RealizedPnL.Add(dailyPnL.UnrealizedPnL)
	maxDailyLoss := m.totalCapital.Mul(decimal.NewFromFloat(m.config.MaxDailyLossPct / 100.0))

	if total.IsNegative() && total.Neg().GreaterThanOrEqual(maxDailyLoss) {
		m.reject(result, "MAX_DAILY_LOSS", fmt.Sprintf(
			"daily loss %s has reached limit %s", total.Neg(), maxDailyLoss,
		))
	}
}

// checkMaxCapitalDeployment ensures total deployed capital (existing
// positions plus the proposed trade) doesn't exceed the configured cap.
func (m *Manager) checkMaxCapitalDeployment(
	result *ValidationResult,
	intent Intent,
	positions []PositionInfo,
	availableCapital decimal.Decimal,
) {
	deployed := decimal.Zero
	for _, pos := range positions {
		deployed = deployed.Add(pos.EntryPrice.Mul(decimal.NewFromInt(int64(pos.Quantity))))
	}

	proposed := deployed.Add(intent.Price.Mul(decimal.NewFromInt(int64(intent.Quantity))))
	maxDeployment := m.totalCapital.Mul(decimal.NewFromFloat(m.config.MaxCapitalDeploymentPct / 100.0))

	if proposed.GreaterThan(maxDeployment) {
		m.reject(result, "MAX_CAPITAL_DEPLOYMENT", fmt.Sprintf(
			"total deployment %s would exceed limit %s (%.1f%% of %s)",
			proposed, maxDeployment, m.config.MaxCapitalDeploymentPct, m.totalCapital,
		))
	}
}

// checkOrderNotionalBounds rejects orders too small to be worth the
// round-trip cost or large enough to move the book more than intended.
// Applies to both BUY and SELL.
func (m *Manager) checkOrderNotionalBounds(result *ValidationResult, intent Intent, positions []PositionInfo) {
	price := effectivePrice(intent.Price, lastKnownPrice(intent.Symbol, positions))
	notional := price.Mul(decimal.NewFromInt(int64(intent.Quantity)))

	if m.config.MinOrderValue > 0 && notional.LessThan(decimal.NewFromFloat(m.config.MinOrderValue)) {
		m.reject(result, "ORDER_BELOW_MIN_VALUE", fmt.Sprintf(
			"order notional %s is below the minimum %.2f", notional, m.config.MinOrderValue,
		))
	}
	if m.config.MaxOrderValue > 0 && notional.GreaterThan(decimal.NewFromFloat(m.config.MaxOrderValue)) {
		m.reject(result, "ORDER_ABOVE_MAX_VALUE", fmt.Sprintf(
			"order notional %s exceeds the maximum %.2f", notional, m.config.MaxOrderValue,
		))
	}
}

// checkPositionValueCap caps a single symbol's projected position value —
// existing holding plus this BUY — to MaxPositionPct of total assets.
func (m *Manager) checkPositionValueCap(result *ValidationResult, intent Intent, positions []PositionInfo) {
	if m.config.MaxPositionPct <= 0 {
		return
	}

	existingQty := 0
	var lastKnown decimal.Decimal
	for _, pos := range positions {
		if pos.Symbol == intent.Symbol {
			existingQty = pos.Quantity
			lastKnown = pos.LastPrice
			break
		}
	}

	price := effectivePrice(intent.Price, lastKnown)
	projectedQty := decimal.NewFromInt(int64(existingQty + intent.Quantity))
	projectedValue := price.Mul(projectedQty)
	maxValue := m.totalCapital.Mul(decimal.NewFromFloat(m.config.MaxPositionPct))

	if projectedValue.GreaterThan(maxValue) {
		m.reject(result, "MAX_POSITION_VALUE", fmt.Sprintf(
			"projected %s position value %s would exceed limit %s (%.1f%% of total assets)",
			intent.Symbol, projectedValue, maxValue, m.config.MaxPositionPct*100,
		))
	}
}

// checkCashSufficiency ensures the account can actually afford the trade,
// with a 1% buffer over the raw estimated cost to absorb commission, stamp
// tax, and slippage so a BUY sized right at the cash edge doesn't bounce on
// settlement.
func (m *Manager) checkCashSufficiency(result *ValidationResult, intent Intent, account AccountState) {
	price := effectivePrice(intent.Price, decimal.Zero)
	estimatedCost := price.Mul(decimal.NewFromInt(int64(intent.Quantity)))
	buffered := estimatedCost.Mul(decimal.NewFromFloat(1.01))

	if buffered.GreaterThan(account.AvailableCash) {
		m.reject(result, "INSUFFICIENT_CASH", fmt.Sprintf(
			"estimated cost %s (incl. 1%% buffer: %s) exceeds available cash %s",
			estimatedCost, buffered, account.AvailableCash,
		))
	}
}

// checkTotalExposure caps (current stock value + this order's notional)
// against MaxTotalExposure of total assets.
func (m *Manager) checkTotalExposure(result *ValidationResult, intent Intent, positions []PositionInfo, account AccountState) {
	if m.config.MaxTotalExposure <= 0 {
		return
	}

	price := effectivePrice(intent.Price, lastKnownPrice(intent.Symbol, positions))
	orderNotional := price.Mul(decimal.NewFromInt(int64(intent.Quantity)))
	projected := account.StockValue.Add(orderNotional)
	maxExposure := m.totalCapital.Mul(decimal.NewFromFloat(m.config.MaxTotalExposure))

	if projected.GreaterThan(maxExposure) {
		m.reject(result, "MAX_TOTAL_EXPOSURE", fmt.Sprintf(
			"projected stock exposure %s would exceed limit %s (%.1f%% of total assets)",
			projected, maxExposure, m.config.MaxTotalExposure*100,
		))
	}
}

// checkSellAvailableQuantity enforces the T+1 settlement lockbox: a SELL
// may only draw down shares already settled into PositionInfo.
// AvailableQuantity, not the raw (possibly same-day-bought) Quantity.
func (m *Manager) checkSellAvailableQuantity(result *ValidationResult, intent Intent, positions []PositionInfo) {
	for _, pos := range positions {
		if pos.Symbol != intent.Symbol {
			continue
		}
		if intent.Quantity > pos.AvailableQuantity {
			m.reject(result, "EXCEEDS_AVAILABLE_QUANTITY", fmt.Sprintf(
				"sell quantity %d exceeds available (settled) quantity %d for %s",
				intent.Quantity, pos.AvailableQuantity, intent.Symbol,
			))
		}
		return
	}
	// No open position at all: nothing is available to sell.
	m.reject(result, "EXCEEDS_AVAILABLE_QUANTITY", fmt.Sprintf(
		"no open position in %s to sell", intent.Symbol,
	))
}

// checkSectorConcentration caps the combined notional (entry price times
// quantity, plus the intent's own notional) of open positions sharing one
// industry classification, as a percent of total capital. Generalized from an NSE sector tag to the
// CSRC/SW industry code carried on PositionInfo/Intent; disabled when
// max_per_sector_pct is zero or the intent carries no sector.
func (m *Manager) checkSectorConcentration(result *ValidationResult, intent Intent, positions []PositionInfo) {
	if m.config.MaxPerSectorPct <= 0 || intent.Sector == "" {
		return
	}

	sectorNotional := decimal.Zero
	for _, pos := range positions {
		if pos.Sector == intent.Sector {
			sectorNotional = sectorNotional.Add(pos.EntryPrice.Mul(decimal.NewFromInt(int64(pos.Quantity))))
		}
	}
	sectorNotional = sectorNotional.Add(intent.Price.Mul(decimal.NewFromInt(int64(intent.Quantity))))

	maxSectorNotional := m.totalCapital.Mul(decimal.NewFromFloat(m.config.MaxPerSectorPct / 100.0))
	if sectorNotional.GreaterThan(maxSectorNotional) {
		m.reject(result, "MAX_SECTOR_CONCENTRATION", fmt.Sprintf(
			"sector %s notional %s would exceed limit %s (%.1f%% of capital)",
			intent.Sector, sectorNotional, maxSectorNotional, m.config.MaxPerSectorPct,
		))
	}
}

// checkMaxHoldDays flags (but does not itself block new entries for)
// positions that have exceeded the configured holding period by appending
// a MAX_HOLD_DAYS_EXCEEDED entry to Rejections without clearing Approved.
// No caller in this module acts on that entry; it does not force an exit.
func (m *Manager) checkMaxHoldDays(result *ValidationResult, positions []PositionInfo) {
	if m.config.MaxHoldDays <= 0 {
		return
	}
	now := time.Now()
	for _, pos := range positions {
		held := int(now.Sub(pos.EntryDate).Hours() / 24)
		if held >= m.config.MaxHoldDays {
			result.Rejections = append(result.Rejections, RejectionReason{
				Rule:    "MAX_HOLD_DAYS_EXCEEDED",
				Message: fmt.Sprintf("%s held %d days, limit %d", pos.Symbol, held, m.config.MaxHoldDays),
			})
		}
	}
}

func (m *Manager) reject(result *ValidationResult, rule, message string) {
	result.Approved = false
	result.Rejections = append(result.Rejections, RejectionReason{
		Rule:    rule,
		Message: message,
	})
}
