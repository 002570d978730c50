package risk

import (
	"testing"
	"time"

	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/shopspring/decimal"
)

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func makeTestRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxRiskPerTradePct:      1.0,
		MaxOpenPositions:        5,
		MaxDailyLossPct:         3.0,
		MaxCapitalDeploymentPct: 80.0,
	}
}

// fullTestRiskConfig additionally wires the position/exposure/order-value
// rules so tests exercising them don't have to repeat the whole block.
func fullTestRiskConfig() config.RiskConfig {
	cfg := makeTestRiskConfig()
	cfg.MaxPositionPct = 0.50
	cfg.MaxTotalExposure = 0.95
	cfg.MaxOrderValue = 1000000
	cfg.MinOrderValue = 100
	return cfg
}

func account(cash float64) AccountState {
	return AccountState{AvailableCash: d(cash)}
}

func rejected(result ValidationResult, rule string) bool {
	for _, r := range result.Rejections {
		if r.Rule == rule {
			return true
		}
	}
	return false
}

func rejectionContains(result ValidationResult, substr string) bool {
	for _, r := range result.Rejections {
		if containsFold(r.Message, substr) || containsFold(r.Rule, substr) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	sl, subl := []rune(toLower(s)), []rune(toLower(substr))
	if len(subl) == 0 {
		return true
	}
	for i := 0; i+len(subl) <= len(sl); i++ {
		match := true
		for j := range subl {
			if sl[i+j] != subl[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}

func TestRisk_RejectsNoStopLoss(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: decimal.Zero,
		Quantity: 10,
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection for missing stop loss")
	}
	if !rejected(result, "MANDATORY_STOP_LOSS") {
		t.Errorf("expected MANDATORY_STOP_LOSS rule, got %v", result.Rejections)
	}
}

func TestRisk_RejectsStopLossAboveEntry(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(105), // above entry
		Quantity: 10,
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection for invalid stop loss")
	}
	if !rejected(result, "INVALID_STOP_LOSS") {
		t.Errorf("expected INVALID_STOP_LOSS rule, got %v", result.Rejections)
	}
}

func TestRisk_RejectsExcessiveRiskPerTrade(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	// Risk = (100 - 50) * 200 = 10000 = 2% of 500000 > 1% limit.
	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(50),
		Quantity: 200,
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection for excessive risk per trade")
	}
	if !rejected(result, "MAX_RISK_PER_TRADE") {
		t.Errorf("expected MAX_RISK_PER_TRADE rule, got %v", result.Rejections)
	}
}

func TestRisk_RejectsExceedingMaxPositions(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	positions := make([]PositionInfo, 5)
	for i := range positions {
		positions[i] = PositionInfo{Symbol: "STOCK" + string(rune('A'+i))}
	}

	intent := Intent{
		Symbol:   "688001.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 10,
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection for exceeding max positions")
	}
	if !rejected(result, "MAX_OPEN_POSITIONS") {
		t.Errorf("expected MAX_OPEN_POSITIONS rule, got %v", result.Rejections)
	}
}

func TestRisk_RejectsDuplicatePosition(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	positions := []PositionInfo{
		{Symbol: "600000.SH", EntryPrice: d(100), Quantity: 10},
	}

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(105),
		StopLoss: d(100),
		Quantity: 10,
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection for duplicate position")
	}
	if !rejected(result, "DUPLICATE_POSITION") {
		t.Errorf("expected DUPLICATE_POSITION rule, got %v", result.Rejections)
	}
}

func TestRisk_RejectsAtDailyLossLimit(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	dailyPnL := DailyPnL{
		Date:        time.Now(),
		RealizedPnL: d(-15000), // 3% of 500000
	}

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 10,
	}

	result := mgr.Validate(intent, nil, dailyPnL, account(500000))

	if result.Approved {
		t.Error("expected rejection for daily loss limit breach")
	}
	if !rejected(result, "MAX_DAILY_LOSS") {
		t.Errorf("expected MAX_DAILY_LOSS rule, got %v", result.Rejections)
	}
}

func TestRisk_RejectsExceedingMaxCapitalDeployment(t *testing.T) {
	cfg := makeTestRiskConfig()
	cfg.MaxCapitalDeploymentPct = 50.0
	mgr := NewManager(cfg, d(500000))

	positions := []PositionInfo{
		{Symbol: "600000.SH", EntryPrice: d(200), Quantity: 1000}, // 200,000 deployed = 40%
	}

	intent := Intent{
		Symbol:   "000858.SZ",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 1200, // +120,000 => 320,000 = 64% > 50% limit
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(300000))

	if result.Approved {
		t.Error("expected rejection for exceeding max capital deployment")
	}
	if !rejected(result, "MAX_CAPITAL_DEPLOYMENT") {
		t.Errorf("expected MAX_CAPITAL_DEPLOYMENT rule, got %v", result.Rejections)
	}
}

func TestRisk_RejectsSectorConcentration(t *testing.T) {
	cfg := makeTestRiskConfig()
	cfg.MaxPerSectorPct = 20.0
	mgr := NewManager(cfg, d(500000))

	positions := []PositionInfo{
		{Symbol: "600519.SH", EntryPrice: d(1000), Quantity: 80, Sector: "C15"}, // 80,000 = 16%
	}

	intent := Intent{
		Symbol:   "000568.SZ",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 300, // +30,000 => 110,000 = 22% > 20% limit
		Sector:   "C15",
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection for sector concentration breach")
	}
	if !rejected(result, "MAX_SECTOR_CONCENTRATION") {
		t.Errorf("expected MAX_SECTOR_CONCENTRATION rule, got %v", result.Rejections)
	}
}

func TestRisk_AllowsSectorConcentrationWhenUnset(t *testing.T) {
	cfg := makeTestRiskConfig()
	cfg.MaxPerSectorPct = 0 // disabled
	mgr := NewManager(cfg, d(500000))

	intent := Intent{
		Symbol:   "000568.SZ",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 50,
		Sector:   "C15",
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(500000))

	if !result.Approved {
		t.Errorf("expected approval with sector check disabled, got rejections: %v", result.Rejections)
	}
}

func TestRisk_FlagsMaxHoldDaysWithoutRejecting(t *testing.T) {
	cfg := makeTestRiskConfig()
	cfg.MaxHoldDays = 10
	mgr := NewManager(cfg, d(500000))

	positions := []PositionInfo{
		{Symbol: "600000.SH", EntryPrice: d(100), Quantity: 10, EntryDate: time.Now().Add(-11 * 24 * time.Hour)},
	}

	intent := Intent{
		Symbol:   "000858.SZ",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 10,
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(500000))

	if !result.Approved {
		t.Errorf("MAX_HOLD_DAYS_EXCEEDED should flag, not reject; got rejections: %v", result.Rejections)
	}
	if !rejected(result, "MAX_HOLD_DAYS_EXCEEDED") {
		t.Error("expected MAX_HOLD_DAYS_EXCEEDED to be recorded even though approved")
	}
}

func TestRisk_ApprovesValidTrade(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 50, // risk = 5 * 50 = 250 = 0.05%, well under limit
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(500000))

	if !result.Approved {
		t.Errorf("expected approval, got rejections: %v", result.Rejections)
	}
}

func TestRisk_RejectsInsufficientCash(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 100,
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(5000)) // only 5000 available cash

	if result.Approved {
		t.Error("expected rejection for insufficient cash")
	}
	if !rejected(result, "INSUFFICIENT_CASH") {
		t.Errorf("expected INSUFFICIENT_CASH rule, got %v", result.Rejections)
	}
	if !rejectionContains(result, "cash") {
		t.Errorf("expected a rejection mentioning cash, got %v", result.Rejections)
	}
}

// TestRisk_CashCheckAppliesOnePercentBuffer confirms a BUY sized to consume
// exactly the available cash (no headroom for the 1% buffer) is rejected.
func TestRisk_CashCheckAppliesOnePercentBuffer(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 100, // raw cost 10,000; buffered 10,100
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(10000))

	if result.Approved {
		t.Error("expected rejection: buffered cost exceeds exact available cash")
	}
	if !rejected(result, "INSUFFICIENT_CASH") {
		t.Errorf("expected INSUFFICIENT_CASH rule, got %v", result.Rejections)
	}
}

func TestRisk_UpdateCapitalAffectsSubsequentValidation(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))
	mgr.UpdateCapital(d(10000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 200, // risk = 5*200=1000 = 10% of new 10000 capital, > 1% limit
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(10000))

	if result.Approved {
		t.Error("expected rejection using updated (smaller) capital base")
	}
}

func TestRisk_UpdateRiskConfigTakesEffectImmediately(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	mgr.UpdateRiskConfig(config.RiskConfig{
		MaxRiskPerTradePct:      0.01,
		MaxOpenPositions:        5,
		MaxDailyLossPct:         3.0,
		MaxCapitalDeploymentPct: 80.0,
	})

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 50,
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection after tightening max risk per trade to 0.01%")
	}
}

// ────────────────────────────────────────────────────────────────────
// Order notional bounds
// ────────────────────────────────────────────────────────────────────

func TestRisk_RejectsOrderBelowMinValue(t *testing.T) {
	mgr := NewManager(fullTestRiskConfig(), d(500000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(10),
		StopLoss: d(9),
		Quantity: 5, // notional 50 < min_order_value 100
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection for order below minimum notional")
	}
	if !rejected(result, "ORDER_BELOW_MIN_VALUE") {
		t.Errorf("expected ORDER_BELOW_MIN_VALUE rule, got %v", result.Rejections)
	}
}

func TestRisk_RejectsOrderAboveMaxValue(t *testing.T) {
	mgr := NewManager(fullTestRiskConfig(), d(5000000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 20000, // notional 2,000,000 > max_order_value 1,000,000
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(5000000))

	if result.Approved {
		t.Error("expected rejection for order above maximum notional")
	}
	if !rejected(result, "ORDER_ABOVE_MAX_VALUE") {
		t.Errorf("expected ORDER_ABOVE_MAX_VALUE rule, got %v", result.Rejections)
	}
}

func TestRisk_OrderNotionalBoundsApplyToSell(t *testing.T) {
	mgr := NewManager(fullTestRiskConfig(), d(500000))

	positions := []PositionInfo{
		{Symbol: "600000.SH", Quantity: 100, AvailableQuantity: 100, EntryPrice: d(10), LastPrice: d(10)},
	}
	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideSell,
		Price:    d(10),
		Quantity: 5, // notional 50 < min_order_value 100
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(0))

	if result.Approved {
		t.Error("expected SELL to also be subject to the minimum order value")
	}
	if !rejected(result, "ORDER_BELOW_MIN_VALUE") {
		t.Errorf("expected ORDER_BELOW_MIN_VALUE rule, got %v", result.Rejections)
	}
}

// ────────────────────────────────────────────────────────────────────
// Position value cap / total exposure
// ────────────────────────────────────────────────────────────────────

func TestRisk_RejectsPositionValueCap(t *testing.T) {
	cfg := fullTestRiskConfig()
	cfg.MaxPositionPct = 0.10 // 10% of total assets
	mgr := NewManager(cfg, d(500000))

	positions := []PositionInfo{
		{Symbol: "600000.SH", Quantity: 300, EntryPrice: d(100), LastPrice: d(100)}, // 30,000 = 6%
	}
	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 300, // +30,000 => 60,000 = 12% > 10%
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(500000))

	if result.Approved {
		t.Error("expected rejection for exceeding max position value")
	}
	if !rejected(result, "MAX_POSITION_VALUE") {
		t.Errorf("expected MAX_POSITION_VALUE rule, got %v", result.Rejections)
	}
}

func TestRisk_PositionValueCapDisabledWhenUnset(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000)) // MaxPositionPct unset (0)

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 10000, // would be enormous relative to capital
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(5000000))

	if rejected(result, "MAX_POSITION_VALUE") {
		t.Error("MAX_POSITION_VALUE should not fire when max_position_pct is unset")
	}
}

func TestRisk_RejectsTotalExposureCap(t *testing.T) {
	cfg := fullTestRiskConfig()
	cfg.MaxTotalExposure = 0.50
	mgr := NewManager(cfg, d(500000))

	acct := AccountState{AvailableCash: d(500000), StockValue: d(200000)} // 40% already deployed
	intent := Intent{
		Symbol:   "000858.SZ",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 1500, // +150,000 => 350,000 = 70% > 50%
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, acct)

	if result.Approved {
		t.Error("expected rejection for exceeding max total exposure")
	}
	if !rejected(result, "MAX_TOTAL_EXPOSURE") {
		t.Errorf("expected MAX_TOTAL_EXPOSURE rule, got %v", result.Rejections)
	}
}

func TestRisk_TotalExposureCapDisabledWhenUnset(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000)) // MaxTotalExposure unset (0)

	acct := AccountState{AvailableCash: d(5000000), StockValue: d(400000)}
	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(100),
		StopLoss: d(95),
		Quantity: 100,
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, acct)

	if rejected(result, "MAX_TOTAL_EXPOSURE") {
		t.Error("MAX_TOTAL_EXPOSURE should not fire when max_total_exposure is unset")
	}
}

// ────────────────────────────────────────────────────────────────────
// SELL: available-quantity (T+1) enforcement
// ────────────────────────────────────────────────────────────────────

func TestRisk_SellApprovedWithinAvailableQuantity(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	positions := []PositionInfo{
		{Symbol: "600000.SH", Quantity: 200, AvailableQuantity: 200, EntryPrice: d(100), LastPrice: d(100)},
	}
	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideSell,
		Price:    d(100),
		Quantity: 200,
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(0))

	if !result.Approved {
		t.Errorf("expected approval selling within available quantity, got %v", result.Rejections)
	}
}

func TestRisk_SellRejectsWhenExceedingAvailableQuantity(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	// Quantity reflects a same-day BUY (T+0) not yet settled: AvailableQuantity
	// lags Quantity until the T+1 morning open.
	positions := []PositionInfo{
		{Symbol: "600000.SH", Quantity: 200, AvailableQuantity: 0, EntryPrice: d(100), LastPrice: d(100)},
	}
	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideSell,
		Price:    d(100),
		Quantity: 200,
	}

	result := mgr.Validate(intent, positions, DailyPnL{}, account(0))

	if result.Approved {
		t.Error("expected rejection: shares bought today are not yet available to sell")
	}
	if !rejected(result, "EXCEEDS_AVAILABLE_QUANTITY") {
		t.Errorf("expected EXCEEDS_AVAILABLE_QUANTITY rule, got %v", result.Rejections)
	}
}

func TestRisk_SellRejectsWithNoOpenPosition(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideSell,
		Price:    d(100),
		Quantity: 100,
	}

	result := mgr.Validate(intent, nil, DailyPnL{}, account(0))

	if result.Approved {
		t.Error("expected rejection: no open position to sell")
	}
	if !rejected(result, "EXCEEDS_AVAILABLE_QUANTITY") {
		t.Errorf("expected EXCEEDS_AVAILABLE_QUANTITY rule, got %v", result.Rejections)
	}
}

func TestRisk_SellNeverRunsBuyOnlyChecks(t *testing.T) {
	mgr := NewManager(makeTestRiskConfig(), d(500000))

	intent := Intent{
		Symbol: "600000.SH",
		Side:   order.SideSell,
		Price:  d(100),
		// No StopLoss set — would reject a BUY, must not affect a SELL.
		Quantity: 100,
	}
	positions := []PositionInfo{
		{Symbol: "600000.SH", Quantity: 100, AvailableQuantity: 100, EntryPrice: d(100), LastPrice: d(100)},
	}

	// At the daily loss limit and at the position cap — none of this should
	// block an exit.
	dailyPnL := DailyPnL{RealizedPnL: d(-20000)}

	result := mgr.Validate(intent, positions, dailyPnL, account(0))

	if !result.Approved {
		t.Errorf("SELL intents should only be blocked by order-notional/available-quantity checks, got %v", result.Rejections)
	}
}

// TestRisk_ScenarioB mirrors the platform's seed fixture: cash of 1000, a BUY
// of 100 shares at 40 (notional 4000, far above the available cash), must be
// rejected with a reason mentioning cash, leaving the account state itself
// untouched (Validate never mutates AccountState/positions).
func TestRisk_ScenarioB(t *testing.T) {
	mgr := NewManager(fullTestRiskConfig(), d(1000))

	intent := Intent{
		Symbol:   "600000.SH",
		Side:     order.SideBuy,
		Price:    d(40),
		StopLoss: d(38),
		Quantity: 100,
	}
	acct := account(1000)

	result := mgr.Validate(intent, nil, DailyPnL{}, acct)

	if result.Approved {
		t.Error("expected rejection: order notional 4000 far exceeds available cash 1000")
	}
	if !rejectionContains(result, "cash") {
		t.Errorf("expected a rejection reason mentioning cash, got %v", result.Rejections)
	}
	if !acct.AvailableCash.Equal(d(1000)) {
		t.Error("Validate must not mutate the account state it was given")
	}
}

// ────────────────────────────────────────────────────────────────────
// Price fallback policy
// ────────────────────────────────────────────────────────────────────

func TestRisk_EffectivePriceFallsBackToLastKnownThenConstant(t *testing.T) {
	if got := effectivePrice(d(50), d(40)); !got.Equal(d(50)) {
		t.Errorf("expected intent price to win when positive, got %s", got)
	}
	if got := effectivePrice(decimal.Zero, d(40)); !got.Equal(d(40)) {
		t.Errorf("expected last known price when intent price is zero, got %s", got)
	}
	if got := effectivePrice(decimal.Zero, decimal.Zero); !got.Equal(fallbackPrice) {
		t.Errorf("expected fallbackPrice when neither price is known, got %s", got)
	}
}
