package main

import "time"

// MetricsResponse contains overall performance metrics, computed from the
// closed-trade archive at read time.
type MetricsResponse struct {
	TotalPnL        float64   `json:"total_pnl"`
	TotalPnLPercent float64   `json:"total_pnl_percent"`
	WinRate         float64   `json:"win_rate"`
	ProfitFactor    float64   `json:"profit_factor"`
	Drawdown        float64   `json:"drawdown"`
	DrawdownPercent float64   `json:"drawdown_percent"`
	SharpeRatio     float64   `json:"sharpe_ratio"`
	TotalTrades     int       `json:"total_trades"`
	WinningTrades   int       `json:"winning_trades"`
	LosingTrades    int       `json:"losing_trades"`
	AvgPnL          float64   `json:"avg_pnl"`
	GrossProfit     float64   `json:"gross_profit"`
	GrossLoss       float64   `json:"gross_loss"`
	AvgHoldDays     float64   `json:"avg_hold_days"`
	InitialCapital  float64   `json:"initial_capital"`
	FinalCapital    float64   `json:"final_capital"`
	Timestamp       time.Time `json:"timestamp"`
}

// PositionResponse represents a single open position. EntryPrice/Quantity
// are the archived fill; mark-to-market fields aren't exposed here because
// this process has no live quote feed, only the trade archive.
type PositionResponse struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   int       `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	StrategyID string    `json:"strategy_id"`
}

// PositionsResponse contains all open positions.
type PositionsResponse struct {
	Positions                 []PositionResponse `json:"positions"`
	TotalCapitalUsed           float64             `json:"total_capital_used"`
	AvailableCapital           float64             `json:"available_capital"`
	CapitalUtilizationPercent  float64             `json:"capital_utilization_percent"`
	OpenPositionCount          int                 `json:"open_position_count"`
	Timestamp                  time.Time           `json:"timestamp"`
}

// EquityCurvePoint represents a single point in the equity curve.
type EquityCurvePoint struct {
	Date            time.Time `json:"date"`
	Equity          float64   `json:"equity"`
	Drawdown        float64   `json:"drawdown"`
	DrawdownPercent float64   `json:"drawdown_percent"`
}

// EquityCurveResponse contains the equity curve data for charting. It is
// built from realized P&L on closed trades, not a mark-to-market series,
// since the dashboard process only has the archive, not a live ledger.
type EquityCurveResponse struct {
	Points             []EquityCurvePoint `json:"points"`
	StartEquity        float64            `json:"start_equity"`
	FinalEquity        float64            `json:"final_equity"`
	MaxDrawdown        float64            `json:"max_drawdown"`
	MaxDrawdownPercent float64            `json:"max_drawdown_percent"`
	TotalReturn        float64            `json:"total_return"`
	TotalReturnPercent float64            `json:"total_return_percent"`
	Timestamp          time.Time          `json:"timestamp"`
}

// StatusResponse contains system status information.
type StatusResponse struct {
	MarketOpen       bool      `json:"market_open"`
	OpenPositions    int       `json:"open_positions"`
	AvailableCapital float64   `json:"available_capital"`
	TotalCapital     float64   `json:"total_capital"`
	DailyPnL         float64   `json:"daily_pnl"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
}

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}
