// Package storage defines the durable archival interfaces and types for
// orders, trades, and signals. Candle storage and AI-score archival (the
// teacher's original scope) are no longer this package's concern: daily
// bars are owned by internal/datasource's provider chain with
// internal/cache backing the TTL layer, and this module carries no AI
// scoring subsystem to archive scores for (see DESIGN.md).
package storage

import (
	"context"
	"time"

	"github.com/ashare/tradeengine/internal/order"
)

// TradeRecord is a completed (or still-open) round trip, archived once a
// position closes so strategy performance survives process restarts.
type TradeRecord struct {
	ID         int64
	StrategyID string
	Symbol     string
	Side       string
	Quantity   int
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   *time.Time // nil while the trade is still open
	PnL        float64
	Status     string // "open", "closed"
	CreatedAt  time.Time
}

// SignalRecord archives one strategy-emitted signal for audit: what the
// strategy asked for, and whether risk management approved it.
type SignalRecord struct {
	ID              int64
	StrategyID      string
	Symbol          string
	Kind            string // "BUY", "SELL", "HOLD"
	Strength        float64
	Reason          string
	Approved        bool
	RejectionReason string
	CreatedAt       time.Time
}

// Store is the complete durable archival interface. It also implements
// order.Store (SaveOrder/LoadNonTerminal) so OrderManager and the
// trade/signal archive share one Postgres connection pool and one
// migration history.
type Store interface {
	order.Store

	SaveTrade(ctx context.Context, trade *TradeRecord) error
	GetOpenTrades(ctx context.Context) ([]TradeRecord, error)
	GetTradesByStrategy(ctx context.Context, strategyID string) ([]TradeRecord, error)
	CloseTrade(ctx context.Context, tradeID int64, exitPrice float64, exitTime time.Time) error

	SaveSignal(ctx context.Context, signal *SignalRecord) error
	GetSignalsByDate(ctx context.Context, date time.Time) ([]SignalRecord, error)

	GetDailyPnL(ctx context.Context, date time.Time) (float64, error)

	Ping(ctx context.Context) error
}
