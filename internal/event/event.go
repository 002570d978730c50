// Package event defines the tagged-variant event vocabulary shared by the
// engine, strategies, portfolio, and risk/order components. Exactly one of
// MarketData, Signal, Order, or Fill is non-nil on any Event; Kind tells a
// switch which one without a type assertion, mirroring how a discriminated
// union is expressed idiomatically in Go.
package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates the variant carried by an Event.
type Kind int

const (
	KindMarketData Kind = iota
	KindSignal
	KindOrder
	KindFill
)

func (k Kind) String() string {
	switch k {
	case KindMarketData:
		return "MarketData"
	case KindSignal:
		return "Signal"
	case KindOrder:
		return "Order"
	case KindFill:
		return "Fill"
	default:
		return "Unknown"
	}
}

// Bar is one OHLCV record at a given frequency (daily unless stated).
type Bar struct {
	Symbol     string
	TradeDate  time.Time
	Frequency  string // "1d" unless stated otherwise
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     int64
	Amount     decimal.Decimal // turnover in yuan; zero value means "not provided"
	PreClose   decimal.Decimal // required for any limit-up/down computation
	AdjustType string          // "none" | "forward" | "backward"
}

// Valid checks the bar invariants from the data model: low <= open,close <=
// high; volume >= 0; pre_close > 0 whenever it is supplied.
func (b Bar) Valid() bool {
	if b.Volume < 0 {
		return false
	}
	if b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) {
		return false
	}
	if b.High.LessThan(b.Open) || b.High.LessThan(b.Close) {
		return false
	}
	if !b.PreClose.IsZero() && b.PreClose.Sign() <= 0 {
		return false
	}
	return true
}

// Quote is a mutable last-writer-wins snapshot of the latest trade.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume    int64
	High      decimal.Decimal
	Low       decimal.Decimal
	Open      decimal.Decimal
	PrevClose decimal.Decimal
	Timestamp time.Time
}

// SignalKind is the directional intent a strategy expresses.
type SignalKind int

const (
	SignalBuy SignalKind = iota
	SignalSell
	SignalHold
)

func (k SignalKind) String() string {
	switch k {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// Signal is a strategy's directional intent for a symbol, bounded in
// [0,1] strength so Portfolio/SignalExecutor can size proportionally.
type Signal struct {
	Symbol     string
	StrategyID string
	Kind       SignalKind
	Strength   float64 // clamped to [0,1] by NewSignal
	Reason     string
	Metadata   map[string]string
}

// NewSignal builds a Signal, clamping Strength into [0,1].
func NewSignal(strategyID, symbol string, kind SignalKind, strength float64, reason string) Signal {
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}
	return Signal{
		Symbol:     symbol,
		StrategyID: strategyID,
		Kind:       kind,
		Strength:   strength,
		Reason:     reason,
	}
}

// Event is the tagged variant routed by the engine. Only the field matching
// Kind is populated.
type Event struct {
	Kind   Kind
	Ts     time.Time
	Symbol string

	MarketData *Bar
	SignalData *Signal
	OrderData  *OrderSnapshot
	FillData   *FillSnapshot
}

// OrderSnapshot and FillSnapshot are minimal immutable views published onto
// the bus. The full, mutable Order lives inside OrderManager (internal/order);
// every other component observes only these snapshots (§9 redesign note:
// "mutable order objects shared across components").
type OrderSnapshot struct {
	OrderID        string
	Symbol         string
	Side           string
	Status         string
	Quantity       int
	FilledQuantity int
	RejectReason   string
}

type FillSnapshot struct {
	OrderID   string
	Symbol    string
	Side      string
	Quantity  int
	Price     decimal.Decimal
	Commission decimal.Decimal
	Timestamp time.Time
}

// NewMarketData builds a MarketData event from a bar, using the bar's own
// trade date as the engine timestamp.
func NewMarketData(b Bar) Event {
	return Event{Kind: KindMarketData, Ts: b.TradeDate, Symbol: b.Symbol, MarketData: &b}
}

// NewSignalEvent wraps a Signal for bus transport at the given timestamp.
func NewSignalEvent(ts time.Time, s Signal) Event {
	return Event{Kind: KindSignal, Ts: ts, Symbol: s.Symbol, SignalData: &s}
}

// NewOrderEvent wraps an OrderSnapshot for bus transport.
func NewOrderEvent(ts time.Time, o OrderSnapshot) Event {
	return Event{Kind: KindOrder, Ts: ts, Symbol: o.Symbol, OrderData: &o}
}

// NewFillEvent wraps a FillSnapshot for bus transport.
func NewFillEvent(ts time.Time, f FillSnapshot) Event {
	return Event{Kind: KindFill, Ts: ts, Symbol: f.Symbol, FillData: &f}
}
