// Package broker defines the BrokerAdapter abstraction layer.
//
// Design rules (from the platform spec):
//   - Only one broker is active at a time.
//   - No strategy logic inside broker.
//   - Broker layer must be stateless: every operation re-reads account
//     state from the remote, never caches it beyond a single call.
//   - Broker APIs are used only for execution and account state.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/ashare/tradeengine/internal/order"
	"github.com/shopspring/decimal"
)

// ConnectionError marks a retryable broker connectivity failure.
type ConnectionError struct {
	Broker string
	Cause  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("broker %s: connection error: %v", e.Broker, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// OrderRejectedError marks a fatal-for-this-order broker rejection.
type OrderRejectedError struct {
	OrderID string
	Reason  string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("broker: order %s rejected: %s", e.OrderID, e.Reason)
}

// Account is the broker-side view of cash and exposure. total_assets =
// cash_balance + stock_value; available_cash excludes cash reserved for
// unfilled buy orders.
type Account struct {
	AccountID     string
	CashBalance   decimal.Decimal
	AvailableCash decimal.Decimal
	StockValue    decimal.Decimal
	TotalAssets   decimal.Decimal
}

// Position is the broker-side view of a held instrument, including the T+1
// lockbox: AvailableQuantity <= Quantity always, and a BUY filled on day D
// only raises AvailableQuantity at the D+1 session open.
type Position struct {
	Symbol            string
	Quantity          int
	AvailableQuantity int
	AvgCost           decimal.Decimal
	LastPrice         decimal.Decimal
}

// Request is what the broker needs to place an order: the validated,
// Manager-owned order reduced to its wire-relevant fields.
type Request struct {
	OrderID  string
	Symbol   string
	Side     order.Side
	Type     order.Type
	Quantity int
	Price    decimal.Decimal
	TIF      order.TIF
}

// StatusSnapshot is the broker's current view of a previously placed order.
type StatusSnapshot struct {
	BrokerOrderID string
	Status        order.Status
	FilledQty     int
	AvgFillPrice  decimal.Decimal
	RejectReason  string
	Timestamp     time.Time
}

// Adapter is the capability both the in-process MockBroker and real-broker
// REST gateways implement. Implementations must be stateless: all durable
// state lives in OrderManager's store, not in the adapter.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	PlaceOrder(ctx context.Context, req Request) (brokerOrderID string, err error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	GetOrderStatus(ctx context.Context, brokerOrderID string) (StatusSnapshot, error)

	GetPositions(ctx context.Context) ([]Position, error)
	GetAccount(ctx context.Context) (Account, error)

	SubscribeQuotes(ctx context.Context, symbols []string) error
	UnsubscribeQuotes(ctx context.Context, symbols []string) error
	GetQuote(ctx context.Context, symbol string) (price decimal.Decimal, ok bool)
}

// Registry maps broker names to their factory functions. New broker
// implementations register themselves here from an init() function.
var Registry = map[string]func(configJSON []byte) (Adapter, error){}

// New creates a broker Adapter instance by name using the registry.
func New(name string, configJSON []byte) (Adapter, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("broker: unknown broker %q, registered: %v", name, registeredNames())
	}
	return factory(configJSON)
}

func registeredNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}
