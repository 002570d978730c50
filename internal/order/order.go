// Package order owns the order lifecycle state machine and the broker
// round-trip: validating, submitting, monitoring, and persisting every
// transition. The Order value itself is owned exclusively by Manager; every
// other component (Portfolio, Strategy, dashboards) observes only the
// immutable event.OrderSnapshot/FillSnapshot views published to the bus.
package order

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

var orderSeq atomic.Int64

// nextOrderID mints a process-unique, time-ordered order identifier. The
// Postgres Store uses it alone as the orders primary key (a save with an
// existing ID updates that row); uniqueness across restarts rests on the
// nanosecond timestamp prefix.
func nextOrderID() string {
	return fmt.Sprintf("ORD-%d-%d", time.Now().UnixNano(), orderSeq.Add(1))
}

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Type is the order pricing mode.
type Type string

const (
	TypeMarket Type = "MARKET"
	TypeLimit  Type = "LIMIT"
)

// TIF is time-in-force.
type TIF string

const (
	TIFDay TIF = "DAY"
	TIFIOC TIF = "IOC"
)

// Status is a state in the order lifecycle state machine:
//
//	CREATED -> VALIDATED -> SUBMITTED -> ACCEPTED -> PARTIALLY_FILLED -> FILLED
//	                             |            |
//	                             v            v
//	                         REJECTED     CANCELING -> CANCELED
//
// Terminal states are FILLED, CANCELED, REJECTED, EXPIRED. Only
// ACCEPTED/PARTIALLY_FILLED are cancelable.
type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusValidated       Status = "VALIDATED"
	StatusSubmitted       Status = "SUBMITTED"
	StatusAccepted        Status = "ACCEPTED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusRejected        Status = "REJECTED"
	StatusCanceling       Status = "CANCELING"
	StatusCanceled        Status = "CANCELED"
	StatusExpired         Status = "EXPIRED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// IsCancelable reports whether cancel(order_id) may be attempted from this state.
func (s Status) IsCancelable() bool {
	switch s {
	case StatusAccepted, StatusPartiallyFilled:
		return true
	default:
		return false
	}
}

// allowedTransition is the adjacency of the state machine diagram; used by
// Order.transition to reject any transition that skips a required state.
var allowedTransition = map[Status][]Status{
	StatusCreated:         {StatusValidated},
	StatusValidated:       {StatusSubmitted, StatusRejected},
	StatusSubmitted:       {StatusAccepted, StatusRejected},
	StatusAccepted:        {StatusPartiallyFilled, StatusFilled, StatusCanceling, StatusRejected, StatusExpired},
	StatusPartiallyFilled: {StatusPartiallyFilled, StatusFilled, StatusCanceling},
	StatusCanceling:       {StatusCanceled},
}

func (s Status) canTransitionTo(next Status) bool {
	for _, n := range allowedTransition[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Order is the mutable, Manager-owned record of one order's full lifecycle.
type Order struct {
	OrderID        string
	AccountID      string
	Symbol         string
	Side           Side
	Type           Type
	Quantity       int
	Price          decimal.Decimal // set iff Type == TypeLimit
	TIF            TIF
	Status         Status
	FilledQuantity int
	AvgFillPrice   decimal.Decimal // defined iff FilledQuantity > 0
	RejectReason   string
	Metadata       map[string]string

	CreatedAt   time.Time
	SubmittedAt *time.Time
	FilledAt    *time.Time
	CanceledAt  *time.Time

	BrokerOrderID string
}

// Fill is one (possibly partial) execution against an Order.
type Fill struct {
	OrderID    string
	Symbol     string
	Quantity   int
	Price      decimal.Decimal
	Commission decimal.Decimal
	Timestamp  time.Time
}

// New constructs an Order in the CREATED state. Validate must be called
// (and must succeed) before the order can transition further.
func New(accountID, symbol string, side Side, typ Type, quantity int, price decimal.Decimal, tif TIF) *Order {
	return &Order{
		OrderID:   nextOrderID(),
		Symbol:    symbol,
		AccountID: accountID,
		Side:      side,
		Type:      typ,
		Quantity:  quantity,
		Price:     price,
		TIF:       tif,
		Status:    StatusCreated,
		CreatedAt: time.Now(),
		Metadata:  map[string]string{},
	}
}

// Validate checks the §3 order invariants and transitions CREATED -> VALIDATED,
// or CREATED -> REJECTED if invalid. Returns a non-nil error describing the
// first violated invariant; the order is never left in CREATED after this call.
func (o *Order) Validate() error {
	if o.Quantity <= 0 || o.Quantity%100 != 0 {
		return o.reject("quantity must be positive and a multiple of 100 shares (lot size)")
	}
	if o.Type == TypeLimit && o.Price.IsZero() {
		return o.reject("limit order requires a price")
	}
	o.Status = StatusValidated
	return nil
}

func (o *Order) reject(reason string) error {
	o.Status = StatusRejected
	o.RejectReason = reason
	return &RejectedError{OrderID: o.OrderID, Reason: reason}
}

// RejectedError is returned when an order is validated or submitted but
// fails and transitions to REJECTED.
type RejectedError struct {
	OrderID string
	Reason  string
}

func (e *RejectedError) Error() string {
	return "order rejected: " + e.Reason
}

// transition applies a state change, refusing any edge not present in the
// state machine diagram (§3 invariant: "no transition skips intermediate
// required states").
func (o *Order) transition(next Status) error {
	if o.Status.IsTerminal() {
		return &RejectedError{OrderID: o.OrderID, Reason: "order already in terminal state " + string(o.Status)}
	}
	if !o.Status.canTransitionTo(next) {
		return &RejectedError{OrderID: o.OrderID, Reason: "illegal transition " + string(o.Status) + " -> " + string(next)}
	}
	o.Status = next
	return nil
}

// ApplyFill folds a (partial) fill into the order: filled_quantity only
// grows, avg_fill_price is volume-weighted, and the status advances to
// PARTIALLY_FILLED or FILLED.
func (o *Order) ApplyFill(f Fill) error {
	if o.Status != StatusAccepted && o.Status != StatusPartiallyFilled {
		return &RejectedError{OrderID: o.OrderID, Reason: "cannot apply fill in state " + string(o.Status)}
	}

	totalQty := o.FilledQuantity + f.Quantity
	if totalQty > o.Quantity {
		return &RejectedError{OrderID: o.OrderID, Reason: "fill would exceed order quantity"}
	}

	if o.FilledQuantity == 0 {
		o.AvgFillPrice = f.Price
	} else {
		prevNotional := o.AvgFillPrice.Mul(decimalFromInt(o.FilledQuantity))
		newNotional := f.Price.Mul(decimalFromInt(f.Quantity))
		o.AvgFillPrice = prevNotional.Add(newNotional).Div(decimalFromInt(totalQty))
	}
	o.FilledQuantity = totalQty

	if o.FilledQuantity == o.Quantity {
		now := time.Now()
		o.FilledAt = &now
		return o.transition(StatusFilled)
	}
	return o.transition(StatusPartiallyFilled)
}

// Accept transitions a validated order straight to ACCEPTED, skipping the
// broker round trip a live submission would go through SUBMITTED for. Used
// only by the backtest signal router, which has no broker to submit
// through but still needs a normal-lifecycle order before a fill can apply.
func (o *Order) Accept() error {
	if err := o.transition(StatusSubmitted); err != nil {
		return err
	}
	return o.transition(StatusAccepted)
}

// Expire transitions an accepted order to EXPIRED. Used when a backtest bar
// produces no fill for a day-only order: blocked by a price limit, outside
// the trading session, or the simulator's liquidity cap rounds the
// fillable quantity to zero.
func (o *Order) Expire() error {
	return o.transition(StatusExpired)
}

func decimalFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }
