// Package broker - mock.go implements the in-process MockBroker used for
// backtesting and paper trading. It maintains its own cash and positions
// ledger, simulates asynchronous fills with configurable delay, slippage,
// and rejection rate, and enforces the same T+1 available-quantity rule a
// real A-share broker does.
package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/money"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/shopspring/decimal"
)

// MockConfig holds the tunables from the configuration surface's
// "broker(mock)" block.
type MockConfig struct {
	FillDelay     time.Duration
	SlippageRate  decimal.Decimal
	RejectionRate float64 // [0,1]; fraction of orders rejected at random
}

// DefaultMockConfig returns the documented defaults.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		FillDelay:    100 * time.Millisecond,
		SlippageRate: decimal.NewFromFloat(0.0001),
	}
}

type mockLot struct {
	quantity  int
	boughtOn  time.Time // trade date the lot was bought, for T+1 release
	available bool      // becomes true once released at the next session open
}

type mockPosition struct {
	symbol  string
	lots    []mockLot
	avgCost decimal.Decimal
}

func (p *mockPosition) totalQuantity() int {
	n := 0
	for _, l := range p.lots {
		n += l.quantity
	}
	return n
}

func (p *mockPosition) availableQuantity(now time.Time, cal *market.Calendar) int {
	n := 0
	for _, l := range p.lots {
		if l.available || releasedBy(l.boughtOn, now, cal) {
			n += l.quantity
		}
	}
	return n
}

// releasedBy reports whether a lot bought on boughtOn has crossed its T+1
// release point (the next trading session open) as of now.
func releasedBy(boughtOn, now time.Time, cal *market.Calendar) bool {
	nextDay := cal.NextTradingDay(boughtOn)
	releaseAt := time.Date(nextDay.Year(), nextDay.Month(), nextDay.Day(),
		market.Morning.OpenHour, market.Morning.OpenMin, 0, 0, market.CST)
	return !now.Before(releaseAt)
}

type mockOrder struct {
	req      Request
	snapshot StatusSnapshot
}

// MockBroker is the in-process BrokerAdapter backing backtests and paper
// trading.
type MockBroker struct {
	cfg MockConfig
	cal *market.Calendar

	mu        sync.Mutex
	cash      decimal.Decimal
	reserved  decimal.Decimal // subtracted from AvailableCash; no code path adds to it, so pending BUY orders do not reduce AvailableCash
	positions map[string]*mockPosition
	orders    map[string]*mockOrder
	quotes    map[string]decimal.Decimal
	nextID    int
	connected bool
	rng       *rand.Rand
}

// NewMockBroker creates a MockBroker seeded with initialCapital cash.
func NewMockBroker(initialCapital decimal.Decimal, cfg MockConfig, cal *market.Calendar) *MockBroker {
	return &MockBroker{
		cfg:       cfg,
		cal:       cal,
		cash:      initialCapital,
		positions: make(map[string]*mockPosition),
		orders:    make(map[string]*mockOrder),
		quotes:    make(map[string]decimal.Decimal),
		rng:       rand.New(rand.NewSource(1)),
	}
}

func (m *MockBroker) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockBroker) Disconnect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockBroker) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// PlaceOrder simulates submission: the order is accepted synchronously and
// its fill is applied after cfg.FillDelay, mimicking a real broker's
// accept-then-fill round trip. A random subset (RejectionRate) is rejected
// immediately instead, to exercise the reject path in tests.
func (m *MockBroker) PlaceOrder(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.nextID++
	brokerOrderID := fmt.Sprintf("MOCK-%d", m.nextID)

	if m.cfg.RejectionRate > 0 && m.rng.Float64() < m.cfg.RejectionRate {
		m.orders[brokerOrderID] = &mockOrder{req: req, snapshot: StatusSnapshot{
			BrokerOrderID: brokerOrderID,
			Status:        order.StatusRejected,
			RejectReason:  "simulated random rejection",
			Timestamp:     time.Now(),
		}}
		m.mu.Unlock()
		return brokerOrderID, &OrderRejectedError{OrderID: brokerOrderID, Reason: "simulated random rejection"}
	}

	m.orders[brokerOrderID] = &mockOrder{req: req, snapshot: StatusSnapshot{
		BrokerOrderID: brokerOrderID,
		Status:        order.StatusAccepted,
		Timestamp:     time.Now(),
	}}
	m.mu.Unlock()

	go func() {
		select {
		case <-time.After(m.cfg.FillDelay):
			m.applyFill(brokerOrderID)
		case <-ctx.Done():
		}
	}()

	return brokerOrderID, nil
}

func (m *MockBroker) applyFill(brokerOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mo, ok := m.orders[brokerOrderID]
	if !ok || mo.snapshot.Status.IsTerminal() {
		return
	}

	req := mo.req
	fillPrice := req.Price
	if req.Type == order.TypeMarket {
		if q, ok := m.quotes[req.Symbol]; ok {
			fillPrice = q
		}
	}
	slip := fillPrice.Mul(m.cfg.SlippageRate)
	if req.Side == order.SideBuy {
		fillPrice = fillPrice.Add(slip)
	} else {
		fillPrice = fillPrice.Sub(slip)
	}
	fillPrice = money.RoundTick(fillPrice)

	now := time.Now()
	notional := fillPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))

	switch req.Side {
	case order.SideBuy:
		m.cash = m.cash.Sub(notional)
		pos, ok := m.positions[req.Symbol]
		if !ok {
			pos = &mockPosition{symbol: req.Symbol}
			m.positions[req.Symbol] = pos
		}
		prevQty := pos.totalQuantity()
		pos.avgCost = weightedAvg(pos.avgCost, prevQty, fillPrice, req.Quantity)
		pos.lots = append(pos.lots, mockLot{quantity: req.Quantity, boughtOn: now})

	case order.SideSell:
		pos, ok := m.positions[req.Symbol]
		if !ok {
			mo.snapshot = StatusSnapshot{BrokerOrderID: brokerOrderID, Status: order.StatusRejected, RejectReason: "no position to sell", Timestamp: now}
			return
		}
		m.cash = m.cash.Add(notional)
		consumeLots(pos, req.Quantity, now, m.cal)
		if pos.totalQuantity() == 0 {
			delete(m.positions, req.Symbol)
		}
	}

	mo.snapshot = StatusSnapshot{
		BrokerOrderID: brokerOrderID,
		Status:        order.StatusFilled,
		FilledQty:     req.Quantity,
		AvgFillPrice:  fillPrice,
		Timestamp:     now,
	}
}

func weightedAvg(prevAvg decimal.Decimal, prevQty int, addPrice decimal.Decimal, addQty int) decimal.Decimal {
	if prevQty == 0 {
		return addPrice
	}
	total := prevQty + addQty
	prevNotional := prevAvg.Mul(decimal.NewFromInt(int64(prevQty)))
	addNotional := addPrice.Mul(decimal.NewFromInt(int64(addQty)))
	return prevNotional.Add(addNotional).Div(decimal.NewFromInt(int64(total)))
}

// consumeLots removes qty shares FIFO from the available, then released,
// lots. Sells may only be placed up to availableQuantity by the risk gate,
// so this never needs to consume a still-locked lot under normal operation.
func consumeLots(pos *mockPosition, qty int, now time.Time, cal *market.Calendar) {
	remaining := qty
	kept := pos.lots[:0]
	for _, l := range pos.lots {
		if remaining == 0 {
			kept = append(kept, l)
			continue
		}
		avail := l.available || releasedBy(l.boughtOn, now, cal)
		if !avail {
			kept = append(kept, l)
			continue
		}
		if l.quantity <= remaining {
			remaining -= l.quantity
			continue
		}
		l.quantity -= remaining
		remaining = 0
		kept = append(kept, l)
	}
	pos.lots = kept
}

func (m *MockBroker) CancelOrder(_ context.Context, brokerOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo, ok := m.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("mock broker: order %s not found", brokerOrderID)
	}
	if mo.snapshot.Status.IsTerminal() {
		return nil // idempotent: already terminal, nothing to cancel
	}
	mo.snapshot.Status = order.StatusCanceled
	return nil
}

func (m *MockBroker) GetOrderStatus(_ context.Context, brokerOrderID string) (StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo, ok := m.orders[brokerOrderID]
	if !ok {
		return StatusSnapshot{}, fmt.Errorf("mock broker: order %s not found", brokerOrderID)
	}
	return mo.snapshot, nil
}

func (m *MockBroker) GetPositions(_ context.Context) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	result := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		last := p.avgCost
		if q, ok := m.quotes[p.symbol]; ok {
			last = q
		}
		result = append(result, Position{
			Symbol:            p.symbol,
			Quantity:          p.totalQuantity(),
			AvailableQuantity: p.availableQuantity(now, m.cal),
			AvgCost:           p.avgCost,
			LastPrice:         last,
		})
	}
	return result, nil
}

func (m *MockBroker) GetAccount(_ context.Context) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stockValue := decimal.Zero
	for _, p := range m.positions {
		last := p.avgCost
		if q, ok := m.quotes[p.symbol]; ok {
			last = q
		}
		stockValue = stockValue.Add(last.Mul(decimal.NewFromInt(int64(p.totalQuantity()))))
	}

	return Account{
		CashBalance:   m.cash,
		AvailableCash: m.cash.Sub(m.reserved),
		StockValue:    stockValue,
		TotalAssets:   m.cash.Add(stockValue),
	}, nil
}

func (m *MockBroker) SubscribeQuotes(_ context.Context, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range symbols {
		if _, ok := m.quotes[s]; !ok {
			m.quotes[s] = decimal.Zero
		}
	}
	return nil
}

func (m *MockBroker) UnsubscribeQuotes(_ context.Context, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range symbols {
		delete(m.quotes, s)
	}
	return nil
}

func (m *MockBroker) GetQuote(_ context.Context, symbol string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	return q, ok
}

// SetQuote is a test/backtest-feed hook: it pushes the latest traded price
// for symbol, which market orders fill against.
func (m *MockBroker) SetQuote(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = price
}
