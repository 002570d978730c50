package order

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ashare/tradeengine/internal/broker"
	"github.com/ashare/tradeengine/internal/event"
)

// RateLimiter is an engine-level token bucket gating order submission
// (max_orders_per_second, default 10). Excess submits block — they never
// silently drop, per the configuration surface's rate-limit policy.
//
// A plain buffered-channel token bucket is used instead of an external rate
// library: the corpus carries no rate-limiting dependency anywhere, and the
// policy here is exactly "N tokens refilled once per second", which a
// ticker plus a channel expresses in a handful of lines.
type RateLimiter struct {
	tokens chan struct{}
	stop   chan struct{}
	once   sync.Once
}

// NewRateLimiter creates a limiter that allows ratePerSecond submissions per
// second, replenished once per second.
func NewRateLimiter(ratePerSecond int) *RateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	rl := &RateLimiter{
		tokens: make(chan struct{}, ratePerSecond),
		stop:   make(chan struct{}),
	}
	for i := 0; i < ratePerSecond; i++ {
		rl.tokens <- struct{}{}
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for i := 0; i < ratePerSecond; i++ {
					select {
					case rl.tokens <- struct{}{}:
					default:
					}
				}
			case <-rl.stop:
				return
			}
		}
	}()

	return rl
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the replenishment goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Store persists every order state transition durably enough that
// restarting the live engine restores non-terminal orders and resumes
// monitoring them.
type Store interface {
	SaveOrder(ctx context.Context, o *Order) error
	LoadNonTerminal(ctx context.Context) ([]*Order, error)
}

// Publisher is the non-blocking publish capability the Manager uses to put
// Order/Fill events on the engine bus (§9 redesign: components receive the
// bus as a capability, never the engine itself).
type Publisher interface {
	Publish(e event.Event)
}

// Manager owns the order state machine and the broker round-trip: submit,
// monitor, cancel, and crash-safe persistence/resume.
type Manager struct {
	broker  broker.Adapter
	store   Store
	limiter *RateLimiter
	bus     Publisher
	logger  *log.Logger

	pollInterval time.Duration

	mu     sync.Mutex
	orders map[string]*Order // keyed by OrderID
}

// NewManager constructs an order Manager.
func NewManager(b broker.Adapter, store Store, limiter *RateLimiter, bus Publisher, logger *log.Logger) *Manager {
	return &Manager{
		broker:       b,
		store:        store,
		limiter:      limiter,
		bus:          bus,
		logger:       logger,
		pollInterval: 3 * time.Second,
		orders:       make(map[string]*Order),
	}
}

// Resume loads all non-terminal orders from the store on startup and
// relaunches their monitor loops.
func (m *Manager) Resume(ctx context.Context) error {
	pending, err := m.store.LoadNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("order manager: resume: %w", err)
	}
	for _, o := range pending {
		m.mu.Lock()
		m.orders[o.OrderID] = o
		m.mu.Unlock()
		go m.monitor(ctx, o)
		m.logger.Printf("order manager: resumed monitoring order %s (status=%s)", o.OrderID, o.Status)
	}
	return nil
}

// Submit validates, rate-limits, and submits an order to the broker,
// transitioning it through VALIDATED -> SUBMITTED -> ACCEPTED|REJECTED, then
// schedules a monitor task on success.
func (m *Manager) Submit(ctx context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		m.persistAndPublish(ctx, o)
		return err
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("order manager: rate limit wait: %w", err)
	}

	if err := o.transition(StatusSubmitted); err != nil {
		m.persistAndPublish(ctx, o)
		return err
	}
	m.persistAndPublish(ctx, o)

	brokerOrderID, err := m.broker.PlaceOrder(ctx, broker.Request{
		OrderID:  o.OrderID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Type:     o.Type,
		Quantity: o.Quantity,
		Price:    o.Price,
		TIF:      o.TIF,
	})
	if err != nil {
		o.Status = StatusRejected
		o.RejectReason = err.Error()
		m.persistAndPublish(ctx, o)
		return &RejectedError{OrderID: o.OrderID, Reason: err.Error()}
	}

	o.BrokerOrderID = brokerOrderID
	now := time.Now()
	o.SubmittedAt = &now
	if err := o.transition(StatusAccepted); err != nil {
		m.persistAndPublish(ctx, o)
		return err
	}
	m.persistAndPublish(ctx, o)

	m.mu.Lock()
	m.orders[o.OrderID] = o
	m.mu.Unlock()

	go m.monitor(ctx, o)
	return nil
}

// monitor polls the broker for status until the order reaches a terminal
// state, writing through every non-idempotent transition and publishing
// each (partial) fill to the bus.
func (m *Manager) monitor(ctx context.Context, o *Order) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	check := func() bool {
		snap, err := m.broker.GetOrderStatus(ctx, o.BrokerOrderID)
		if err != nil {
			m.logger.Printf("order manager: poll order %s: %v", o.OrderID, err)
			return false
		}

		if snap.FilledQty > o.FilledQuantity {
			fillQty := snap.FilledQty - o.FilledQuantity
			f := Fill{
				OrderID:   o.OrderID,
				Symbol:    o.Symbol,
				Quantity:  fillQty,
				Price:     snap.AvgFillPrice,
				Timestamp: snap.Timestamp,
			}
			if err := o.ApplyFill(f); err != nil {
				m.logger.Printf("order manager: apply fill for %s: %v", o.OrderID, err)
			} else {
				m.persistAndPublish(ctx, o)
				m.bus.Publish(event.NewFillEvent(snap.Timestamp, event.FillSnapshot{
					OrderID:   o.OrderID,
					Symbol:    o.Symbol,
					Side:      string(o.Side),
					Quantity:  f.Quantity,
					Price:     f.Price,
					Timestamp: f.Timestamp,
				}))
			}
		} else if snap.Status == StatusRejected || snap.Status == StatusCanceled {
			o.Status = snap.Status
			o.RejectReason = snap.RejectReason
			m.persistAndPublish(ctx, o)
		}

		return o.Status.IsTerminal()
	}

	if check() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if check() {
				return
			}
		}
	}
}

// Cancel is allowed only in cancelable states; it is idempotent on repeated
// calls against an already-terminal order.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("order manager: unknown order %s", orderID)
	}

	if o.Status.IsTerminal() {
		return nil // idempotent
	}
	if !o.Status.IsCancelable() {
		return fmt.Errorf("order manager: order %s not cancelable in state %s", orderID, o.Status)
	}

	if err := o.transition(StatusCanceling); err != nil {
		return err
	}
	m.persistAndPublish(ctx, o)

	if err := m.broker.CancelOrder(ctx, o.BrokerOrderID); err != nil {
		m.logger.Printf("order manager: broker cancel for %s: %v", orderID, err)
	}
	return nil
}

func (m *Manager) persistAndPublish(ctx context.Context, o *Order) {
	if m.store != nil {
		if err := m.store.SaveOrder(ctx, o); err != nil {
			m.logger.Printf("order manager: persist order %s: %v", o.OrderID, err)
		}
	}
	m.bus.Publish(event.NewOrderEvent(time.Now(), event.OrderSnapshot{
		OrderID:        o.OrderID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Status:         string(o.Status),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		RejectReason:   o.RejectReason,
	}))
}
