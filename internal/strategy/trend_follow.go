// Package strategy - trend_follow.go implements a moving-average crossover
// strategy: the oldest trend-following signal, buy when a fast SMA crosses
// above a slow SMA, exit on the reverse cross.
//
// Entry rules:
//   - Sufficient bar history (slowPeriod+1)
//   - Fast SMA crosses above slow SMA on this bar (was below or equal on
//     the prior bar)
//
// Exit rules:
//   - Fast SMA crosses below slow SMA
package strategy

import (
	"fmt"

	"github.com/ashare/tradeengine/internal/event"
)

// MACrossoverStrategy is a dual simple-moving-average crossover strategy.
type MACrossoverStrategy struct {
	FastPeriod int // default 10
	SlowPeriod int // default 30

	history  *History
	position map[string]Position
}

// NewMACrossoverStrategy creates an MA crossover strategy with sensible
// defaults.
func NewMACrossoverStrategy() *MACrossoverStrategy {
	return &MACrossoverStrategy{
		FastPeriod: 10,
		SlowPeriod: 30,
		history:    NewHistory(200),
		position:   make(map[string]Position),
	}
}

func (s *MACrossoverStrategy) ID() string   { return "ma_crossover_v1" }
func (s *MACrossoverStrategy) Name() string { return "MA Crossover" }

func (s *MACrossoverStrategy) OnMarketData(bar event.Bar, publish PublishFunc) {
	bars := s.history.Push(bar)
	if len(bars) < s.SlowPeriod+1 {
		return
	}

	fastNow := SMA(bars, s.FastPeriod)
	slowNow := SMA(bars, s.SlowPeriod)
	fastPrev := SMA(bars[:len(bars)-1], s.FastPeriod)
	slowPrev := SMA(bars[:len(bars)-1], s.SlowPeriod)

	pos := s.position[bar.Symbol]
	crossedUp := fastPrev <= slowPrev && fastNow > slowNow
	crossedDown := fastPrev >= slowPrev && fastNow < slowNow

	switch {
	case !pos.Open() && crossedUp:
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, 0.7,
			fmt.Sprintf("fast SMA(%d)=%.3f crossed above slow SMA(%d)=%.3f", s.FastPeriod, fastNow, s.SlowPeriod, slowNow)))
	case pos.Open() && crossedDown:
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 1.0,
			fmt.Sprintf("fast SMA(%d)=%.3f crossed below slow SMA(%d)=%.3f", s.FastPeriod, fastNow, s.SlowPeriod, slowNow)))
	}
}

func (s *MACrossoverStrategy) OnFill(f event.FillSnapshot) {
	pos := s.position[f.Symbol]
	price, _ := f.Price.Float64()
	if f.Side == "BUY" {
		pos.Quantity += f.Quantity
		pos.EntryPrice = price
		pos.EntryTime = f.Timestamp
	} else {
		pos.Quantity -= f.Quantity
		if pos.Quantity <= 0 {
			pos = Position{}
		}
	}
	s.position[f.Symbol] = pos
}
