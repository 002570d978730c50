// Package strategy - vwap.go implements grid trading: a ladder of buy/sell
// lines spaced GridStepPct apart around a base price. Each time price falls
// through a new lower line, buy one lot; each time price rises enough to
// clear the oldest open lot's entry line by one grid step, sell it. Lots
// are closed FIFO, and a lot is sold only once price has reached a higher
// grid level than the one it was bought at.
//
// This is a genuinely stateful strategy — unlike a crossover or band
// strategy it cannot be expressed as a pure function of the current bar
// window, since its decisions depend on which grid lines it has already
// traded. That statefulness is exactly why strategies are event-driven
// rather than pure Evaluate(input) calls.
package strategy

import (
	"fmt"

	"github.com/ashare/tradeengine/internal/event"
)

// gridLot is one open FIFO lot bought at a specific grid line.
type gridLot struct {
	level int
	price float64
	qty   int
}

// GridStrategy trades a fixed-interval price grid around a base anchor.
type GridStrategy struct {
	GridStepPct float64 // default 0.02 (2% per line)
	LotSize     int     // default 100, shares per grid lot
	MaxLevels   int     // default 10, maximum simultaneous open lots per symbol

	base       map[string]float64
	lastLevel  map[string]int
	openLots   map[string][]gridLot
}

// NewGridStrategy creates a grid trading strategy with sensible defaults.
func NewGridStrategy() *GridStrategy {
	return &GridStrategy{
		GridStepPct: 0.02,
		LotSize:     100,
		MaxLevels:   10,
		base:        make(map[string]float64),
		lastLevel:   make(map[string]int),
		openLots:    make(map[string][]gridLot),
	}
}

func (s *GridStrategy) ID() string   { return "grid_trading_v1" }
func (s *GridStrategy) Name() string { return "Grid Trading" }

func (s *GridStrategy) level(symbol string, price float64) int {
	base, ok := s.base[symbol]
	if !ok || base == 0 {
		s.base[symbol] = price
		return 0
	}
	step := base * s.GridStepPct
	if step == 0 {
		return 0
	}
	return int((price - base) / step)
}

func (s *GridStrategy) OnMarketData(bar event.Bar, publish PublishFunc) {
	price, _ := bar.Close.Float64()
	if price <= 0 {
		return
	}
	curLevel := s.level(bar.Symbol, price)
	prevLevel, seen := s.lastLevel[bar.Symbol]
	s.lastLevel[bar.Symbol] = curLevel
	if !seen {
		return
	}

	if curLevel < prevLevel {
		if len(s.openLots[bar.Symbol]) >= s.MaxLevels {
			return
		}
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, 0.3,
			fmt.Sprintf("price %.3f crossed down to grid level %d", price, curLevel)))
		return
	}

	lots := s.openLots[bar.Symbol]
	if curLevel > prevLevel && len(lots) > 0 {
		oldest := lots[0]
		if curLevel > oldest.level {
			publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 0.3,
				fmt.Sprintf("price %.3f cleared lot opened at level %d by one grid step", price, oldest.level)))
		}
	}
}

func (s *GridStrategy) OnFill(f event.FillSnapshot) {
	price, _ := f.Price.Float64()
	level := s.level(f.Symbol, price)
	if f.Side == "BUY" {
		s.openLots[f.Symbol] = append(s.openLots[f.Symbol], gridLot{level: level, price: price, qty: f.Quantity})
		return
	}
	lots := s.openLots[f.Symbol]
	if len(lots) > 0 {
		s.openLots[f.Symbol] = lots[1:]
	}
}
