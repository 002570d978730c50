// Package strategy - momentum.go implements an RSI reversal strategy with
// four thresholds: deep-oversold and oversold entries sized more
// aggressively than a shallow dip, overbought and deep-overbought exits
// sized symmetrically. Four bands (instead of a single oversold/overbought
// pair) let the strategy scale into a position as RSI falls further and
// scale the exit signal strength with how extended the rally is.
//
// Entry rules:
//   - RSI(period) <= DeepOversold  → strong buy signal
//   - RSI(period) <= Oversold      → moderate buy signal
//
// Exit rules:
//   - RSI(period) >= DeepOverbought → strong sell signal
//   - RSI(period) >= Overbought     → moderate sell signal
package strategy

import (
	"fmt"

	"github.com/ashare/tradeengine/internal/event"
)

// RSIReversalStrategy buys oversold RSI readings and sells overbought ones
// across four graduated thresholds.
type RSIReversalStrategy struct {
	Period          int     // default 14
	DeepOversold    float64 // default 20
	Oversold        float64 // default 30
	Overbought      float64 // default 70
	DeepOverbought  float64 // default 80

	history  *History
	position map[string]Position
}

// NewRSIReversalStrategy creates an RSI reversal strategy with sensible
// defaults.
func NewRSIReversalStrategy() *RSIReversalStrategy {
	return &RSIReversalStrategy{
		Period:         14,
		DeepOversold:   20,
		Oversold:       30,
		Overbought:     70,
		DeepOverbought: 80,
		history:        NewHistory(200),
		position:       make(map[string]Position),
	}
}

func (s *RSIReversalStrategy) ID() string   { return "rsi_reversal_v1" }
func (s *RSIReversalStrategy) Name() string { return "RSI Reversal" }

func (s *RSIReversalStrategy) OnMarketData(bar event.Bar, publish PublishFunc) {
	bars := s.history.Push(bar)
	if len(bars) < s.Period+1 {
		return
	}
	rsi := RSI(bars, s.Period)
	pos := s.position[bar.Symbol]

	if !pos.Open() {
		switch {
		case rsi <= s.DeepOversold:
			publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, 1.0,
				fmt.Sprintf("RSI(%d)=%.1f <= deep oversold %.1f", s.Period, rsi, s.DeepOversold)))
		case rsi <= s.Oversold:
			publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, 0.5,
				fmt.Sprintf("RSI(%d)=%.1f <= oversold %.1f", s.Period, rsi, s.Oversold)))
		}
		return
	}

	switch {
	case rsi >= s.DeepOverbought:
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 1.0,
			fmt.Sprintf("RSI(%d)=%.1f >= deep overbought %.1f", s.Period, rsi, s.DeepOverbought)))
	case rsi >= s.Overbought:
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 0.5,
			fmt.Sprintf("RSI(%d)=%.1f >= overbought %.1f", s.Period, rsi, s.Overbought)))
	}
}

func (s *RSIReversalStrategy) OnFill(f event.FillSnapshot) {
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
