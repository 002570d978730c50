// Package strategy - macd.go implements a MACD/KDJ confirmation strategy:
// buy on a bullish MACD crossover (MACD line crosses above its signal line)
// confirmed by KDJ's K line standing above D and below KDJOversold+20; exit
// on the reverse MACD crossover. Requiring KDJ agreement filters out MACD
// crossovers that fire late in an already-extended move.
package strategy

import (
	"fmt"

	"github.com/ashare/tradeengine/internal/event"
)

// MACDKDJStrategy trades confirmed MACD/KDJ crossovers.
type MACDKDJStrategy struct {
	FastPeriod   int // default 12
	SlowPeriod   int // default 26
	SignalPeriod int // default 9
	KDJPeriod    int // default 9
	KDJOversold  float64 // default 30

	history  *History
	position map[string]Position
}

// NewMACDKDJStrategy creates a MACD/KDJ confirmation strategy with
// sensible defaults.
func NewMACDKDJStrategy() *MACDKDJStrategy {
	return &MACDKDJStrategy{
		FastPeriod:   12,
		SlowPeriod:   26,
		SignalPeriod: 9,
		KDJPeriod:    9,
		KDJOversold:  30,
		history:      NewHistory(200),
		position:     make(map[string]Position),
	}
}

func (s *MACDKDJStrategy) ID() string   { return "macd_kdj_v1" }
func (s *MACDKDJStrategy) Name() string { return "MACD/KDJ Confirmation" }

func (s *MACDKDJStrategy) OnMarketData(bar event.Bar, publish PublishFunc) {
	bars := s.history.Push(bar)
	if len(bars) < s.SlowPeriod+s.SignalPeriod+1 {
		return
	}

	macdLine, signalLine, _ := MACD(bars, s.FastPeriod, s.SlowPeriod, s.SignalPeriod)
	prevMACD, prevSignal, _ := MACD(bars[:len(bars)-1], s.FastPeriod, s.SlowPeriod, s.SignalPeriod)
	k, d, _ := KDJ(bars, s.KDJPeriod)
	pos := s.position[bar.Symbol]

	crossedUp := prevMACD <= prevSignal && macdLine > signalLine
	crossedDown := prevMACD >= prevSignal && macdLine < signalLine

	switch {
	case !pos.Open() && crossedUp && k > d && k < s.KDJOversold+20:
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, 0.65,
			fmt.Sprintf("MACD crossed above signal (%.4f>%.4f), KDJ K=%.1f>D=%.1f", macdLine, signalLine, k, d)))
	case pos.Open() && crossedDown:
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 1.0,
			fmt.Sprintf("MACD crossed below signal (%.4f<%.4f)", macdLine, signalLine)))
	}
}

func (s *MACDKDJStrategy) OnFill(f event.FillSnapshot) {
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
