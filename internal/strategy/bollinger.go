// Package strategy - bollinger.go implements a two-mode Bollinger Band
// strategy. Mode "breakout" buys a squeeze-then-expansion move above the
// upper band (trend continuation); mode "reversion" buys a touch of the
// lower band and sells at the middle band (range trading). The active mode
// is chosen per instance so the same engine can run both against different
// symbol sets.
//
// Breakout entry:
//   - Prior bar's bandwidth was below SqueezeBandwidth (tight bands)
//   - Current close breaks above the current upper band
//   - Volume confirms (>= VolumeMultiplier × average volume)
//
// Reversion entry:
//   - Current close at or below the lower band
//
// Exit (both modes): close falls back below the middle band (breakout) or
// reaches the middle band (reversion).
package strategy

import (
	"fmt"

	"github.com/ashare/tradeengine/internal/event"
)

// BollingerMode selects which half of the strategy is active.
type BollingerMode string

const (
	BollingerBreakout  BollingerMode = "breakout"
	BollingerReversion BollingerMode = "reversion"
)

// BollingerStrategy trades Bollinger Band extremes in one of two modes.
type BollingerStrategy struct {
	Mode             BollingerMode
	Period           int     // default 20
	Multiplier       float64 // default 2.0
	SqueezeBandwidth float64 // default 0.10, breakout mode only
	VolumeMultiplier float64 // default 1.2, breakout mode only

	history  *History
	position map[string]Position
}

// NewBollingerStrategy creates a Bollinger Band strategy in the given mode
// with sensible defaults.
func NewBollingerStrategy(mode BollingerMode) *BollingerStrategy {
	return &BollingerStrategy{
		Mode:             mode,
		Period:           20,
		Multiplier:       2.0,
		SqueezeBandwidth: 0.10,
		VolumeMultiplier: 1.2,
		history:          NewHistory(200),
		position:         make(map[string]Position),
	}
}

func (s *BollingerStrategy) ID() string   { return "bollinger_" + string(s.Mode) + "_v1" }
func (s *BollingerStrategy) Name() string { return "Bollinger Band " + string(s.Mode) }

func (s *BollingerStrategy) OnMarketData(bar event.Bar, publish PublishFunc) {
	bars := s.history.Push(bar)
	if len(bars) < s.Period+1 {
		return
	}

	middle, upper, lower, _ := BollingerBands(bars, s.Period, s.Multiplier)
	closePx, _ := bar.Close.Float64()
	pos := s.position[bar.Symbol]

	if pos.Open() {
		if s.Mode == BollingerReversion && closePx >= middle {
			publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 1.0,
				fmt.Sprintf("reverted to middle band %.2f", middle)))
			return
		}
		if s.Mode == BollingerBreakout && closePx < middle {
			publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 1.0,
				fmt.Sprintf("price %.2f fell below middle band %.2f, momentum lost", closePx, middle)))
		}
		return
	}

	switch s.Mode {
	case BollingerReversion:
		if lower > 0 && closePx <= lower {
			publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, 0.6,
				fmt.Sprintf("price %.2f touched lower band %.2f", closePx, lower)))
		}
	case BollingerBreakout:
		_, _, _, priorBandwidth := BollingerBands(bars[:len(bars)-1], s.Period, s.Multiplier)
		if priorBandwidth == 0 || priorBandwidth > s.SqueezeBandwidth {
			return
		}
		if upper == 0 || closePx <= upper {
			return
		}
		avgVol := AverageVolume(bars[:len(bars)-1], s.Period)
		if avgVol > 0 && float64(bar.Volume) < avgVol*s.VolumeMultiplier {
			return
		}
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, 0.8,
			fmt.Sprintf("squeeze bandwidth %.4f broke out above upper band %.2f on volume %d",
				priorBandwidth, upper, bar.Volume)))
	}
}

func (s *BollingerStrategy) OnFill(f event.FillSnapshot) {
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
