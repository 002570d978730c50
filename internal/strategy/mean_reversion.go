// Package strategy - mean_reversion.go implements a mean reversion swing
// strategy: buy when price drops significantly below its 20-bar SMA,
// expecting reversion to the mean; exit once price recovers to the mean or
// an oversold RSI resolves.
//
// Entry rules:
//   - Sufficient bar history (20+)
//   - Close is below the 20-SMA by at least DeviationPct
//   - RSI(14) is oversold (below OversoldRSI)
//
// Exit rules:
//   - Close recovers to at or above the 20-SMA
//   - RSI(14) rises back above ExitRSI
package strategy

import (
	"fmt"

	"github.com/ashare/tradeengine/internal/event"
)

// MeanReversionStrategy buys oversold dips below a moving-average anchor.
type MeanReversionStrategy struct {
	SMAPeriod     int     // default 20
	RSIPeriod     int     // default 14
	DeviationPct  float64 // default 0.05 (5% below SMA)
	OversoldRSI   float64 // default 30
	ExitRSI       float64 // default 50

	history  *History
	position map[string]Position
}

// NewMeanReversionStrategy creates a mean reversion strategy with sensible
// defaults.
func NewMeanReversionStrategy() *MeanReversionStrategy {
	return &MeanReversionStrategy{
		SMAPeriod:    20,
		RSIPeriod:    14,
		DeviationPct: 0.05,
		OversoldRSI:  30,
		ExitRSI:      50,
		history:      NewHistory(200),
		position:     make(map[string]Position),
	}
}

func (s *MeanReversionStrategy) ID() string   { return "mean_reversion_v1" }
func (s *MeanReversionStrategy) Name() string { return "Mean Reversion" }

func (s *MeanReversionStrategy) OnMarketData(bar event.Bar, publish PublishFunc) {
	bars := s.history.Push(bar)
	if len(bars) < s.SMAPeriod {
		return
	}

	sma := SMA(bars, s.SMAPeriod)
	rsi := RSI(bars, s.RSIPeriod)
	closePx, _ := bar.Close.Float64()
	pos := s.position[bar.Symbol]

	if !pos.Open() {
		if sma <= 0 {
			return
		}
		deviation := (sma - closePx) / sma
		if deviation >= s.DeviationPct && rsi <= s.OversoldRSI {
			strength := deviation / (s.DeviationPct * 2)
			if strength > 1 {
				strength = 1
			}
			publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, strength,
				fmt.Sprintf("price %.2f is %.1f%% below SMA(%d)=%.2f, RSI=%.1f oversold",
					closePx, deviation*100, s.SMAPeriod, sma, rsi)))
		}
		return
	}

	if closePx >= sma {
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 1.0,
			fmt.Sprintf("price %.2f reverted to SMA(%d)=%.2f", closePx, s.SMAPeriod, sma)))
		return
	}
	if rsi >= s.ExitRSI {
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 0.6,
			fmt.Sprintf("RSI recovered to %.1f >= %.1f", rsi, s.ExitRSI)))
	}
}

func (s *MeanReversionStrategy) OnFill(f event.FillSnapshot) {
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
