// Package strategy - pullback.go implements a Bollinger Band + RSI combo
// strategy: requires agreement between a band-touch and an RSI threshold
// before acting, reducing false signals either indicator would throw alone.
//
// Entry rules:
//   - Close at or below the lower Bollinger Band
//   - RSI(period) <= Oversold
//
// Exit rules:
//   - Close at or above the upper Bollinger Band, or
//   - RSI(period) >= Overbought
package strategy

import (
	"fmt"

	"github.com/ashare/tradeengine/internal/event"
)

// BollingerRSIComboStrategy only signals when both a Bollinger Band
// extreme and an RSI extreme agree.
type BollingerRSIComboStrategy struct {
	BBPeriod   int     // default 20
	BBMult     float64 // default 2.0
	RSIPeriod  int     // default 14
	Oversold   float64 // default 35
	Overbought float64 // default 65

	history  *History
	position map[string]Position
}

// NewBollingerRSIComboStrategy creates a combo strategy with sensible
// defaults.
func NewBollingerRSIComboStrategy() *BollingerRSIComboStrategy {
	return &BollingerRSIComboStrategy{
		BBPeriod:   20,
		BBMult:     2.0,
		RSIPeriod:  14,
		Oversold:   35,
		Overbought: 65,
		history:    NewHistory(200),
		position:   make(map[string]Position),
	}
}

func (s *BollingerRSIComboStrategy) ID() string   { return "bollinger_rsi_combo_v1" }
func (s *BollingerRSIComboStrategy) Name() string { return "Bollinger+RSI Combo" }

func (s *BollingerRSIComboStrategy) OnMarketData(bar event.Bar, publish PublishFunc) {
	bars := s.history.Push(bar)
	if len(bars) < s.BBPeriod+1 || len(bars) < s.RSIPeriod+1 {
		return
	}

	_, upper, lower, _ := BollingerBands(bars, s.BBPeriod, s.BBMult)
	rsi := RSI(bars, s.RSIPeriod)
	closePx, _ := bar.Close.Float64()
	pos := s.position[bar.Symbol]

	if !pos.Open() {
		if lower > 0 && closePx <= lower && rsi <= s.Oversold {
			publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, 0.75,
				fmt.Sprintf("price %.2f <= lower band %.2f and RSI=%.1f <= %.1f", closePx, lower, rsi, s.Oversold)))
		}
		return
	}

	if (upper > 0 && closePx >= upper) || rsi >= s.Overbought {
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, 1.0,
			fmt.Sprintf("price %.2f vs upper band %.2f, RSI=%.1f vs %.1f", closePx, upper, rsi, s.Overbought)))
	}
}

func (s *BollingerRSIComboStrategy) OnFill(f event.FillSnapshot) {
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
